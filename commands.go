package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediajob/logger"
	"mediajob/models"
	"mediajob/routes"
	"mediajob/utils"

	"github.com/spf13/cobra"
)

const cleanupInterval = 24 * time.Hour

func newServeCommand(c *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting mediajob server initialization")
			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			go a.cleanupRoutine(ctx, cleanupInterval)

			srv := routes.NewServer(ctx, a.handler)
			srv.Dispatcher = a.dispatcher()
			srv.TokenSecret = []byte(c.cfg.JobTokenSecret)
			defer srv.Dispatcher.Wait()

			if n, err := srv.Dispatcher.Resume(ctx); err != nil {
				logger.Errorf("Failed to resume queued jobs: %v", err)
			} else if n > 0 {
				logger.Infof("Resumed %d queued jobs", n)
			}
			srv.JobTimeout = c.cfg.JobTimeout
			if len(srv.TokenSecret) == 0 {
				logger.Warn("JOB_TOKEN_SECRET is not set; POST /jobs accepts unauthenticated requests")
			}

			httpServer := &http.Server{
				Addr:              c.cfg.ListenAddr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("mediajob server listening on %s", c.cfg.ListenAddr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
				logger.Info("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		},
	}
}

func newRunCommand(c *cliContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single job from a JSON file (or - for stdin) and print its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := readJob(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if c.cfg.JobTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, c.cfg.JobTimeout)
				defer cancel()
			}

			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.handler.Handle(ctx, j)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Job JSON file")
	return cmd
}

func readJob(file string, stdin io.Reader) (models.Job, error) {
	var j models.Job
	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return j, fmt.Errorf("open job file: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&j); err != nil {
		return j, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}

func newTokenCommand(c *cliContext) *cobra.Command {
	var subject, issuer string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a job-submission token signed with JOB_TOKEN_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.JobTokenSecret == "" {
				return errors.New("JOB_TOKEN_SECRET is not set")
			}
			claims := models.JobClaims{Issuer: issuer, Subject: subject}
			if ttl > 0 {
				claims.ExpiresAt = time.Now().Add(ttl).Unix()
			}
			token, err := utils.CreateJobToken(claims, []byte(c.cfg.JobTokenSecret))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "mediajob-client", "Token subject")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime (0 = no expiry)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			v := routes.Version()
			fmt.Fprintf(cmd.OutOrStdout(), "mediajob %s (commit %s, built %s, %s)\n", v.Version, v.GitCommit, v.BuildTime, v.GoVersion)
			return nil
		},
	}
}
