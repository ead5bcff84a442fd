package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"mediajob/config"
	"mediajob/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTP is a Backend for sftp:// URIs. The URI host selects nothing: every
// object lives on the configured server, under BaseDir/bucket/key.
type SFTP struct {
	addr    string
	baseDir string
	config  *ssh.ClientConfig
}

func NewSFTP(cfg config.SFTPConfig) (*SFTP, error) {
	var auths []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		// try to decode as base64, fall back to raw
		keyBytes, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
		if err != nil {
			keyBytes = []byte(cfg.PrivateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if cfg.Password != "" {
		auths = append(auths, ssh.Password(cfg.Password))
	} else {
		return nil, fmt.Errorf("no sftp auth method provided; set SFTP_PASSWORD or SFTP_PRIVATE_KEY")
	}

	hostKeys, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == "" {
		port = "22"
	}
	return &SFTP{
		addr:    net.JoinHostPort(cfg.Host, port),
		baseDir: cfg.BaseDir,
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auths,
			HostKeyCallback: hostKeys,
			Timeout:         10 * time.Second,
		},
	}, nil
}

// hostKeyCallback verifies the server against SFTP_KNOWN_HOSTS. Skipping
// verification must be asked for explicitly.
func hostKeyCallback(cfg config.SFTPConfig) (ssh.HostKeyCallback, error) {
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		return cb, nil
	}
	if cfg.InsecureIgnoreHostKey {
		logger.Warnf("sftp: host key verification disabled for %s", cfg.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return nil, fmt.Errorf("no sftp host key policy; set SFTP_KNOWN_HOSTS or SFTP_INSECURE_IGNORE_HOST_KEY=true")
}

// connect dials a fresh session per transfer; jobs are long and infrequent.
func (s *SFTP) connect(ctx context.Context) (*sftp.Client, func(), error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial tcp %s: %w", s.addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, s.addr, s.config)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", s.addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("create sftp client: %w", err)
	}
	return sftpClient, func() {
		sftpClient.Close()
		sshClient.Close()
	}, nil
}

func (s *SFTP) remotePath(bucket, key string) string {
	return path.Join("/", s.baseDir, bucket, key)
}

func (s *SFTP) Download(ctx context.Context, bucket, key, localPath string) error {
	client, done, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer done()

	remote := s.remotePath(bucket, key)
	src, err := client.Open(remote)
	if err != nil {
		return fmt.Errorf("open remote file %s: %w", remote, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy from remote file %s: %w", remote, err)
	}
	logger.Infof("Downloaded '%s' from %s", remote, s.addr)
	return nil
}

func (s *SFTP) Upload(ctx context.Context, localPath, bucket, key string) error {
	client, done, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer done()

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	remote := s.remotePath(bucket, key)
	dir := path.Dir(remote)
	if err := mkdirAllSFTP(client, dir); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", dir, err)
	}

	f, err := client.Create(remote)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remote, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		return fmt.Errorf("copy to remote file %s: %w", remote, err)
	}

	logger.Infof("Successfully uploaded '%s' to %s", remote, s.addr)
	return nil
}

// mkdirAllSFTP mimics os.MkdirAll for an SFTP server by creating each segment of the path.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if os.IsNotExist(err) {
				if err := client.Mkdir(cur); err != nil {
					return fmt.Errorf("mkdir %s: %w", cur, err)
				}
			} else {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
		}
	}
	return nil
}
