package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration. It is read once at startup and
// handed to the components that need it; nothing re-reads the environment
// while jobs are running.
type Config struct {
	// Object storage (S3-compatible API, GCS interop by default)
	StorageEndpoint  string
	StorageRegion    string
	StorageAccessKey string
	StorageSecretKey string
	StoragePathStyle bool

	// Defaults for ENCODING jobs that omit bucket/bucket_parent_folder
	DefaultBucket       string
	DefaultBucketPrefix string

	// Native GCS client; empty means gs:// goes through the S3-compatible endpoint
	GCSCredentialsFile string

	SFTP SFTPConfig

	// Root directory for file:// URIs; empty disables the local backend
	LocalStorageRoot string

	FFmpegPath string
	AssetsDir  string

	JobTokenSecret  string
	ListenAddr      string
	JobTimeout      time.Duration
	MaxAsyncJobs    int // background jobs running at once
	RecordRetention time.Duration

	LogLevel string
	LogFile  string

	DataDir string
}

// SFTPConfig holds the optional sftp:// backend settings.
type SFTPConfig struct {
	Host       string
	Port       string
	User       string
	Password   string
	PrivateKey string // base64 or raw PEM
	BaseDir    string

	KnownHostsFile        string
	InsecureIgnoreHostKey bool
}

// Enabled reports whether enough settings exist to dial the server.
func (s SFTPConfig) Enabled() bool {
	return s.Host != "" && s.User != "" && (s.Password != "" || s.PrivateKey != "")
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		StorageEndpoint:     getEnv("STORAGE_ENDPOINT", "https://storage.googleapis.com"),
		StorageRegion:       getEnv("STORAGE_REGION", "auto"),
		StorageAccessKey:    os.Getenv("HMAC_KEY"),
		StorageSecretKey:    os.Getenv("HMAC_SECRET"),
		DefaultBucket:       os.Getenv("DEFAULT_BUCKET"),
		DefaultBucketPrefix: os.Getenv("DEFAULT_BUCKET_PARENT_FOLDER"),
		GCSCredentialsFile:  os.Getenv("GCS_CREDENTIALS_FILE"),
		SFTP: SFTPConfig{
			Host:       os.Getenv("SFTP_HOST"),
			Port:       getEnv("SFTP_PORT", "22"),
			User:       os.Getenv("SFTP_USER"),
			Password:   os.Getenv("SFTP_PASSWORD"),
			PrivateKey: os.Getenv("SFTP_PRIVATE_KEY"),
			BaseDir:    os.Getenv("SFTP_BASE_DIR"),

			KnownHostsFile: os.Getenv("SFTP_KNOWN_HOSTS"),
		},
		LocalStorageRoot: os.Getenv("LOCAL_STORAGE_ROOT"),
		FFmpegPath:       getEnv("FFMPEG_PATH", "/ffmpeg"),
		AssetsDir:        getEnv("ASSETS_DIR", "/assets"),
		JobTokenSecret:   os.Getenv("JOB_TOKEN_SECRET"),
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		DataDir:          GetDataDir(),
	}

	var err error
	if cfg.StoragePathStyle, err = getBool("STORAGE_PATH_STYLE", false); err != nil {
		return nil, err
	}
	if cfg.SFTP.InsecureIgnoreHostKey, err = getBool("SFTP_INSECURE_IGNORE_HOST_KEY", false); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = getDuration("JOB_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.MaxAsyncJobs, err = getInt("MAX_ASYNC_JOBS", 1); err != nil {
		return nil, err
	}
	if cfg.MaxAsyncJobs < 1 {
		return nil, fmt.Errorf("invalid MAX_ASYNC_JOBS %d: must be at least 1", cfg.MaxAsyncJobs)
	}
	if cfg.RecordRetention, err = getDuration("RECORD_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
