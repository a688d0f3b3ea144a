// Package config centralizes how ScribeDrop reads environment variables and
// an optional TOML file, exposing them as strongly typed Go values. The result
// is built once at startup and handed to every constructor.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrMissingBucket is returned when no destination bucket is configured.
var ErrMissingBucket = errors.New("S3_BUCKET_NAME environment variable not set")

// Config represents runtime configuration for the service.
type Config struct {
	Address        string
	UploadRoot     string
	MaxFileSize    int64
	Bucket         string
	ProcessingPool int
	FormSecret     []byte
	FormTokenTTL   time.Duration
	LogLevel       string
	LogFormat      string
	S3             S3Config
	Transcribe     TranscribeConfig
	SMTP           SMTPConfig
}

// S3Config describes the object store the staged audio is pushed to.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// TranscribeConfig controls the remote transcription job.
type TranscribeConfig struct {
	Region       string
	AccessKey    string
	SecretKey    string
	OutputBucket string
	PollInterval time.Duration
	Timeout      time.Duration
}

// SMTPConfig holds outbound mail settings. Any empty field disables sending
// at call time; it is never a startup error.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// Timeout bounds one whole SMTP session when the caller's context has
	// no deadline of its own.
	Timeout time.Duration
}

// Complete reports whether every setting needed to send mail is present.
func (c SMTPConfig) Complete() bool {
	return c.Host != "" && c.Port > 0 && c.User != "" && c.Password != ""
}

// Missing lists the names of absent SMTP settings, for logging.
func (c SMTPConfig) Missing() []string {
	var out []string
	if c.Host == "" {
		out = append(out, "SMTP_HOST")
	}
	if c.Port <= 0 {
		out = append(out, "SMTP_PORT")
	}
	if c.User == "" {
		out = append(out, "SMTP_USER")
	}
	if c.Password == "" {
		out = append(out, "SMTP_PASS")
	}
	return out
}

const (
	defaultAddress      = ":8080"
	defaultUploadRoot   = "transcriptions"
	defaultMaxFileSize  = 100 << 20 // 100 MiB
	defaultWorkerCount  = 4
	defaultFormTTL      = time.Hour
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultS3Endpoint   = "s3.amazonaws.com"
	defaultRegion       = "us-east-1"
	defaultSMTPPort     = 465
	defaultSMTPTimeout  = 30 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultJobTimeout   = 15 * time.Minute
)

// Default returns a Config populated with built-in defaults only.
func Default() *Config {
	return &Config{
		Address:        defaultAddress,
		UploadRoot:     defaultUploadRoot,
		MaxFileSize:    defaultMaxFileSize,
		ProcessingPool: defaultWorkerCount,
		FormTokenTTL:   defaultFormTTL,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
		S3: S3Config{
			Endpoint: defaultS3Endpoint,
			Region:   defaultRegion,
			UseSSL:   true,
		},
		Transcribe: TranscribeConfig{
			Region:       defaultRegion,
			PollInterval: defaultPollInterval,
			Timeout:      defaultJobTimeout,
		},
		SMTP: SMTPConfig{Port: defaultSMTPPort, Timeout: defaultSMTPTimeout},
	}
}

// Load reads configuration from environment variables falling back to defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile layers an optional TOML file over the defaults and the environment
// over both. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
		fc.apply(cfg)
	}
	applyEnv(cfg)
	if cfg.FormSecret == nil {
		cfg.FormSecret = randomSecret()
	}
	if cfg.ProcessingPool <= 0 {
		cfg.ProcessingPool = defaultWorkerCount
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.FormTokenTTL <= 0 {
		cfg.FormTokenTTL = defaultFormTTL
	}
	if cfg.Transcribe.PollInterval <= 0 {
		cfg.Transcribe.PollInterval = defaultPollInterval
	}
	if cfg.SMTP.Timeout <= 0 {
		cfg.SMTP.Timeout = defaultSMTPTimeout
	}
	if cfg.Transcribe.Timeout <= 0 {
		cfg.Transcribe.Timeout = defaultJobTimeout
	}
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Address = readEnv("SCRIBEDROP_ADDRESS", cfg.Address)
	cfg.UploadRoot = readEnv("SCRIBEDROP_UPLOAD_ROOT", cfg.UploadRoot)
	cfg.MaxFileSize = parseInt64("SCRIBEDROP_MAX_FILE_BYTES", cfg.MaxFileSize)
	cfg.ProcessingPool = parseInt("SCRIBEDROP_WORKERS", cfg.ProcessingPool)
	cfg.FormTokenTTL = parseDuration("SCRIBEDROP_FORM_TTL", cfg.FormTokenTTL)
	cfg.LogLevel = readEnv("SCRIBEDROP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = readEnv("SCRIBEDROP_LOG_FORMAT", cfg.LogFormat)
	if secret := parseSecret("SCRIBEDROP_FORM_SECRET"); secret != nil {
		cfg.FormSecret = secret
	}
	cfg.Bucket = readEnv("S3_BUCKET_NAME", cfg.Bucket)

	cfg.S3.Endpoint = readEnv("S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.UseSSL = parseBool("S3_USE_SSL", cfg.S3.UseSSL)
	cfg.S3.Region = readEnv("AWS_REGION", cfg.S3.Region)
	cfg.S3.AccessKey = readEnv("AWS_ACCESS_KEY_ID", cfg.S3.AccessKey)
	cfg.S3.SecretKey = readEnv("AWS_SECRET_ACCESS_KEY", cfg.S3.SecretKey)

	cfg.Transcribe.Region = readEnv("AWS_REGION", cfg.Transcribe.Region)
	cfg.Transcribe.AccessKey = readEnv("AWS_ACCESS_KEY_ID", cfg.Transcribe.AccessKey)
	cfg.Transcribe.SecretKey = readEnv("AWS_SECRET_ACCESS_KEY", cfg.Transcribe.SecretKey)
	cfg.Transcribe.OutputBucket = readEnv("TRANSCRIBE_OUTPUT_BUCKET", cfg.Transcribe.OutputBucket)
	cfg.Transcribe.PollInterval = parseDuration("TRANSCRIBE_POLL_INTERVAL", cfg.Transcribe.PollInterval)
	cfg.Transcribe.Timeout = parseDuration("TRANSCRIBE_TIMEOUT", cfg.Transcribe.Timeout)

	cfg.SMTP.Host = readEnv("SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Port = parseInt("SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.User = readEnv("SMTP_USER", cfg.SMTP.User)
	cfg.SMTP.Password = readEnv("SMTP_PASS", cfg.SMTP.Password)
	cfg.SMTP.Timeout = parseDuration("SMTP_TIMEOUT", cfg.SMTP.Timeout)
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(strconv.FormatInt(time.Now().UnixNano(), 16))
	}
	return buf
}
