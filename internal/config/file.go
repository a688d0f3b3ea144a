package config

import "time"

// fileConfig mirrors the TOML layout accepted by --config. Durations are
// strings in time.ParseDuration syntax.
//
//	address = ":8080"
//	bucket = "my-audio"
//
//	[smtp]
//	host = "smtp.zoho.com"
//	user = "noreply@example.com"
type fileConfig struct {
	Address     string `toml:"address"`
	UploadRoot  string `toml:"upload_root"`
	MaxFileSize int64  `toml:"max_file_bytes"`
	Bucket      string `toml:"bucket"`
	Workers     int    `toml:"workers"`
	FormSecret  string `toml:"form_secret"`
	FormTTL     string `toml:"form_ttl"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	S3 struct {
		Endpoint  string `toml:"endpoint"`
		Region    string `toml:"region"`
		AccessKey string `toml:"access_key"`
		SecretKey string `toml:"secret_key"`
		UseSSL    *bool  `toml:"use_ssl"`
	} `toml:"s3"`

	Transcribe struct {
		Region       string `toml:"region"`
		OutputBucket string `toml:"output_bucket"`
		PollInterval string `toml:"poll_interval"`
		Timeout      string `toml:"timeout"`
	} `toml:"transcribe"`

	SMTP struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		Timeout  string `toml:"timeout"`
	} `toml:"smtp"`
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.Address, fc.Address)
	setString(&cfg.UploadRoot, fc.UploadRoot)
	setString(&cfg.Bucket, fc.Bucket)
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)
	if fc.MaxFileSize > 0 {
		cfg.MaxFileSize = fc.MaxFileSize
	}
	if fc.Workers > 0 {
		cfg.ProcessingPool = fc.Workers
	}
	if fc.FormSecret != "" {
		cfg.FormSecret = []byte(fc.FormSecret)
	}
	setDuration(&cfg.FormTokenTTL, fc.FormTTL)

	setString(&cfg.S3.Endpoint, fc.S3.Endpoint)
	setString(&cfg.S3.Region, fc.S3.Region)
	setString(&cfg.S3.AccessKey, fc.S3.AccessKey)
	setString(&cfg.S3.SecretKey, fc.S3.SecretKey)
	if fc.S3.UseSSL != nil {
		cfg.S3.UseSSL = *fc.S3.UseSSL
	}

	setString(&cfg.Transcribe.Region, fc.Transcribe.Region)
	setString(&cfg.Transcribe.AccessKey, fc.S3.AccessKey)
	setString(&cfg.Transcribe.SecretKey, fc.S3.SecretKey)
	setString(&cfg.Transcribe.OutputBucket, fc.Transcribe.OutputBucket)
	setDuration(&cfg.Transcribe.PollInterval, fc.Transcribe.PollInterval)
	setDuration(&cfg.Transcribe.Timeout, fc.Transcribe.Timeout)

	setString(&cfg.SMTP.Host, fc.SMTP.Host)
	setString(&cfg.SMTP.User, fc.SMTP.User)
	setString(&cfg.SMTP.Password, fc.SMTP.Password)
	setDuration(&cfg.SMTP.Timeout, fc.SMTP.Timeout)
	if fc.SMTP.Port > 0 {
		cfg.SMTP.Port = fc.SMTP.Port
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if parsed, err := time.ParseDuration(v); err == nil {
		*dst = parsed
	}
}
