// Package bootstrap assembles the long-lived components from a Config so the
// server binary and the CLI build them the same way.
package bootstrap

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dharsanguruparan/ScribeDrop/internal/config"
	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
	"github.com/dharsanguruparan/ScribeDrop/internal/notify"
	"github.com/dharsanguruparan/ScribeDrop/internal/pipeline"
	"github.com/dharsanguruparan/ScribeDrop/internal/processing"
	"github.com/dharsanguruparan/ScribeDrop/internal/s3storage"
	"github.com/dharsanguruparan/ScribeDrop/internal/server"
	"github.com/dharsanguruparan/ScribeDrop/internal/signing"
	"github.com/dharsanguruparan/ScribeDrop/internal/transcribe"
)

// App holds every wired component.
type App struct {
	Config       *config.Config
	Storage      *s3storage.Storage
	Transcriber  *transcribe.Gateway
	Notifier     *notify.Notifier
	Orchestrator *pipeline.Orchestrator
	Limiter      *processing.Limiter
	Signer       *signing.Signer
	Server       *server.Server
}

// Build constructs the application graph. Nothing here touches the network;
// clients connect lazily on first use.
func Build(cfg *config.Config, logger *log.Logger) (*App, error) {
	logger = logging.OrDefault(logger)

	store, err := s3storage.New(cfg.S3, logger.WithPrefix("s3"))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	stt, err := transcribe.New(cfg.Transcribe, store, logger.WithPrefix("transcribe"))
	if err != nil {
		return nil, fmt.Errorf("init transcribe: %w", err)
	}
	notifier := notify.New(cfg.SMTP, logger.WithPrefix("smtp"))
	if missing := cfg.SMTP.Missing(); len(missing) > 0 {
		logger.Warn("smtp settings incomplete, transcripts will not be emailed", "missing", missing)
	}

	orch, err := pipeline.New(pipeline.Settings{
		UploadRoot:        cfg.UploadRoot,
		Bucket:            cfg.Bucket,
		TranscribeTimeout: cfg.Transcribe.Timeout,
	}, store, stt, notifier, logger.WithPrefix("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	limiter := processing.New(cfg.ProcessingPool)
	signer := signing.NewSigner(cfg.FormSecret, cfg.FormTokenTTL)
	srv := server.New(cfg, orch, limiter, signer, logger.WithPrefix("http"))

	return &App{
		Config:       cfg,
		Storage:      store,
		Transcriber:  stt,
		Notifier:     notifier,
		Orchestrator: orch,
		Limiter:      limiter,
		Signer:       signer,
		Server:       srv,
	}, nil
}
