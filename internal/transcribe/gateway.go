// Package transcribe drives remote speech-to-text jobs on Amazon Transcribe
// and decodes the transcript documents they produce.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/transcribeservice"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/ScribeDrop/internal/config"
	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
)

var (
	// ErrJobFailed means the remote job reached the FAILED state or never started.
	ErrJobFailed = errors.New("transcription job failed")
	// ErrJobTimedOut means the caller's deadline passed before a terminal state.
	ErrJobTimedOut = errors.New("transcription job timed out")
)

const maxPollInterval = 30 * time.Second

// jobAPI is the subset of *transcribeservice.TranscribeService used here.
type jobAPI interface {
	StartTranscriptionJobWithContext(aws.Context, *transcribeservice.StartTranscriptionJobInput, ...request.Option) (*transcribeservice.StartTranscriptionJobOutput, error)
	GetTranscriptionJobWithContext(aws.Context, *transcribeservice.GetTranscriptionJobInput, ...request.Option) (*transcribeservice.GetTranscriptionJobOutput, error)
}

// ObjectReader reads transcript documents out of the object store.
type ObjectReader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// Gateway is the transcription gateway.
type Gateway struct {
	jobs         jobAPI
	objects      ObjectReader
	httpClient   *http.Client
	outputBucket string
	pollInterval time.Duration
	newJobName   func() string
	log          *log.Logger
}

// New builds a Gateway backed by an AWS session for cfg.Region. objects may be
// nil when transcripts are always fetched over HTTPS.
func New(cfg config.TranscribeConfig, objects ObjectReader, logger *log.Logger) (*Gateway, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return newGateway(transcribeservice.New(sess), objects, cfg, logger), nil
}

func newGateway(jobs jobAPI, objects ObjectReader, cfg config.TranscribeConfig, logger *log.Logger) *Gateway {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Gateway{
		jobs:         jobs,
		objects:      objects,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		outputBucket: cfg.OutputBucket,
		pollInterval: interval,
		newJobName:   func() string { return "scribedrop-" + uuid.NewString() },
		log:          logging.OrDefault(logger),
	}
}

// SubmitAndAwait starts a job for the object at bucket/key and blocks until it
// completes, fails, or ctx ends. On success it returns the transcript location.
func (g *Gateway) SubmitAndAwait(ctx context.Context, bucket, key, language string) (string, error) {
	jobName := g.newJobName()
	input := &transcribeservice.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
		LanguageCode:         aws.String(language),
		Media: &transcribeservice.Media{
			MediaFileUri: aws.String(fmt.Sprintf("s3://%s/%s", bucket, key)),
		},
	}
	if format := mediaFormat(key); format != "" {
		input.MediaFormat = aws.String(format)
	}
	if g.outputBucket != "" {
		input.OutputBucketName = aws.String(g.outputBucket)
	}

	logger := g.log.With("job", jobName, "bucket", bucket, "key", key)
	if _, err := g.jobs.StartTranscriptionJobWithContext(ctx, input); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrJobTimedOut, ctxErr)
		}
		logger.Error("start transcription job", "err", err)
		return "", fmt.Errorf("%w: start %s: %w", ErrJobFailed, jobName, err)
	}
	logger.Info("transcription job started", "language", language)

	interval := g.pollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Warn("stopped waiting for transcription job", "err", ctx.Err())
			return "", fmt.Errorf("%w: %s: %w", ErrJobTimedOut, jobName, ctx.Err())
		case <-timer.C:
		}

		out, err := g.jobs.GetTranscriptionJobWithContext(ctx, &transcribeservice.GetTranscriptionJobInput{
			TranscriptionJobName: aws.String(jobName),
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("%w: %s: %w", ErrJobTimedOut, jobName, ctxErr)
			}
			logger.Error("poll transcription job", "err", err)
			return "", fmt.Errorf("%w: poll %s: %w", ErrJobFailed, jobName, err)
		}
		job := out.TranscriptionJob
		if job == nil {
			return "", fmt.Errorf("%w: %s: empty job description", ErrJobFailed, jobName)
		}
		switch aws.StringValue(job.TranscriptionJobStatus) {
		case transcribeservice.TranscriptionJobStatusCompleted:
			if job.Transcript == nil || aws.StringValue(job.Transcript.TranscriptFileUri) == "" {
				return "", fmt.Errorf("%w: %s: completed without transcript uri", ErrJobFailed, jobName)
			}
			uri := aws.StringValue(job.Transcript.TranscriptFileUri)
			logger.Info("transcription job completed", "uri", uri)
			return uri, nil
		case transcribeservice.TranscriptionJobStatusFailed:
			reason := aws.StringValue(job.FailureReason)
			logger.Error("transcription job failed", "reason", reason)
			return "", fmt.Errorf("%w: %s: %s", ErrJobFailed, jobName, reason)
		}

		logger.Debug("transcription job pending", "status", aws.StringValue(job.TranscriptionJobStatus))
		interval = nextInterval(interval)
		timer.Reset(interval)
	}
}

func nextInterval(d time.Duration) time.Duration {
	d = d * 3 / 2
	if d > maxPollInterval {
		return maxPollInterval
	}
	return d
}

// mediaFormat maps a key's extension to a format Transcribe accepts, or ""
// to let the service detect it.
func mediaFormat(key string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".")
	switch ext {
	case "mp3", "mp4", "wav", "flac", "ogg", "amr", "webm", "m4a":
		return ext
	case "oga", "opus":
		return "ogg"
	}
	return ""
}
