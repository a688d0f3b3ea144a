// Package pipeline runs one submission end to end: stage the audio locally,
// push it to object storage, wait for the transcription job, fetch the text,
// email it, and remove the staged file. Every failure becomes a single
// model.Outcome; nothing escapes as a panic or a raw error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
	"github.com/dharsanguruparan/ScribeDrop/internal/model"
)

// EmailSubject is the fixed subject of every transcript email.
const EmailSubject = "Your Audio Transcription is Ready"

// Uploader pushes a local file to object storage.
type Uploader interface {
	Upload(ctx context.Context, localPath, bucket, key string) error
}

// Transcriber runs a remote transcription job and reads its result.
type Transcriber interface {
	SubmitAndAwait(ctx context.Context, bucket, key, language string) (string, error)
	FetchContent(ctx context.Context, location string) (string, error)
}

// Notifier delivers one email.
type Notifier interface {
	Send(ctx context.Context, destination, subject, body string) error
}

// Settings are the process-wide values the orchestrator needs.
type Settings struct {
	UploadRoot        string
	Bucket            string
	TranscribeTimeout time.Duration
}

// Orchestrator executes the fixed stage sequence. It holds no per-run state,
// so concurrent Run calls are safe.
type Orchestrator struct {
	uploadRoot string
	bucket     string
	timeout    time.Duration
	store      Uploader
	stt        Transcriber
	notifier   Notifier
	newID      func() string
	log        *log.Logger
}

// New builds an Orchestrator and creates the upload root if absent.
func New(settings Settings, store Uploader, stt Transcriber, notifier Notifier, logger *log.Logger) (*Orchestrator, error) {
	if settings.Bucket == "" {
		return nil, errors.New("pipeline: bucket is required")
	}
	if err := os.MkdirAll(settings.UploadRoot, 0o750); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &Orchestrator{
		uploadRoot: settings.UploadRoot,
		bucket:     settings.Bucket,
		timeout:    settings.TranscribeTimeout,
		store:      store,
		stt:        stt,
		notifier:   notifier,
		newID:      uuid.NewString,
		log:        logging.OrDefault(logger),
	}, nil
}

// Run drives sub through every stage and returns exactly one Outcome.
func (o *Orchestrator) Run(ctx context.Context, sub model.Submission) model.Outcome {
	if len(sub.Data) == 0 || sub.Email == "" || sub.Language == "" {
		o.log.Warn("rejected submission with missing form data",
			"has_file", len(sub.Data) > 0, "has_email", sub.Email != "", "has_language", sub.Language != "")
		return model.Failure(model.KindValidation, nil)
	}

	staged, err := o.stage(sub)
	if err != nil {
		o.log.Error("failed to save file locally", "email", sub.Email, "err", err)
		return model.Failure(model.KindStaging, err)
	}
	defer o.cleanup(staged)
	o.log.Info("file saved locally", "path", staged.Path)

	ref := model.ObjectRef{Bucket: o.bucket, Key: model.ObjectKey(sub.Email, staged.UniqueName)}
	if err := o.store.Upload(ctx, staged.Path, ref.Bucket, ref.Key); err != nil {
		o.log.Error("failed to upload file", "path", staged.Path, "bucket", ref.Bucket, "key", ref.Key, "err", err)
		return model.Failure(model.KindUpload, err)
	}

	location, err := o.transcribe(ctx, ref, sub.Language)
	if err != nil {
		kind := model.KindTranscription
		if stoppedWaiting(err) {
			kind = model.KindTimeout
		}
		o.log.Error("transcription did not complete", "kind", kind, "key", ref.Key, "err", err)
		return model.Failure(kind, err)
	}
	if location == "" {
		o.log.Error("transcription returned no result location", "key", ref.Key)
		return model.Failure(model.KindTranscription, errors.New("empty result location"))
	}

	text, err := o.stt.FetchContent(ctx, location)
	if err != nil || text == "" {
		if err == nil {
			err = errors.New("empty transcript")
		}
		o.log.Error("could not retrieve transcript content", "location", location, "err", err)
		return model.Failure(model.KindRetrieval, err)
	}

	notified := true
	if err := o.notifier.Send(ctx, sub.Email, EmailSubject, ComposeBody(text)); err != nil {
		notified = false
		o.log.Warn("transcript email not delivered", "kind", model.KindNotification, "to", sub.Email, "err", err)
	}
	return model.Success(text, sub.Email, notified)
}

func (o *Orchestrator) transcribe(ctx context.Context, ref model.ObjectRef, language string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return o.stt.SubmitAndAwait(ctx, ref.Bucket, ref.Key, language)
}

// stoppedWaiting reports whether err means the wait for the job ended
// because its context expired or was cancelled, rather than the job failing.
func stoppedWaiting(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// ComposeBody renders the transcript email body.
func ComposeBody(transcript string) string {
	return "Hello,\n\nHere is the transcription from your recently uploaded audio file:\n\n---\n" +
		transcript +
		"\n---\n\nThank you for using our service."
}
