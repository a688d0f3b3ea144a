package model

import "fmt"

// ErrorKind classifies where a run failed.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindStaging       ErrorKind = "staging"
	KindUpload        ErrorKind = "upload"
	KindTranscription ErrorKind = "transcription"
	KindTimeout       ErrorKind = "timeout"
	KindRetrieval     ErrorKind = "retrieval"
	KindNotification  ErrorKind = "notification"
	KindCleanup       ErrorKind = "cleanup"
)

// User-facing messages, one per failing stage. They never carry internals.
const (
	MsgMissingFormData      = "missing form data"
	MsgStagingFailed        = "could not save uploaded file"
	MsgUploadFailed         = "failed to upload file"
	MsgTranscriptionFailed  = "failed to start or complete transcription"
	MsgTranscriptionTimeout = "transcription job timed out"
	MsgRetrievalFailed      = "could not retrieve transcript content"
)

var kindMessages = map[ErrorKind]string{
	KindValidation:    MsgMissingFormData,
	KindStaging:       MsgStagingFailed,
	KindUpload:        MsgUploadFailed,
	KindTranscription: MsgTranscriptionFailed,
	KindTimeout:       MsgTranscriptionTimeout,
	KindRetrieval:     MsgRetrievalFailed,
}

// StageError is a stage-aware failure. Message is safe to show users; Err
// keeps the underlying cause for logs and errors.Is.
type StageError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewStageError builds a StageError with the canonical message for kind.
func NewStageError(kind ErrorKind, err error) *StageError {
	msg, ok := kindMessages[kind]
	if !ok {
		msg = string(kind) + " failed"
	}
	return &StageError{Kind: kind, Message: msg, Err: err}
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Outcome is the single terminal result of one run. Exactly one of
// (Transcript, Email) or Err is meaningful.
type Outcome struct {
	Transcript string
	Email      string
	// Notified reports whether the transcript email was handed to the SMTP
	// server. It never affects success.
	Notified bool
	Err      *StageError
}

// Success builds a successful Outcome.
func Success(transcript, email string, notified bool) Outcome {
	return Outcome{Transcript: transcript, Email: email, Notified: notified}
}

// Failure builds a failed Outcome for kind.
func Failure(kind ErrorKind, err error) Outcome {
	return Outcome{Err: NewStageError(kind, err)}
}

// OK reports whether the run succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Message returns the user-facing error message, or "" on success.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Message
}
