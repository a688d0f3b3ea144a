// Package model contains the value types that flow through one transcription
// run: the inbound Submission, the staged and remote file references, and the
// single Outcome handed back to the requester.
package model

import (
	"fmt"
)

// Submission is one user request: audio bytes plus where to send the result.
type Submission struct {
	Data     []byte
	Filename string
	Email    string
	Language string
}

// StagedFile is the local copy of a Submission's bytes.
type StagedFile struct {
	Path       string
	UniqueName string
}

// ObjectRef addresses a blob in durable object storage.
type ObjectRef struct {
	Bucket string
	Key    string
}

// URI renders the reference in s3:// form.
func (r ObjectRef) URI() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

// ObjectKey returns the remote key for a staged file owned by email.
func ObjectKey(email, uniqueName string) string {
	return fmt.Sprintf("transcriptions/%s/%s", email, uniqueName)
}
