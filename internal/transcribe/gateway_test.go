package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/transcribeservice"

	"github.com/dharsanguruparan/ScribeDrop/internal/config"
	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
)

// fakeJobs replays a fixed list of job states, repeating the last one.
type fakeJobs struct {
	mu       sync.Mutex
	startErr error
	states   []*transcribeservice.TranscriptionJob
	started  *transcribeservice.StartTranscriptionJobInput
	polls    int
}

func (f *fakeJobs) StartTranscriptionJobWithContext(ctx aws.Context, in *transcribeservice.StartTranscriptionJobInput, _ ...request.Option) (*transcribeservice.StartTranscriptionJobOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = in
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &transcribeservice.StartTranscriptionJobOutput{}, nil
}

func (f *fakeJobs) GetTranscriptionJobWithContext(ctx aws.Context, in *transcribeservice.GetTranscriptionJobInput, _ ...request.Option) (*transcribeservice.GetTranscriptionJobOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.polls
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	f.polls++
	return &transcribeservice.GetTranscriptionJobOutput{TranscriptionJob: f.states[idx]}, nil
}

func jobState(status, uri, reason string) *transcribeservice.TranscriptionJob {
	job := &transcribeservice.TranscriptionJob{TranscriptionJobStatus: aws.String(status)}
	if uri != "" {
		job.Transcript = &transcribeservice.Transcript{TranscriptFileUri: aws.String(uri)}
	}
	if reason != "" {
		job.FailureReason = aws.String(reason)
	}
	return job
}

type fakeObjects struct {
	data map[string][]byte
	gets []string
}

func (f *fakeObjects) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	f.gets = append(f.gets, bucket+"/"+key)
	data, ok := f.data[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func testGateway(jobs jobAPI, objects ObjectReader, outputBucket string) *Gateway {
	g := newGateway(jobs, objects, config.TranscribeConfig{
		PollInterval: time.Millisecond,
		OutputBucket: outputBucket,
	}, logging.Discard())
	g.newJobName = func() string { return "scribedrop-test" }
	return g
}

func TestSubmitAndAwaitCompletes(t *testing.T) {
	jobs := &fakeJobs{states: []*transcribeservice.TranscriptionJob{
		jobState(transcribeservice.TranscriptionJobStatusInProgress, "", ""),
		jobState(transcribeservice.TranscriptionJobStatusCompleted, "https://result/1", ""),
	}}
	g := testGateway(jobs, nil, "")

	uri, err := g.SubmitAndAwait(context.Background(), "audio", "transcriptions/u@example.com/abc.wav", "en-US")
	if err != nil {
		t.Fatalf("SubmitAndAwait() error = %v", err)
	}
	if uri != "https://result/1" {
		t.Fatalf("uri = %q", uri)
	}
	if jobs.polls != 2 {
		t.Fatalf("polls = %d, want 2", jobs.polls)
	}
	in := jobs.started
	if aws.StringValue(in.Media.MediaFileUri) != "s3://audio/transcriptions/u@example.com/abc.wav" {
		t.Fatalf("media uri = %q", aws.StringValue(in.Media.MediaFileUri))
	}
	if aws.StringValue(in.LanguageCode) != "en-US" {
		t.Fatalf("language = %q", aws.StringValue(in.LanguageCode))
	}
	if aws.StringValue(in.MediaFormat) != "wav" {
		t.Fatalf("media format = %q", aws.StringValue(in.MediaFormat))
	}
	if aws.StringValue(in.TranscriptionJobName) != "scribedrop-test" {
		t.Fatalf("job name = %q", aws.StringValue(in.TranscriptionJobName))
	}
	if in.OutputBucketName != nil {
		t.Fatalf("output bucket should be unset")
	}
}

func TestSubmitAndAwaitFailedJob(t *testing.T) {
	jobs := &fakeJobs{states: []*transcribeservice.TranscriptionJob{
		jobState(transcribeservice.TranscriptionJobStatusFailed, "", "unsupported media"),
	}}
	_, err := testGateway(jobs, nil, "").SubmitAndAwait(context.Background(), "audio", "k.mp3", "en-US")
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("error = %v, want ErrJobFailed", err)
	}
	if errors.Is(err, ErrJobTimedOut) {
		t.Fatalf("failure must not look like a timeout")
	}
}

func TestSubmitAndAwaitStartError(t *testing.T) {
	jobs := &fakeJobs{startErr: errors.New("throttled")}
	_, err := testGateway(jobs, nil, "").SubmitAndAwait(context.Background(), "audio", "k.mp3", "en-US")
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("error = %v, want ErrJobFailed", err)
	}
	if jobs.polls != 0 {
		t.Fatalf("should not poll after failed start")
	}
}

func TestSubmitAndAwaitTimesOut(t *testing.T) {
	jobs := &fakeJobs{states: []*transcribeservice.TranscriptionJob{
		jobState(transcribeservice.TranscriptionJobStatusInProgress, "", ""),
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := testGateway(jobs, nil, "").SubmitAndAwait(ctx, "audio", "k.mp3", "en-US")
	if !errors.Is(err, ErrJobTimedOut) {
		t.Fatalf("error = %v, want ErrJobTimedOut", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestSubmitAndAwaitSetsOutputBucket(t *testing.T) {
	jobs := &fakeJobs{states: []*transcribeservice.TranscriptionJob{
		jobState(transcribeservice.TranscriptionJobStatusCompleted, "s3://results/job.json", ""),
	}}
	if _, err := testGateway(jobs, nil, "results").SubmitAndAwait(context.Background(), "audio", "k.flac", "de-DE"); err != nil {
		t.Fatalf("SubmitAndAwait() error = %v", err)
	}
	if aws.StringValue(jobs.started.OutputBucketName) != "results" {
		t.Fatalf("output bucket = %q", aws.StringValue(jobs.started.OutputBucketName))
	}
}

func TestFetchContentOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobName":"j","status":"COMPLETED","results":{"transcripts":[{"transcript":"hello world"}]}}`))
	}))
	defer srv.Close()

	text, err := testGateway(&fakeJobs{}, nil, "").FetchContent(context.Background(), srv.URL+"/result.json")
	if err != nil {
		t.Fatalf("FetchContent() error = %v", err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q", text)
	}
}

func TestFetchContentHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := testGateway(&fakeJobs{}, nil, "").FetchContent(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 403")
	}
}

func TestFetchContentFromOutputBucket(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{
		"results/scribedrop-test.json": []byte(`{"results":{"transcripts":[{"transcript":"from bucket"}]}}`),
	}}
	g := testGateway(&fakeJobs{}, objects, "results")
	text, err := g.FetchContent(context.Background(), "https://s3.us-east-1.amazonaws.com/results/scribedrop-test.json")
	if err != nil {
		t.Fatalf("FetchContent() error = %v", err)
	}
	if text != "from bucket" {
		t.Fatalf("text = %q", text)
	}
	if len(objects.gets) != 1 {
		t.Fatalf("expected one object store read, got %v", objects.gets)
	}
}

func TestDecodeTranscript(t *testing.T) {
	text, err := DecodeTranscript([]byte(`{"results":{"transcripts":[{"transcript":" one "},{"transcript":""},{"transcript":"two"}]}}`))
	if err != nil {
		t.Fatalf("DecodeTranscript() error = %v", err)
	}
	if text != "one two" {
		t.Fatalf("text = %q", text)
	}
	if _, err := DecodeTranscript([]byte(`{"results":{"transcripts":[]}}`)); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("error = %v, want ErrEmptyTranscript", err)
	}
	if _, err := DecodeTranscript([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestObjectLocation(t *testing.T) {
	cases := map[string]struct {
		bucket, key string
		ok          bool
	}{
		"s3://results/a/b.json":                             {"results", "a/b.json", true},
		"https://s3.amazonaws.com/results/b.json":           {"results", "b.json", true},
		"https://s3.eu-west-1.amazonaws.com/results/b.json": {"results", "b.json", true},
		"https://s3-eu-west-1.amazonaws.com/results/b.json": {"results", "b.json", true},
		"https://result/1":                                  {"", "", false},
		"https://s3.amazonaws.com/results":                  {"", "", false},
	}
	for in, want := range cases {
		bucket, key, ok := objectLocation(in)
		if bucket != want.bucket || key != want.key || ok != want.ok {
			t.Fatalf("objectLocation(%q) = %q, %q, %v", in, bucket, key, ok)
		}
	}
}

func TestMediaFormat(t *testing.T) {
	if mediaFormat("a/b.MP3") != "mp3" || mediaFormat("x.opus") != "ogg" || mediaFormat("x.aiff") != "" || mediaFormat("noext") != "" {
		t.Fatalf("unexpected media format mapping")
	}
}
