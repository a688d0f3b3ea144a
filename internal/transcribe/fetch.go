package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrEmptyTranscript means the document decoded but held no text.
var ErrEmptyTranscript = errors.New("transcript is empty")

const maxDocumentBytes = 32 << 20

// document is the part of the Transcribe output JSON we read.
type document struct {
	JobName string `json:"jobName"`
	Status  string `json:"status"`
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

// FetchContent retrieves the transcript document at location and returns its
// plain text. Locations inside the configured output bucket are read through
// the object store; anything else is fetched over HTTP.
func (g *Gateway) FetchContent(ctx context.Context, location string) (string, error) {
	var (
		raw []byte
		err error
	)
	if bucket, key, ok := objectLocation(location); ok && g.objects != nil && bucket == g.outputBucket {
		raw, err = g.objects.Download(ctx, bucket, key)
	} else {
		raw, err = g.httpGet(ctx, location)
	}
	if err != nil {
		g.log.Error("fetch transcript", "location", location, "err", err)
		return "", err
	}
	text, err := DecodeTranscript(raw)
	if err != nil {
		g.log.Error("decode transcript", "location", location, "err", err)
		return "", err
	}
	return text, nil
}

func (g *Gateway) httpGet(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get transcript: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return body, nil
}

// DecodeTranscript extracts the text from a Transcribe output document.
// Multiple transcript entries are joined with a single space.
func DecodeTranscript(raw []byte) (string, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("decode transcript json: %w", err)
	}
	parts := make([]string, 0, len(doc.Results.Transcripts))
	for _, t := range doc.Results.Transcripts {
		if s := strings.TrimSpace(t.Transcript); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", ErrEmptyTranscript
	}
	return strings.Join(parts, " "), nil
}

// objectLocation recognises s3://bucket/key and path-style S3 https URLs.
func objectLocation(location string) (bucket, key string, ok bool) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", false
	}
	switch {
	case u.Scheme == "s3":
		bucket, key = u.Host, strings.TrimPrefix(u.Path, "/")
	case u.Scheme == "https" && isS3Host(u.Hostname()):
		bucket, key, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	default:
		return "", "", false
	}
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func isS3Host(host string) bool {
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return false
	}
	return host == "s3.amazonaws.com" || strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-")
}
