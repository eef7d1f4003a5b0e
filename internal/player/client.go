package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Request identifies one utterance to synthesize.
type Request struct {
	Text      string
	SessionID string
	VoiceID   string
}

// StreamResult is an open synthesis stream. The caller owns Body.
type StreamResult struct {
	Body io.ReadCloser
	Mime string
}

// SynthesisClient produces audio for a request, either incrementally or
// as a whole file.
type SynthesisClient interface {
	Stream(ctx context.Context, req Request) (*StreamResult, error)
	Synthesize(ctx context.Context, req Request) ([]byte, string, error)
}

// StatusError reports a non-success synthesis response.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("TTS API failed (%d)", e.Status)
}

// Client talks to the synthesis service over HTTP.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the given base URL, for example
// "http://127.0.0.1:8100".
func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Stream opens an incremental synthesis response. A non-success status
// is returned as a *StatusError with the body closed.
func (c *Client) Stream(ctx context.Context, req Request) (*StreamResult, error) {
	resp, err := c.post(ctx, c.base+"/api/v1/tts/stream", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &StatusError{Status: resp.StatusCode}
	}
	return &StreamResult{
		Body: resp.Body,
		Mime: resp.Header.Get("Content-Type"),
	}, nil
}

// Synthesize fetches the complete audio blob for a request.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, string, error) {
	resp, err := c.post(ctx, c.base+"/api/v1/tts", req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &StatusError{Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading synthesis response: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) post(ctx context.Context, url string, req Request) (*http.Response, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("text", req.Text); err != nil {
		return nil, err
	}
	if req.SessionID != "" {
		if err := form.WriteField("session_id", req.SessionID); err != nil {
			return nil, err
		}
	}
	if req.VoiceID != "" {
		if err := form.WriteField("voice_id", req.VoiceID); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	return c.http.Do(httpReq)
}
