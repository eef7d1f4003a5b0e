package player

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tts/stream" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.FormValue("text"); got != "hello there" {
			t.Errorf("text field = %q", got)
		}
		if got := r.FormValue("session_id"); got != "s-1" {
			t.Errorf("session_id field = %q", got)
		}
		if got := r.FormValue("voice_id"); got != "" {
			t.Errorf("voice_id sent despite being empty: %q", got)
		}
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write([]byte("pcmdata"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	res, err := c.Stream(context.Background(), Request{Text: "hello there", SessionID: "s-1"})
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	defer res.Body.Close()

	if res.Mime != "audio/pcm" {
		t.Errorf("mime = %q, want audio/pcm", res.Mime)
	}
	data, _ := io.ReadAll(res.Body)
	if string(data) != "pcmdata" {
		t.Errorf("body = %q, want pcmdata", data)
	}
}

func TestClientStreamBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Stream(context.Background(), Request{Text: "hi"})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", se.Status)
	}
	if se.Error() != "TTS API failed (503)" {
		t.Errorf("message = %q", se.Error())
	}
}

func TestClientSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("wavblob"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	data, mime, err := c.Synthesize(context.Background(), Request{Text: "hi", VoiceID: "nova"})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(data) != "wavblob" || mime != "audio/wav" {
		t.Errorf("got (%q, %q)", data, mime)
	}
}

func TestClientSynthesizeBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, _, err := c.Synthesize(context.Background(), Request{Text: "hi"})

	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("error = %v, want StatusError 400", err)
	}
}
