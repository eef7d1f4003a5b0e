package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func wirePayload(audio []byte, mime string, dur float64, rate int) wireRecording {
	return wireRecording{
		AudioBase64:  base64.StdEncoding.EncodeToString(audio),
		MimeType:     mime,
		DurationSecs: dur,
		SampleRate:   rate,
	}
}

func TestDecodeRecording(t *testing.T) {
	w := wirePayload([]byte("pcm-bytes"), "audio/wav", 1.5, 16000)

	rec, err := w.decode()
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if string(rec.Audio) != "pcm-bytes" {
		t.Errorf("audio = %q", rec.Audio)
	}
	if rec.MimeType != "audio/wav" || rec.DurationSecs != 1.5 || rec.SampleRate != 16000 {
		t.Errorf("metadata = %+v", rec)
	}
}

func TestDecodeRecordingRejects(t *testing.T) {
	tests := []struct {
		name    string
		wire    wireRecording
		wantErr error
		wantMsg string
	}{
		{
			name:    "empty payload",
			wire:    wireRecording{},
			wantErr: ErrEmptyAudio,
		},
		{
			name:    "whitespace payload",
			wire:    wireRecording{AudioBase64: "   "},
			wantErr: ErrEmptyAudio,
		},
		{
			name:    "not base64",
			wire:    wireRecording{AudioBase64: "!!not-base64!!", DurationSecs: 2},
			wantMsg: "decoding capture audio",
		},
		{
			name:    "too short",
			wire:    wirePayload([]byte("x"), "audio/wav", 0.1, 16000),
			wantErr: ErrTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.wire.decode()
			if err == nil {
				t.Fatal("decode accepted a bad capture")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

type scriptedInvoker struct {
	calls   []string
	results map[string][]byte
	errs    map[string]error
}

func (s *scriptedInvoker) Invoke(ctx context.Context, name string, args map[string]any) ([]byte, error) {
	s.calls = append(s.calls, name)
	if err := s.errs[name]; err != nil {
		return nil, err
	}
	if res, ok := s.results[name]; ok {
		return res, nil
	}
	return []byte("{}"), nil
}

func TestRecorderLifecycle(t *testing.T) {
	ctx := context.Background()
	inv := &scriptedInvoker{
		results: map[string][]byte{
			"stop_recording": []byte(`{
				"audio_base64": "` + base64.StdEncoding.EncodeToString([]byte("captured")) + `",
				"mime_type": "audio/wav",
				"duration_secs": 2.4,
				"sample_rate": 16000
			}`),
		},
	}
	r := NewNativeRecorder(inv)

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Start = %v, want ErrAlreadyActive", err)
	}

	rec, err := r.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if string(rec.Audio) != "captured" {
		t.Errorf("audio = %q", rec.Audio)
	}

	if _, err := r.Stop(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop when idle = %v, want ErrNotRecording", err)
	}

	want := []string{"start_recording", "stop_recording"}
	if len(inv.calls) != len(want) || inv.calls[0] != want[0] || inv.calls[1] != want[1] {
		t.Errorf("bridge calls = %v, want %v", inv.calls, want)
	}
}

func TestRecorderCancel(t *testing.T) {
	ctx := context.Background()
	inv := &scriptedInvoker{}
	r := NewNativeRecorder(inv)

	// Cancel when idle does not touch the bridge.
	if err := r.Cancel(ctx); err != nil {
		t.Fatalf("idle Cancel returned error: %v", err)
	}
	if len(inv.calls) != 0 {
		t.Errorf("bridge calls = %v, want none", inv.calls)
	}

	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Cancel(ctx); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if _, err := r.Stop(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop after Cancel = %v, want ErrNotRecording", err)
	}
}

func TestRecorderStartFailureClearsActive(t *testing.T) {
	ctx := context.Background()
	inv := &scriptedInvoker{errs: map[string]error{"start_recording": errors.New("mic busy")}}
	r := NewNativeRecorder(inv)

	if err := r.Start(ctx); err == nil {
		t.Fatal("Start swallowed a bridge failure")
	}
	// The failed attempt must not leave the recorder stuck active.
	inv.errs = nil
	if err := r.Start(ctx); err != nil {
		t.Errorf("Start after failure = %v, want success", err)
	}
}

func TestLevelFeed(t *testing.T) {
	f := NewLevelFeed()

	var got []float64
	unsub := f.Subscribe(func(level float64) { got = append(got, level) })

	f.Publish(0.5)
	f.Publish(1.7)  // clamped
	f.Publish(-0.2) // clamped

	want := []float64{0.5, 1, 0}
	if len(got) != len(want) {
		t.Fatalf("levels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("level[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	unsub()
	unsub() // idempotent
	f.Publish(0.9)
	if len(got) != 3 {
		t.Errorf("delivery after unsubscribe: %v", got)
	}
}

func TestLevelFeedHandleEvent(t *testing.T) {
	f := NewLevelFeed()

	var got float64
	f.Subscribe(func(level float64) { got = level })

	f.HandleLevelEvent([]byte(`{"level": 0.42}`))
	if got != 0.42 {
		t.Errorf("level = %v, want 0.42", got)
	}

	f.HandleLevelEvent([]byte(`not json`))
	if got != 0.42 {
		t.Errorf("malformed event changed level to %v", got)
	}
}
