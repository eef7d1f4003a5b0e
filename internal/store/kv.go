// Package store holds the external persistence boundaries: the opaque
// key-value storage used for session payloads and the persistent queue
// store interface with its wire conversion.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

// KeyValue is opaque string storage. Get returns false for both missing
// and unreadable values; callers cannot tell the difference.
type KeyValue interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// FileKV stores each key as a compressed file in a directory. Writes are
// atomic (temp file + rename) so readers never observe partial payloads.
type FileKV struct {
	dir     string
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewFileKV creates the backing directory if needed and returns a
// file-backed key-value store.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("unable to create storage directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create decoder: %w", err)
	}

	return &FileKV{dir: dir, encoder: encoder, decoder: decoder}, nil
}

// Get reads and decompresses the value for key. Any failure reads as a
// missing key.
func (f *FileKV) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return "", false
	}

	raw, err := f.decoder.DecodeAll(data, nil)
	if err != nil {
		log.Warn("Store: unreadable payload, treating as missing", "key", key, "err", err)
		return "", false
	}
	return string(raw), true
}

// Set writes the value for key, replacing any previous value atomically.
func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	compressed := f.encoder.EncodeAll([]byte(value), nil)

	dest := f.path(key)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o600); err != nil {
		return fmt.Errorf("unable to write payload: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("unable to commit payload: %w", err)
	}
	return nil
}

// path maps a key to a stable filename. Keys are hashed so arbitrary key
// strings stay filesystem-safe.
func (f *FileKV) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:16])+".zst")
}

// MemoryKV is an in-memory KeyValue for tests and ephemeral runs.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV creates an empty in-memory key-value store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get returns the stored value for key.
func (m *MemoryKV) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Set stores the value for key.
func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
