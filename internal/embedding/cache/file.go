package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// File is a JSON-file-backed embedding cache. Entries live in memory and are
// flushed to disk every flushEvery writes and on Close. A missing or corrupt
// file is not an error: the cache starts empty and overwrites on next flush.
type File struct {
	path       string
	flushEvery int
	logger     *zap.Logger

	mu      sync.Mutex
	entries map[string][]float32
	pending int
	loaded  bool
}

// NewFile creates a file-backed cache. flushEvery values below 1 flush on every write.
func NewFile(path string, flushEvery int, logger *zap.Logger) *File {
	if flushEvery < 1 {
		flushEvery = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{
		path:       path,
		flushEvery: flushEvery,
		logger:     logger,
		entries:    make(map[string][]float32),
	}
}

// Load reads the cache file. Corruption or absence means an empty cache.
func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loaded = true

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("Failed to read embedding cache file, starting empty",
				zap.String("path", f.path), zap.Error(err))
		}
		return nil
	}

	var entries map[string][]float32
	if err := json.Unmarshal(data, &entries); err != nil {
		f.logger.Warn("Corrupt embedding cache file, starting empty",
			zap.String("path", f.path), zap.Error(err))
		return nil
	}
	if entries != nil {
		f.entries = entries
	}

	f.logger.Info("Embedding cache loaded",
		zap.String("path", f.path), zap.Int("entries", len(f.entries)))
	return nil
}

// Get returns the cached vector for key.
func (f *File) Get(key string) ([]float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vec, ok := f.entries[key]
	return vec, ok
}

// Put stores a vector and flushes the file when the write counter is due.
func (f *File) Put(key string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[key] = vec
	f.pending++
	if f.pending >= f.flushEvery {
		if err := f.flushLocked(); err != nil {
			f.logger.Warn("Failed to flush embedding cache", zap.Error(err))
			return
		}
		f.pending = 0
	}
}

// Len reports the number of cached entries.
func (f *File) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Close flushes any pending writes.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == 0 {
		return nil
	}
	if err := f.flushLocked(); err != nil {
		return err
	}
	f.pending = 0
	return nil
}

// flushLocked writes atomically via a temp file rename. Caller holds f.mu.
func (f *File) flushLocked() error {
	data, err := json.Marshal(f.entries)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename cache: %w", err)
	}
	return nil
}
