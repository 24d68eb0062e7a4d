// Package cache persists the latest MetricsResult as a JSON file.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"swaptinsight/internal/pipeline"
	"swaptinsight/internal/telemetry"
)

// ErrCacheMiss is returned by Load when no cache file exists yet.
var ErrCacheMiss = errors.New("cache: data file not found")

// CacheReadError means the cache file exists but could not be read or parsed.
type CacheReadError struct {
	Path string
	Err  error
}

func (e *CacheReadError) Error() string {
	return fmt.Sprintf("cache: read %s: %v", e.Path, e.Err)
}

func (e *CacheReadError) Unwrap() error { return e.Err }

// PersistenceError means a result could not be written to the cache file.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cache: write %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FileStore reads and writes a single cache file. Writers are not
// coordinated: the last Save wins.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// ModTime returns when the cache file was last written.
func (s *FileStore) ModTime() (time.Time, error) {
	fi, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return time.Time{}, &CacheReadError{Path: s.path, Err: err}
	}
	return fi.ModTime(), nil
}

// Load returns the cached result.
func (s *FileStore) Load() (*pipeline.MetricsResult, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, &CacheReadError{Path: s.path, Err: err}
	}
	var res pipeline.MetricsResult
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, &CacheReadError{Path: s.path, Err: err}
	}
	return &res, nil
}

// LoadRaw returns the cached document bytes unparsed, for serving as is.
func (s *FileStore) LoadRaw() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, &CacheReadError{Path: s.path, Err: err}
	}
	if !json.Valid(b) {
		return nil, &CacheReadError{Path: s.path, Err: errors.New("invalid JSON")}
	}
	return b, nil
}

// Save writes res as indented JSON, creating parent directories as needed.
func (s *FileStore) Save(res *pipeline.MetricsResult) error {
	err := s.save(res)
	if err != nil {
		telemetry.CacheWrites.WithLabelValues("error").Inc()
		return &PersistenceError{Path: s.path, Err: err}
	}
	telemetry.CacheWrites.WithLabelValues("success").Inc()
	return nil
}

func (s *FileStore) save(res *pipeline.MetricsResult) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, b, 0o644)
}
