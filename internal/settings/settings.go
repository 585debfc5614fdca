// Package settings stands in for the credential store and device
// identity derivation the upload pipeline and heartbeat consume. It is
// intentionally thin: the real implementation (OS keychain, device
// fingerprinting) lives outside this daemon.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Store is a read-mostly string lookup by key, backed by a small JSON
// file on disk plus an in-memory cache.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// Open loads the settings file at path. A missing file yields an empty
// store; the file is created by the first Set.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the bearer token for authenticated requests, if set.
func (s *Store) Token() (string, bool) {
	return s.Get("token")
}

// Get looks up a value by key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value by key and persists the store.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	data, err := json.MarshalIndent(s.values, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// DeviceFingerprint returns a stable per-installation identifier,
// generating and persisting one on first use.
func (s *Store) DeviceFingerprint() (string, error) {
	if fp, ok := s.Get("device_fingerprint"); ok && fp != "" {
		return fp, nil
	}
	fp := uuid.NewString()
	if err := s.Set("device_fingerprint", fp); err != nil {
		return "", err
	}
	return fp, nil
}
