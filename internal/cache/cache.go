// Package cache keeps the last successful usage record on disk so a quick
// `status` call does not have to rediscover the language server.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tnunamak/gravmeter/internal/api"
)

const DefaultTTL = 60 * time.Second

type Entry struct {
	Record    *api.Record `json:"record"`
	Source    string      `json:"source"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// Store is a single-entry JSON file cache.
type Store struct {
	Dir string
	TTL time.Duration
	Now func() time.Time
}

// Default uses the user cache directory.
func Default() (*Store, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	return &Store{Dir: filepath.Join(base, "gravmeter"), TTL: DefaultTTL, Now: time.Now}, nil
}

func (s *Store) path() string {
	return filepath.Join(s.Dir, "usage.json")
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Store) Read() (*Entry, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	if entry.Record == nil {
		return nil, fmt.Errorf("cache entry has no record")
	}
	return &entry, nil
}

// Fresh reports whether e is younger than the store's TTL.
func (s *Store) Fresh(e *Entry) bool {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.now().Sub(e.FetchedAt) < ttl
}

// Write replaces the entry atomically.
func (s *Store) Write(rec *api.Record, source string) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.Marshal(Entry{Record: rec, Source: source, FetchedAt: s.now()})
	if err != nil {
		return err
	}

	path := s.path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	return os.Rename(tmp, path)
}
