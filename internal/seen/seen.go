// Package seen implements the durable set of listing URLs that have already
// triggered a notification.
package seen

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a file-backed URL set. The durable form is one URL per line,
// UTF-8, order not significant; every insertion rewrites the whole file.
// The set is hydrated from disk once per process. A Store is safe for
// concurrent use within one process; multiple processes sharing the file
// are not supported.
type Store struct {
	path string
	log  *slog.Logger

	mu     sync.Mutex
	urls   map[string]struct{}
	loaded bool
}

// NewStore creates a Store persisting to path.
func NewStore(path string, log *slog.Logger) *Store {
	return &Store{path: path, log: log}
}

// Load hydrates the set from disk on first call and returns a copy of it.
// Read failures degrade to an empty set: a possible duplicate notification
// beats crashing.
func (s *Store) Load() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	cp := make(map[string]struct{}, len(s.urls))
	for u := range s.urls {
		cp[u] = struct{}{}
	}
	return cp
}

// Contains reports whether url has already been surfaced.
func (s *Store) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	_, ok := s.urls[url]
	return ok
}

// Len returns the number of tracked URLs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return len(s.urls)
}

// Add inserts url and rewrites the durable copy. The in-memory set stays
// authoritative for the rest of the process even if the write fails.
func (s *Store) Add(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	s.urls[url] = struct{}{}
	s.persist()
}

// Clear removes the durable copy and resets the in-memory set to empty.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Error("remove seen file", "path", s.path, "error", err)
	}
	s.urls = make(map[string]struct{})
	s.loaded = true
}

// load hydrates the set exactly once. Callers must hold s.mu.
func (s *Store) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.urls = make(map[string]struct{})

	f, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("load seen listings", "path", s.path, "error", err)
		}
		return
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if u := strings.TrimSpace(sc.Text()); u != "" {
			s.urls[u] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		s.log.Warn("read seen listings", "path", s.path, "error", err)
	}
	s.log.Info("loaded seen listings", "path", s.path, "count", len(s.urls))
}

// persist rewrites the durable copy. Callers must hold s.mu.
func (s *Store) persist() {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			s.log.Error("create seen directory", "path", dir, "error", err)
			return
		}
	}

	var b strings.Builder
	for u := range s.urls {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0o600); err != nil {
		s.log.Error("save seen listings", "path", s.path, "error", err)
	}
}
