package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Store is the durable record of which items have already been analyzed. It
// maps item identifiers to the time they were last seen, persists as a single
// JSON file, and purges entries older than the retention window whenever it
// loads. The store assumes a single writer process; all methods are safe for
// concurrent use within that process.
type Store struct {
	mu        sync.RWMutex
	path      string
	retention time.Duration
	seen      map[string]float64 // identifier -> unix seconds
}

func New(path string, retention time.Duration) *Store {
	return &Store{
		path:      path,
		retention: retention,
		seen:      make(map[string]float64),
	}
}

// Load reads the persisted history into memory and runs the expiry sweep.
// A missing file means an empty history. A file that cannot be read or parsed
// is treated the same way: corruption degrades to "no history", it never
// stops the pipeline.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen = make(map[string]float64)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("could not read history file, starting empty", "path", s.path, "err", err)
		}
		return
	}

	var loaded map[string]float64
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warn("history file is malformed, starting empty", "path", s.path, "err", err)
		return
	}

	s.seen = loaded
	removed := s.expireLocked(time.Now())
	log.Info("loaded history", "entries", len(s.seen), "expired", removed)
}

// IsKnown reports whether the identifier is present and not yet purged.
func (s *Store) IsKnown(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.seen[id]
	return ok
}

// Record inserts or refreshes the last-seen timestamp for the identifier.
func (s *Store) Record(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen[id] = float64(at.UnixNano()) / float64(time.Second)
}

// Expire removes every entry older than the retention window relative to now
// and returns how many were removed.
func (s *Store) Expire(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.expireLocked(now)
}

func (s *Store) expireLocked(now time.Time) int {
	cutoff := float64(now.UnixNano())/float64(time.Second) - s.retention.Seconds()

	removed := 0
	for id, lastSeen := range s.seen {
		if lastSeen < cutoff {
			delete(s.seen, id)
			removed++
		}
	}
	return removed
}

// Save persists the in-memory state. The file is written to a temporary name
// in the same directory and renamed over the target, so a crash mid-write can
// never leave a truncated file behind. A save failure is returned for the
// caller to log; the in-memory state stays intact and the next save retries
// the full contents.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.seen, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating history dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp history file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing history file: %w", err)
	}
	return nil
}

// Reset clears the in-memory state and deletes the backing file, so the next
// run treats every item as new.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen = make(map[string]float64)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting history file: %w", err)
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.seen)
}

// Entry is one identifier with its last-seen time, used for inspection.
type Entry struct {
	ID       string
	LastSeen time.Time
}

// Snapshot returns the current entries sorted newest first. Read-only.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.seen))
	for id, ts := range s.seen {
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * float64(time.Second))
		entries = append(entries, Entry{ID: id, LastSeen: time.Unix(sec, nsec)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}
