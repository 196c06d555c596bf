// Package jobs provides the asynchronous job layer: a file-locked JSON store
// of job records and the service that runs the assembly pipeline for each
// submitted specification.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Job statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// ErrNotFound indicates an unknown job id.
var ErrNotFound = errors.New("job not found")

// Record is one job's persisted state.
type Record struct {
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

const (
	lockAcquireTimeout = 5 * time.Second
	lockPollInterval   = 50 * time.Millisecond
)

// Store persists job records in a single JSON file guarded by an exclusive
// lock file, so multiple processes sharing the data directory stay
// consistent. In-process access is additionally serialized by a mutex.
//
// Records left in "pending" by a crashed process are kept as-is; there is no
// automatic recovery.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore builds a Store at path, creating the parent directory.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating job store dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) lockPath() string { return s.path + ".lock" }

// acquireLock creates the lock file exclusively, polling until the timeout.
func (s *Store) acquireLock() error {
	deadline := time.Now().Add(lockAcquireTimeout)
	for {
		f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquiring job store lock: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("job store lock held too long: %s", s.lockPath())
		}
		time.Sleep(lockPollInterval)
	}
}

func (s *Store) releaseLock() {
	os.Remove(s.lockPath())
}

func (s *Store) load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading job store: %w", err)
	}
	records := map[string]Record{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decoding job store: %w", err)
		}
	}
	return records, nil
}

func (s *Store) save(records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing job store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Put writes one job record.
func (s *Store) Put(id string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquireLock(); err != nil {
		return err
	}
	defer s.releaseLock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records[id] = rec
	return s.save(records)
}

// Get reads one job record.
func (s *Store) Get(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquireLock(); err != nil {
		return Record{}, err
	}
	defer s.releaseLock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}
