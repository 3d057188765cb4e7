package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/events"
)

// FileEventStore appends task events to a JSON Lines file with a hash chain.
type FileEventStore struct {
	mu       sync.RWMutex
	path     string
	basePath string
	lastHash string
	loaded   bool
}

var _ events.Store = (*FileEventStore)(nil)

// NewFileEventStore creates a store at <basePath>/events.jsonl. The directory
// is created on first write.
func NewFileEventStore(basePath string) *FileEventStore {
	return &FileEventStore{path: filepath.Join(basePath, EventsFile), basePath: basePath}
}

// Path returns the log file location.
func (s *FileEventStore) Path() string {
	return s.path
}

// Append implements events.Store.
func (s *FileEventStore) Append(ctx context.Context, e *events.Event) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		evts, err := s.loadEvents()
		if err != nil {
			return err
		}
		if len(evts) > 0 {
			s.lastHash = evts[len(evts)-1].Hash
		}
		s.loaded = true
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := os.MkdirAll(s.basePath, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	e.PrevHash = s.lastHash
	e.Hash = e.CalculateHash()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close events file: %w", cerr)
		}
	}()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	s.lastHash = e.Hash
	return nil
}

// LoadAll implements events.Store.
func (s *FileEventStore) LoadAll(ctx context.Context) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadEvents()
}

// LoadByTask implements events.Store.
func (s *FileEventStore) LoadByTask(ctx context.Context, taskID string) ([]*events.Event, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var result []*events.Event
	for _, e := range all {
		if e.TaskID == taskID {
			result = append(result, e)
		}
	}
	return result, nil
}

// VerifyIntegrity checks the hash chain for tampering.
func (s *FileEventStore) VerifyIntegrity(ctx context.Context) ([]string, error) {
	evts, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	var violations []string
	lastHash := ""
	for i, e := range evts {
		if e.PrevHash != lastHash {
			violations = append(violations, fmt.Sprintf("event %d (%s): prev_hash mismatch", i, e.ID))
		}
		if e.Hash != e.CalculateHash() {
			violations = append(violations, fmt.Sprintf("event %d (%s): hash mismatch, possible tampering", i, e.ID))
		}
		lastHash = e.Hash
	}
	return violations, nil
}

func (s *FileEventStore) loadEvents() ([]*events.Event, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var result []*events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e events.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		result = append(result, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return result, nil
}

// MemoryEventStore keeps events in a slice. It backs tests and the
// in-memory wiring.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []*events.Event
}

var _ events.Store = (*MemoryEventStore)(nil)

// NewMemoryEventStore creates an empty store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

// Append implements events.Store.
func (s *MemoryEventStore) Append(ctx context.Context, e *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if n := len(s.events); n > 0 {
		e.PrevHash = s.events[n-1].Hash
	}
	e.Hash = e.CalculateHash()
	s.events = append(s.events, e)
	return nil
}

// LoadAll implements events.Store.
func (s *MemoryEventStore) LoadAll(ctx context.Context) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*events.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

// LoadByTask implements events.Store.
func (s *MemoryEventStore) LoadByTask(ctx context.Context, taskID string) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*events.Event
	for _, e := range s.events {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}
