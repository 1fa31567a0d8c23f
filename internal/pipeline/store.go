package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxRecords bounds the records kept per conversation
const DefaultMaxRecords = 500

// Store owns the visible record list and the conversation session key.
// Every write goes through its lock, so a check-and-apply done inside Mutate
// is atomic with respect to other writers.
type Store struct {
	mu         sync.RWMutex
	sessionKey string
	records    []*Record
	index      map[uint64]*Record
	maxRecords int
}

// NewStore creates a store with a fresh session key
func NewStore(maxRecords int) *Store {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Store{
		sessionKey: uuid.NewString(),
		index:      make(map[uint64]*Record),
		maxRecords: maxRecords,
	}
}

// SessionKey returns the current session key; empty once the conversation ended
func (s *Store) SessionKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionKey
}

// Rotate starts a new conversation: a new key and an empty record list
func (s *Store) Rotate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionKey = uuid.NewString()
	s.records = nil
	s.index = make(map[uint64]*Record)
	return s.sessionKey
}

// Close ends the conversation. Records stay readable but the empty key
// invalidates every in-flight background result.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionKey = ""
}

// Add inserts a record created under rec.SessionKey. It fails with
// ErrStaleSession when the session has moved on since.
func (s *Store) Add(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionKey == "" || s.sessionKey != rec.SessionKey {
		return Record{}, ErrStaleSession
	}

	stored := rec.clone()
	s.records = append(s.records, &stored)
	s.index[stored.SegmentID] = &stored

	if len(s.records) > s.maxRecords {
		drop := len(s.records) - s.maxRecords
		for _, old := range s.records[:drop] {
			delete(s.index, old.SegmentID)
		}
		s.records = append([]*Record(nil), s.records[drop:]...)
	}
	return stored.clone(), nil
}

// Get returns a copy of the record for a segment
func (s *Store) Get(segmentID uint64) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.index[segmentID]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Records returns copies of all records in creation order
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.clone()
	}
	return out
}

// Context returns up to n records created before segmentID, oldest first
func (s *Store) Context(segmentID uint64, n int) []Record {
	if n <= 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		if s.records[i].SegmentID < segmentID {
			out = append(out, s.records[i].clone())
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Mutate runs fn on the live record under the write lock together with the
// current session key, and returns a copy of the result
func (s *Store) Mutate(segmentID uint64, fn func(rec *Record, sessionKey string)) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.index[segmentID]
	if !ok {
		return Record{}, false
	}
	fn(rec, s.sessionKey)
	return rec.clone(), true
}

// Len returns the number of records held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
