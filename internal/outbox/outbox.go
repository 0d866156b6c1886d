// Package outbox is the durable side of at-least-once trade publication.
// Trade events are recorded here before any publish attempt, so a crash
// between matching and publishing loses nothing.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound reports a sequence with no outbox entry.
var ErrNotFound = errors.New("outbox: not found")

const defaultMaxAttempts = 10

// State tracks where an entry is in its publish lifecycle.
type State uint8

const (
	StatePending State = iota
	StateSent
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSent:
		return "sent"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is the stored record for one trade event.
type Entry struct {
	State       State           `json:"state"`
	Attempts    uint32          `json:"attempts"`
	LastAttempt int64           `json:"last_attempt"` // unix nanos, 0 before the first try
	Payload     json.RawMessage `json:"payload"`
}

// Store keeps entries in a pebble keyspace under trade/<seq>.
type Store struct {
	db          *pebble.DB
	maxAttempts uint32
}

// Open creates or reopens the store. maxAttempts 0 selects the default;
// once an entry has failed that many publish attempts it is parked as
// Failed and retried no more.
func Open(dir string, maxAttempts uint32) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("outbox: open: %w", err)
	}
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Store{db: db, maxAttempts: maxAttempts}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put records a new pending entry for the given event sequence.
func (s *Store) Put(seq uint64, payload []byte) error {
	e := Entry{State: StatePending, Payload: payload}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("outbox: encode: %w", err)
	}
	if err := s.db.Set(keyFor(seq), data, pebble.Sync); err != nil {
		return fmt.Errorf("outbox: put: %w", err)
	}
	return nil
}

// MarkSent records a successful publish attempt.
func (s *Store) MarkSent(seq uint64) (Entry, error) {
	return s.update(seq, func(e *Entry) {
		e.State = StateSent
		e.Attempts++
		e.LastAttempt = time.Now().UnixNano()
	})
}

// MarkFailed records a failed publish attempt. The entry stays Pending
// until it exhausts the allowed attempts, then parks as Failed.
func (s *Store) MarkFailed(seq uint64) (Entry, error) {
	return s.update(seq, func(e *Entry) {
		e.Attempts++
		e.LastAttempt = time.Now().UnixNano()
		if e.Attempts >= s.maxAttempts {
			e.State = StateFailed
		}
	})
}

// Get returns the entry for one event sequence.
func (s *Store) Get(seq uint64) (Entry, error) {
	val, closer, err := s.db.Get(keyFor(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("outbox: get: %w", err)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, fmt.Errorf("outbox: decode: %w", err)
	}
	return e, nil
}

// ScanByState walks entries in the given state in sequence order.
func (s *Store) ScanByState(state State, fn func(seq uint64, e Entry) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return fmt.Errorf("outbox: iter: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return fmt.Errorf("outbox: decode %s: %w", iter.Key(), err)
		}
		if e.State != state {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Delete removes an entry, typically after it was confirmed downstream.
func (s *Store) Delete(seq uint64) error {
	return s.db.Delete(keyFor(seq), pebble.Sync)
}

func (s *Store) update(seq uint64, fn func(*Entry)) (Entry, error) {
	e, err := s.Get(seq)
	if err != nil {
		return Entry{}, err
	}
	fn(&e)
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("outbox: encode: %w", err)
	}
	if err := s.db.Set(keyFor(seq), data, pebble.Sync); err != nil {
		return Entry{}, fmt.Errorf("outbox: update: %w", err)
	}
	return e, nil
}

const keyPrefix = "trade/"

func keyFor(seq uint64) []byte {
	return fmt.Appendf(nil, "%s%020d", keyPrefix, seq)
}

func parseKey(key []byte) (uint64, error) {
	var seq uint64
	if _, err := fmt.Sscanf(string(key), keyPrefix+"%d", &seq); err != nil {
		return 0, fmt.Errorf("outbox: bad key %q: %w", key, err)
	}
	return seq, nil
}
