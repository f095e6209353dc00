// Package store holds the live state of every activity of one kind.
//
// Each activity sits behind its own lock: mutations of one activity are
// serialized, mutations of different activities run in parallel, and reads take
// a deep copy under the read lock so they never see half-applied counters.
// Events produced by a mutation are published after the state is committed and
// before the mutating call returns, in the order the mutations committed. No
// lock on the state is held while subscribers run, so they may read the
// activity. They must not mutate it.
package store

import (
	"slices"
	"strings"
	"sync"
	"time"

	"eventwall/internal/bus"
	"eventwall/internal/idgen"
	"eventwall/internal/models"

	"github.com/google/logger"
)

// dated is implemented by snapshots whose counters depend on the current day.
type dated interface {
	AsOf(now time.Time)
}

// Activity is the constraint every kind-specific state type satisfies.
type Activity[T any] interface {
	Meta() *models.Activity
	Snapshot() T
}

// Sink observes committed state. Implementations must not block.
type Sink interface {
	Saved(kind models.Kind, id string, snapshot any)
	Deleted(kind models.Kind, id string)
}

// Notice is the event a mutation wants published. Payload is built while the
// activity is still locked, so it must not alias live state.
type Notice struct {
	Type    models.EventType
	Payload any
}

type entry[T Activity[T]] struct {
	mu      sync.RWMutex
	val     T
	deleted bool
	seq     uint64 // last committed mutation, guarded by mu

	turnMu    sync.Mutex
	turn      *sync.Cond
	published uint64 // last mutation whose events went out, guarded by turnMu
}

func newEntry[T Activity[T]](val T) *entry[T] {
	e := &entry[T]{val: val}
	e.turn = sync.NewCond(&e.turnMu)
	return e
}

// commit numbers a mutation. Callers hold mu.
func (e *entry[T]) commit() uint64 {
	e.seq++
	return e.seq
}

// await blocks until every mutation committed before seq has been published.
// It must be called without mu held.
func (e *entry[T]) await(seq uint64) {
	e.turnMu.Lock()
	for e.published+1 != seq {
		e.turn.Wait()
	}
	e.turnMu.Unlock()
}

// done hands the publish turn to the mutation committed after seq.
func (e *entry[T]) done(seq uint64) {
	e.turnMu.Lock()
	e.published = seq
	e.turnMu.Unlock()
	e.turn.Broadcast()
}

type Store[T Activity[T]] struct {
	kind models.Kind
	bus  *bus.Bus
	ids  *idgen.Generator
	sink Sink
	now  func() time.Time

	mu     sync.RWMutex
	byID   map[string]*entry[T]
	byCode map[string]*entry[T]
}

type Option func(*options)

type options struct {
	sink Sink
	now  func() time.Time
}

// WithSink hands every committed snapshot to sink.
func WithSink(sink Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New[T Activity[T]](kind models.Kind, b *bus.Bus, ids *idgen.Generator, opts ...Option) *Store[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		kind:   kind,
		bus:    b,
		ids:    ids,
		sink:   o.sink,
		now:    o.now,
		byID:   make(map[string]*entry[T]),
		byCode: make(map[string]*entry[T]),
	}
}

func (s *Store[T]) Kind() models.Kind { return s.kind }

// Now is the store's clock, shared with the engines layered on top.
func (s *Store[T]) Now() time.Time { return s.now() }

// Create allocates an id and a code and inserts what build returns.
func (s *Store[T]) Create(build func(id, code string, now time.Time) (T, error)) (T, error) {
	id := s.ids.NewID()
	code := s.ids.NewCode(string(s.kind))
	val, err := build(id, code, s.now())
	if err != nil {
		s.ids.Release(string(s.kind), code)
		var zero T
		return zero, err
	}
	e := newEntry(val)

	// Saved before the entry is visible so no later mutation can be
	// overwritten by this first image.
	snap := s.snapshot(val)
	s.save(id, snap)

	s.mu.Lock()
	s.byID[id] = e
	s.byCode[code] = e
	s.mu.Unlock()

	logger.Infof("store: created %s %s (code %s)", s.kind, id, code)
	return snap, nil
}

func (s *Store[T]) lookup(id string) (*entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Get returns a copy of the activity, or ErrNotFound.
func (s *Store[T]) Get(id string) (T, error) {
	var out T
	err := s.View(id, func(v T) error {
		out = s.snapshot(v)
		return nil
	})
	return out, err
}

// GetByCode resolves a short code, or returns ErrNotFound.
func (s *Store[T]) GetByCode(code string) (T, error) {
	s.mu.RLock()
	e, ok := s.byCode[code]
	s.mu.RUnlock()
	var zero T
	if !ok {
		return zero, models.ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return zero, models.ErrNotFound
	}
	return s.snapshot(e.val), nil
}

// List returns copies of every activity, newest first.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	entries := make([]*entry[T], 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]T, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		if !e.deleted {
			out = append(out, s.snapshot(e.val))
		}
		e.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b T) int {
		if c := b.Meta().CreatedAt.Compare(a.Meta().CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Meta().ID, b.Meta().ID)
	})
	return out
}

// Len reports how many activities are held.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// View runs fn under the activity's read lock. fn must not retain v.
func (s *Store[T]) View(id string, fn func(v T) error) error {
	e, ok := s.lookup(id)
	if !ok {
		return models.ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return models.ErrNotFound
	}
	return fn(e.val)
}

// Subscribe registers h for the activity's events. It fails with ErrNotFound
// for unknown activities, so a subscriber can never outlive a delete unnoticed.
func (s *Store[T]) Subscribe(id string, h bus.Handler) (unsubscribe func(), err error) {
	err = s.View(id, func(T) error {
		unsubscribe = s.bus.Subscribe(id, h)
		return nil
	})
	return unsubscribe, err
}

// Mutate runs fn under the activity's write lock. If fn succeeds the returned
// notice, if any, is published once the lock is released and before Mutate
// returns. fn must leave v untouched when it returns an error.
//
// Publishing waits for the turn of this commit outside the state lock, so a
// subscriber still running for an earlier commit can read the activity while
// later mutations queue behind it.
func (s *Store[T]) Mutate(id string, fn func(v T) (*Notice, error)) error {
	e, ok := s.lookup(id)
	if !ok {
		return models.ErrNotFound
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return models.ErrNotFound
	}
	notice, err := fn(e.val)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	snap := s.snapshot(e.val)
	seq := e.commit()
	e.mu.Unlock()

	e.await(seq)
	defer e.done(seq)

	s.save(id, snap)
	if notice != nil {
		s.bus.Publish(id, notice.Type, notice.Payload)
	}
	return nil
}

// Update applies a validated patch. The published event is status when the
// status changed and config otherwise.
func (s *Store[T]) Update(id string, apply func(v T) error) (T, error) {
	var out T
	err := s.Mutate(id, func(v T) (*Notice, error) {
		before := v.Meta().Status
		if err := apply(v); err != nil {
			return nil, err
		}
		v.Meta().UpdatedAt = s.now()
		out = s.snapshot(v)
		typ := models.EventConfig
		if v.Meta().Status != before {
			typ = models.EventStatus
			logger.Infof("store: %s %s moved %s -> %s", s.kind, id, before, v.Meta().Status)
		}
		return &Notice{Type: typ, Payload: s.snapshot(v)}, nil
	})
	return out, err
}

// Delete removes the activity together with its code, its records and its
// subscribers. Subscribers receive a final deleted event.
func (s *Store[T]) Delete(id string) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byID, id)
	code := e.val.Meta().Code
	delete(s.byCode, code)
	s.mu.Unlock()

	e.mu.Lock()
	e.deleted = true
	var zero T
	e.val = zero
	seq := e.commit()
	e.mu.Unlock()

	e.await(seq)
	s.ids.Release(string(s.kind), code)
	s.bus.Publish(id, models.EventDeleted, nil)
	s.bus.Release(id)
	e.done(seq)

	// The sink may wait for room; nothing is locked anymore.
	if s.sink != nil {
		s.sink.Deleted(s.kind, id)
	}
	logger.Infof("store: deleted %s %s", s.kind, id)
	return true
}

// snapshot copies v and brings day-dependent counters up to the store's clock.
func (s *Store[T]) snapshot(v T) T {
	snap := v.Snapshot()
	if d, ok := any(snap).(dated); ok {
		d.AsOf(s.now())
	}
	return snap
}

func (s *Store[T]) save(id string, snap T) {
	if s.sink != nil {
		s.sink.Saved(s.kind, id, snap)
	}
}
