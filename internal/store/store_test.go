package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"eventwall/internal/bus"
	"eventwall/internal/idgen"
	"eventwall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	models.Activity
	A, B int
	Tags map[string]int
}

func (c *counter) Snapshot() *counter {
	out := *c
	out.Tags = make(map[string]int, len(c.Tags))
	for k, v := range c.Tags {
		out.Tags[k] = v
	}
	return &out
}

type recordingSink struct {
	mu      sync.Mutex
	saved   []string
	deleted []string
}

func (r *recordingSink) Saved(_ models.Kind, id string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, id)
}

func (r *recordingSink) Deleted(_ models.Kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

func newCounterStore(t *testing.T, opts ...Option) (*Store[*counter], *bus.Bus, *idgen.Generator) {
	t.Helper()
	b := bus.New()
	ids := idgen.New(6, 3)
	return New[*counter](models.KindVote, b, ids, opts...), b, ids
}

func create(t *testing.T, s *Store[*counter], title string, at time.Time) *counter {
	t.Helper()
	c, err := s.Create(func(id, code string, _ time.Time) (*counter, error) {
		return &counter{
			Activity: models.NewActivity{Title: title}.Build(models.KindVote, id, code, at),
			Tags:     map[string]int{},
		}, nil
	})
	require.NoError(t, err)
	return c
}

func TestStore_CRUD(t *testing.T) {
	s, _, ids := newCounterStore(t)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	first := create(t, s, "first", base)
	second := create(t, s, "second", base.Add(time.Minute))

	t.Run("get by id and code", func(t *testing.T) {
		got, err := s.Get(first.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Title)

		byCode, err := s.GetByCode(second.Code)
		require.NoError(t, err)
		assert.Equal(t, second.ID, byCode.ID)

		_, err = s.Get("missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = s.GetByCode("missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		list := s.List()
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)
	})

	t.Run("snapshots do not alias live state", func(t *testing.T) {
		got, err := s.Get(first.ID)
		require.NoError(t, err)
		got.Tags["x"] = 99
		got.Title = "changed"

		again, err := s.Get(first.ID)
		require.NoError(t, err)
		assert.Empty(t, again.Tags)
		assert.Equal(t, "first", again.Title)
	})

	t.Run("partial update keeps siblings", func(t *testing.T) {
		desc := "hello"
		updated, err := s.Update(first.ID, func(c *counter) error {
			return models.ActivityPatch{Description: &desc}.Apply(&c.Activity)
		})
		require.NoError(t, err)
		assert.Equal(t, "first", updated.Title)
		assert.Equal(t, "hello", updated.Description)

		_, err = s.Update("missing", func(*counter) error { return nil })
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("delete releases the code", func(t *testing.T) {
		assert.True(t, s.Delete(first.ID))
		assert.False(t, s.Delete(first.ID))
		_, err := s.GetByCode(first.Code)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.Equal(t, 1, ids.Reserved(string(models.KindVote)))
		assert.Equal(t, 1, s.Len())
	})
}

func TestStore_CreateFailureReleasesCode(t *testing.T) {
	s, _, ids := newCounterStore(t)
	_, err := s.Create(func(string, string, time.Time) (*counter, error) {
		return nil, models.Missing("title")
	})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, ids.Reserved(string(models.KindVote)))
	assert.Zero(t, s.Len())
}

func TestStore_MutatePublishesAfterCommit(t *testing.T) {
	sink := &recordingSink{}
	s, b, _ := newCounterStore(t, WithSink(sink))
	c := create(t, s, "live", time.Now())

	var seen []int
	b.Subscribe(c.ID, func(ev models.Event) error {
		// Reading from inside a callback must not deadlock and must see the commit.
		cur, err := s.Get(c.ID)
		require.NoError(t, err)
		seen = append(seen, cur.A)
		assert.Equal(t, cur.A, ev.Payload)
		return nil
	})

	for range 3 {
		require.NoError(t, s.Mutate(c.ID, func(v *counter) (*Notice, error) {
			v.A++
			return &Notice{Type: models.EventUpdate, Payload: v.A}, nil
		}))
	}
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Len(t, sink.saved, 4)

	t.Run("failed mutation publishes nothing", func(t *testing.T) {
		err := s.Mutate(c.ID, func(*counter) (*Notice, error) {
			return nil, models.ErrInvalidState
		})
		assert.ErrorIs(t, err, models.ErrInvalidState)
		assert.Len(t, seen, 3)
	})
}

func TestStore_ConcurrentMutationsSerializePerActivity(t *testing.T) {
	s, _, _ := newCounterStore(t)
	x := create(t, s, "x", time.Now())
	y := create(t, s, "y", time.Now())

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := x.ID
			if i%2 == 1 {
				id = y.ID
			}
			assert.NoError(t, s.Mutate(id, func(v *counter) (*Notice, error) {
				// A and B move together; a torn read would see them differ.
				v.A++
				v.B++
				return nil, nil
			}))
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Get(x.ID)
			assert.NoError(t, err)
			assert.Equal(t, got.A, got.B)
		}()
	}
	wg.Wait()

	gx, _ := s.Get(x.ID)
	gy, _ := s.Get(y.ID)
	assert.Equal(t, 100, gx.A)
	assert.Equal(t, 100, gy.A)
}

func TestStore_DeleteReleasesSubscribers(t *testing.T) {
	sink := &recordingSink{}
	s, b, _ := newCounterStore(t, WithSink(sink))
	c := create(t, s, "gone", time.Now())

	var events []models.EventType
	b.Subscribe(c.ID, func(ev models.Event) error {
		events = append(events, ev.Type)
		return nil
	})
	require.True(t, s.Delete(c.ID))

	assert.Equal(t, []models.EventType{models.EventDeleted}, events)
	assert.Zero(t, b.Subscribers(c.ID))
	assert.Equal(t, []string{c.ID}, sink.deleted)

	b.Publish(c.ID, models.EventNew, nil)
	assert.Len(t, events, 1)

	err := s.Mutate(c.ID, func(*counter) (*Notice, error) { return nil, nil })
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStore_Subscribe(t *testing.T) {
	s, b, _ := newCounterStore(t)
	c := create(t, s, "subs", time.Now())

	_, err := s.Subscribe("missing", func(models.Event) error { return nil })
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, b.Topics())

	unsub, err := s.Subscribe(c.ID, func(models.Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers(c.ID))
	unsub()
	assert.Zero(t, b.Subscribers(c.ID))
}

func TestStore_SubscriberReadsWhileMutationQueued(t *testing.T) {
	s, b, _ := newCounterStore(t)
	c := create(t, s, "queued", time.Now())

	bump := func(committed chan struct{}) error {
		return s.Mutate(c.ID, func(v *counter) (*Notice, error) {
			v.A++
			if committed != nil {
				close(committed)
			}
			return &Notice{Type: models.EventUpdate, Payload: v.A}, nil
		})
	}

	var (
		mu      sync.Mutex
		payload []any
		reads   []int
	)
	second := make(chan error, 1)
	b.Subscribe(c.ID, func(ev models.Event) error {
		if ev.Payload == 1 {
			committed := make(chan struct{})
			go func() { second <- bump(committed) }()
			<-committed
		}
		cur, err := s.Get(c.ID)
		if err != nil {
			return err
		}
		mu.Lock()
		payload = append(payload, ev.Payload)
		reads = append(reads, cur.A)
		mu.Unlock()
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, bump(nil))
		assert.NoError(t, <-second)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read from a subscriber blocked behind a queued mutation")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{1, 2}, payload)
	assert.Equal(t, []int{2, 2}, reads)
}

type blockingSink struct {
	recordingSink
	release chan struct{}
}

func (b *blockingSink) Deleted(kind models.Kind, id string) {
	<-b.release
	b.recordingSink.Deleted(kind, id)
}

func TestStore_DeleteSinkRunsUnlocked(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	s, b, _ := newCounterStore(t, WithSink(sink))
	c := create(t, s, "slow sink", time.Now())

	var events []models.EventType
	b.Subscribe(c.ID, func(ev models.Event) error {
		events = append(events, ev.Type)
		return nil
	})

	deleted := make(chan bool)
	go func() { deleted <- s.Delete(c.ID) }()

	// The deleted event has gone out and the activity is gone while the sink
	// is still waiting.
	require.Eventually(t, func() bool {
		_, err := s.Get(c.ID)
		return errors.Is(err, models.ErrNotFound) && b.Subscribers(c.ID) == 0
	}, time.Second, 5*time.Millisecond)
	other := create(t, s, "other", time.Now())
	require.NoError(t, s.Mutate(other.ID, func(v *counter) (*Notice, error) { v.A++; return nil, nil }))

	close(sink.release)
	assert.True(t, <-deleted)
	assert.Equal(t, []models.EventType{models.EventDeleted}, events)
	assert.Equal(t, []string{c.ID}, sink.deleted)
}

type orderedSink struct {
	recordingSink
	as []int
}

func (o *orderedSink) Saved(kind models.Kind, id string, snapshot any) {
	o.mu.Lock()
	o.as = append(o.as, snapshot.(*counter).A)
	o.mu.Unlock()
}

func TestStore_CreateSavesBeforeVisible(t *testing.T) {
	sink := &orderedSink{}
	s, _, _ := newCounterStore(t, WithSink(sink))

	c := create(t, s, "first image", time.Now())
	require.NoError(t, s.Mutate(c.ID, func(v *counter) (*Notice, error) { v.A = 7; return nil, nil }))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []int{0, 7}, sink.as)
}
