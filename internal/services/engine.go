package services

import (
	"context"
	"crypto/subtle"
	"math/rand/v2"
	"strings"
	"time"

	"eventwall/internal/bus"
	"eventwall/internal/idgen"
	"eventwall/internal/models"
	"eventwall/internal/store"

	"github.com/google/logger"
)

// Options configures the engine. Zero values pick sensible defaults.
type Options struct {
	CodeLength       int
	VerifyCodeLength int
	Sink             store.Sink
	Clock            func() time.Time
	// Rand returns a uniform value in [0, 1) for lottery draws.
	Rand func() float64
}

// Engine is the process-wide owner of every live activity. It is built once at
// start-up and shared by all request handlers.
type Engine struct {
	Bus       *bus.Bus
	IDs       *idgen.Generator
	Checkins  *CheckinService
	Votes     *VoteService
	Lotteries *LotteryService
	Forms     *FormService
}

func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	b := bus.New()
	ids := idgen.New(opts.CodeLength, opts.VerifyCodeLength)
	storeOpts := []store.Option{store.WithClock(opts.Clock)}
	if opts.Sink != nil {
		storeOpts = append(storeOpts, store.WithSink(opts.Sink))
	}

	return &Engine{
		Bus:       b,
		IDs:       ids,
		Checkins:  NewCheckinService(store.New[*models.Checkin](models.KindCheckin, b, ids, storeOpts...), ids),
		Votes:     NewVoteService(store.New[*models.Vote](models.KindVote, b, ids, storeOpts...), ids),
		Lotteries: NewLotteryService(store.New[*models.Lottery](models.KindLottery, b, ids, storeOpts...), ids, opts.Rand),
		Forms:     NewFormService(store.New[*models.Form](models.KindForm, b, ids, storeOpts...), ids),
	}
}

// Admin returns the kind-agnostic operations for kind, or nil for an unknown kind.
func (e *Engine) Admin(kind models.Kind) Admin {
	switch kind {
	case models.KindCheckin:
		return e.Checkins
	case models.KindVote:
		return e.Votes
	case models.KindLottery:
		return e.Lotteries
	case models.KindForm:
		return e.Forms
	}
	return nil
}

// EndExpired moves every activity whose window has closed to ended.
func (e *Engine) EndExpired() int {
	n := 0
	for _, kind := range models.Kinds {
		n += e.Admin(kind).EndExpired()
	}
	return n
}

// RunSweeper calls EndExpired every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := e.EndExpired(); n > 0 {
				logger.Infof("sweeper: ended %d expired activities", n)
			}
		}
	}
}

// Admin is the part of every service that does not depend on the kind.
type Admin interface {
	Kind() models.Kind
	Snapshot(id string) (any, error)
	SnapshotByCode(code string) (any, error)
	Snapshots() []any
	Delete(id string) bool
	Subscribe(id string, h bus.Handler) (func(), error)
	Recent(id string, limit int) (any, error)
	EndExpired() int
}

// activities implements the kind-agnostic operations over one store.
type activities[T store.Activity[T]] struct {
	store *store.Store[T]
}

func (a activities[T]) Kind() models.Kind { return a.store.Kind() }

// Get returns a copy of the activity.
func (a activities[T]) Get(id string) (T, error) { return a.store.Get(id) }

// GetByCode resolves a shared short code.
func (a activities[T]) GetByCode(code string) (T, error) { return a.store.GetByCode(code) }

// List returns every activity of the kind, newest first.
func (a activities[T]) List() []T { return a.store.List() }

// Delete removes the activity with its records and subscribers.
func (a activities[T]) Delete(id string) bool { return a.store.Delete(id) }

func (a activities[T]) Subscribe(id string, h bus.Handler) (func(), error) {
	return a.store.Subscribe(id, h)
}

func (a activities[T]) Snapshot(id string) (any, error) {
	v, err := a.store.Get(id)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a activities[T]) SnapshotByCode(code string) (any, error) {
	v, err := a.store.GetByCode(code)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a activities[T]) Snapshots() []any {
	list := a.store.List()
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = v
	}
	return out
}

func (a activities[T]) EndExpired() int {
	ended := models.StatusEnded
	n := 0
	for _, v := range a.store.List() {
		if !expired(v.Meta(), a.store.Now()) {
			continue
		}
		_, err := a.store.Update(v.Meta().ID, func(cur T) error {
			// Re-check under the lock; an administrator may have moved it meanwhile.
			if !expired(cur.Meta(), a.store.Now()) {
				return models.ErrInvalidState
			}
			return models.ActivityPatch{Status: &ended}.Apply(cur.Meta())
		})
		if err == nil {
			n++
		}
	}
	return n
}

func expired(a *models.Activity, now time.Time) bool {
	if a.Status != models.StatusActive && a.Status != models.StatusPaused {
		return false
	}
	return a.Window != nil && !a.Window.End.IsZero() && now.After(a.Window.End)
}

// checkPhone validates an identity phone number.
func checkPhone(phone string, required bool) error {
	if phone == "" {
		if required {
			return models.Missing("phone")
		}
		return nil
	}
	if !models.ValidPhone(phone) {
		return models.NewValidationError("phone", "invalid format")
	}
	return nil
}

// checkVerifyCode gates edits of an existing record.
func checkVerifyCode(stored, given string) error {
	if given == "" {
		return models.ErrVerifyCodeRequired
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(given)) != 1 {
		return models.ErrInvalidVerifyCode
	}
	return nil
}

func recent[R any](records []R, limit int, clone func(R) R) []R {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	out := make([]R, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(records[i]))
	}
	return out
}

func clean(s string) string { return strings.TrimSpace(s) }
