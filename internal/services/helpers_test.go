package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"eventwall/internal/models"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// rolls replays fixed draw values, repeating the last one when exhausted.
type rolls struct {
	mu     sync.Mutex
	values []float64
}

func (r *rolls) Next() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.values[0]
	if len(r.values) > 1 {
		r.values = r.values[1:]
	}
	return v
}

func (r *rolls) Set(values ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = values
}

func newTestEngine(t *testing.T) (*Engine, *clock, *rolls) {
	t.Helper()
	c := &clock{now: testNow}
	r := &rolls{values: []float64{0}}
	e := NewEngine(Options{CodeLength: 6, VerifyCodeLength: 3, Clock: c.Now, Rand: r.Next})
	return e, c, r
}

func active(title string) models.NewActivity {
	return models.NewActivity{Title: title, Status: models.StatusActive}
}

func phone(i int) string {
	return fmt.Sprintf("138%08d", i)
}

// eventLog collects the events published for one activity.
type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (l *eventLog) handle(ev models.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []models.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) last() models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}
