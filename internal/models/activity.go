package models

import "time"

// Kind names the family an activity belongs to. Every kind has its own store.
type Kind string

const (
	KindCheckin Kind = "checkin"
	KindVote    Kind = "vote"
	KindLottery Kind = "lottery"
	KindForm    Kind = "form"
)

// Kinds lists every kind the engine serves.
var Kinds = []Kind{KindCheckin, KindVote, KindLottery, KindForm}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Status governs whether an activity accepts submissions.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

var transitions = map[Status][]Status{
	StatusDraft:  {StatusActive, StatusEnded},
	StatusActive: {StatusPaused, StatusEnded},
	StatusPaused: {StatusActive, StatusEnded},
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusEnded:
		return true
	}
	return false
}

// CanMoveTo reports whether an administrator may move an activity from s to next.
// Staying in the same status is always allowed.
func (s Status) CanMoveTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Window bounds the period in which submissions are accepted. A zero Start or End
// leaves that side open.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

func (w Window) Validate() error {
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return NewValidationError("window", "end must not be before start")
	}
	return nil
}

// Activity holds the fields every kind shares. Kind-specific state embeds it.
type Activity struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Window      *Window   `json:"window,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Meta gives generic code access to the shared fields of an embedding type.
func (a *Activity) Meta() *Activity { return a }

// CheckOpen returns ErrInvalidState unless the activity is active and now falls
// inside its window.
func (a *Activity) CheckOpen(now time.Time) error {
	if a.Status != StatusActive {
		return ErrInvalidState
	}
	if a.Window != nil && !a.Window.Contains(now) {
		return ErrInvalidState
	}
	return nil
}

func (a *Activity) copyMeta() Activity {
	c := *a
	if a.Window != nil {
		w := *a.Window
		c.Window = &w
	}
	return c
}

// ActivityPatch carries the optional changes to the shared fields. Nil fields are
// left untouched.
type ActivityPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *Status `json:"status"`
	Window      *Window `json:"window"`
	ClearWindow bool    `json:"clearWindow"`
}

// Apply validates the patch against a and merges it in. Nothing is changed when an
// error is returned.
func (p ActivityPatch) Apply(a *Activity) error {
	if p.Title != nil && *p.Title == "" {
		return NewValidationError("title", "must not be empty")
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return NewValidationError("status", "unknown status")
		}
		if !a.Status.CanMoveTo(*p.Status) {
			return ErrInvalidState
		}
	}
	if p.Window != nil {
		if err := p.Window.Validate(); err != nil {
			return err
		}
	}

	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.ClearWindow {
		a.Window = nil
	}
	if p.Window != nil {
		w := *p.Window
		a.Window = &w
	}
	return nil
}

// NewActivity is the input shared by every kind's create call.
type NewActivity struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	Window      *Window `json:"window"`
}

func (n NewActivity) Validate() error {
	if n.Title == "" {
		return NewValidationError("title", "must not be empty")
	}
	if n.Status != "" && !n.Status.Valid() {
		return NewValidationError("status", "unknown status")
	}
	if n.Window != nil {
		return n.Window.Validate()
	}
	return nil
}

// Build fills the shared fields of a freshly created activity.
func (n NewActivity) Build(kind Kind, id, code string, now time.Time) Activity {
	status := n.Status
	if status == "" {
		status = StatusDraft
	}
	a := Activity{
		ID:          id,
		Code:        code,
		Kind:        kind,
		Title:       n.Title,
		Description: n.Description,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if n.Window != nil {
		w := *n.Window
		a.Window = &w
	}
	return a
}
