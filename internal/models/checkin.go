package models

import (
	"maps"
	"time"
)

// FieldRule marks one of the optional check-in fields as required.
type FieldRule struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required"`
}

const (
	FieldName       = "name"
	FieldDepartment = "department"
)

type CheckinConfig struct {
	Fields      []FieldRule `json:"fields"`
	AllowRepeat bool        `json:"allowRepeat"`
}

func (c CheckinConfig) Validate() error {
	for _, f := range c.Fields {
		if f.Name != FieldName && f.Name != FieldDepartment {
			return NewValidationError("config.fields", "unknown field "+f.Name)
		}
	}
	return nil
}

func (c CheckinConfig) Requires(field string) bool {
	for _, f := range c.Fields {
		if f.Name == field {
			return f.Required
		}
	}
	return false
}

type CheckinConfigPatch struct {
	Fields      *[]FieldRule `json:"fields"`
	AllowRepeat *bool        `json:"allowRepeat"`
}

type CheckinStats struct {
	DailyCounter
	ByDepartment map[string]int `json:"byDepartment"`
}

// CheckinRecord is one person's check-in. VerifyCode is only exposed once.
type CheckinRecord struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name,omitempty"`
	Department  string    `json:"department,omitempty"`
	VerifyCode  string    `json:"verifyCode,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Public returns a copy safe to broadcast.
func (r *CheckinRecord) Public() *CheckinRecord {
	c := *r
	c.VerifyCode = ""
	return &c
}

type Checkin struct {
	Activity
	Config  CheckinConfig    `json:"config"`
	Stats   CheckinStats     `json:"stats"`
	Records []*CheckinRecord `json:"-"`

	byPhone map[string]*CheckinRecord
}

func NewCheckin(meta Activity, cfg CheckinConfig) *Checkin {
	meta.Kind = KindCheckin
	return &Checkin{
		Activity: meta,
		Config:   cfg,
		Stats:    CheckinStats{ByDepartment: map[string]int{}},
		byPhone:  make(map[string]*CheckinRecord),
	}
}

func (c *Checkin) Lookup(phone string) *CheckinRecord {
	return c.byPhone[phone]
}

func (c *Checkin) Append(r *CheckinRecord) {
	if c.byPhone == nil {
		c.byPhone = make(map[string]*CheckinRecord)
	}
	c.Records = append(c.Records, r)
	c.byPhone[r.Phone] = r
}

// Snapshot deep-copies the activity without its records.
func (c *Checkin) Snapshot() *Checkin {
	out := &Checkin{
		Activity: c.copyMeta(),
		Config:   CheckinConfig{Fields: append([]FieldRule(nil), c.Config.Fields...), AllowRepeat: c.Config.AllowRepeat},
		Stats: CheckinStats{
			DailyCounter: c.Stats.DailyCounter.clone(),
			ByDepartment: maps.Clone(c.Stats.ByDepartment),
		},
	}
	return out
}

// AsOf rolls today's count over to the date of now.
func (c *Checkin) AsOf(now time.Time) {
	c.Stats.DailyCounter = c.Stats.DailyCounter.View(now)
}

type CheckinPatch struct {
	ActivityPatch
	Config *CheckinConfigPatch `json:"config"`
}

func (p CheckinPatch) Apply(c *Checkin) error {
	next := c.Config
	if p.Config != nil {
		if p.Config.Fields != nil {
			next.Fields = append([]FieldRule(nil), (*p.Config.Fields)...)
		}
		if p.Config.AllowRepeat != nil {
			next.AllowRepeat = *p.Config.AllowRepeat
		}
		if err := next.Validate(); err != nil {
			return err
		}
	}
	if err := p.ActivityPatch.Apply(&c.Activity); err != nil {
		return err
	}
	c.Config = next
	return nil
}
