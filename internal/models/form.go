package models

import (
	"maps"
	"slices"
	"time"
)

type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldSelect FieldType = "select"
)

type FormField struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

type FormConfig struct {
	Fields      []FormField `json:"fields"`
	AllowRepeat bool        `json:"allowRepeat"`
}

func (c FormConfig) Validate() error {
	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if f.Name == "" {
			return Missing("config.fields.name")
		}
		if seen[f.Name] {
			return NewValidationError("config.fields", "duplicate field "+f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case FieldText, FieldNumber:
		case FieldSelect:
			if len(f.Options) == 0 {
				return NewValidationError("config.fields."+f.Name, "select needs options")
			}
		default:
			return NewValidationError("config.fields."+f.Name, "unknown type")
		}
	}
	return nil
}

func (c FormConfig) clone() FormConfig {
	out := FormConfig{AllowRepeat: c.AllowRepeat, Fields: make([]FormField, len(c.Fields))}
	for i, f := range c.Fields {
		f.Options = slices.Clone(f.Options)
		out.Fields[i] = f
	}
	return out
}

type FormConfigPatch struct {
	Fields      *[]FormField `json:"fields"`
	AllowRepeat *bool        `json:"allowRepeat"`
}

type FormRecord struct {
	ID          string            `json:"id"`
	Phone       string            `json:"phone"`
	Data        map[string]string `json:"data"`
	VerifyCode  string            `json:"verifyCode,omitempty"`
	SubmittedAt time.Time         `json:"submittedAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Public returns a copy safe to broadcast.
func (r *FormRecord) Public() *FormRecord {
	c := *r
	c.Data = maps.Clone(r.Data)
	c.VerifyCode = ""
	return &c
}

type Form struct {
	Activity
	Config  FormConfig    `json:"config"`
	Stats   DailyCounter  `json:"stats"`
	Records []*FormRecord `json:"-"`

	byPhone map[string]*FormRecord
}

func NewForm(meta Activity, cfg FormConfig) *Form {
	meta.Kind = KindForm
	return &Form{
		Activity: meta,
		Config:   cfg,
		Stats:    DailyCounter{ByDay: map[string]int{}},
		byPhone:  make(map[string]*FormRecord),
	}
}

func (f *Form) Lookup(phone string) *FormRecord {
	return f.byPhone[phone]
}

func (f *Form) Append(r *FormRecord) {
	if f.byPhone == nil {
		f.byPhone = make(map[string]*FormRecord)
	}
	f.Records = append(f.Records, r)
	f.byPhone[r.Phone] = r
}

func (f *Form) Snapshot() *Form {
	return &Form{
		Activity: f.copyMeta(),
		Config:   f.Config.clone(),
		Stats:    f.Stats.clone(),
	}
}

// AsOf rolls today's count over to the date of now.
func (f *Form) AsOf(now time.Time) {
	f.Stats = f.Stats.View(now)
}

type FormPatch struct {
	ActivityPatch
	Config *FormConfigPatch `json:"config"`
}

func (p FormPatch) Apply(f *Form) error {
	next := f.Config
	if p.Config != nil {
		if p.Config.Fields != nil {
			next.Fields = slices.Clone(*p.Config.Fields)
		}
		if p.Config.AllowRepeat != nil {
			next.AllowRepeat = *p.Config.AllowRepeat
		}
		if err := next.Validate(); err != nil {
			return err
		}
	}
	if err := p.ActivityPatch.Apply(&f.Activity); err != nil {
		return err
	}
	f.Config = next
	return nil
}
