package services

import (
	"slices"
	"strconv"
	"time"

	"eventwall/internal/idgen"
	"eventwall/internal/models"
	"eventwall/internal/store"
)

type FormSubmission struct {
	Phone      string            `json:"phone"`
	Data       map[string]string `json:"data"`
	VerifyCode string            `json:"verifyCode"`
}

type FormResult struct {
	Record   *models.FormRecord `json:"record"`
	IsUpdate bool               `json:"isUpdate"`
}

// FormService collects free-form submissions, one per phone.
type FormService struct {
	activities[*models.Form]
	ids *idgen.Generator
}

func NewFormService(s *store.Store[*models.Form], ids *idgen.Generator) *FormService {
	return &FormService{activities: activities[*models.Form]{store: s}, ids: ids}
}

func (s *FormService) Create(meta models.NewActivity, cfg models.FormConfig) (*models.Form, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return s.store.Create(func(id, code string, now time.Time) (*models.Form, error) {
		return models.NewForm(meta.Build(models.KindForm, id, code, now), cfg), nil
	})
}

func (s *FormService) Update(id string, patch models.FormPatch) (*models.Form, error) {
	return s.store.Update(id, patch.Apply)
}

func validateFormData(cfg models.FormConfig, data map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(cfg.Fields))
	for _, f := range cfg.Fields {
		v := clean(data[f.Name])
		if v == "" {
			if f.Required {
				return nil, models.Missing(f.Name)
			}
			continue
		}
		switch f.Type {
		case models.FieldNumber:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return nil, models.NewValidationError(f.Name, "must be a number")
			}
		case models.FieldSelect:
			if !slices.Contains(f.Options, v) {
				return nil, models.NewValidationError(f.Name, "not one of the options")
			}
		}
		out[f.Name] = v
	}
	for name := range data {
		if !slices.ContainsFunc(cfg.Fields, func(f models.FormField) bool { return f.Name == name }) {
			return nil, models.NewValidationError(name, "unknown field")
		}
	}
	return out, nil
}

// Submit stores a form entry, following the same repeat rules as check-in.
func (s *FormService) Submit(activityID string, sub FormSubmission) (*FormResult, error) {
	sub.Phone = clean(sub.Phone)

	var res *FormResult
	err := s.store.Mutate(activityID, func(f *models.Form) (*store.Notice, error) {
		now := s.store.Now()
		if err := f.CheckOpen(now); err != nil {
			return nil, err
		}
		if err := checkPhone(sub.Phone, true); err != nil {
			return nil, err
		}
		data, err := validateFormData(f.Config, sub.Data)
		if err != nil {
			return nil, err
		}

		rec := f.Lookup(sub.Phone)
		if rec == nil {
			rec = &models.FormRecord{
				ID:          s.ids.NewID(),
				Phone:       sub.Phone,
				Data:        data,
				VerifyCode:  s.ids.NewVerifyCode(),
				SubmittedAt: now,
				UpdatedAt:   now,
			}
			f.Append(rec)
			f.Stats.Add(now)
			created := *rec.Public()
			created.VerifyCode = rec.VerifyCode
			res = &FormResult{Record: &created}
			return &store.Notice{Type: models.EventNew, Payload: rec.Public()}, nil
		}

		if !f.Config.AllowRepeat {
			if err := checkVerifyCode(rec.VerifyCode, sub.VerifyCode); err != nil {
				return nil, err
			}
		}
		rec.Data = data
		rec.UpdatedAt = now
		res = &FormResult{Record: rec.Public(), IsUpdate: true}
		return &store.Notice{Type: models.EventUpdate, Payload: rec.Public()}, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Records returns up to limit entries, newest first, without verify codes.
func (s *FormService) Records(activityID string, limit int) ([]*models.FormRecord, error) {
	var out []*models.FormRecord
	err := s.store.View(activityID, func(f *models.Form) error {
		out = recent(f.Records, limit, (*models.FormRecord).Public)
		return nil
	})
	return out, err
}

func (s *FormService) Recent(activityID string, limit int) (any, error) {
	return s.Records(activityID, limit)
}
