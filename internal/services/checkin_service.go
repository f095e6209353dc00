package services

import (
	"time"

	"eventwall/internal/idgen"
	"eventwall/internal/models"
	"eventwall/internal/store"

	"github.com/google/logger"
)

// CheckinSubmission is one participant's check-in attempt.
type CheckinSubmission struct {
	Phone      string `json:"phone"`
	Name       string `json:"name"`
	Department string `json:"department"`
	VerifyCode string `json:"verifyCode"`
}

// CheckinResult tells a first check-in apart from an edit. The record carries
// its verify code only when IsUpdate is false.
type CheckinResult struct {
	Record   *models.CheckinRecord `json:"record"`
	IsUpdate bool                  `json:"isUpdate"`
}

// CheckinService runs check-in sessions.
type CheckinService struct {
	activities[*models.Checkin]
	ids *idgen.Generator
}

func NewCheckinService(s *store.Store[*models.Checkin], ids *idgen.Generator) *CheckinService {
	return &CheckinService{activities: activities[*models.Checkin]{store: s}, ids: ids}
}

// Create opens a new check-in session.
func (s *CheckinService) Create(meta models.NewActivity, cfg models.CheckinConfig) (*models.Checkin, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return s.store.Create(func(id, code string, now time.Time) (*models.Checkin, error) {
		return models.NewCheckin(meta.Build(models.KindCheckin, id, code, now), cfg), nil
	})
}

// Update merges patch into the session.
func (s *CheckinService) Update(id string, patch models.CheckinPatch) (*models.Checkin, error) {
	return s.store.Update(id, patch.Apply)
}

// Submit records a check-in or, for a phone that already checked in, edits it.
func (s *CheckinService) Submit(activityID string, sub CheckinSubmission) (*CheckinResult, error) {
	sub.Phone = clean(sub.Phone)
	sub.Name = clean(sub.Name)
	sub.Department = clean(sub.Department)

	var res *CheckinResult
	err := s.store.Mutate(activityID, func(c *models.Checkin) (*store.Notice, error) {
		now := s.store.Now()
		if err := c.CheckOpen(now); err != nil {
			return nil, err
		}
		if err := checkPhone(sub.Phone, true); err != nil {
			return nil, err
		}
		if sub.Name == "" && c.Config.Requires(models.FieldName) {
			return nil, models.Missing(models.FieldName)
		}
		if sub.Department == "" && c.Config.Requires(models.FieldDepartment) {
			return nil, models.Missing(models.FieldDepartment)
		}

		rec := c.Lookup(sub.Phone)
		if rec == nil {
			rec = &models.CheckinRecord{
				ID:          s.ids.NewID(),
				Phone:       sub.Phone,
				Name:        sub.Name,
				Department:  sub.Department,
				VerifyCode:  s.ids.NewVerifyCode(),
				SubmittedAt: now,
				UpdatedAt:   now,
			}
			c.Append(rec)
			c.Stats.Add(now)
			if rec.Department != "" {
				c.Stats.ByDepartment[rec.Department]++
			}
			created := *rec
			res = &CheckinResult{Record: &created}
			return &store.Notice{Type: models.EventNew, Payload: rec.Public()}, nil
		}

		if !c.Config.AllowRepeat {
			if err := checkVerifyCode(rec.VerifyCode, sub.VerifyCode); err != nil {
				return nil, err
			}
		}
		if rec.Department != sub.Department {
			if rec.Department != "" {
				c.Stats.ByDepartment[rec.Department]--
				if c.Stats.ByDepartment[rec.Department] <= 0 {
					delete(c.Stats.ByDepartment, rec.Department)
				}
			}
			if sub.Department != "" {
				c.Stats.ByDepartment[sub.Department]++
			}
		}
		rec.Name = sub.Name
		rec.Department = sub.Department
		rec.UpdatedAt = now
		res = &CheckinResult{Record: rec.Public(), IsUpdate: true}
		return &store.Notice{Type: models.EventUpdate, Payload: rec.Public()}, nil
	})
	if err != nil {
		return nil, err
	}
	if !res.IsUpdate {
		logger.Infof("checkin: %s new record %s", activityID, res.Record.ID)
	}
	return res, nil
}

// Records returns up to limit check-ins, newest first, without verify codes.
func (s *CheckinService) Records(activityID string, limit int) ([]*models.CheckinRecord, error) {
	var out []*models.CheckinRecord
	err := s.store.View(activityID, func(c *models.Checkin) error {
		out = recent(c.Records, limit, (*models.CheckinRecord).Public)
		return nil
	})
	return out, err
}

func (s *CheckinService) Recent(activityID string, limit int) (any, error) {
	return s.Records(activityID, limit)
}

// Stats returns the running counters with today's count as of now.
func (s *CheckinService) Stats(activityID string) (models.CheckinStats, error) {
	var out models.CheckinStats
	err := s.store.View(activityID, func(c *models.Checkin) error {
		snap := c.Snapshot()
		snap.AsOf(s.store.Now())
		out = snap.Stats
		return nil
	})
	return out, err
}
