package services

import (
	"time"

	"eventwall/internal/idgen"
	"eventwall/internal/models"
	"eventwall/internal/store"

	"github.com/google/logger"
)

// DrawRequest identifies who is drawing. Phone may be empty when the lottery
// does not require it; such draws are never limited.
type DrawRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// ResetEvent tells displays to clear their local state.
type ResetEvent struct {
	Prizes []*models.Prize     `json:"prizes"`
	Stats  models.LotteryStats `json:"stats"`
}

// LotteryService manages prize-draw sessions.
type LotteryService struct {
	activities[*models.Lottery]
	ids  *idgen.Generator
	rand func() float64
}

// NewLotteryService creates a LotteryService drawing with rand, which must
// return values in [0, 1) and be safe for concurrent use.
func NewLotteryService(s *store.Store[*models.Lottery], ids *idgen.Generator, rand func() float64) *LotteryService {
	return &LotteryService{activities: activities[*models.Lottery]{store: s}, ids: ids, rand: rand}
}

// Create opens a new lottery. Every prize starts with Remaining equal to Count.
func (s *LotteryService) Create(meta models.NewActivity, cfg models.LotteryConfig, prizes []*models.Prize) (*models.Lottery, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := models.ValidatePrizes(prizes); err != nil {
		return nil, err
	}
	table := make([]*models.Prize, len(prizes))
	for i, p := range prizes {
		c := *p
		if c.ID == "" {
			c.ID = s.ids.NewID()
		}
		table[i] = &c
	}
	return s.store.Create(func(id, code string, now time.Time) (*models.Lottery, error) {
		return models.NewLottery(meta.Build(models.KindLottery, id, code, now), cfg, table), nil
	})
}

func (s *LotteryService) Update(id string, patch models.LotteryPatch) (*models.Lottery, error) {
	return s.store.Update(id, patch.Apply)
}

// Draw performs one draw for the caller. Not winning is a successful result
// with Win false.
func (s *LotteryService) Draw(activityID string, req DrawRequest) (*models.DrawResult, error) {
	req.Phone = clean(req.Phone)
	req.Name = clean(req.Name)

	var res *models.DrawResult
	err := s.store.Mutate(activityID, func(l *models.Lottery) (*store.Notice, error) {
		now := s.store.Now()
		if err := l.CheckOpen(now); err != nil {
			return nil, err
		}
		if err := checkPhone(req.Phone, l.Config.RequirePhone); err != nil {
			return nil, err
		}

		key := req.Phone
		if key == "" {
			key = "anon:" + s.ids.NewID()
		}
		drawn := l.DrawCounts[key]
		if drawn >= l.Config.MaxDrawsPerUser {
			return nil, models.ErrDrawLimitExceeded
		}

		prize := pickPrize(l.Prizes, s.rand())
		l.DrawCounts[key] = drawn + 1
		l.Stats.TotalDraws++
		res = &models.DrawResult{RemainingDraws: l.Config.MaxDrawsPerUser - drawn - 1}
		if req.Phone == "" {
			// Anonymous draws are never tracked between requests.
			delete(l.DrawCounts, key)
			res.RemainingDraws = l.Config.MaxDrawsPerUser
		}
		if prize == nil {
			return nil, nil
		}

		prize.Remaining = max(prize.Remaining-1, 0)
		record := &models.WinRecord{
			ID:        s.ids.NewID(),
			Phone:     req.Phone,
			Name:      req.Name,
			PrizeID:   prize.ID,
			PrizeName: prize.Name,
			PrizeItem: prize.Item,
			IsDefault: prize.IsDefault,
			WonAt:     now,
		}
		l.Winners = append(l.Winners, record)
		l.Stats.WinnersCount++
		if drawn == 0 {
			l.Stats.ParticipantCount++
		}

		won := *prize
		rec := *record
		res.Win = true
		res.Prize = &won
		res.Record = &rec
		return &store.Notice{Type: models.EventWin, Payload: models.WinEvent{
			Record: record.Clone(),
			Prizes: l.ClonePrizes(),
			Stats:  l.Stats,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.Win {
		logger.Infof("lottery: %s drew %s (%s)", activityID, res.Prize.Name, res.Record.ID)
	}
	return res, nil
}

// pickPrize walks the stocked non-default prizes accumulating their configured
// probabilities against roll*100; the first prize whose running sum reaches the
// roll wins. Probabilities are not renormalized when prizes run out, so a
// depleted prize's share turns into a miss. A miss, or an empty candidate list,
// falls back to the default prize while it has stock.
func pickPrize(prizes []*models.Prize, roll float64) *models.Prize {
	var (
		candidates []*models.Prize
		fallback   *models.Prize
	)
	for _, p := range prizes {
		if p.IsDefault {
			if fallback == nil {
				fallback = p
			}
			continue
		}
		if p.Remaining > 0 {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) > 0 {
		r := roll * 100
		var cumulative float64
		for _, p := range candidates {
			cumulative += p.Probability
			if cumulative >= r {
				return p
			}
		}
	}
	if fallback != nil && fallback.Remaining > 0 {
		return fallback
	}
	return nil
}

// Reset restores every prize and clears stats, winners and draw counts.
func (s *LotteryService) Reset(activityID string) (*models.Lottery, error) {
	var out *models.Lottery
	err := s.store.Mutate(activityID, func(l *models.Lottery) (*store.Notice, error) {
		for _, p := range l.Prizes {
			p.Remaining = p.Count
		}
		l.Stats = models.LotteryStats{}
		l.Winners = nil
		l.DrawCounts = make(map[string]int)
		l.UpdatedAt = s.store.Now()
		out = l.Snapshot()
		return &store.Notice{Type: models.EventReset, Payload: ResetEvent{
			Prizes: l.ClonePrizes(),
			Stats:  l.Stats,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("lottery: reset %s", activityID)
	return out, nil
}

// GetPrizes returns the prize table of a lottery.
func (s *LotteryService) GetPrizes(activityID string) ([]*models.Prize, error) {
	var out []*models.Prize
	err := s.store.View(activityID, func(l *models.Lottery) error {
		out = l.ClonePrizes()
		return nil
	})
	return out, err
}

// Winners returns up to limit win records, newest first.
func (s *LotteryService) Winners(activityID string, limit int) ([]*models.WinRecord, error) {
	var out []*models.WinRecord
	err := s.store.View(activityID, func(l *models.Lottery) error {
		out = recent(l.Winners, limit, (*models.WinRecord).Clone)
		return nil
	})
	return out, err
}

func (s *LotteryService) Recent(activityID string, limit int) (any, error) {
	return s.Winners(activityID, limit)
}

// RemainingDraws reports how many draws phone has left.
func (s *LotteryService) RemainingDraws(activityID, phone string) (int, error) {
	var left int
	err := s.store.View(activityID, func(l *models.Lottery) error {
		left = max(l.Config.MaxDrawsPerUser-l.DrawCounts[clean(phone)], 0)
		return nil
	})
	return left, err
}
