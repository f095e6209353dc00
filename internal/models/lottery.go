package models

import "time"

// Prize represents a single prize category in the lottery.
// Remaining only moves down as the prize is won, and back to Count on reset.
// Probability is a percentage weight in [0, 100].
type Prize struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Item        string  `json:"item,omitempty"`
	Count       int     `json:"count"`
	Remaining   int     `json:"remaining"`
	Probability float64 `json:"probability"`
	IsDefault   bool    `json:"isDefault"` // consolation prize handed out when nothing else is hit
}

type LotteryConfig struct {
	MaxDrawsPerUser int  `json:"maxDrawsPerUser"`
	RequirePhone    bool `json:"requirePhone"`
}

func (c LotteryConfig) Validate() error {
	if c.MaxDrawsPerUser < 1 {
		return NewValidationError("config.maxDrawsPerUser", "must be at least 1")
	}
	return nil
}

type LotteryConfigPatch struct {
	MaxDrawsPerUser *int  `json:"maxDrawsPerUser"`
	RequirePhone    *bool `json:"requirePhone"`
}

// ValidatePrizes checks a prize table at creation time.
func ValidatePrizes(prizes []*Prize) error {
	if len(prizes) == 0 {
		return NewValidationError("prizes", "at least one prize is required")
	}
	var total float64
	defaults := 0
	ids := make(map[string]bool, len(prizes))
	for _, p := range prizes {
		if p.Name == "" {
			return Missing("prizes.name")
		}
		if p.ID != "" {
			if ids[p.ID] {
				return NewValidationError("prizes.id", "duplicate prize id "+p.ID)
			}
			ids[p.ID] = true
		}
		if p.Count < 0 {
			return NewValidationError("prizes.count", "must not be negative")
		}
		if p.Probability < 0 || p.Probability > 100 {
			return NewValidationError("prizes.probability", "must be between 0 and 100")
		}
		if p.IsDefault {
			defaults++
		}
		total += p.Probability
	}
	if defaults > 1 {
		return NewValidationError("prizes.isDefault", "only one default prize is allowed")
	}
	if total > 100+1e-9 {
		return NewValidationError("prizes.probability", "probabilities must not add up to more than 100")
	}
	return nil
}

type LotteryStats struct {
	TotalDraws       int `json:"totalDraws"`
	WinnersCount     int `json:"winnersCount"`
	ParticipantCount int `json:"participantCount"`
}

// WinRecord stores the outcome of a winning draw,
// linking a drawer to a specific prize.
type WinRecord struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone,omitempty"`
	Name      string    `json:"name,omitempty"`
	PrizeID   string    `json:"prizeId"`
	PrizeName string    `json:"prizeName"`
	PrizeItem string    `json:"prizeItem,omitempty"`
	IsDefault bool      `json:"isDefault"`
	WonAt     time.Time `json:"wonAt"`
}

// DrawResult is the answer to one draw. A nil Prize means no win, which is a
// normal outcome.
type DrawResult struct {
	Win            bool       `json:"win"`
	Prize          *Prize     `json:"prize,omitempty"`
	Record         *WinRecord `json:"record,omitempty"`
	RemainingDraws int        `json:"remainingDraws"`
}

// WinEvent is published after a winning draw.
type WinEvent struct {
	Record *WinRecord   `json:"record"`
	Prizes []*Prize     `json:"prizes"`
	Stats  LotteryStats `json:"stats"`
}

type Lottery struct {
	Activity
	Config  LotteryConfig `json:"config"`
	Prizes  []*Prize      `json:"prizes"`
	Stats   LotteryStats  `json:"stats"`
	Winners []*WinRecord  `json:"-"`

	// DrawCounts tracks attempts per identity, separate from win records.
	DrawCounts map[string]int `json:"-"`
}

func NewLottery(meta Activity, cfg LotteryConfig, prizes []*Prize) *Lottery {
	meta.Kind = KindLottery
	for _, p := range prizes {
		p.Remaining = p.Count
	}
	return &Lottery{
		Activity:   meta,
		Config:     cfg,
		Prizes:     prizes,
		DrawCounts: make(map[string]int),
	}
}

func (l *Lottery) DefaultPrize() *Prize {
	for _, p := range l.Prizes {
		if p.IsDefault {
			return p
		}
	}
	return nil
}

func (l *Lottery) ClonePrizes() []*Prize {
	out := make([]*Prize, len(l.Prizes))
	for i, p := range l.Prizes {
		c := *p
		out[i] = &c
	}
	return out
}

func (l *Lottery) Snapshot() *Lottery {
	return &Lottery{
		Activity:   l.copyMeta(),
		Config:     l.Config,
		Prizes:     l.ClonePrizes(),
		Stats:      l.Stats,
	}
}

type LotteryPatch struct {
	ActivityPatch
	Config *LotteryConfigPatch `json:"config"`
}

func (p LotteryPatch) Apply(l *Lottery) error {
	next := l.Config
	if p.Config != nil {
		if p.Config.MaxDrawsPerUser != nil {
			next.MaxDrawsPerUser = *p.Config.MaxDrawsPerUser
		}
		if p.Config.RequirePhone != nil {
			next.RequirePhone = *p.Config.RequirePhone
		}
		if err := next.Validate(); err != nil {
			return err
		}
	}
	if err := p.ActivityPatch.Apply(&l.Activity); err != nil {
		return err
	}
	l.Config = next
	return nil
}

func (r *WinRecord) Clone() *WinRecord {
	c := *r
	return &c
}
