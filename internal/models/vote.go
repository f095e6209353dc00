package models

import (
	"fmt"
	"slices"
	"time"
)

type VoteType string

const (
	VoteSingle   VoteType = "single"
	VoteMultiple VoteType = "multiple"
)

type VoteConfig struct {
	VoteType     VoteType `json:"voteType"`
	MinSelect    int      `json:"minSelect"`
	MaxSelect    int      `json:"maxSelect"`
	RequirePhone bool     `json:"requirePhone"`
	AllowChange  bool     `json:"allowChange"`
}

func (c VoteConfig) Validate(optionCount int) error {
	switch c.VoteType {
	case VoteSingle:
	case VoteMultiple:
		if c.MinSelect < 1 {
			return NewValidationError("config.minSelect", "must be at least 1")
		}
		if c.MaxSelect < c.MinSelect {
			return NewValidationError("config.maxSelect", "must not be below minSelect")
		}
		if c.MaxSelect > optionCount {
			return NewValidationError("config.maxSelect", fmt.Sprintf("must not exceed the %d options", optionCount))
		}
	default:
		return NewValidationError("config.voteType", "must be single or multiple")
	}
	return nil
}

// CheckSelection enforces the configured cardinality.
func (c VoteConfig) CheckSelection(n int) error {
	if n == 0 {
		return ErrCardinality
	}
	if c.VoteType == VoteSingle {
		if n > 1 {
			return ErrCardinality
		}
		return nil
	}
	if n < c.MinSelect || n > c.MaxSelect {
		return ErrCardinality
	}
	return nil
}

type VoteConfigPatch struct {
	MinSelect    *int  `json:"minSelect"`
	MaxSelect    *int  `json:"maxSelect"`
	RequirePhone *bool `json:"requirePhone"`
	AllowChange  *bool `json:"allowChange"`
}

// VoteOption carries a denormalized tally of the ballots selecting it.
type VoteOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type VoteStats struct {
	TotalVotes       int `json:"totalVotes"`
	ParticipantCount int `json:"participantCount"`
}

type Ballot struct {
	ID          string    `json:"id"`
	VoterKey    string    `json:"-"`
	Phone       string    `json:"phone,omitempty"`
	Name        string    `json:"name,omitempty"`
	Selection   []string  `json:"selection"`
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (b *Ballot) Clone() *Ballot {
	c := *b
	c.Selection = slices.Clone(b.Selection)
	return &c
}

type Vote struct {
	Activity
	Config  VoteConfig    `json:"config"`
	Options []*VoteOption `json:"options"`
	Stats   VoteStats     `json:"stats"`
	Ballots []*Ballot     `json:"-"`

	byVoter map[string]*Ballot
}

func NewVote(meta Activity, cfg VoteConfig, options []*VoteOption) *Vote {
	meta.Kind = KindVote
	return &Vote{
		Activity: meta,
		Config:   cfg,
		Options:  options,
		byVoter:  make(map[string]*Ballot),
	}
}

func (v *Vote) Option(id string) *VoteOption {
	for _, o := range v.Options {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (v *Vote) Lookup(voterKey string) *Ballot {
	return v.byVoter[voterKey]
}

func (v *Vote) Append(b *Ballot) {
	if v.byVoter == nil {
		v.byVoter = make(map[string]*Ballot)
	}
	v.Ballots = append(v.Ballots, b)
	v.byVoter[b.VoterKey] = b
}

func (v *Vote) CloneOptions() []*VoteOption {
	out := make([]*VoteOption, len(v.Options))
	for i, o := range v.Options {
		c := *o
		out[i] = &c
	}
	return out
}

func (v *Vote) Snapshot() *Vote {
	return &Vote{
		Activity: v.copyMeta(),
		Config:   v.Config,
		Options:  v.CloneOptions(),
		Stats:    v.Stats,
	}
}

type VotePatch struct {
	ActivityPatch
	Config *VoteConfigPatch `json:"config"`
}

func (p VotePatch) Apply(v *Vote) error {
	next := v.Config
	if p.Config != nil {
		if p.Config.MinSelect != nil {
			next.MinSelect = *p.Config.MinSelect
		}
		if p.Config.MaxSelect != nil {
			next.MaxSelect = *p.Config.MaxSelect
		}
		if p.Config.RequirePhone != nil {
			next.RequirePhone = *p.Config.RequirePhone
		}
		if p.Config.AllowChange != nil {
			next.AllowChange = *p.Config.AllowChange
		}
		if err := next.Validate(len(v.Options)); err != nil {
			return err
		}
	}
	if err := p.ActivityPatch.Apply(&v.Activity); err != nil {
		return err
	}
	v.Config = next
	return nil
}
