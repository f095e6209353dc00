package services

import (
	"strconv"
	"time"

	"eventwall/internal/idgen"
	"eventwall/internal/models"
	"eventwall/internal/store"

	"github.com/google/logger"
)

type VoteSubmission struct {
	OptionIDs []string `json:"optionIds"`
	Phone     string   `json:"phone"`
	Name      string   `json:"name"`
}

type VoteResult struct {
	Ballot   *models.Ballot `json:"ballot"`
	IsUpdate bool           `json:"isUpdate"`
}

// VoteEvent is published after every accepted ballot.
type VoteEvent struct {
	Ballot   *models.Ballot       `json:"ballot"`
	IsUpdate bool                 `json:"isUpdate"`
	Options  []*models.VoteOption `json:"options"`
	Stats    models.VoteStats     `json:"stats"`
}

// VoteService runs polls. Option counts are kept in step with the stored
// selections: the sum of all counts equals the sum of all selection sizes.
type VoteService struct {
	activities[*models.Vote]
	ids *idgen.Generator
}

func NewVoteService(s *store.Store[*models.Vote], ids *idgen.Generator) *VoteService {
	return &VoteService{activities: activities[*models.Vote]{store: s}, ids: ids}
}

// Create opens a poll over the given option labels.
func (s *VoteService) Create(meta models.NewActivity, cfg models.VoteConfig, labels []string) (*models.Vote, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if len(labels) < 2 {
		return nil, models.NewValidationError("options", "at least two options are required")
	}
	options := make([]*models.VoteOption, len(labels))
	for i, label := range labels {
		if clean(label) == "" {
			return nil, models.Missing("options.label")
		}
		options[i] = &models.VoteOption{ID: strconv.Itoa(i + 1), Label: clean(label)}
	}
	if err := cfg.Validate(len(options)); err != nil {
		return nil, err
	}
	return s.store.Create(func(id, code string, now time.Time) (*models.Vote, error) {
		return models.NewVote(meta.Build(models.KindVote, id, code, now), cfg, options), nil
	})
}

func (s *VoteService) Update(id string, patch models.VotePatch) (*models.Vote, error) {
	return s.store.Update(id, patch.Apply)
}

// Submit casts a ballot, or replaces the voter's previous one when the poll
// allows changes.
func (s *VoteService) Submit(activityID string, sub VoteSubmission) (*VoteResult, error) {
	sub.Phone = clean(sub.Phone)
	sub.Name = clean(sub.Name)

	var res *VoteResult
	err := s.store.Mutate(activityID, func(v *models.Vote) (*store.Notice, error) {
		now := s.store.Now()
		if err := v.CheckOpen(now); err != nil {
			return nil, err
		}
		if err := checkPhone(sub.Phone, v.Config.RequirePhone); err != nil {
			return nil, err
		}
		if err := v.Config.CheckSelection(len(sub.OptionIDs)); err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(sub.OptionIDs))
		for _, id := range sub.OptionIDs {
			if seen[id] {
				return nil, models.NewValidationError("optionIds", "option selected twice")
			}
			seen[id] = true
			if v.Option(id) == nil {
				return nil, models.ErrInvalidOption
			}
		}
		selection := append([]string(nil), sub.OptionIDs...)

		key := sub.Phone
		if key == "" {
			key = "anon:" + s.ids.NewID()
		}

		ballot := v.Lookup(key)
		isUpdate := ballot != nil
		if isUpdate {
			if !v.Config.AllowChange {
				return nil, models.ErrDuplicateSubmission
			}
			// Take the old ballot out before counting the new one.
			for _, id := range ballot.Selection {
				if o := v.Option(id); o != nil && o.Count > 0 {
					o.Count--
				}
			}
			for _, id := range selection {
				v.Option(id).Count++
			}
			v.Stats.TotalVotes += len(selection) - len(ballot.Selection)
			ballot.Selection = selection
			if sub.Name != "" {
				ballot.Name = sub.Name
			}
			ballot.UpdatedAt = now
		} else {
			ballot = &models.Ballot{
				ID:          s.ids.NewID(),
				VoterKey:    key,
				Phone:       sub.Phone,
				Name:        sub.Name,
				Selection:   selection,
				SubmittedAt: now,
				UpdatedAt:   now,
			}
			v.Append(ballot)
			for _, id := range selection {
				v.Option(id).Count++
			}
			v.Stats.TotalVotes += len(selection)
			v.Stats.ParticipantCount++
		}

		res = &VoteResult{Ballot: ballot.Clone(), IsUpdate: isUpdate}
		return &store.Notice{Type: models.EventVote, Payload: VoteEvent{
			Ballot:   ballot.Clone(),
			IsUpdate: isUpdate,
			Options:  v.CloneOptions(),
			Stats:    v.Stats,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.IsUpdate {
		logger.Infof("vote: %s ballot %s changed", activityID, res.Ballot.ID)
	}
	return res, nil
}

// Ballots returns up to limit ballots, newest first.
func (s *VoteService) Ballots(activityID string, limit int) ([]*models.Ballot, error) {
	var out []*models.Ballot
	err := s.store.View(activityID, func(v *models.Vote) error {
		out = recent(v.Ballots, limit, (*models.Ballot).Clone)
		return nil
	})
	return out, err
}

func (s *VoteService) Recent(activityID string, limit int) (any, error) {
	return s.Ballots(activityID, limit)
}

// Results returns the option tallies and counters from one consistent read.
func (s *VoteService) Results(activityID string) ([]*models.VoteOption, models.VoteStats, error) {
	var (
		options []*models.VoteOption
		stats   models.VoteStats
	)
	err := s.store.View(activityID, func(v *models.Vote) error {
		options = v.CloneOptions()
		stats = v.Stats
		return nil
	})
	return options, stats, err
}
