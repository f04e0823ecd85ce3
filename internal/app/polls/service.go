// Package polls implements the poll lifecycle: creation, lookup, invitees and deletion.
package polls

import (
	"context"
	"errors"
	"fmt"

	"github.com/knppkp/pollboard/internal/domain"
	"github.com/knppkp/pollboard/internal/platform/ids"
	"github.com/knppkp/pollboard/internal/platform/metrics"
)

var (
	ErrInvalidPoll   = errors.New("invalid poll")
	ErrInvalidChoice = errors.New("invalid choice")
)

// Service validates poll input and delegates persistence to the repositories.
type Service struct {
	polls domain.PollRepository
	users domain.UserRepository
	clock domain.Clock
	ids   *ids.Generator
}

func NewService(polls domain.PollRepository, users domain.UserRepository, clock domain.Clock, idsGen *ids.Generator) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	return &Service{
		polls: polls,
		users: users,
		clock: clock,
		ids:   idsGen,
	}
}

// CreatePoll builds the poll aggregate and persists it in one transaction;
// an unknown voter id fails the whole creation.
func (s *Service) CreatePoll(ctx context.Context, p domain.Poll, choiceTexts []string, voterIDs []domain.UserID) (domain.Poll, error) {
	if p.Name == "" || p.CreatorID == "" {
		return domain.Poll{}, fmt.Errorf("%w: poll_name and creator_id are required", ErrInvalidPoll)
	}

	creator, err := s.users.FindByID(ctx, p.CreatorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Poll{}, fmt.Errorf("%w: creator does not exist", ErrInvalidPoll)
		}
		return domain.Poll{}, err
	}

	now := s.clock.Now()
	p.ID = domain.PollID(s.ids.New())
	p.CreatedDate = now
	if p.DueDate != nil && p.DueDate.Before(now) {
		return domain.Poll{}, fmt.Errorf("%w: due_date is in the past", ErrInvalidPoll)
	}

	choices := make([]domain.Choice, 0, len(choiceTexts))
	for _, text := range choiceTexts {
		if text == "" {
			return domain.Poll{}, fmt.Errorf("%w: empty choice text", ErrInvalidChoice)
		}
		choices = append(choices, domain.Choice{
			ID:     domain.ChoiceID(s.ids.New()),
			Text:   text,
			PollID: p.ID,
		})
	}

	seen := make(map[domain.UserID]bool, len(voterIDs))
	voters := make([]domain.PollVoter, 0, len(voterIDs))
	for _, voterID := range voterIDs {
		if seen[voterID] {
			continue
		}
		seen[voterID] = true
		if _, err := s.users.FindByID(ctx, voterID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Poll{}, fmt.Errorf("%w: voter %s does not exist", ErrInvalidPoll, voterID)
			}
			return domain.Poll{}, err
		}
		voters = append(voters, domain.PollVoter{PollID: p.ID, UserID: voterID})
	}

	if err := s.polls.Create(ctx, p, choices, voters); err != nil {
		return domain.Poll{}, err
	}

	metrics.IncPollCreated()

	p.CreatorName = creator.Name
	p.Choices = choices
	return p, nil
}

func (s *Service) GetPoll(ctx context.Context, id domain.PollID) (domain.Poll, error) {
	return s.polls.FindByID(ctx, id)
}

func (s *Service) ListPollsByUser(ctx context.Context, userID domain.UserID) ([]domain.Poll, error) {
	return s.polls.ListByUser(ctx, userID)
}

func (s *Service) DeletePoll(ctx context.Context, id domain.PollID) error {
	return s.polls.Delete(ctx, id)
}

func (s *Service) AddVoter(ctx context.Context, pollID domain.PollID, userID domain.UserID) error {
	if _, err := s.polls.FindByID(ctx, pollID); err != nil {
		return err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}
	return s.polls.AddVoter(ctx, domain.PollVoter{PollID: pollID, UserID: userID})
}

func (s *Service) CanVote(ctx context.Context, pollID domain.PollID, userID domain.UserID) (bool, error) {
	return s.polls.IsVoter(ctx, pollID, userID)
}

func (s *Service) AddChoice(ctx context.Context, pollID domain.PollID, text string) (domain.Choice, error) {
	if text == "" || pollID == "" {
		return domain.Choice{}, fmt.Errorf("%w: choice_text and poll_id are required", ErrInvalidChoice)
	}
	if _, err := s.polls.FindByID(ctx, pollID); err != nil {
		return domain.Choice{}, err
	}

	choice := domain.Choice{
		ID:     domain.ChoiceID(s.ids.New()),
		Text:   text,
		PollID: pollID,
	}
	if err := s.polls.AddChoice(ctx, choice); err != nil {
		return domain.Choice{}, err
	}
	return choice, nil
}

func (s *Service) ListChoices(ctx context.Context, pollID domain.PollID) ([]domain.Choice, error) {
	return s.polls.ListChoices(ctx, pollID)
}

var _ domain.PollService = (*Service)(nil)
