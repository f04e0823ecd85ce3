// Package voting implements the ballot rules: cast once, change freely, never revert.
package voting

import (
	"context"
	"errors"

	"github.com/knppkp/pollboard/internal/domain"
	"github.com/knppkp/pollboard/internal/platform/ids"
)

var ErrInvalidRequest = errors.New("user_id and choice_id are required")

// Service wraps the transactional ballot repository with validation and throttling.
type Service struct {
	ballots  domain.BallotRepository
	throttle domain.VoteThrottle
	clock    domain.Clock
	ids      *ids.Generator
}

func NewService(ballots domain.BallotRepository, throttle domain.VoteThrottle, clock domain.Clock, idsGen *ids.Generator) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	return &Service{
		ballots:  ballots,
		throttle: throttle,
		clock:    clock,
		ids:      idsGen,
	}
}

// CastVote records a first ballot. Authorization, the one-vote invariant and
// the counter bump all live in one repository transaction.
func (s *Service) CastVote(ctx context.Context, userID domain.UserID, choiceID domain.ChoiceID, origin string) error {
	if userID == "" || choiceID == "" {
		return ErrInvalidRequest
	}

	if s.throttle != nil {
		if err := s.throttle.Allow(ctx, userID, origin); err != nil {
			return err
		}
	}

	vote := domain.Vote{
		ID:       domain.VoteID(s.ids.New()),
		UserID:   userID,
		ChoiceID: choiceID,
		VotedAt:  s.clock.Now(),
	}

	return s.ballots.Cast(ctx, vote)
}

// ChangeVote moves an existing ballot to a different choice of the same poll.
// There is deliberately no path back to "not voted".
func (s *Service) ChangeVote(ctx context.Context, userID domain.UserID, newChoiceID domain.ChoiceID, origin string) error {
	if userID == "" || newChoiceID == "" {
		return ErrInvalidRequest
	}

	if s.throttle != nil {
		if err := s.throttle.Allow(ctx, userID, origin); err != nil {
			return err
		}
	}

	return s.ballots.Change(ctx, userID, newChoiceID)
}

func (s *Service) Results(ctx context.Context, pollID domain.PollID) ([]domain.ChoiceResult, error) {
	return s.ballots.Results(ctx, pollID)
}

func (s *Service) UserBallot(ctx context.Context, pollID domain.PollID, userID domain.UserID) ([]domain.Ballot, error) {
	return s.ballots.BallotForPoll(ctx, pollID, userID)
}

var _ domain.VotingService = (*Service)(nil)
