package domain

import (
	"context"
	"time"
)

type UserRepository interface {
	Create(ctx context.Context, u User) error
	FindByID(ctx context.Context, id UserID) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
}

type PollRepository interface {
	// Create persists the poll, its choices and its voter rows in one transaction.
	Create(ctx context.Context, p Poll, choices []Choice, voters []PollVoter) error
	FindByID(ctx context.Context, id PollID) (Poll, error)
	ListByUser(ctx context.Context, userID UserID) ([]Poll, error)
	Delete(ctx context.Context, id PollID) error
	AddVoter(ctx context.Context, pv PollVoter) error
	IsVoter(ctx context.Context, pollID PollID, userID UserID) (bool, error)
	AddChoice(ctx context.Context, c Choice) error
	ListChoices(ctx context.Context, pollID PollID) ([]Choice, error)
}

// BallotRepository owns the vote transition transactions. Cast and Change run
// every check and counter update inside a single database transaction.
type BallotRepository interface {
	Cast(ctx context.Context, v Vote) error
	Change(ctx context.Context, userID UserID, newChoiceID ChoiceID) error
	Results(ctx context.Context, pollID PollID) ([]ChoiceResult, error)
	BallotForPoll(ctx context.Context, pollID PollID, userID UserID) ([]Ballot, error)
	// ReconcilePoints recounts votes per choice and repairs any counter drift,
	// returning the repairs it made.
	ReconcilePoints(ctx context.Context) ([]PointDrift, error)
}

// PointDrift records one counter repair performed by the reconciler.
type PointDrift struct {
	ChoiceID ChoiceID
	Stored   int64
	Counted  int64
}

// VoteThrottle limits how often a caller may hit the vote endpoints.
type VoteThrottle interface {
	Allow(ctx context.Context, userID UserID, origin string) error
}

type Clock interface {
	Now() time.Time
}

type AccountService interface {
	Register(ctx context.Context, name, email, password string) (User, error)
	Login(ctx context.Context, email, password string) (User, string, error)
	GetUser(ctx context.Context, id UserID) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

type PollService interface {
	CreatePoll(ctx context.Context, p Poll, choiceTexts []string, voterIDs []UserID) (Poll, error)
	GetPoll(ctx context.Context, id PollID) (Poll, error)
	ListPollsByUser(ctx context.Context, userID UserID) ([]Poll, error)
	DeletePoll(ctx context.Context, id PollID) error
	AddVoter(ctx context.Context, pollID PollID, userID UserID) error
	CanVote(ctx context.Context, pollID PollID, userID UserID) (bool, error)
	AddChoice(ctx context.Context, pollID PollID, text string) (Choice, error)
	ListChoices(ctx context.Context, pollID PollID) ([]Choice, error)
}

type VotingService interface {
	CastVote(ctx context.Context, userID UserID, choiceID ChoiceID, origin string) error
	ChangeVote(ctx context.Context, userID UserID, newChoiceID ChoiceID, origin string) error
	Results(ctx context.Context, pollID PollID) ([]ChoiceResult, error)
	UserBallot(ctx context.Context, pollID PollID, userID UserID) ([]Ballot, error)
}
