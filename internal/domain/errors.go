package domain

import "errors"

var (
	ErrNotFound   = errors.New("record not found")
	ErrEmailTaken = errors.New("email already registered")

	// Voting outcomes. The ballot transition reports what happened through
	// these sentinels instead of leaking storage error codes upward.
	ErrChoiceNotFound = errors.New("choice not found")
	ErrNotAuthorized  = errors.New("user is not a voter on this poll")
	ErrAlreadyVoted   = errors.New("user already voted on this poll")
	ErrNotVotedYet    = errors.New("user has not voted on this poll")
	ErrSameChoice     = errors.New("vote already points at this choice")
)
