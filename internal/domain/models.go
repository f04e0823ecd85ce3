// Package domain holds the entities and ports shared by services and storage.
package domain

import (
	"time"
)

type (
	UserID   string
	PollID   string
	ChoiceID string
	VoteID   string
)

type User struct {
	ID           UserID    `gorm:"column:user_id;type:char(26);primaryKey" json:"user_id"`
	Name         string    `gorm:"column:name;type:text;not null" json:"name"`
	Email        string    `gorm:"column:email;type:text;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"column:password;type:text;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

type Poll struct {
	ID          PollID     `gorm:"column:poll_id;type:char(26);primaryKey" json:"poll_id"`
	Name        string     `gorm:"column:poll_name;type:text;not null" json:"poll_name"`
	CreatorID   UserID     `gorm:"column:creator_id;type:char(26);not null;index" json:"creator_id"`
	CreatorName string     `gorm:"-" json:"creator_name,omitempty"`
	CreatedDate time.Time  `gorm:"column:created_date;autoCreateTime" json:"created_date"`
	DueDate     *time.Time `gorm:"column:due_date" json:"due_date,omitempty"`
	Choices     []Choice   `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"choices,omitempty"`
	Voters      []User     `gorm:"-" json:"voters,omitempty"`
}

type Choice struct {
	ID     ChoiceID `gorm:"column:choice_id;type:char(26);primaryKey" json:"choice_id"`
	Text   string   `gorm:"column:choice_text;type:text;not null" json:"choice_text"`
	Point  int64    `gorm:"column:point;not null;default:0" json:"point"`
	PollID PollID   `gorm:"column:poll_id;type:char(26);not null;index" json:"poll_id"`
}

type Vote struct {
	ID       VoteID    `gorm:"column:vote_id;type:char(26);primaryKey" json:"vote_id"`
	UserID   UserID    `gorm:"column:user_id;type:char(26);not null;uniqueIndex:idx_votes_user_choice,priority:1" json:"user_id"`
	ChoiceID ChoiceID  `gorm:"column:choice_id;type:char(26);not null;uniqueIndex:idx_votes_user_choice,priority:2;index" json:"choice_id"`
	VotedAt  time.Time `gorm:"column:voted_at;autoCreateTime" json:"voted_at"`
}

// PollVoter is the authorization row: its presence permits UserID to vote on PollID.
type PollVoter struct {
	PollID PollID `gorm:"column:poll_id;type:char(26);primaryKey" json:"poll_id"`
	UserID UserID `gorm:"column:user_id;type:char(26);primaryKey" json:"user_id"`
}

// Ballot is a user's current vote for a poll joined with the choice text.
type Ballot struct {
	VoteID     VoteID    `json:"vote_id"`
	UserID     UserID    `json:"user_id"`
	ChoiceID   ChoiceID  `json:"choice_id"`
	ChoiceText string    `json:"choice_text"`
	VotedAt    time.Time `json:"voted_at"`
}

// ChoiceResult is one row of a poll's tally, read straight from the point counter.
type ChoiceResult struct {
	ChoiceID   ChoiceID `json:"choice_id"`
	ChoiceText string   `json:"choice_text"`
	Point      int64    `json:"point"`
}

func (User) TableName() string { return "users" }

func (Poll) TableName() string { return "polls" }

func (Choice) TableName() string { return "choices" }

func (Vote) TableName() string { return "votes" }

func (PollVoter) TableName() string { return "poll_voters" }
