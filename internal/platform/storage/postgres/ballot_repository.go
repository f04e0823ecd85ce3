package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/knppkp/pollboard/internal/domain"
)

// BallotRepository runs the vote transition transactions. Every check and
// counter update for a cast or change happens inside one transaction, so a
// failed step leaves nothing behind.
type BallotRepository struct {
	db *gorm.DB
}

func NewBallotRepository(db *gorm.DB) *BallotRepository {
	return &BallotRepository{db: db}
}

type voteModel struct {
	ID       string    `gorm:"column:vote_id;primaryKey"`
	UserID   string    `gorm:"column:user_id;uniqueIndex:idx_votes_user_choice,priority:1"`
	ChoiceID string    `gorm:"column:choice_id;uniqueIndex:idx_votes_user_choice,priority:2;index"`
	VotedAt  time.Time `gorm:"column:voted_at"`
}

func (voteModel) TableName() string {
	return "votes"
}

func fromDomainVote(v domain.Vote) voteModel {
	return voteModel{
		ID:       string(v.ID),
		UserID:   string(v.UserID),
		ChoiceID: string(v.ChoiceID),
		VotedAt:  v.VotedAt,
	}
}

// Cast records a first ballot: resolve the choice's poll, require a voter
// row, reject a second ballot for the poll, then insert the vote and bump
// the choice counter.
func (r *BallotRepository) Cast(ctx context.Context, v domain.Vote) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var choice choiceModel
		if err := tx.First(&choice, "choice_id = ?", v.ChoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrChoiceNotFound
			}
			return fmt.Errorf("gorm ballots: resolve choice: %w", err)
		}

		authorized, err := isVoterTx(tx, choice.PollID, string(v.UserID))
		if err != nil {
			return err
		}
		if !authorized {
			return domain.ErrNotAuthorized
		}

		var prior int64
		if err := tx.Model(&voteModel{}).
			Joins("JOIN choices ON choices.choice_id = votes.choice_id").
			Where("votes.user_id = ? AND choices.poll_id = ?", v.UserID, choice.PollID).
			Count(&prior).Error; err != nil {
			return fmt.Errorf("gorm ballots: check prior vote: %w", err)
		}
		if prior > 0 {
			return domain.ErrAlreadyVoted
		}

		model := fromDomainVote(v)
		if err := tx.Create(&model).Error; err != nil {
			// Unique (user_id, choice_id) backstops the check-then-insert race:
			// a concurrent duplicate surfaces as the intended outcome, not a
			// generic constraint error.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadyVoted
			}
			return fmt.Errorf("gorm ballots: insert: %w", err)
		}

		if err := tx.Model(&choiceModel{}).
			Where("choice_id = ?", v.ChoiceID).
			UpdateColumn("point", gorm.Expr("point + 1")).Error; err != nil {
			return fmt.Errorf("gorm ballots: increment point: %w", err)
		}

		return nil
	})
}

// Change moves an existing ballot to another choice of the same poll and
// adjusts both counters symmetrically.
func (r *BallotRepository) Change(ctx context.Context, userID domain.UserID, newChoiceID domain.ChoiceID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var newChoice choiceModel
		if err := tx.First(&newChoice, "choice_id = ?", newChoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrChoiceNotFound
			}
			return fmt.Errorf("gorm ballots: resolve choice: %w", err)
		}

		authorized, err := isVoterTx(tx, newChoice.PollID, string(userID))
		if err != nil {
			return err
		}
		if !authorized {
			return domain.ErrNotAuthorized
		}

		var existing voteModel
		if err := tx.Model(&voteModel{}).
			Select("votes.*").
			Joins("JOIN choices ON choices.choice_id = votes.choice_id").
			Where("votes.user_id = ? AND choices.poll_id = ?", userID, newChoice.PollID).
			First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotVotedYet
			}
			return fmt.Errorf("gorm ballots: find existing vote: %w", err)
		}

		if existing.ChoiceID == string(newChoiceID) {
			return domain.ErrSameChoice
		}

		if err := tx.Model(&voteModel{}).
			Where("vote_id = ?", existing.ID).
			Updates(map[string]any{"choice_id": string(newChoiceID)}).Error; err != nil {
			return fmt.Errorf("gorm ballots: move vote: %w", err)
		}

		if err := tx.Model(&choiceModel{}).
			Where("choice_id = ?", existing.ChoiceID).
			UpdateColumn("point", gorm.Expr("point - 1")).Error; err != nil {
			return fmt.Errorf("gorm ballots: decrement old point: %w", err)
		}

		if err := tx.Model(&choiceModel{}).
			Where("choice_id = ?", newChoiceID).
			UpdateColumn("point", gorm.Expr("point + 1")).Error; err != nil {
			return fmt.Errorf("gorm ballots: increment new point: %w", err)
		}

		return nil
	})
}

// Results reads the tally straight off the denormalized counters.
func (r *BallotRepository) Results(ctx context.Context, pollID domain.PollID) ([]domain.ChoiceResult, error) {
	var models []choiceModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("point DESC, choice_id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm ballots: results: %w", err)
	}

	results := make([]domain.ChoiceResult, len(models))
	for i, model := range models {
		results[i] = domain.ChoiceResult{
			ChoiceID:   domain.ChoiceID(model.ID),
			ChoiceText: model.Text,
			Point:      model.Point,
		}
	}
	return results, nil
}

func (r *BallotRepository) BallotForPoll(ctx context.Context, pollID domain.PollID, userID domain.UserID) ([]domain.Ballot, error) {
	type row struct {
		voteModel
		ChoiceText string `gorm:"column:choice_text"`
	}

	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Select("votes.*, choices.choice_text AS choice_text").
		Joins("JOIN choices ON choices.choice_id = votes.choice_id").
		Where("choices.poll_id = ? AND votes.user_id = ?", pollID, userID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm ballots: user ballot: %w", err)
	}

	ballots := make([]domain.Ballot, len(rows))
	for i, item := range rows {
		ballots[i] = domain.Ballot{
			VoteID:     domain.VoteID(item.ID),
			UserID:     domain.UserID(item.UserID),
			ChoiceID:   domain.ChoiceID(item.ChoiceID),
			ChoiceText: item.ChoiceText,
			VotedAt:    item.VotedAt,
		}
	}
	return ballots, nil
}

// ReconcilePoints recounts votes per choice and rewrites any counter that
// drifted from ground truth. Runs as one transaction so a recount never
// races a concurrent cast.
func (r *BallotRepository) ReconcilePoints(ctx context.Context) ([]domain.PointDrift, error) {
	var repairs []domain.PointDrift

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var choices []choiceModel
		if err := tx.Find(&choices).Error; err != nil {
			return fmt.Errorf("gorm ballots: load choices: %w", err)
		}

		type countRow struct {
			ChoiceID string `gorm:"column:choice_id"`
			Total    int64  `gorm:"column:total"`
		}
		var counts []countRow
		if err := tx.Model(&voteModel{}).
			Select("choice_id, COUNT(*) AS total").
			Group("choice_id").
			Scan(&counts).Error; err != nil {
			return fmt.Errorf("gorm ballots: count votes: %w", err)
		}

		counted := make(map[string]int64, len(counts))
		for _, c := range counts {
			counted[c.ChoiceID] = c.Total
		}

		for _, choice := range choices {
			actual := counted[choice.ID]
			if choice.Point == actual {
				continue
			}
			if err := tx.Model(&choiceModel{}).
				Where("choice_id = ?", choice.ID).
				UpdateColumn("point", actual).Error; err != nil {
				return fmt.Errorf("gorm ballots: repair point: %w", err)
			}
			repairs = append(repairs, domain.PointDrift{
				ChoiceID: domain.ChoiceID(choice.ID),
				Stored:   choice.Point,
				Counted:  actual,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return repairs, nil
}

func isVoterTx(tx *gorm.DB, pollID, userID string) (bool, error) {
	var count int64
	if err := tx.Model(&pollVoterModel{}).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("gorm ballots: authorization check: %w", err)
	}
	return count > 0, nil
}

var _ domain.BallotRepository = (*BallotRepository)(nil)
