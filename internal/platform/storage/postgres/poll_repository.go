package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/knppkp/pollboard/internal/domain"
)

// PollRepository maps the poll aggregate (poll, choices, voter rows) to GORM tables.
type PollRepository struct {
	db *gorm.DB
}

func NewPollRepository(db *gorm.DB) *PollRepository {
	return &PollRepository{db: db}
}

type pollModel struct {
	ID          string     `gorm:"column:poll_id;primaryKey"`
	Name        string     `gorm:"column:poll_name"`
	CreatorID   string     `gorm:"column:creator_id;index"`
	CreatedDate time.Time  `gorm:"column:created_date"`
	DueDate     *time.Time `gorm:"column:due_date"`
}

func (pollModel) TableName() string {
	return "polls"
}

type choiceModel struct {
	ID     string `gorm:"column:choice_id;primaryKey"`
	Text   string `gorm:"column:choice_text"`
	Point  int64  `gorm:"column:point"`
	PollID string `gorm:"column:poll_id;index"`
}

func (choiceModel) TableName() string {
	return "choices"
}

type pollVoterModel struct {
	PollID string `gorm:"column:poll_id;primaryKey"`
	UserID string `gorm:"column:user_id;primaryKey"`
}

func (pollVoterModel) TableName() string {
	return "poll_voters"
}

func (m pollModel) toDomain() domain.Poll {
	return domain.Poll{
		ID:          domain.PollID(m.ID),
		Name:        m.Name,
		CreatorID:   domain.UserID(m.CreatorID),
		CreatedDate: m.CreatedDate,
		DueDate:     m.DueDate,
	}
}

func (m choiceModel) toDomain() domain.Choice {
	return domain.Choice{
		ID:     domain.ChoiceID(m.ID),
		Text:   m.Text,
		Point:  m.Point,
		PollID: domain.PollID(m.PollID),
	}
}

func fromDomainPoll(p domain.Poll) pollModel {
	return pollModel{
		ID:          string(p.ID),
		Name:        p.Name,
		CreatorID:   string(p.CreatorID),
		CreatedDate: p.CreatedDate,
		DueDate:     p.DueDate,
	}
}

func fromDomainChoice(c domain.Choice) choiceModel {
	return choiceModel{
		ID:     string(c.ID),
		Text:   c.Text,
		Point:  c.Point,
		PollID: string(c.PollID),
	}
}

// Create persists the poll, its choices and its voter rows inside one
// transaction; a bad voter id rolls back the whole poll.
func (r *PollRepository) Create(ctx context.Context, p domain.Poll, choices []domain.Choice, voters []domain.PollVoter) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := fromDomainPoll(p)
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("gorm polls: insert: %w", err)
		}

		if len(choices) > 0 {
			models := make([]choiceModel, len(choices))
			for i, c := range choices {
				models[i] = fromDomainChoice(c)
			}
			if err := tx.Create(&models).Error; err != nil {
				return fmt.Errorf("gorm polls: insert choices: %w", err)
			}
		}

		if len(voters) > 0 {
			models := make([]pollVoterModel, len(voters))
			for i, v := range voters {
				models[i] = pollVoterModel{PollID: string(v.PollID), UserID: string(v.UserID)}
			}
			if err := tx.Create(&models).Error; err != nil {
				return fmt.Errorf("gorm polls: insert voters: %w", err)
			}
		}

		return nil
	})
}

func (r *PollRepository) FindByID(ctx context.Context, id domain.PollID) (domain.Poll, error) {
	var model pollModel
	if err := r.db.WithContext(ctx).First(&model, "poll_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Poll{}, domain.ErrNotFound
		}
		return domain.Poll{}, fmt.Errorf("gorm polls: find by id: %w", err)
	}

	poll := model.toDomain()

	var creator userModel
	if err := r.db.WithContext(ctx).First(&creator, "user_id = ?", model.CreatorID).Error; err == nil {
		poll.CreatorName = creator.Name
	}

	choices, err := r.ListChoices(ctx, id)
	if err != nil {
		return domain.Poll{}, err
	}
	poll.Choices = choices

	var voterModels []userModel
	if err := r.db.WithContext(ctx).
		Joins("JOIN poll_voters ON poll_voters.user_id = users.user_id").
		Where("poll_voters.poll_id = ?", id).
		Order("users.name ASC").
		Find(&voterModels).Error; err != nil {
		return domain.Poll{}, fmt.Errorf("gorm polls: list voters: %w", err)
	}

	voters := make([]domain.User, len(voterModels))
	for i, v := range voterModels {
		voter := v.toDomain()
		voter.PasswordHash = ""
		voters[i] = voter
	}
	poll.Voters = voters

	return poll, nil
}

// ListByUser returns every poll the user created or was invited to, newest first.
func (r *PollRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Poll, error) {
	type row struct {
		pollModel
		CreatorName string `gorm:"column:creator_name"`
	}

	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&pollModel{}).
		Select("DISTINCT polls.*, users.name AS creator_name").
		Joins("JOIN users ON users.user_id = polls.creator_id").
		Joins("LEFT JOIN poll_voters ON poll_voters.poll_id = polls.poll_id").
		Where("poll_voters.user_id = ? OR polls.creator_id = ?", userID, userID).
		Order("polls.created_date DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm polls: list by user: %w", err)
	}

	result := make([]domain.Poll, len(rows))
	for i, item := range rows {
		p := item.pollModel.toDomain()
		p.CreatorName = item.CreatorName
		result[i] = p
	}
	return result, nil
}

// Delete removes the poll and everything hanging off it in one transaction.
// The schema declares ON DELETE CASCADE, but deleting explicitly keeps the
// behavior identical on engines that leave foreign keys unenforced.
func (r *PollRepository) Delete(ctx context.Context, id domain.PollID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model pollModel
		if err := tx.First(&model, "poll_id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("gorm polls: find for delete: %w", err)
		}

		if err := tx.
			Where("choice_id IN (?)", tx.Model(&choiceModel{}).Select("choice_id").Where("poll_id = ?", id)).
			Delete(&voteModel{}).Error; err != nil {
			return fmt.Errorf("gorm polls: delete votes: %w", err)
		}

		if err := tx.Where("poll_id = ?", id).Delete(&pollVoterModel{}).Error; err != nil {
			return fmt.Errorf("gorm polls: delete voters: %w", err)
		}

		if err := tx.Where("poll_id = ?", id).Delete(&choiceModel{}).Error; err != nil {
			return fmt.Errorf("gorm polls: delete choices: %w", err)
		}

		if err := tx.Delete(&model).Error; err != nil {
			return fmt.Errorf("gorm polls: delete: %w", err)
		}

		return nil
	})
}

func (r *PollRepository) AddVoter(ctx context.Context, pv domain.PollVoter) error {
	model := pollVoterModel{PollID: string(pv.PollID), UserID: string(pv.UserID)}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		// Re-inviting the same voter is harmless; the row already grants permission.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("gorm polls: add voter: %w", err)
	}
	return nil
}

func (r *PollRepository) IsVoter(ctx context.Context, pollID domain.PollID, userID domain.UserID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&pollVoterModel{}).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("gorm polls: is voter: %w", err)
	}
	return count > 0, nil
}

func (r *PollRepository) AddChoice(ctx context.Context, c domain.Choice) error {
	model := fromDomainChoice(c)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("gorm polls: add choice: %w", err)
	}
	return nil
}

func (r *PollRepository) ListChoices(ctx context.Context, pollID domain.PollID) ([]domain.Choice, error) {
	var models []choiceModel
	if err := r.db.WithContext(ctx).
		// Insertion order: ULIDs sort by creation time.
		Where("poll_id = ?", pollID).
		Order("choice_id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm polls: list choices: %w", err)
	}

	result := make([]domain.Choice, len(models))
	for i, model := range models {
		result[i] = model.toDomain()
	}
	return result, nil
}

var _ domain.PollRepository = (*PollRepository)(nil)
