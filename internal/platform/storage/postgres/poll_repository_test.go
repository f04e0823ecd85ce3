package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/knppkp/pollboard/internal/domain"
	"github.com/knppkp/pollboard/internal/platform/ids"
)

func createUser(t *testing.T, db *gorm.DB, name, email string) domain.User {
	t.Helper()
	user := domain.User{
		ID:           domain.UserID(ids.NewULID()),
		Name:         name,
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

// createPoll persists a poll with the given choice texts and invited voters
// and returns it with its choices loaded.
func createPoll(t *testing.T, db *gorm.DB, creator domain.User, name string, choiceTexts []string, voters ...domain.User) domain.Poll {
	t.Helper()
	repo := NewPollRepository(db)
	gen := ids.NewGenerator()

	poll := domain.Poll{
		ID:          domain.PollID(gen.New()),
		Name:        name,
		CreatorID:   creator.ID,
		CreatedDate: time.Now(),
	}

	choices := make([]domain.Choice, len(choiceTexts))
	for i, text := range choiceTexts {
		choices[i] = domain.Choice{ID: domain.ChoiceID(gen.New()), Text: text, PollID: poll.ID}
	}

	voterRows := make([]domain.PollVoter, len(voters))
	for i, v := range voters {
		voterRows[i] = domain.PollVoter{PollID: poll.ID, UserID: v.ID}
	}

	require.NoError(t, repo.Create(context.Background(), poll, choices, voterRows))
	poll.Choices = choices
	return poll
}

func TestPollRepository_Create_WhenValid_ShouldPersistAggregate(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	creator := createUser(t, db, "Ann", "ann@example.com")
	voter := createUser(t, db, "Bob", "bob@example.com")

	poll := createPoll(t, db, creator, "Lunch", []string{"Pizza", "Sushi"}, voter)

	found, err := repo.FindByID(context.Background(), poll.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lunch", found.Name)
	assert.Equal(t, creator.ID, found.CreatorID)
	assert.Equal(t, "Ann", found.CreatorName)
	require.Len(t, found.Choices, 2)
	assert.Equal(t, "Pizza", found.Choices[0].Text)
	assert.Equal(t, "Sushi", found.Choices[1].Text)
	require.Len(t, found.Voters, 1)
	assert.Equal(t, voter.ID, found.Voters[0].ID)
	assert.Empty(t, found.Voters[0].PasswordHash)
}

func TestPollRepository_FindByID_WhenMissing_ShouldReturnErrNotFound(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	_, err := repo.FindByID(context.Background(), domain.PollID(ids.NewULID()))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPollRepository_ListByUser_ShouldIncludeCreatedAndInvited(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	ann := createUser(t, db, "Ann", "ann@example.com")
	bob := createUser(t, db, "Bob", "bob@example.com")
	carol := createUser(t, db, "Carol", "carol@example.com")

	created := createPoll(t, db, ann, "Ann's own", []string{"Yes", "No"})
	invited := createPoll(t, db, bob, "Bob's poll", []string{"A", "B"}, ann)
	createPoll(t, db, carol, "Unrelated", []string{"X"})

	result, err := repo.ListByUser(context.Background(), ann.ID)
	require.NoError(t, err)
	require.Len(t, result, 2)

	seen := map[domain.PollID]string{}
	for _, p := range result {
		seen[p.ID] = p.CreatorName
	}
	assert.Equal(t, "Ann", seen[created.ID])
	assert.Equal(t, "Bob", seen[invited.ID])
}

func TestPollRepository_ListByUser_WhenCreatorIsAlsoVoter_ShouldNotDuplicate(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	ann := createUser(t, db, "Ann", "ann@example.com")
	createPoll(t, db, ann, "Self-invite", []string{"A", "B"}, ann)

	result, err := repo.ListByUser(context.Background(), ann.ID)
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestPollRepository_Delete_ShouldRemovePollChoicesVotersAndVotes(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)
	ballots := NewBallotRepository(db)

	ctx := context.Background()
	ann := createUser(t, db, "Ann", "ann@example.com")
	bob := createUser(t, db, "Bob", "bob@example.com")
	poll := createPoll(t, db, ann, "Lunch", []string{"Pizza", "Sushi"}, bob)

	require.NoError(t, ballots.Cast(ctx, domain.Vote{
		ID:       domain.VoteID(ids.NewULID()),
		UserID:   bob.ID,
		ChoiceID: poll.Choices[0].ID,
		VotedAt:  time.Now(),
	}))

	require.NoError(t, repo.Delete(ctx, poll.ID))

	_, err := repo.FindByID(ctx, poll.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var choiceCount, voterCount, voteCount int64
	require.NoError(t, db.Model(&choiceModel{}).Where("poll_id = ?", poll.ID).Count(&choiceCount).Error)
	require.NoError(t, db.Model(&pollVoterModel{}).Where("poll_id = ?", poll.ID).Count(&voterCount).Error)
	require.NoError(t, db.Model(&voteModel{}).Where("user_id = ?", bob.ID).Count(&voteCount).Error)
	assert.Zero(t, choiceCount)
	assert.Zero(t, voterCount)
	assert.Zero(t, voteCount)
}

func TestPollRepository_Delete_WhenMissing_ShouldReturnErrNotFound(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	err := repo.Delete(context.Background(), domain.PollID(ids.NewULID()))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPollRepository_AddVoter_WhenRepeated_ShouldBeIdempotent(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	ctx := context.Background()
	ann := createUser(t, db, "Ann", "ann@example.com")
	bob := createUser(t, db, "Bob", "bob@example.com")
	poll := createPoll(t, db, ann, "Lunch", []string{"Pizza"})

	pv := domain.PollVoter{PollID: poll.ID, UserID: bob.ID}
	require.NoError(t, repo.AddVoter(ctx, pv))
	require.NoError(t, repo.AddVoter(ctx, pv))

	isVoter, err := repo.IsVoter(ctx, poll.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, isVoter)
}

func TestPollRepository_IsVoter_WhenNotInvited_ShouldReturnFalse(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	ann := createUser(t, db, "Ann", "ann@example.com")
	bob := createUser(t, db, "Bob", "bob@example.com")
	poll := createPoll(t, db, ann, "Lunch", []string{"Pizza"})

	isVoter, err := repo.IsVoter(context.Background(), poll.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, isVoter)
}

func TestPollRepository_ListChoices_ShouldReturnInsertionOrder(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	ctx := context.Background()
	ann := createUser(t, db, "Ann", "ann@example.com")
	poll := createPoll(t, db, ann, "Lunch", []string{"Pizza", "Sushi", "Tacos"})

	choices, err := repo.ListChoices(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, choices, 3)
	assert.Equal(t, "Pizza", choices[0].Text)
	assert.Equal(t, "Sushi", choices[1].Text)
	assert.Equal(t, "Tacos", choices[2].Text)
}

func TestPollRepository_AddChoice_ShouldAppendToPoll(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPollRepository(db)

	ctx := context.Background()
	ann := createUser(t, db, "Ann", "ann@example.com")
	poll := createPoll(t, db, ann, "Lunch", []string{"Pizza"})

	choice := domain.Choice{ID: domain.ChoiceID(ids.NewULID()), Text: "Ramen", PollID: poll.ID}
	require.NoError(t, repo.AddChoice(ctx, choice))

	choices, err := repo.ListChoices(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, choices, 2)
	assert.Equal(t, "Ramen", choices[1].Text)
}
