package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/openpolls/tabulator/internal/domain"
	"github.com/openpolls/tabulator/internal/platform/ids"
	"github.com/openpolls/tabulator/internal/platform/migrations"
)

// setupStorage opens an in-memory database with the same schema and error
// translation the production connection uses.
func setupStorage(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, migrations.Run(db))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	return db
}

func seedPoll(t *testing.T, db *gorm.DB, status domain.PollStatus, method domain.Method, labels ...string) domain.Poll {
	t.Helper()

	gen := ids.NewGenerator()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	poll := domain.Poll{
		ID:        domain.PollID(gen.New()),
		Question:  "Which one?",
		Method:    method,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, label := range labels {
		poll.Options = append(poll.Options, domain.Option{
			ID:       domain.OptionID(gen.New()),
			PollID:   poll.ID,
			Label:    label,
			Position: i,
		})
	}
	require.NoError(t, db.Create(&poll).Error)
	return poll
}

func TestPollRepository_CreateAndFindByID(t *testing.T) {
	db := setupStorage(t)
	repo := NewPollRepository(db)
	ctx := context.Background()

	gen := ids.NewGenerator()
	pollID := domain.PollID(gen.New())
	poll := domain.Poll{
		ID:       pollID,
		Question: "Favorite deploy window?",
		Method:   domain.MethodApproval,
		Status:   domain.StatusOpen,
		Options: []domain.Option{
			{ID: domain.OptionID(gen.New()), PollID: pollID, Label: "morning", Position: 0},
			{ID: domain.OptionID(gen.New()), PollID: pollID, Label: "afternoon", Position: 1},
			{ID: domain.OptionID(gen.New()), PollID: pollID, Label: "never", Position: 2},
		},
		MaxSelections: 2,
	}

	require.NoError(t, repo.Create(ctx, poll))

	found, err := repo.FindByID(ctx, pollID)
	require.NoError(t, err)
	assert.Equal(t, "Favorite deploy window?", found.Question)
	assert.Equal(t, domain.MethodApproval, found.Method)
	assert.Equal(t, domain.StatusOpen, found.Status)
	assert.Equal(t, 2, found.MaxSelections)
	require.Len(t, found.Options, 3)
	assert.Equal(t, "morning", found.Options[0].Label)
	assert.Equal(t, "afternoon", found.Options[1].Label)
	assert.Equal(t, "never", found.Options[2].Label)
}

func TestPollRepository_FindByID_Missing(t *testing.T) {
	db := setupStorage(t)
	repo := NewPollRepository(db)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPollRepository_UpdateStatus_OnlyFromExpectedState(t *testing.T) {
	db := setupStorage(t)
	repo := NewPollRepository(db)
	ctx := context.Background()

	poll := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")

	changed, err := repo.UpdateStatus(ctx, poll.ID, domain.StatusOpen, domain.StatusClosed)
	require.NoError(t, err)
	assert.True(t, changed)

	// Replaying the same transition matches no rows.
	changed, err = repo.UpdateStatus(ctx, poll.ID, domain.StatusOpen, domain.StatusClosed)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.UpdateStatus(ctx, poll.ID, domain.StatusClosed, domain.StatusFinalized)
	require.NoError(t, err)
	assert.True(t, changed)

	found, err := repo.FindByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, found.Status)
}

func TestPollRepository_ListByStatus(t *testing.T) {
	db := setupStorage(t)
	repo := NewPollRepository(db)
	ctx := context.Background()

	open := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")
	seedPoll(t, db, domain.StatusClosed, domain.MethodSingle, "a", "b")

	polls, err := repo.ListByStatus(ctx, domain.StatusOpen)
	require.NoError(t, err)
	require.Len(t, polls, 1)
	assert.Equal(t, open.ID, polls[0].ID)
	assert.Len(t, polls[0].Options, 2)
}
