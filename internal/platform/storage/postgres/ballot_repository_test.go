package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpolls/tabulator/internal/domain"
)

var ballotBase = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newBallot(poll domain.Poll, id domain.BallotID, voter domain.VoterID, payload domain.Payload, submittedAt time.Time) domain.Ballot {
	return domain.Ballot{
		ID:          id,
		PollID:      poll.ID,
		VoterID:     voter,
		Method:      poll.Method,
		Payload:     payload,
		SubmittedAt: submittedAt,
	}
}

func TestBallotRepository_Record_FirstBallotStaysActive(t *testing.T) {
	db := setupStorage(t)
	repo := NewBallotRepository(db)
	ctx := context.Background()

	poll := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")
	ballot := newBallot(poll, "ballot-1", "voter-1", domain.Payload{Option: poll.Options[0].ID}, ballotBase)

	require.NoError(t, repo.Record(ctx, ballot))

	active, err := repo.ListActive(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.BallotID("ballot-1"), active[0].ID)
	assert.Nil(t, active[0].SupersededAt)
	assert.Equal(t, poll.Options[0].ID, active[0].Payload.Option)
}

func TestBallotRepository_Record_SupersedesOlderActive(t *testing.T) {
	db := setupStorage(t)
	repo := NewBallotRepository(db)
	ctx := context.Background()

	poll := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")
	first := newBallot(poll, "ballot-1", "voter-1", domain.Payload{Option: poll.Options[0].ID}, ballotBase)
	second := newBallot(poll, "ballot-2", "voter-1", domain.Payload{Option: poll.Options[1].ID}, ballotBase.Add(time.Minute))

	require.NoError(t, repo.Record(ctx, first))
	require.NoError(t, repo.Record(ctx, second))

	active, err := repo.ListActive(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.BallotID("ballot-2"), active[0].ID)

	// Both rows stay on file; the older one carries the supersede stamp.
	var all []domain.Ballot
	require.NoError(t, db.Order("id ASC").Find(&all).Error)
	require.Len(t, all, 2)
	assert.NotNil(t, all[0].SupersededAt)
	assert.Nil(t, all[1].SupersededAt)

	count, err := repo.CountActive(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBallotRepository_Record_OutOfOrderArrivalKeepsNewest(t *testing.T) {
	db := setupStorage(t)
	repo := NewBallotRepository(db)
	ctx := context.Background()

	poll := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")
	newest := newBallot(poll, "ballot-2", "voter-1", domain.Payload{Option: poll.Options[1].ID}, ballotBase.Add(time.Minute))
	older := newBallot(poll, "ballot-1", "voter-1", domain.Payload{Option: poll.Options[0].ID}, ballotBase)

	require.NoError(t, repo.Record(ctx, newest))
	// The older ballot arrives late and must not displace the newer one.
	require.NoError(t, repo.Record(ctx, older))

	active, err := repo.ListActive(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.BallotID("ballot-2"), active[0].ID)

	var all []domain.Ballot
	require.NoError(t, db.Order("id ASC").Find(&all).Error)
	require.Len(t, all, 2)
	assert.NotNil(t, all[0].SupersededAt, "late older ballot must be stored superseded")
}

func TestBallotRepository_Record_SameInstantBreaksTieById(t *testing.T) {
	db := setupStorage(t)
	repo := NewBallotRepository(db)
	ctx := context.Background()

	poll := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")
	low := newBallot(poll, "ballot-1", "voter-1", domain.Payload{Option: poll.Options[0].ID}, ballotBase)
	high := newBallot(poll, "ballot-2", "voter-1", domain.Payload{Option: poll.Options[1].ID}, ballotBase)

	require.NoError(t, repo.Record(ctx, high))
	require.NoError(t, repo.Record(ctx, low))

	active, err := repo.ListActive(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.BallotID("ballot-2"), active[0].ID, "larger ballot id wins the same-instant tie")
}

func TestBallotRepository_Record_VotersDoNotInterfere(t *testing.T) {
	db := setupStorage(t)
	repo := NewBallotRepository(db)
	ctx := context.Background()

	poll := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")
	require.NoError(t, repo.Record(ctx, newBallot(poll, "ballot-1", "voter-1", domain.Payload{Option: poll.Options[0].ID}, ballotBase)))
	require.NoError(t, repo.Record(ctx, newBallot(poll, "ballot-2", "voter-2", domain.Payload{Option: poll.Options[1].ID}, ballotBase)))

	count, err := repo.CountActive(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestBallotRepository_Record_RoundTripsStructuredPayloads(t *testing.T) {
	db := setupStorage(t)
	repo := NewBallotRepository(db)
	ctx := context.Background()

	poll := seedPoll(t, db, domain.StatusOpen, domain.MethodRange, "a", "b", "c")
	payload := domain.Payload{Scores: map[domain.OptionID]int64{
		poll.Options[0].ID: 7,
		poll.Options[2].ID: 3,
	}}
	require.NoError(t, repo.Record(ctx, newBallot(poll, "ballot-1", "voter-1", payload, ballotBase)))

	active, err := repo.ListActive(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, payload.Scores, active[0].Payload.Scores)
}

func TestBallotRepository_ListActive_ScopedToPoll(t *testing.T) {
	db := setupStorage(t)
	repo := NewBallotRepository(db)
	ctx := context.Background()

	pollA := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")
	pollB := seedPoll(t, db, domain.StatusOpen, domain.MethodSingle, "a", "b")
	require.NoError(t, repo.Record(ctx, newBallot(pollA, "ballot-1", "voter-1", domain.Payload{Option: pollA.Options[0].ID}, ballotBase)))
	require.NoError(t, repo.Record(ctx, newBallot(pollB, "ballot-2", "voter-1", domain.Payload{Option: pollB.Options[0].ID}, ballotBase)))

	active, err := repo.ListActive(ctx, pollA.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, pollA.ID, active[0].PollID)
}
