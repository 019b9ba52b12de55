package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/openpolls/tabulator/internal/domain"
)

// BallotRepository persists ballots with last-write-wins semantics. A partial
// unique index over (poll_id, voter_id) WHERE superseded_at IS NULL keeps at
// most one active ballot per voter; every superseded row stays on file.
type BallotRepository struct {
	db *gorm.DB
}

func NewBallotRepository(db *gorm.DB) *BallotRepository {
	return &BallotRepository{db: db}
}

const recordAttempts = 3

var errRecordContention = errors.New("gorm ballot: record retries exhausted")

// Record inserts the ballot, superseding any older active ballot of the same
// voter in one transaction. A ballot arriving out of order, older than the
// voter's standing one, is inserted already superseded so the audit trail is
// complete either way. Collisions on the active slot surface as duplicate
// key errors and are retried against the winner's row.
func (r *BallotRepository) Record(ctx context.Context, ballot domain.Ballot) error {
	for attempt := 0; attempt < recordAttempts; attempt++ {
		err := r.tryRecord(ctx, ballot)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("gorm ballot: record: %w", err)
		}

		var active domain.Ballot
		findErr := r.db.WithContext(ctx).
			Where("poll_id = ? AND voter_id = ? AND superseded_at IS NULL", ballot.PollID, ballot.VoterID).
			First(&active).Error
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				// The colliding row is gone already; try again.
				continue
			}
			return fmt.Errorf("gorm ballot: record: %w", findErr)
		}
		if !ballot.Newer(active) {
			// The standing ballot wins; file ours as history.
			supersededAt := ballot.SubmittedAt
			ballot.SupersededAt = &supersededAt
			if err := r.db.WithContext(ctx).Create(&ballot).Error; err != nil {
				return fmt.Errorf("gorm ballot: record superseded: %w", err)
			}
			return nil
		}
		// Ours is newer: supersede the winner on the next attempt.
	}
	return errRecordContention
}

func (r *BallotRepository) tryRecord(ctx context.Context, ballot domain.Ballot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Ballot{}).
			Where("poll_id = ? AND voter_id = ? AND superseded_at IS NULL", ballot.PollID, ballot.VoterID).
			Where("submitted_at < ? OR (submitted_at = ? AND id < ?)", ballot.SubmittedAt, ballot.SubmittedAt, ballot.ID).
			Update("superseded_at", ballot.SubmittedAt)
		if res.Error != nil {
			return res.Error
		}
		return tx.Create(&ballot).Error
	})
}

func (r *BallotRepository) ListActive(ctx context.Context, pollID domain.PollID) ([]domain.Ballot, error) {
	var ballots []domain.Ballot
	if err := r.db.WithContext(ctx).
		Where("poll_id = ? AND superseded_at IS NULL", pollID).
		Order("id ASC").
		Find(&ballots).Error; err != nil {
		return nil, fmt.Errorf("gorm ballot: list active: %w", err)
	}
	return ballots, nil
}

func (r *BallotRepository) CountActive(ctx context.Context, pollID domain.PollID) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Ballot{}).
		Where("poll_id = ? AND superseded_at IS NULL", pollID).
		Count(&total).Error; err != nil {
		return 0, fmt.Errorf("gorm ballot: count active: %w", err)
	}
	return total, nil
}

var _ domain.BallotRepository = (*BallotRepository)(nil)
