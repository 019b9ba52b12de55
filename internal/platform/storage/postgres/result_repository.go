package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/openpolls/tabulator/internal/domain"
)

// ResultRepository owns the finalization transaction. The conditional
// closed->finalized update is the exactly-once gate: whoever flips the row
// computes and commits the tally, every other attempt observes zero affected
// rows and backs off with domain.ErrAlreadyFinalized.
type ResultRepository struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) FinalizeOnce(ctx context.Context, pollID domain.PollID, fn domain.TallyFunc) (domain.TallyResult, error) {
	var out domain.TallyResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var poll domain.Poll
		if err := tx.Preload("Options", orderByPosition).
			First(&poll, "id = ?", pollID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("load poll: %w", err)
		}
		switch poll.Status {
		case domain.StatusOpen:
			return domain.ErrPollStillOpen
		case domain.StatusFinalized:
			return domain.ErrAlreadyFinalized
		}

		res := tx.Model(&domain.Poll{}).
			Where("id = ? AND status = ?", pollID, domain.StatusClosed).
			Update("status", domain.StatusFinalized)
		if res.Error != nil {
			return fmt.Errorf("flip status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// A concurrent transaction committed the flip first.
			return domain.ErrAlreadyFinalized
		}

		var ballots []domain.Ballot
		if err := tx.Where("poll_id = ? AND superseded_at IS NULL", pollID).
			Order("id ASC").
			Find(&ballots).Error; err != nil {
			return fmt.Errorf("load ballots: %w", err)
		}

		result, err := fn(poll, ballots)
		if err != nil {
			return err
		}
		if err := tx.Create(&result).Error; err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
		out = result
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) ||
			errors.Is(err, domain.ErrPollStillOpen) ||
			errors.Is(err, domain.ErrAlreadyFinalized) {
			return domain.TallyResult{}, err
		}
		return domain.TallyResult{}, fmt.Errorf("gorm result: finalize %s: %w", pollID, err)
	}
	return out, nil
}

func (r *ResultRepository) Find(ctx context.Context, pollID domain.PollID) (domain.TallyResult, error) {
	var result domain.TallyResult
	if err := r.db.WithContext(ctx).First(&result, "poll_id = ?", pollID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TallyResult{}, domain.ErrNotFound
		}
		return domain.TallyResult{}, fmt.Errorf("gorm result: find: %w", err)
	}
	return result, nil
}

var _ domain.ResultRepository = (*ResultRepository)(nil)
