package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/openpolls/tabulator/internal/domain"
)

// PollRepository maps the poll aggregate onto GORM tables. Options travel
// with their poll: created in the same insert, preloaded on every read.
type PollRepository struct {
	db *gorm.DB
}

func NewPollRepository(db *gorm.DB) *PollRepository {
	return &PollRepository{db: db}
}

func (r *PollRepository) Create(ctx context.Context, p domain.Poll) error {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return fmt.Errorf("gorm poll: insert: %w", err)
	}
	return nil
}

func (r *PollRepository) FindByID(ctx context.Context, id domain.PollID) (domain.Poll, error) {
	var poll domain.Poll
	if err := r.db.WithContext(ctx).
		Preload("Options", orderByPosition).
		First(&poll, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Poll{}, domain.ErrNotFound
		}
		return domain.Poll{}, fmt.Errorf("gorm poll: find by id: %w", err)
	}
	return poll, nil
}

func (r *PollRepository) ListByStatus(ctx context.Context, status domain.PollStatus) ([]domain.Poll, error) {
	var polls []domain.Poll
	if err := r.db.WithContext(ctx).
		Preload("Options", orderByPosition).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&polls).Error; err != nil {
		return nil, fmt.Errorf("gorm poll: list by status: %w", err)
	}
	return polls, nil
}

// UpdateStatus transitions the poll only when it is still in the expected
// state, so racing callers cannot replay a transition.
func (r *PollRepository) UpdateStatus(ctx context.Context, id domain.PollID, from, to domain.PollStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Poll{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("gorm poll: update status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

var _ domain.PollRepository = (*PollRepository)(nil)
