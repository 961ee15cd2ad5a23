package contact

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(&Request{})
}

func (r *Repo) Create(ctx context.Context, req *Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Request, error) {
	var req Request
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repo) GetByIdempotencyKey(ctx context.Context, key string) (*Request, error) {
	var req Request
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateOrGetExisting inserts req, or returns the row already stored under
// the same idempotency key. The bool is true when a new row was created.
func (r *Repo) CreateOrGetExisting(ctx context.Context, req *Request) (*Request, bool, error) {
	if req.IdempotencyKey == nil || *req.IdempotencyKey == "" {
		req.IdempotencyKey = nil
		if err := r.Create(ctx, req); err != nil {
			return nil, false, err
		}
		return req, true, nil
	}

	err := r.Create(ctx, req)
	if err == nil {
		return req, true, nil
	}

	existing, getErr := r.GetByIdempotencyKey(ctx, *req.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// MarkRunning claims a queued request, or a running one last touched before
// staleBefore (its worker died). It reports false when the request is held
// by a live worker or already finished.
func (r *Repo) MarkRunning(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Request{}).
		Where("id = ? AND (status = ? OR (status = ? AND updated_at < ?))",
			id, StatusQueued, StatusRunning, staleBefore).
		Update("status", StatusRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Request{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       StatusDelivered,
			"delivered_at": at,
			"error":        nil,
		}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Request{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": StatusFailed,
			"error":  errMsg,
		}).Error
}

// Requeue puts an undelivered request back to queued for another attempt.
func (r *Repo) Requeue(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Request{}).
		Where("id = ? AND status IN ?", id, []Status{StatusQueued, StatusRunning, StatusFailed}).
		Update("status", StatusQueued)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListRecent returns requests newest first.
func (r *Repo) ListRecent(ctx context.Context, limit int, status Status) ([]Request, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Request
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
