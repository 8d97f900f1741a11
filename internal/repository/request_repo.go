package repository

import (
	"context"
	"errors"
	"time"

	"spendflow/internal/apperr"
	"spendflow/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RequestFilter narrows List results. All set fields combine with AND.
type RequestFilter struct {
	Status      string
	Search      string // free-text over title/description
	Category    string
	CostCenter  string
	SubmittedBy *uuid.UUID
	From        *time.Time // submission date range, inclusive
	To          *time.Time
	Page        int
	Limit       int
}

// RequestRepository is the data access layer for spend requests, their line
// items and receipt rows.
type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]model.Request, int64, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expectedStatus string, fields map[string]any) error
	UpdateTotalAmount(ctx context.Context, id uuid.UUID, total decimal.Decimal) error
	Delete(ctx context.Context, id uuid.UUID) error

	AddItem(ctx context.Context, item *model.RequestItem) error
	FindItem(ctx context.Context, id uuid.UUID) (*model.RequestItem, error)
	RemoveItem(ctx context.Context, id uuid.UUID) error
	ListItems(ctx context.Context, requestID uuid.UUID) ([]model.RequestItem, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Receipts").
		Preload("Submitter").
		Preload("Approver").
		Preload("Rejecter").
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]model.Request, int64, error) {
	db := GetDB(ctx, r.db)

	applyFilter := func(q *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			q = q.Where("title ILIKE ? OR description ILIKE ?", pattern, pattern)
		}
		if filter.Category != "" {
			q = q.Where("category = ?", filter.Category)
		}
		if filter.CostCenter != "" {
			q = q.Where("cost_center = ?", filter.CostCenter)
		}
		if filter.SubmittedBy != nil {
			q = q.Where("submitted_by = ?", *filter.SubmittedBy)
		}
		if filter.From != nil {
			q = q.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			q = q.Where("created_at <= ?", *filter.To)
		}
		return q
	}

	var total int64
	if err := applyFilter(db.Model(&model.Request{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	offset := (filter.Page - 1) * filter.Limit

	var requests []model.Request
	if err := applyFilter(db.Preload("Items").Preload("Submitter")).
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// UpdateStatusIf applies fields only when the stored status still matches
// expectedStatus. Of two concurrent transitions on the same request at most
// one passes the WHERE clause; the loser gets Conflict (or NotFound when the
// row is gone).
func (r *requestRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expectedStatus string, fields map[string]any) error {
	db := GetDB(ctx, r.db)

	res := db.Model(&model.Request{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var exists int64
	if err := db.Model(&model.Request{}).Where("id = ?", id).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return apperr.NotFound("request %s not found", id)
	}
	return apperr.Conflict("request %s is no longer %s", id, expectedStatus)
}

func (r *requestRepository) UpdateTotalAmount(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	return GetDB(ctx, r.db).Model(&model.Request{}).
		Where("id = ?", id).
		Update("total_amount", total).Error
}

// Delete removes the request and cascades to its items and receipts in one
// transaction, leaving no orphan rows.
func (r *requestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("request_id = ?", id).Delete(&model.RequestItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("request_id = ?", id).Delete(&model.Receipt{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Request{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("request %s not found", id)
		}
		return nil
	})
}

func (r *requestRepository) AddItem(ctx context.Context, item *model.RequestItem) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *requestRepository) FindItem(ctx context.Context, id uuid.UUID) (*model.RequestItem, error) {
	var item model.RequestItem
	if err := GetDB(ctx, r.db).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *requestRepository) RemoveItem(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.RequestItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("item %s not found", id)
	}
	return nil
}

func (r *requestRepository) ListItems(ctx context.Context, requestID uuid.UUID) ([]model.RequestItem, error) {
	var items []model.RequestItem
	if err := GetDB(ctx, r.db).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// IsNotFound reports whether err is the store's missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
