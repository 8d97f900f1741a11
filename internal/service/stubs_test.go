package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"spendflow/internal/apperr"
	"spendflow/internal/model"
	"spendflow/internal/repository"
)

// stubTxManager runs the callback directly; the stores below are in memory so
// there is nothing to roll back.
type stubTxManager struct{}

func (stubTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type memRequestRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*model.Request
	items    map[uuid.UUID]*model.RequestItem

	findErr   error  // forced FindByID failure
	afterFind func() // runs after a successful FindByID, before returning
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{
		requests: make(map[uuid.UUID]*model.Request),
		items:    make(map[uuid.UUID]*model.RequestItem),
	}
}

func (r *memRequestRepo) Create(_ context.Context, req *model.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now()
	stored := *req
	r.requests[req.ID] = &stored
	return nil
}

func (r *memRequestRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	stored, ok := r.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	out.Items = r.itemsOf(id)
	if r.afterFind != nil {
		r.afterFind()
	}
	return &out, nil
}

func (r *memRequestRepo) List(_ context.Context, filter repository.RequestFilter) ([]model.Request, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Request
	for _, stored := range r.requests {
		if filter.Status != "" && stored.Status != filter.Status {
			continue
		}
		if filter.SubmittedBy != nil && stored.SubmittedBy != *filter.SubmittedBy {
			continue
		}
		if filter.Category != "" && stored.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(stored.Title, filter.Search) {
			continue
		}
		req := *stored
		req.Items = r.itemsOf(stored.ID)
		out = append(out, req)
	}
	return out, int64(len(out)), nil
}

func (r *memRequestRepo) UpdateStatusIf(_ context.Context, id uuid.UUID, expectedStatus string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[id]
	if !ok {
		return apperr.NotFound("request %s not found", id)
	}
	if stored.Status != expectedStatus {
		return apperr.Conflict("request %s is no longer %s", id, expectedStatus)
	}
	for key, value := range fields {
		switch key {
		case "status":
			stored.Status = value.(string)
		case "approved_by":
			if value == nil {
				stored.ApprovedBy = nil
			} else {
				v := value.(uuid.UUID)
				stored.ApprovedBy = &v
			}
		case "rejected_by":
			if value == nil {
				stored.RejectedBy = nil
			} else {
				v := value.(uuid.UUID)
				stored.RejectedBy = &v
			}
		case "rejection_reason":
			stored.RejectionReason = value.(string)
		case "decided_at":
			v := value.(time.Time)
			stored.DecidedAt = &v
		case "is_paid":
			stored.IsPaid = value.(bool)
		}
	}
	return nil
}

func (r *memRequestRepo) UpdateTotalAmount(_ context.Context, id uuid.UUID, total decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[id]
	if !ok {
		return apperr.NotFound("request %s not found", id)
	}
	stored.TotalAmount = total
	return nil
}

func (r *memRequestRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[id]; !ok {
		return apperr.NotFound("request %s not found", id)
	}
	delete(r.requests, id)
	for itemID, item := range r.items {
		if item.RequestID == id {
			delete(r.items, itemID)
		}
	}
	return nil
}

func (r *memRequestRepo) AddItem(_ context.Context, item *model.RequestItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = time.Now()
	stored := *item
	r.items[item.ID] = &stored
	return nil
}

func (r *memRequestRepo) FindItem(_ context.Context, id uuid.UUID) (*model.RequestItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	return &out, nil
}

func (r *memRequestRepo) RemoveItem(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return apperr.NotFound("item %s not found", id)
	}
	delete(r.items, id)
	return nil
}

func (r *memRequestRepo) ListItems(_ context.Context, requestID uuid.UUID) ([]model.RequestItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsOf(requestID), nil
}

// itemsOf is called with the lock held.
func (r *memRequestRepo) itemsOf(requestID uuid.UUID) []model.RequestItem {
	var out []model.RequestItem
	for _, item := range r.items {
		if item.RequestID == requestID {
			out = append(out, *item)
		}
	}
	return out
}

type memReceiptRepo struct {
	mu       sync.Mutex
	receipts map[uuid.UUID]*model.Receipt
}

func newMemReceiptRepo() *memReceiptRepo {
	return &memReceiptRepo{receipts: make(map[uuid.UUID]*model.Receipt)}
}

func (r *memReceiptRepo) Create(_ context.Context, receipt *model.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	receipt.CreatedAt = time.Now()
	stored := *receipt
	r.receipts[receipt.ID] = &stored
	return nil
}

func (r *memReceiptRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.receipts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	return &out, nil
}

func (r *memReceiptRepo) FindByStoragePath(_ context.Context, path string) (*model.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.receipts {
		if stored.StoragePath == path {
			out := *stored
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memReceiptRepo) ListByRequest(_ context.Context, requestID uuid.UUID) ([]model.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Receipt
	for _, stored := range r.receipts {
		if stored.RequestID == requestID {
			out = append(out, *stored)
		}
	}
	return out, nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func newMemAuditRepo() *memAuditRepo {
	return &memAuditRepo{}
}

func (r *memAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, _, _ int) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AuditLog(nil), r.entries...), int64(len(r.entries)), nil
}

func (r *memAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
	putErr  error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (s *memBlobStore) Put(_ context.Context, path string, r io.Reader) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return nil
}

func (s *memBlobStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memBlobStore) RemoveAll(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, prefix)
	for path := range s.objects {
		if strings.HasPrefix(path, prefix) {
			delete(s.objects, path)
		}
	}
	return nil
}
