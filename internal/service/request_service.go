package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"spendflow/internal/apperr"
	"spendflow/internal/authz"
	"spendflow/internal/model"
	"spendflow/internal/repository"
	"spendflow/internal/storage"
	"spendflow/internal/workflow"
	ws "spendflow/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// detailReadTimeout bounds the wait on detail reads so a slow backend fails
// with Timeout instead of hanging the caller.
const detailReadTimeout = 10 * time.Second

// --- DTOs ---

type CreateRequestInput struct {
	RequestType    string     `json:"request_type" binding:"required,oneof=EXPENSE PURCHASE_ORDER"`
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	CostCenter     string     `json:"cost_center"`
	TotalAmount    string     `json:"total_amount"` // decimal string, expenses only
	PaymentDueDate *time.Time `json:"payment_due_date"`
}

type AddItemInput struct {
	Name      string `json:"name" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	UnitPrice string `json:"unit_price" binding:"required"` // decimal string
}

type ListRequestsFilter struct {
	Status     string
	Search     string
	Category   string
	CostCenter string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

type ItemResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	TotalPrice string `json:"total_price"`
}

type ReceiptResponse struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	FileName  string `json:"file_name"`
	FileType  string `json:"file_type"`
	CreatedAt string `json:"created_at"`
}

type RequestResponse struct {
	ID              string            `json:"id"`
	RequestType     string            `json:"request_type"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	CostCenter      string            `json:"cost_center"`
	Status          string            `json:"status"`
	IsPaid          bool              `json:"is_paid"`
	RejectionReason string            `json:"rejection_reason"`
	SubmittedBy     string            `json:"submitted_by"`
	SubmitterName   string            `json:"submitter_name,omitempty"`
	ApprovedBy      *string           `json:"approved_by"`
	RejectedBy      *string           `json:"rejected_by"`
	DecidedAt       *string           `json:"decided_at"`
	TotalAmount     string            `json:"total_amount"`
	PaymentDueDate  *string           `json:"payment_due_date"`
	Items           []ItemResponse    `json:"items,omitempty"`
	Receipts        []ReceiptResponse `json:"receipts,omitempty"`
	CreatedAt       string            `json:"created_at"`
}

// --- Interface ---

// RequestService is the lifecycle façade: the only surface the handlers talk
// to. Every call takes the acting principal explicitly; there is no ambient
// session state below this line. Each operation loads current state, checks
// the authorization policy, applies the state machine or store mutation, and
// returns the updated request or a typed error.
type RequestService interface {
	Create(ctx context.Context, principal authz.Principal, input CreateRequestInput) (RequestResponse, error)
	List(ctx context.Context, principal authz.Principal, filter ListRequestsFilter) ([]RequestResponse, int64, error)
	Get(ctx context.Context, principal authz.Principal, id string) (RequestResponse, error)
	AddItem(ctx context.Context, principal authz.Principal, requestID string, input AddItemInput) (RequestResponse, error)
	RemoveItem(ctx context.Context, principal authz.Principal, requestID, itemID string) (RequestResponse, error)
	Approve(ctx context.Context, principal authz.Principal, id string) (RequestResponse, error)
	Reject(ctx context.Context, principal authz.Principal, id, reason string) (RequestResponse, error)
	MarkPaid(ctx context.Context, principal authz.Principal, id string, paid bool) (RequestResponse, error)
	Delete(ctx context.Context, principal authz.Principal, id string) error
}

type requestService struct {
	requestRepo repository.RequestRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	blobs       storage.BlobStore
	hub         *ws.Hub
}

func NewRequestService(
	requestRepo repository.RequestRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	blobs storage.BlobStore,
	hub *ws.Hub,
) RequestService {
	return &requestService{
		requestRepo: requestRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		blobs:       blobs,
		hub:         hub,
	}
}

// --- Implementation ---

func (s *requestService) Create(ctx context.Context, principal authz.Principal, input CreateRequestInput) (RequestResponse, error) {
	if strings.TrimSpace(input.Title) == "" {
		return RequestResponse{}, apperr.Validation("title is required")
	}

	total := decimal.Zero
	switch input.RequestType {
	case model.RequestTypeExpense:
		if input.TotalAmount == "" {
			return RequestResponse{}, apperr.Validation("total_amount is required for expenses")
		}
		parsed, err := decimal.NewFromString(input.TotalAmount)
		if err != nil {
			return RequestResponse{}, apperr.Validation("invalid total_amount %q", input.TotalAmount)
		}
		if parsed.IsNegative() {
			return RequestResponse{}, apperr.Validation("total_amount must not be negative")
		}
		total = parsed
	case model.RequestTypePurchaseOrder:
		// Purchase order totals are derived from items; the request starts empty.
	default:
		return RequestResponse{}, apperr.Validation("unknown request type %q", input.RequestType)
	}

	req := model.Request{
		RequestType:    input.RequestType,
		Title:          input.Title,
		Description:    input.Description,
		Category:       input.Category,
		CostCenter:     input.CostCenter,
		Status:         model.StatusPending,
		SubmittedBy:    principal.ID,
		TotalAmount:    total,
		PaymentDueDate: input.PaymentDueDate,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.requestRepo.Create(txCtx, &req); createErr != nil {
			return createErr
		}
		return s.audit(txCtx, principal, model.ActionCreateRequest, req.ID, req.Title, map[string]any{
			"request_type": req.RequestType,
		})
	})
	if err != nil {
		return RequestResponse{}, err
	}

	return s.reload(ctx, req.ID)
}

func (s *requestService) List(ctx context.Context, principal authz.Principal, filter ListRequestsFilter) ([]RequestResponse, int64, error) {
	repoFilter := repository.RequestFilter{
		Status:     filter.Status,
		Search:     filter.Search,
		Category:   filter.Category,
		CostCenter: filter.CostCenter,
		From:       filter.From,
		To:         filter.To,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}
	// Plain users only see their own submissions; approvers and admins see all.
	if !authz.IsDecider(principal.Role) {
		repoFilter.SubmittedBy = &principal.ID
	}

	requests, total, err := s.requestRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}

	result := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, toRequestResponse(&requests[i]))
	}
	return result, total, nil
}

func (s *requestService) Get(ctx context.Context, principal authz.Principal, id string) (RequestResponse, error) {
	requestID, err := parseRequestID(id)
	if err != nil {
		return RequestResponse{}, err
	}

	readCtx, cancel := context.WithTimeout(ctx, detailReadTimeout)
	defer cancel()

	req, err := s.requestRepo.FindByID(readCtx, requestID)
	if err != nil {
		return RequestResponse{}, classifyReadError(readCtx, err, requestID)
	}
	if !authz.Can(principal, authz.ActionView, req) {
		return RequestResponse{}, apperr.Denied("not allowed to view this request")
	}
	return toRequestResponse(req), nil
}

func (s *requestService) AddItem(ctx context.Context, principal authz.Principal, requestID string, input AddItemInput) (RequestResponse, error) {
	reqID, err := parseRequestID(requestID)
	if err != nil {
		return RequestResponse{}, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return RequestResponse{}, apperr.Validation("item name is required")
	}
	if input.Quantity < 1 {
		return RequestResponse{}, apperr.Validation("quantity must be at least 1")
	}
	unitPrice, err := decimal.NewFromString(input.UnitPrice)
	if err != nil {
		return RequestResponse{}, apperr.Validation("invalid unit_price %q", input.UnitPrice)
	}
	if unitPrice.IsNegative() {
		return RequestResponse{}, apperr.Validation("unit_price must not be negative")
	}

	req, err := s.loadForAction(ctx, principal, reqID, authz.ActionAddItem)
	if err != nil {
		return RequestResponse{}, err
	}
	if !req.ItemBacked() {
		return RequestResponse{}, apperr.Validation("items can only be added to purchase orders")
	}

	item := model.RequestItem{
		RequestID: reqID,
		Name:      input.Name,
		Quantity:  input.Quantity,
		UnitPrice: unitPrice,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if addErr := s.requestRepo.AddItem(txCtx, &item); addErr != nil {
			return addErr
		}
		if syncErr := s.syncItemTotal(txCtx, reqID); syncErr != nil {
			return syncErr
		}
		return s.audit(txCtx, principal, model.ActionAddItem, reqID, req.Title, map[string]any{
			"item_name":  input.Name,
			"quantity":   input.Quantity,
			"unit_price": unitPrice.StringFixed(2),
		})
	})
	if err != nil {
		return RequestResponse{}, err
	}

	return s.reload(ctx, reqID)
}

func (s *requestService) RemoveItem(ctx context.Context, principal authz.Principal, requestID, itemID string) (RequestResponse, error) {
	reqID, err := parseRequestID(requestID)
	if err != nil {
		return RequestResponse{}, err
	}
	itID, err := uuid.Parse(itemID)
	if err != nil {
		return RequestResponse{}, apperr.Validation("invalid item id %q", itemID)
	}

	req, err := s.loadForAction(ctx, principal, reqID, authz.ActionRemoveItem)
	if err != nil {
		return RequestResponse{}, err
	}

	item, err := s.requestRepo.FindItem(ctx, itID)
	if err != nil {
		if repository.IsNotFound(err) {
			return RequestResponse{}, apperr.NotFound("item %s not found", itemID)
		}
		return RequestResponse{}, err
	}
	if item.RequestID != reqID {
		return RequestResponse{}, apperr.NotFound("item %s does not belong to request %s", itemID, requestID)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if rmErr := s.requestRepo.RemoveItem(txCtx, itID); rmErr != nil {
			return rmErr
		}
		if syncErr := s.syncItemTotal(txCtx, reqID); syncErr != nil {
			return syncErr
		}
		return s.audit(txCtx, principal, model.ActionRemoveItem, reqID, req.Title, map[string]any{
			"item_name": item.Name,
		})
	})
	if err != nil {
		return RequestResponse{}, err
	}

	return s.reload(ctx, reqID)
}

func (s *requestService) Approve(ctx context.Context, principal authz.Principal, id string) (RequestResponse, error) {
	reqID, err := parseRequestID(id)
	if err != nil {
		return RequestResponse{}, err
	}

	req, err := s.loadForAction(ctx, principal, reqID, authz.ActionApprove)
	if err != nil {
		return RequestResponse{}, err
	}

	patch, err := workflow.Approve(req, principal.ID, time.Now())
	if err != nil {
		return RequestResponse{}, err
	}

	if err := s.commitTransition(ctx, principal, req, patch, model.ActionApproveRequest, nil); err != nil {
		return RequestResponse{}, err
	}

	s.broadcast("request_approved", req.ID, principal.ID)
	return s.reload(ctx, reqID)
}

func (s *requestService) Reject(ctx context.Context, principal authz.Principal, id, reason string) (RequestResponse, error) {
	reqID, err := parseRequestID(id)
	if err != nil {
		return RequestResponse{}, err
	}

	req, err := s.loadForAction(ctx, principal, reqID, authz.ActionReject)
	if err != nil {
		return RequestResponse{}, err
	}

	patch, err := workflow.Reject(req, principal.ID, reason, time.Now())
	if err != nil {
		return RequestResponse{}, err
	}

	if err := s.commitTransition(ctx, principal, req, patch, model.ActionRejectRequest, map[string]any{"reason": reason}); err != nil {
		return RequestResponse{}, err
	}

	s.broadcast("request_rejected", req.ID, principal.ID)
	return s.reload(ctx, reqID)
}

func (s *requestService) MarkPaid(ctx context.Context, principal authz.Principal, id string, paid bool) (RequestResponse, error) {
	reqID, err := parseRequestID(id)
	if err != nil {
		return RequestResponse{}, err
	}

	req, err := s.load(ctx, reqID)
	if err != nil {
		return RequestResponse{}, err
	}
	// The capability table also requires status=approved for mark_paid; a
	// decider on the wrong status gets InvalidTransition from the state
	// machine below, not Denied.
	if !authz.IsDecider(principal.Role) {
		return RequestResponse{}, apperr.Denied("role %s cannot mark requests paid", principal.Role)
	}

	patch, err := workflow.MarkPaid(req, paid)
	if err != nil {
		return RequestResponse{}, err
	}

	if err := s.commitTransition(ctx, principal, req, patch, model.ActionMarkPaid, map[string]any{"paid": paid}); err != nil {
		return RequestResponse{}, err
	}

	s.broadcast("request_paid", req.ID, principal.ID)
	return s.reload(ctx, reqID)
}

func (s *requestService) Delete(ctx context.Context, principal authz.Principal, id string) error {
	reqID, err := parseRequestID(id)
	if err != nil {
		return err
	}

	req, err := s.loadForAction(ctx, principal, reqID, authz.ActionDelete)
	if err != nil {
		return err
	}
	if err := workflow.CheckDelete(req); err != nil {
		return err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if delErr := s.requestRepo.Delete(txCtx, reqID); delErr != nil {
			return delErr
		}
		return s.audit(txCtx, principal, model.ActionDeleteRequest, reqID, req.Title, map[string]any{
			"status": req.Status,
		})
	})
	if err != nil {
		return err
	}

	// Best effort: orphaned blobs are harmless, outstanding signed URLs die
	// with their own expiry.
	if s.blobs != nil {
		_ = s.blobs.RemoveAll(ctx, receiptPrefix(reqID))
	}
	return nil
}

// --- Internals ---

func (s *requestService) load(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	req, err := s.requestRepo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.NotFound("request %s not found", id)
		}
		return nil, err
	}
	return req, nil
}

func (s *requestService) loadForAction(ctx context.Context, principal authz.Principal, id uuid.UUID, action authz.Action) (*model.Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.Can(principal, action, req) {
		return nil, apperr.Denied("role %s may not %s this request", principal.Role, action)
	}
	return req, nil
}

// commitTransition applies the state machine patch as a conditional write,
// with the audit entry in the same transaction. The write succeeds only if
// the stored status still matches the patch precondition; a lost race
// surfaces as Conflict and nothing is recorded.
func (s *requestService) commitTransition(ctx context.Context, principal authz.Principal, req *model.Request, patch workflow.Patch, action string, extra map[string]any) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.UpdateStatusIf(txCtx, req.ID, patch.ExpectedStatus, patch.Fields); err != nil {
			return err
		}
		return s.audit(txCtx, principal, action, req.ID, req.Title, extra)
	})
}

// syncItemTotal recomputes the stored purchase order total from its current
// items. The column is a read-optimised copy; responses always derive
// the total from items.
func (s *requestService) syncItemTotal(ctx context.Context, requestID uuid.UUID) error {
	items, err := s.requestRepo.ListItems(ctx, requestID)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total())
	}
	return s.requestRepo.UpdateTotalAmount(ctx, requestID, total)
}

func (s *requestService) reload(ctx context.Context, id uuid.UUID) (RequestResponse, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return RequestResponse{}, err
	}
	return toRequestResponse(req), nil
}

func (s *requestService) audit(ctx context.Context, principal authz.Principal, action string, entityID uuid.UUID, entityName string, extra map[string]any) error {
	return auditEntry(ctx, s.auditRepo, principal, action, entityID, entityName, extra)
}

func auditEntry(ctx context.Context, repo repository.AuditRepository, principal authz.Principal, action string, entityID uuid.UUID, entityName string, extra map[string]any) error {
	details, _ := json.Marshal(extra)
	actorID := principal.ID
	entry := model.AuditLog{
		UserID:     &actorID,
		Action:     action,
		EntityID:   entityID.String(),
		EntityName: entityName,
		Details:    string(details),
	}
	return repo.Log(ctx, &entry)
}

func (s *requestService) broadcast(event string, requestID, actorID uuid.UUID) {
	if s.hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"event":      event,
		"request_id": requestID.String(),
		"actor_id":   actorID.String(),
	})
	select {
	case s.hub.Broadcast <- payload:
	default:
	}
}

// --- Helpers ---

func parseRequestID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid request id %q", id)
	}
	return parsed, nil
}

// classifyReadError separates "the backend was slow" from "the row is gone".
// A timeout means unknown outcome, not rolled back.
func classifyReadError(ctx context.Context, err error, id uuid.UUID) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, err, "timed out loading request %s", id)
	}
	if repository.IsNotFound(err) {
		return apperr.NotFound("request %s not found", id)
	}
	return err
}

func receiptPrefix(requestID uuid.UUID) string {
	return "receipts/" + requestID.String()
}

func toRequestResponse(req *model.Request) RequestResponse {
	resp := RequestResponse{
		ID:              req.ID.String(),
		RequestType:     req.RequestType,
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		CostCenter:      req.CostCenter,
		Status:          req.Status,
		IsPaid:          req.IsPaid,
		RejectionReason: req.RejectionReason,
		SubmittedBy:     req.SubmittedBy.String(),
		TotalAmount:     req.TotalAmount.StringFixed(2),
		CreatedAt:       req.CreatedAt.Format(time.RFC3339),
	}

	if req.Submitter != nil {
		resp.SubmitterName = req.Submitter.Name
	}
	if req.ApprovedBy != nil {
		v := req.ApprovedBy.String()
		resp.ApprovedBy = &v
	}
	if req.RejectedBy != nil {
		v := req.RejectedBy.String()
		resp.RejectedBy = &v
	}
	if req.DecidedAt != nil {
		v := req.DecidedAt.Format(time.RFC3339)
		resp.DecidedAt = &v
	}
	if req.PaymentDueDate != nil {
		v := req.PaymentDueDate.Format(time.RFC3339)
		resp.PaymentDueDate = &v
	}

	// Item-backed totals are always derived from the loaded items, never
	// trusted from the stored column.
	if req.ItemBacked() {
		resp.TotalAmount = req.ItemsTotal().StringFixed(2)
	}

	for _, item := range req.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:         item.ID.String(),
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			TotalPrice: item.Total().StringFixed(2),
		})
	}
	for _, receipt := range req.Receipts {
		resp.Receipts = append(resp.Receipts, toReceiptResponse(receipt))
	}

	return resp
}

func toReceiptResponse(receipt model.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:        receipt.ID.String(),
		RequestID: receipt.RequestID.String(),
		FileName:  receipt.FileName,
		FileType:  receipt.FileType,
		CreatedAt: receipt.CreatedAt.Format(time.RFC3339),
	}
}
