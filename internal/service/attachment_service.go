package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"spendflow/internal/apperr"
	"spendflow/internal/authz"
	"spendflow/internal/model"
	"spendflow/internal/repository"
	"spendflow/internal/storage"

	"github.com/google/uuid"
)

type UploadReceiptInput struct {
	FileName string
	FileType string
	Body     io.Reader
}

type SignedURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// AttachmentService uploads receipt files into the blob store and issues
// short-lived signed view URLs. Uploads carry no status restriction: receipts
// may arrive before or after a decision, matching the product behaviour.
type AttachmentService interface {
	Upload(ctx context.Context, principal authz.Principal, requestID string, input UploadReceiptInput) (ReceiptResponse, error)
	ViewURL(ctx context.Context, principal authz.Principal, requestID, receiptID string) (SignedURLResponse, error)
}

type attachmentService struct {
	requestRepo repository.RequestRepository
	receiptRepo repository.ReceiptRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	blobs       storage.BlobStore
	signer      *storage.URLSigner
}

func NewAttachmentService(
	requestRepo repository.RequestRepository,
	receiptRepo repository.ReceiptRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	blobs storage.BlobStore,
	signer *storage.URLSigner,
) AttachmentService {
	return &attachmentService{
		requestRepo: requestRepo,
		receiptRepo: receiptRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		blobs:       blobs,
		signer:      signer,
	}
}

func (s *attachmentService) Upload(ctx context.Context, principal authz.Principal, requestID string, input UploadReceiptInput) (ReceiptResponse, error) {
	reqID, err := parseRequestID(requestID)
	if err != nil {
		return ReceiptResponse{}, err
	}
	if strings.TrimSpace(input.FileName) == "" {
		return ReceiptResponse{}, apperr.Validation("file name is required")
	}
	if input.Body == nil {
		return ReceiptResponse{}, apperr.Validation("file body is required")
	}

	req, err := s.requestRepo.FindByID(ctx, reqID)
	if err != nil {
		if repository.IsNotFound(err) {
			return ReceiptResponse{}, apperr.NotFound("request %s not found", requestID)
		}
		return ReceiptResponse{}, err
	}
	if !authz.Can(principal, authz.ActionUploadReceipt, req) {
		return ReceiptResponse{}, apperr.Denied("not allowed to upload receipts for this request")
	}

	// Generated path scoped to the request; the original file name stays on
	// the receipt row only.
	objectPath := receiptPrefix(reqID) + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(input.FileName))

	if err := s.blobs.Put(ctx, objectPath, input.Body); err != nil {
		return ReceiptResponse{}, apperr.Wrap(apperr.KindAttachmentUnavailable, err, "failed to store receipt file")
	}

	receipt := model.Receipt{
		RequestID:   reqID,
		FileName:    input.FileName,
		FileType:    input.FileType,
		StoragePath: objectPath,
		UploadedBy:  principal.ID,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.receiptRepo.Create(txCtx, &receipt); createErr != nil {
			return createErr
		}
		details := map[string]any{"file_name": input.FileName, "file_type": input.FileType}
		return auditEntry(txCtx, s.auditRepo, principal, model.ActionUploadReceipt, reqID, req.Title, details)
	})
	if err != nil {
		// The blob write already happened; leave no dangling row, the orphan
		// object is reclaimed when the request is deleted.
		return ReceiptResponse{}, err
	}

	return toReceiptResponse(receipt), nil
}

// ViewURL issues a fresh time-limited signed URL for one receipt. The URL
// must not be persisted; callers re-request after expiry.
func (s *attachmentService) ViewURL(ctx context.Context, principal authz.Principal, requestID, receiptID string) (SignedURLResponse, error) {
	reqID, err := parseRequestID(requestID)
	if err != nil {
		return SignedURLResponse{}, err
	}
	recID, err := uuid.Parse(receiptID)
	if err != nil {
		return SignedURLResponse{}, apperr.Validation("invalid receipt id %q", receiptID)
	}

	req, err := s.requestRepo.FindByID(ctx, reqID)
	if err != nil {
		if repository.IsNotFound(err) {
			return SignedURLResponse{}, apperr.NotFound("request %s not found", requestID)
		}
		return SignedURLResponse{}, err
	}
	if !authz.Can(principal, authz.ActionView, req) {
		return SignedURLResponse{}, apperr.Denied("not allowed to view receipts for this request")
	}

	receipt, err := s.receiptRepo.FindByID(ctx, recID)
	if err != nil {
		if repository.IsNotFound(err) {
			return SignedURLResponse{}, apperr.NotFound("receipt %s not found", receiptID)
		}
		return SignedURLResponse{}, err
	}
	if receipt.RequestID != reqID {
		return SignedURLResponse{}, apperr.NotFound("receipt %s does not belong to request %s", receiptID, requestID)
	}

	url, expiresAt, err := s.signer.Sign(receipt.StoragePath)
	if err != nil {
		return SignedURLResponse{}, apperr.Wrap(apperr.KindAttachmentUnavailable, err, "failed to issue view URL")
	}

	return SignedURLResponse{
		URL:       url,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}
