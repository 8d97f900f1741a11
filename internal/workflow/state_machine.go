// Package workflow validates approval status transitions and produces the
// conditional patch the repository commits. The patch carries the status the
// record must still hold at write time; the compare-on-write in the store is
// what closes the read-then-decide race between concurrent approvers.
package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"spendflow/internal/apperr"
	"spendflow/internal/model"
)

// Patch is a validated transition ready to commit. ExpectedStatus is the
// status the stored record must still match for the conditional update to
// succeed; Fields is the column set applied on success.
type Patch struct {
	ExpectedStatus string
	Fields         map[string]any
}

// Approve moves a pending request to approved and records the approver.
// Any stale rejection fields are cleared at the same time.
func Approve(req *model.Request, approver uuid.UUID, now time.Time) (Patch, error) {
	if req.Status != model.StatusPending {
		return Patch{}, apperr.InvalidTransition("cannot approve a %s request", req.Status)
	}
	return Patch{
		ExpectedStatus: model.StatusPending,
		Fields: map[string]any{
			"status":           model.StatusApproved,
			"approved_by":      approver,
			"rejected_by":      nil,
			"rejection_reason": "",
			"decided_at":       now,
		},
	}, nil
}

// Reject moves a pending request to rejected; the reason is mandatory.
func Reject(req *model.Request, rejecter uuid.UUID, reason string, now time.Time) (Patch, error) {
	if strings.TrimSpace(reason) == "" {
		return Patch{}, apperr.Validation("rejection reason is required")
	}
	if req.Status != model.StatusPending {
		return Patch{}, apperr.InvalidTransition("cannot reject a %s request", req.Status)
	}
	return Patch{
		ExpectedStatus: model.StatusPending,
		Fields: map[string]any{
			"status":           model.StatusRejected,
			"rejected_by":      rejecter,
			"rejection_reason": reason,
			"decided_at":       now,
		},
	}, nil
}

// MarkPaid flips the payment flag on an approved request. Paying is one-way
// in the UI but un-marking is accepted here to correct mistakes; either way
// the request must be approved.
func MarkPaid(req *model.Request, paid bool) (Patch, error) {
	if req.Status != model.StatusApproved {
		return Patch{}, apperr.InvalidTransition("cannot mark a %s request as paid", req.Status)
	}
	return Patch{
		ExpectedStatus: model.StatusApproved,
		Fields:         map[string]any{"is_paid": paid},
	}, nil
}

// CheckDelete validates that the request may be removed. Rejected requests
// are kept for the audit trail.
func CheckDelete(req *model.Request) error {
	if req.Status != model.StatusPending && req.Status != model.StatusApproved {
		return apperr.InvalidTransition("cannot delete a %s request", req.Status)
	}
	return nil
}
