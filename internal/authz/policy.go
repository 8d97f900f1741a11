// Package authz is the single capability table gating every lifecycle action.
// It is a pure function of (principal role, action, request); no call site
// checks roles directly.
package authz

import (
	"github.com/google/uuid"

	"spendflow/internal/model"
)

// Principal is the authenticated actor as reported by the identity layer.
// The core trusts the role verbatim.
type Principal struct {
	ID   uuid.UUID
	Role string
}

// Action enumerates everything a principal can attempt on a request.
type Action string

const (
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionDelete        Action = "delete"
	ActionMarkPaid      Action = "mark_paid"
	ActionAddItem       Action = "add_item"
	ActionRemoveItem    Action = "remove_item"
	ActionUploadReceipt Action = "upload_receipt"
	ActionView          Action = "view"
)

// Can decides whether the principal may perform the action on the request.
// mark_paid additionally requires the request to already be approved; that is
// the only rule that reads request state.
func Can(p Principal, action Action, req *model.Request) bool {
	switch action {
	case ActionApprove, ActionReject, ActionDelete:
		return IsDecider(p.Role)
	case ActionMarkPaid:
		return IsDecider(p.Role) && req.Status == model.StatusApproved
	case ActionAddItem, ActionRemoveItem, ActionUploadReceipt, ActionView:
		return IsDecider(p.Role) || req.SubmittedBy == p.ID
	default:
		return false
	}
}

// IsDecider reports whether the role may decide request outcomes.
func IsDecider(role string) bool {
	return role == model.RoleApprover || role == model.RoleAdmin
}
