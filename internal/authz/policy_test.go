package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"spendflow/internal/model"
)

func TestCan(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()

	pending := &model.Request{Status: model.StatusPending, SubmittedBy: owner}
	approved := &model.Request{Status: model.StatusApproved, SubmittedBy: owner}

	tests := []struct {
		name      string
		principal Principal
		action    Action
		req       *model.Request
		want      bool
	}{
		{"user cannot approve", Principal{ID: owner, Role: model.RoleUser}, ActionApprove, pending, false},
		{"approver can approve", Principal{ID: stranger, Role: model.RoleApprover}, ActionApprove, pending, true},
		{"admin can approve", Principal{ID: stranger, Role: model.RoleAdmin}, ActionApprove, pending, true},
		{"user cannot reject own request", Principal{ID: owner, Role: model.RoleUser}, ActionReject, pending, false},
		{"approver can reject", Principal{ID: stranger, Role: model.RoleApprover}, ActionReject, pending, true},
		{"user cannot delete", Principal{ID: owner, Role: model.RoleUser}, ActionDelete, pending, false},
		{"admin can delete", Principal{ID: stranger, Role: model.RoleAdmin}, ActionDelete, pending, true},
		{"approver can mark approved paid", Principal{ID: stranger, Role: model.RoleApprover}, ActionMarkPaid, approved, true},
		{"approver cannot mark pending paid", Principal{ID: stranger, Role: model.RoleApprover}, ActionMarkPaid, pending, false},
		{"user cannot mark paid", Principal{ID: owner, Role: model.RoleUser}, ActionMarkPaid, approved, false},
		{"owner can add items", Principal{ID: owner, Role: model.RoleUser}, ActionAddItem, pending, true},
		{"stranger cannot add items", Principal{ID: stranger, Role: model.RoleUser}, ActionAddItem, pending, false},
		{"approver can add items to any request", Principal{ID: stranger, Role: model.RoleApprover}, ActionAddItem, pending, true},
		{"owner can upload receipt", Principal{ID: owner, Role: model.RoleUser}, ActionUploadReceipt, approved, true},
		{"stranger cannot upload receipt", Principal{ID: stranger, Role: model.RoleUser}, ActionUploadReceipt, approved, false},
		{"owner can view", Principal{ID: owner, Role: model.RoleUser}, ActionView, pending, true},
		{"stranger cannot view", Principal{ID: stranger, Role: model.RoleUser}, ActionView, pending, false},
		{"admin can view anything", Principal{ID: stranger, Role: model.RoleAdmin}, ActionView, pending, true},
		{"unknown action denied", Principal{ID: stranger, Role: model.RoleAdmin}, Action("reopen"), pending, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Can(tc.principal, tc.action, tc.req))
		})
	}
}

func TestIsDecider(t *testing.T) {
	assert.False(t, IsDecider(model.RoleUser))
	assert.True(t, IsDecider(model.RoleApprover))
	assert.True(t, IsDecider(model.RoleAdmin))
	assert.False(t, IsDecider("auditor"))
}
