package workflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendflow/internal/apperr"
	"spendflow/internal/model"
)

func TestApprove(t *testing.T) {
	approver := uuid.New()
	now := time.Now()

	t.Run("pending request", func(t *testing.T) {
		req := &model.Request{Status: model.StatusPending}

		patch, err := Approve(req, approver, now)
		require.NoError(t, err)

		assert.Equal(t, model.StatusPending, patch.ExpectedStatus)
		assert.Equal(t, model.StatusApproved, patch.Fields["status"])
		assert.Equal(t, approver, patch.Fields["approved_by"])
		assert.Nil(t, patch.Fields["rejected_by"])
		assert.Equal(t, "", patch.Fields["rejection_reason"])
		assert.Equal(t, now, patch.Fields["decided_at"])
	})

	t.Run("already approved", func(t *testing.T) {
		req := &model.Request{Status: model.StatusApproved}

		_, err := Approve(req, approver, now)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	})

	t.Run("rejected request", func(t *testing.T) {
		req := &model.Request{Status: model.StatusRejected}

		_, err := Approve(req, approver, now)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	})
}

func TestReject(t *testing.T) {
	rejecter := uuid.New()
	now := time.Now()

	t.Run("pending request with reason", func(t *testing.T) {
		req := &model.Request{Status: model.StatusPending}

		patch, err := Reject(req, rejecter, "over budget", now)
		require.NoError(t, err)

		assert.Equal(t, model.StatusPending, patch.ExpectedStatus)
		assert.Equal(t, model.StatusRejected, patch.Fields["status"])
		assert.Equal(t, rejecter, patch.Fields["rejected_by"])
		assert.Equal(t, "over budget", patch.Fields["rejection_reason"])
	})

	t.Run("empty reason", func(t *testing.T) {
		req := &model.Request{Status: model.StatusPending}

		_, err := Reject(req, rejecter, "", now)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("whitespace reason", func(t *testing.T) {
		req := &model.Request{Status: model.StatusPending}

		_, err := Reject(req, rejecter, "   ", now)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("reason checked before status", func(t *testing.T) {
		req := &model.Request{Status: model.StatusApproved}

		_, err := Reject(req, rejecter, "", now)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("already rejected", func(t *testing.T) {
		req := &model.Request{Status: model.StatusRejected}

		_, err := Reject(req, rejecter, "duplicate", now)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	})
}

func TestMarkPaid(t *testing.T) {
	t.Run("approved request", func(t *testing.T) {
		req := &model.Request{Status: model.StatusApproved}

		patch, err := MarkPaid(req, true)
		require.NoError(t, err)

		assert.Equal(t, model.StatusApproved, patch.ExpectedStatus)
		assert.Equal(t, true, patch.Fields["is_paid"])
	})

	t.Run("unmark payment", func(t *testing.T) {
		req := &model.Request{Status: model.StatusApproved, IsPaid: true}

		patch, err := MarkPaid(req, false)
		require.NoError(t, err)
		assert.Equal(t, false, patch.Fields["is_paid"])
	})

	t.Run("pending request", func(t *testing.T) {
		req := &model.Request{Status: model.StatusPending}

		_, err := MarkPaid(req, true)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	})

	t.Run("rejected request", func(t *testing.T) {
		req := &model.Request{Status: model.StatusRejected}

		_, err := MarkPaid(req, true)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
	})
}

func TestCheckDelete(t *testing.T) {
	assert.NoError(t, CheckDelete(&model.Request{Status: model.StatusPending}))
	assert.NoError(t, CheckDelete(&model.Request{Status: model.StatusApproved}))

	err := CheckDelete(&model.Request{Status: model.StatusRejected})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidTransition))
}
