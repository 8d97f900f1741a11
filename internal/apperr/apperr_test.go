package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("request %s not found", "x")))
	assert.Equal(t, KindDenied, KindOf(Denied("nope")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindAttachmentUnavailable, cause, "failed to store receipt")

	assert.True(t, IsKind(err, KindAttachmentUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Denied("x"), http.StatusForbidden},
		{InvalidTransition("x"), http.StatusConflict},
		{Conflict("x"), http.StatusConflict},
		{Timeout("x"), http.StatusGatewayTimeout},
		{AttachmentUnavailable("x"), http.StatusBadGateway},
		{Validation("x"), http.StatusBadRequest},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, HTTPStatus(tc.err))
	}
}
