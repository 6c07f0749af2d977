package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_wrapped(t *testing.T) {
	err := fmt.Errorf("verify: %w", BadRequest("Invalid verification code"))
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.True(t, Is(err, KindBadRequest))
	assert.Equal(t, "Invalid verification code", PublicMessage(err))
}

func TestKindOf_unclassified(t *testing.T) {
	err := errors.New("connection refused")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "Internal server error", PublicMessage(err))
	assert.False(t, Is(nil, KindInternal))
}

func TestStatus(t *testing.T) {
	cases := map[Kind]int{
		KindBadRequest:      http.StatusBadRequest,
		KindUnauthorized:    http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindTooManyRequests: http.StatusTooManyRequests,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		got, code := kind.Status()
		assert.Equal(t, want, got)
		assert.NotEmpty(t, code)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NotFound("User not found").Wrap(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindNotFound, KindOf(err))
}
