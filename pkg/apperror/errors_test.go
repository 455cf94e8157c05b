package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTTP(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"resource not found", New(CodeResourceNotFound, "no resource"), http.StatusNotFound},
		{"full node fail", New(CodeFullNodeFail, "full node unavailable"), http.StatusServiceUnavailable},
		{"hash mismatch", New(CodeHashMismatch, "hash error"), http.StatusUnprocessableEntity},
		{"unexpected error", errors.New("boom"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := ToHTTP(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("transport down")
	wrapped := Wrap(cause, CodeAggregatorFail, "all aggregators exhausted")

	require.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeAggregatorFail, Code(wrapped))
	assert.True(t, Is(wrapped, CodeAggregatorFail))
	assert.False(t, Is(wrapped, CodeHashMismatch))
}

func TestWithDetails(t *testing.T) {
	err := New(CodeBlobUnavailable, "blob expired").WithDetails("blob_id", "abc123")
	assert.Equal(t, "abc123", err.Details["blob_id"])
}
