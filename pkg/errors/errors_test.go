package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:    {http.StatusBadRequest, false, "validation failed", true},
		CodeUnavailable:   {http.StatusBadRequest, false, "requested items are unavailable", true},
		CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false},
		CodeForbidden:     {http.StatusForbidden, false, "access denied", false},
		CodeNotFound:      {http.StatusNotFound, false, "resource not found", false},
		CodeConflict:      {http.StatusConflict, false, "conflict detected", false},
		CodeStateConflict: {http.StatusConflict, false, "state transition disallowed", true},
		CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", true},
		CodeRateLimit:     {http.StatusTooManyRequests, false, "rate limit exceeded", false},
		CodeGateway:       {http.StatusBadGateway, true, "payment gateway error", true},
		CodeInternal:      {http.StatusInternalServerError, true, "internal server error", false},
		CodeDependency:    {http.StatusServiceUnavailable, true, "dependency unavailable", true},
	}
	for code, want := range cases {
		assert.Equal(t, want, MetadataFor(code), string(code))
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestConstructors(t *testing.T) {
	base := New(CodeValidation, "missing amount")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing amount", base.Message())
	assert.Nil(t, base.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing amount", base.Error())

	base.WithDetails(map[string]any{"field": "amount"})
	assert.NotNil(t, base.Details())

	f := Newf(CodeNotFound, "order %s not found", "ORD-1")
	assert.Equal(t, "order ORD-1 not found", f.Message())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "reserve stock")
	assert.True(t, stdErrors.Is(wrapped, cause))
	assert.Equal(t, CodeConflict, wrapped.Code())
	assert.Contains(t, wrapped.Error(), "boom")

	assert.Nil(t, Wrap(CodeInternal, nil, "x").Unwrap())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.WithDetails("x"))
	assert.Nil(t, e.Unwrap())
}

func TestAsFollowsWrappedChain(t *testing.T) {
	inner := New(CodeUnavailable, "out of stock")
	outer := fmt.Errorf("place order: %w", inner)

	got := As(outer)
	require.NotNil(t, got)
	assert.Equal(t, CodeUnavailable, got.Code())
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))

	assert.True(t, IsCode(outer, CodeUnavailable))
	assert.False(t, IsCode(outer, CodeConflict))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(stdErrors.New("network")))
	assert.True(t, IsRetryable(New(CodeGateway, "timeout")))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", New(CodeDependency, "redis"))))
	assert.False(t, IsRetryable(New(CodeValidation, "bad amount")))
	assert.False(t, IsRetryable(New(CodeStateConflict, "already paid")))
}
