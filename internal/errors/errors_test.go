package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRPCError_Error(t *testing.T) {
	err := NewRPCError("messages.deleteMessages", 420, "FLOOD_WAIT_30", nil)
	assert.Contains(t, err.Error(), "messages.deleteMessages")
	assert.Contains(t, err.Error(), "420")
	assert.Contains(t, err.Error(), "FLOOD_WAIT_30")
}

func TestRPCError_WithWrapped(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewRPCError("messages.getHistory", 500, "INTERNAL", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRPCError("m", 500, "INTERNAL", nil)))
	assert.True(t, IsRetryable(NewRPCError("m", 503, "UNAVAILABLE", nil)))
	assert.True(t, IsRetryable(ErrTransportDown))
	assert.True(t, IsRetryable(NewRPCError("m", 0, "", ErrTransportDown)))

	assert.False(t, IsRetryable(NewRPCError("m", 401, "AUTH_KEY_UNREGISTERED", nil)))
	assert.False(t, IsRetryable(NewRPCError("m", 400, "MESSAGE_ID_INVALID", nil)))
	assert.False(t, IsRetryable(ErrAuthFailed))
	assert.False(t, IsRetryable(ErrAuthChallenge))
	assert.False(t, IsRetryable(ErrSessionCorrupt))
	assert.False(t, IsRetryable(ErrDenied))
	assert.False(t, IsRetryable(errors.New("something else")))
}

func TestSentinelErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrAuthFailed, ErrAuthFailed))
	assert.False(t, errors.Is(ErrAuthFailed, ErrTransportDown))
}
