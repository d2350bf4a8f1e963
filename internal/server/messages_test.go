package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_serializeMessage(t *testing.T) {
	message := newServerMessage(1, EventMessageSent, MessageSent{CorrelationId: "abc"})

	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","event":"message-sent","data":{"correlationId":"abc"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func TestErrorMessages(t *testing.T) {
	resetAt := time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)

	tcases := []struct {
		name       string
		msg        *ServerMessage
		expCode    int
		expMessage string
	}{
		{"violation", ErrViolation(1, "nope", 2), http.StatusForbidden, "nope"},
		{"rate limited", ErrRateLimited(1, resetAt), http.StatusTooManyRequests, "rate limit exceeded"},
		{"not found", ErrNotFound(1), http.StatusNotFound, "not found"},
		{"internal", ErrInternalError(1), http.StatusInternalServerError, "internal server error"},
		{"unavailable", ErrServiceUnavailable(1), http.StatusServiceUnavailable, "service unavailable"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, 1, tc.msg.Id, "expected Id to match")
			assert.WithinDuration(t, Now(), tc.msg.Timestamp, time.Second, "expected Timestamp to be within 1 second")

			p := errorPayload(t, tc.msg)
			assert.Equal(t, tc.expCode, p.Code)
			assert.Equal(t, tc.expMessage, p.Message)
		})
	}
}

func TestErrRateLimited_ResetAt(t *testing.T) {
	resetAt := time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)

	bytes, err := serializeMessage(ErrRateLimited(3, resetAt))
	require.NoError(t, err)
	assert.Contains(t, string(bytes), `"resetAt":"2024-05-01T12:01:00Z"`)

	bytes, err = serializeMessage(ErrRateLimited(3, time.Time{}))
	require.NoError(t, err)
	assert.NotContains(t, string(bytes), "resetAt", "expected unknown reset time to be omitted")
}

func TestErrViolation_Count(t *testing.T) {
	bytes, err := serializeMessage(ErrViolation(4, "cannot send a message to yourself", 2))
	require.NoError(t, err)
	assert.Contains(t, string(bytes), `"violations":2`)
	assert.Contains(t, string(bytes), `"id":4`)
}
