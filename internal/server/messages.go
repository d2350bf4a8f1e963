package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// outbound event names
const (
	EventRoomJoined        = "room-joined"
	EventNewMessage        = "new-message"
	EventMessageSent       = "message-sent"
	EventMessageRead       = "message-read"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventHeartbeat         = "heartbeat"
	EventNotification      = "notification"
	EventError             = "error"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ServerMessage struct {
	BaseMessage
	Event      string  `json:"event"`
	Data       any     `json:"data,omitempty"`
	SkipClient *Client `json:"-"`
}

type RoomJoined struct {
	Room string `json:"room"`
}

type MessageSent struct {
	CorrelationId string `json:"correlationId"`
}

type MessageRead struct {
	MessageId string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

type TypingSignal struct {
	UserId     string `json:"userId"`
	ProjectId  string `json:"projectId"`
	ReceiverId string `json:"receiverId"`
}

type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	Payload json.RawMessage `json:"payload"`
}

type ErrorPayload struct {
	Code       int        `json:"code"`
	Message    string     `json:"message"`
	Violations int        `json:"violations,omitempty"`
	ResetAt    *time.Time `json:"resetAt,omitempty"`
}

func newServerMessage(id int, event string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: event,
		Data:  data,
	}
}

func newErrorMessage(id int, p ErrorPayload) *ServerMessage {
	return newServerMessage(id, EventError, p)
}

// ErrViolation reports a policy breach. violations is the running count
// for the connection.
func ErrViolation(id int, reason string, violations int) *ServerMessage {
	return newErrorMessage(id, ErrorPayload{
		Code:       http.StatusForbidden,
		Message:    reason,
		Violations: violations,
	})
}

func ErrRateLimited(id int, resetAt time.Time) *ServerMessage {
	p := ErrorPayload{
		Code:    http.StatusTooManyRequests,
		Message: "rate limit exceeded",
	}
	if !resetAt.IsZero() {
		p.ResetAt = &resetAt
	}
	return newErrorMessage(id, p)
}

func ErrNotFound(id int) *ServerMessage {
	return newErrorMessage(id, ErrorPayload{
		Code:    http.StatusNotFound,
		Message: "not found",
	})
}

func ErrInternalError(id int) *ServerMessage {
	return newErrorMessage(id, ErrorPayload{
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
	})
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newErrorMessage(id, ErrorPayload{
		Code:    http.StatusServiceUnavailable,
		Message: "service unavailable",
	})
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
