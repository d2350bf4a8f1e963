package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/npezzotti/bidroom/internal/types"
	"github.com/tidwall/gjson"
)

// inbound event names
const (
	EventJoinUserRoom      = "join-user-room"
	EventJoinProjectRoom   = "join-project-room"
	EventSendMessage       = "send-message"
	EventMarkMessageRead   = "mark-message-read"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventHeartbeatResponse = "heartbeat-response"
)

var (
	errMalformedFrame = errors.New("malformed frame")
	errUnknownEvent   = errors.New("unknown event")
)

// Event is one decoded client frame. The concrete types below are the only
// implementations.
type Event interface {
	eventName() string
}

type JoinUserRoom struct {
	UserId string `json:"userId"`
}

type JoinProjectRoom struct {
	ProjectId string `json:"projectId"`
}

// SendMessage carries the client's claim. SenderId is read only so it can
// be discarded; the envelope always takes the connection's identity.
type SendMessage struct {
	ProjectId   string             `json:"projectId"`
	ReceiverId  string             `json:"receiverId"`
	SenderId    string             `json:"senderId,omitempty"`
	Text        string             `json:"text"`
	Attachments []types.Attachment `json:"attachments"`
}

type MarkMessageRead struct {
	MessageId string `json:"messageId"`
}

type Typing struct {
	ProjectId  string `json:"projectId"`
	UserId     string `json:"userId"`
	ReceiverId string `json:"receiverId"`
	Stopped    bool   `json:"-"`
}

type HeartbeatResponse struct{}

func (*JoinUserRoom) eventName() string      { return EventJoinUserRoom }
func (*JoinProjectRoom) eventName() string   { return EventJoinProjectRoom }
func (*SendMessage) eventName() string       { return EventSendMessage }
func (*MarkMessageRead) eventName() string   { return EventMarkMessageRead }
func (*HeartbeatResponse) eventName() string { return EventHeartbeatResponse }

func (t *Typing) eventName() string {
	if t.Stopped {
		return EventTypingStop
	}
	return EventTypingStart
}

// decodeEvent parses {"id": n, "event": "...", "data": {...}}. The id is
// returned even when the rest of the frame is unusable so errors can be
// correlated.
func decodeEvent(raw []byte) (int, Event, error) {
	if !gjson.ValidBytes(raw) {
		return 0, nil, errMalformedFrame
	}

	frame := gjson.ParseBytes(raw)
	if !frame.IsObject() {
		return 0, nil, errMalformedFrame
	}

	id := int(frame.Get("id").Int())

	var ev Event
	switch name := frame.Get("event").String(); name {
	case EventJoinUserRoom:
		ev = &JoinUserRoom{}
	case EventJoinProjectRoom:
		ev = &JoinProjectRoom{}
	case EventSendMessage:
		ev = &SendMessage{}
	case EventMarkMessageRead:
		ev = &MarkMessageRead{}
	case EventTypingStart:
		ev = &Typing{}
	case EventTypingStop:
		ev = &Typing{Stopped: true}
	case EventHeartbeatResponse:
		return id, &HeartbeatResponse{}, nil
	default:
		return id, nil, fmt.Errorf("%w %q", errUnknownEvent, name)
	}

	data := frame.Get("data")
	if !data.Exists() {
		return id, ev, nil
	}
	if !data.IsObject() {
		return id, nil, fmt.Errorf("%w: data must be an object", errMalformedFrame)
	}

	if err := json.Unmarshal([]byte(data.Raw), ev); err != nil {
		return id, nil, fmt.Errorf("%w: %w", errMalformedFrame, err)
	}

	return id, ev, nil
}
