package server

import (
	"testing"

	"github.com/npezzotti/bidroom/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_decodeEvent(t *testing.T) {
	tcases := []struct {
		name     string
		raw      string
		expId    int
		expEvent Event
		expErr   error
	}{
		{
			name:     "join user room",
			raw:      `{"id":1,"event":"join-user-room","data":{"userId":"u1"}}`,
			expId:    1,
			expEvent: &JoinUserRoom{UserId: "u1"},
		},
		{
			name:     "join project room",
			raw:      `{"id":2,"event":"join-project-room","data":{"projectId":"p1"}}`,
			expId:    2,
			expEvent: &JoinProjectRoom{ProjectId: "p1"},
		},
		{
			name:  "send message",
			raw:   `{"id":3,"event":"send-message","data":{"projectId":"p1","receiverId":"u2","senderId":"u9","text":"hi","attachments":[{"url":"https://x/y.png","name":"y.png","mimeType":"image/png","size":10}]}}`,
			expId: 3,
			expEvent: &SendMessage{
				ProjectId:   "p1",
				ReceiverId:  "u2",
				SenderId:    "u9",
				Text:        "hi",
				Attachments: []types.Attachment{{Url: "https://x/y.png", Name: "y.png", MimeType: "image/png", Size: 10}},
			},
		},
		{
			name:     "mark read",
			raw:      `{"id":4,"event":"mark-message-read","data":{"messageId":"m1"}}`,
			expId:    4,
			expEvent: &MarkMessageRead{MessageId: "m1"},
		},
		{
			name:     "typing start",
			raw:      `{"event":"typing-start","data":{"projectId":"p1","userId":"u1","receiverId":"u2"}}`,
			expEvent: &Typing{ProjectId: "p1", UserId: "u1", ReceiverId: "u2"},
		},
		{
			name:     "typing stop",
			raw:      `{"event":"typing-stop","data":{"projectId":"p1","userId":"u1"}}`,
			expEvent: &Typing{ProjectId: "p1", UserId: "u1", Stopped: true},
		},
		{
			name:     "heartbeat response ignores data",
			raw:      `{"id":5,"event":"heartbeat-response","data":42}`,
			expId:    5,
			expEvent: &HeartbeatResponse{},
		},
		{
			name:     "missing data",
			raw:      `{"id":6,"event":"join-project-room"}`,
			expId:    6,
			expEvent: &JoinProjectRoom{},
		},
		{
			name:   "invalid json",
			raw:    `{"id":7,`,
			expErr: errMalformedFrame,
		},
		{
			name:   "not an object",
			raw:    `[1,2]`,
			expErr: errMalformedFrame,
		},
		{
			name:   "unknown event keeps id",
			raw:    `{"id":8,"event":"delete-project"}`,
			expId:  8,
			expErr: errUnknownEvent,
		},
		{
			name:   "data not an object",
			raw:    `{"id":9,"event":"send-message","data":"hello"}`,
			expId:  9,
			expErr: errMalformedFrame,
		},
		{
			name:   "wrong field type",
			raw:    `{"id":10,"event":"join-user-room","data":{"userId":17}}`,
			expId:  10,
			expErr: errMalformedFrame,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			id, ev, err := decodeEvent([]byte(tc.raw))
			assert.Equal(t, tc.expId, id)
			if tc.expErr != nil {
				assert.ErrorIs(t, err, tc.expErr)
				assert.Nil(t, ev)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expEvent, ev)
		})
	}
}

func TestEventName(t *testing.T) {
	assert.Equal(t, EventTypingStart, (&Typing{}).eventName())
	assert.Equal(t, EventTypingStop, (&Typing{Stopped: true}).eventName())
	assert.Equal(t, EventSendMessage, (&SendMessage{}).eventName())
}
