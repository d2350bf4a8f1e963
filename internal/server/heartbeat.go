package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// sweep sends a heartbeat to every open connection and closes the ones
// idle for longer than StaleAfter. It returns the number evicted.
func (cs *ChatServer) sweep(now time.Time) int {
	evicted := 0
	msg := newServerMessage(0, EventHeartbeat, Heartbeat{Timestamp: now})

	for _, c := range cs.getClients() {
		if now.Sub(c.lastActive()) > cs.opts.StaleAfter {
			if cs.disconnect(c, websocket.CloseGoingAway, "inactive") {
				evicted++
			}
			continue
		}
		c.queueMessage(msg)
	}

	return evicted
}

// PushNotification delivers an externally produced payload to the open
// connections in the user's room. It reports whether anyone received it.
func (cs *ChatServer) PushNotification(userId string, payload json.RawMessage) bool {
	if userId == "" {
		return false
	}

	msg := newServerMessage(0, EventNotification, Notification{Payload: payload})
	return cs.broadcast(msg, UserRoom(userId)) > 0
}
