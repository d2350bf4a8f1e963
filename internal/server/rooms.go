package server

import (
	"strings"
	"sync"
)

type roomKind string

const (
	userRoom    roomKind = "user"
	projectRoom roomKind = "project"
)

// RoomId names a user or project room, e.g. "project:42".
type RoomId struct {
	kind roomKind
	id   string
}

func UserRoom(userId string) RoomId {
	return RoomId{kind: userRoom, id: userId}
}

func ProjectRoom(projectId string) RoomId {
	return RoomId{kind: projectRoom, id: projectId}
}

func (r RoomId) String() string {
	return string(r.kind) + ":" + r.id
}

// ParseRoomId is the inverse of RoomId.String.
func ParseRoomId(s string) (RoomId, bool) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return RoomId{}, false
	}

	switch roomKind(kind) {
	case userRoom, projectRoom:
		return RoomId{kind: roomKind(kind), id: id}, true
	}
	return RoomId{}, false
}

// RoomManager holds in-memory room subscriptions. Membership is only valid
// while the connection is open; nothing here is persisted.
type RoomManager struct {
	mu          sync.RWMutex
	rooms       map[RoomId]map[*Client]struct{}
	memberships map[*Client]map[RoomId]struct{}
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:       make(map[RoomId]map[*Client]struct{}),
		memberships: make(map[*Client]map[RoomId]struct{}),
	}
}

// Join adds c to room. It refuses connections already torn down so a join
// that raced a disconnect cannot leave a dangling member.
func (rm *RoomManager) Join(room RoomId, c *Client) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if c.isClosed() {
		return false
	}

	if rm.rooms[room] == nil {
		rm.rooms[room] = make(map[*Client]struct{})
	}
	rm.rooms[room][c] = struct{}{}

	if rm.memberships[c] == nil {
		rm.memberships[c] = make(map[RoomId]struct{})
	}
	rm.memberships[c][room] = struct{}{}

	return true
}

func (rm *RoomManager) Leave(room RoomId, c *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.leave(room, c)
}

// LeaveAll removes c from every room and returns how many it was in.
func (rm *RoomManager) LeaveAll(c *Client) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	joined := rm.memberships[c]
	n := len(joined)
	for room := range joined {
		rm.leave(room, c)
	}

	return n
}

func (rm *RoomManager) leave(room RoomId, c *Client) {
	if members, ok := rm.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(rm.rooms, room)
		}
	}

	if joined, ok := rm.memberships[c]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(rm.memberships, c)
		}
	}
}

func (rm *RoomManager) IsMember(room RoomId, c *Client) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	_, ok := rm.rooms[room][c]
	return ok
}

// Members returns the union of the members of rooms, each connection once.
func (rm *RoomManager) Members(rooms ...RoomId) []*Client {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	seen := make(map[*Client]struct{})
	var members []*Client
	for _, room := range rooms {
		for c := range rm.rooms[room] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			members = append(members, c)
		}
	}

	return members
}

func (rm *RoomManager) NumRooms() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return len(rm.rooms)
}
