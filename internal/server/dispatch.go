package server

import (
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/bidroom/internal/ratelimit"
	"github.com/npezzotti/bidroom/internal/types"
)

const (
	reasonUnauthenticated  = "authentication required"
	reasonMalformed        = "malformed payload"
	reasonForeignUserRoom  = "cannot join another user's room"
	reasonProjectAccess    = "not a participant of this project"
	reasonSelfMessage      = "cannot send a message to yourself"
	reasonNotReceiver      = "only the receiver can mark a message as read"
	reasonTypingImpersonal = "typing events must be sent as yourself"
)

// handleFrame decodes one inbound frame and dispatches it. Frames from the
// same connection are handled in arrival order on its read goroutine.
func (cs *ChatServer) handleFrame(c *Client, raw []byte) {
	c.touch(cs.now())

	id, ev, err := decodeEvent(raw)
	if err != nil {
		c.log.Debugw("rejecting frame", "error", err)
		cs.recordViolation(c, id, reasonMalformed)
		return
	}

	cs.dispatch(c, id, ev)
}

func (cs *ChatServer) dispatch(c *Client, id int, ev Event) {
	if c.isClosed() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("panic while handling event", "event", ev.eventName(), "panic", r)
			cs.stats.Incr(metricErrors)
			c.queueMessage(ErrInternalError(id))
		}
	}()

	if _, ok := ev.(*HeartbeatResponse); !ok && !c.authenticated() {
		cs.recordViolation(c, id, reasonUnauthenticated)
		return
	}

	switch e := ev.(type) {
	case *HeartbeatResponse:
		// activity was refreshed when the frame arrived
	case *JoinUserRoom:
		cs.handleJoinUserRoom(c, id, e)
	case *JoinProjectRoom:
		cs.handleJoinProjectRoom(c, id, e)
	case *SendMessage:
		cs.handleSendMessage(c, id, e)
	case *MarkMessageRead:
		cs.handleMarkRead(c, id, e)
	case *Typing:
		cs.handleTyping(c, id, e)
	default:
		cs.recordViolation(c, id, reasonMalformed)
	}
}

func (cs *ChatServer) consume(c *Client, action string) ratelimit.Decision {
	rule, ok := cs.opts.Limits[action]
	if !ok {
		return ratelimit.Decision{Allowed: true}
	}

	ctx, cancel := cs.checkContext(c)
	defer cancel()

	return cs.limiter.TryConsume(ctx, action, c.identity.UserId, rule.Window, rule.Max)
}

func (cs *ChatServer) canAccess(c *Client, projectId string) (bool, error) {
	ctx, cancel := cs.checkContext(c)
	defer cancel()

	return cs.access.CanAccessProject(ctx, c.identity.UserId, projectId)
}

func (cs *ChatServer) handleJoinUserRoom(c *Client, id int, e *JoinUserRoom) {
	if e.UserId != c.identity.UserId {
		cs.recordViolation(c, id, reasonForeignUserRoom)
		return
	}

	room := UserRoom(e.UserId)
	if !cs.rooms.Join(room, c) {
		return
	}

	c.queueMessage(newServerMessage(id, EventRoomJoined, RoomJoined{Room: room.String()}))
}

func (cs *ChatServer) handleJoinProjectRoom(c *Client, id int, e *JoinProjectRoom) {
	projectId := strings.TrimSpace(e.ProjectId)
	if projectId == "" {
		cs.recordViolation(c, id, reasonMalformed)
		return
	}

	d := cs.consume(c, ActionJoinRoom)
	if c.isClosed() {
		return
	}
	if !d.Allowed {
		c.queueMessage(ErrRateLimited(id, d.ResetAt))
		return
	}

	ok, err := cs.canAccess(c, projectId)
	if c.isClosed() {
		return
	}
	if err != nil {
		c.log.Warnw("project access check failed", "project", projectId, "error", err)
		c.queueMessage(ErrServiceUnavailable(id))
		return
	}
	if !ok {
		cs.recordViolation(c, id, reasonProjectAccess)
		return
	}

	room := ProjectRoom(projectId)
	if !cs.rooms.Join(room, c) {
		return
	}

	c.queueMessage(newServerMessage(id, EventRoomJoined, RoomJoined{Room: room.String()}))
}

// handleSendMessage runs the send pipeline: rate limit, sanitize,
// self-message check, project access, then broadcast and acknowledge.
func (cs *ChatServer) handleSendMessage(c *Client, id int, e *SendMessage) {
	d := cs.consume(c, ActionSendMessage)
	if c.isClosed() {
		return
	}
	if !d.Allowed {
		c.queueMessage(ErrRateLimited(id, d.ResetAt))
		return
	}

	env, ok := cs.sanitize(c, e)
	if !ok {
		cs.recordViolation(c, id, reasonMalformed)
		return
	}

	if env.ReceiverId == env.SenderId {
		cs.recordViolation(c, id, reasonSelfMessage)
		return
	}

	allowed, err := cs.canAccess(c, env.ProjectId)
	if c.isClosed() {
		return
	}
	if err != nil {
		c.log.Warnw("project access check failed", "project", env.ProjectId, "error", err)
		c.queueMessage(ErrServiceUnavailable(id))
		return
	}
	if !allowed {
		cs.recordViolation(c, id, reasonProjectAccess)
		return
	}

	correlationId, err := cs.newId()
	if err != nil {
		c.log.Errorw("failed to generate correlation id", "error", err)
		cs.stats.Incr(metricErrors)
		c.queueMessage(ErrInternalError(id))
		return
	}
	env.Id = correlationId
	env.SentAt = cs.now()

	n := cs.broadcast(newServerMessage(0, EventNewMessage, env),
		ProjectRoom(env.ProjectId), UserRoom(env.ReceiverId))
	cs.stats.Incr(metricMessagesSent)
	c.log.Debugw("message broadcast", "project", env.ProjectId, "receiver", env.ReceiverId, "delivered", n)

	c.queueMessage(newServerMessage(id, EventMessageSent, MessageSent{CorrelationId: correlationId}))
}

// sanitize builds the outgoing envelope. The sender always comes from the
// connection identity, whatever the client claimed.
func (cs *ChatServer) sanitize(c *Client, e *SendMessage) (types.Envelope, bool) {
	env := types.Envelope{
		ProjectId:  strings.TrimSpace(e.ProjectId),
		SenderId:   c.identity.UserId,
		ReceiverId: strings.TrimSpace(e.ReceiverId),
		Text:       strings.TrimSpace(e.Text),
	}

	if utf8.RuneCountInString(env.Text) > cs.opts.MaxTextLength {
		env.Text = string([]rune(env.Text)[:cs.opts.MaxTextLength])
	}

	for _, a := range e.Attachments {
		if strings.TrimSpace(a.Url) == "" {
			continue
		}
		if cs.opts.MaxAttachments > 0 && len(env.Attachments) == cs.opts.MaxAttachments {
			break
		}
		env.Attachments = append(env.Attachments, a)
	}

	if env.ProjectId == "" || env.ReceiverId == "" {
		return env, false
	}
	if env.Text == "" && len(env.Attachments) == 0 {
		return env, false
	}

	return env, true
}

func (cs *ChatServer) handleMarkRead(c *Client, id int, e *MarkMessageRead) {
	messageId := strings.TrimSpace(e.MessageId)
	if messageId == "" {
		cs.recordViolation(c, id, reasonMalformed)
		return
	}

	d := cs.consume(c, ActionMarkRead)
	if c.isClosed() {
		return
	}
	if !d.Allowed {
		c.queueMessage(ErrRateLimited(id, d.ResetAt))
		return
	}

	ctx, cancel := cs.checkContext(c)
	defer cancel()

	msg, err := cs.db.GetMessage(ctx, messageId)
	if c.isClosed() {
		return
	}
	if errors.Is(err, sql.ErrNoRows) {
		c.queueMessage(ErrNotFound(id))
		return
	}
	if err != nil {
		c.log.Errorw("failed to load message", "message", messageId, "error", err)
		c.queueMessage(ErrServiceUnavailable(id))
		return
	}

	if msg.ReceiverId != c.identity.UserId {
		cs.recordViolation(c, id, reasonNotReceiver)
		return
	}
	if msg.IsRead() {
		return
	}

	updated, err := cs.db.MarkMessageRead(ctx, messageId, cs.now())
	if c.isClosed() {
		return
	}
	if err != nil {
		c.log.Errorw("failed to mark message read", "message", messageId, "error", err)
		c.queueMessage(ErrServiceUnavailable(id))
		return
	}
	if !updated {
		// another connection of the same receiver got there first
		return
	}

	cs.broadcast(newServerMessage(0, EventMessageRead, MessageRead{
		MessageId: messageId,
		ReadBy:    c.identity.UserId,
	}), UserRoom(msg.SenderId))
}

// handleTyping relays typing signals to the project room. Typing is
// best effort: throttled or unverifiable signals are dropped without
// telling the client.
func (cs *ChatServer) handleTyping(c *Client, id int, e *Typing) {
	if e.UserId != c.identity.UserId {
		cs.recordViolation(c, id, reasonTypingImpersonal)
		return
	}

	projectId := strings.TrimSpace(e.ProjectId)
	if projectId == "" {
		cs.recordViolation(c, id, reasonMalformed)
		return
	}

	d := cs.consume(c, ActionTyping)
	if c.isClosed() || !d.Allowed {
		return
	}

	ok, err := cs.canAccess(c, projectId)
	if c.isClosed() {
		return
	}
	if err != nil {
		c.log.Debugw("dropping typing signal", "project", projectId, "error", err)
		return
	}
	if !ok {
		cs.recordViolation(c, id, reasonProjectAccess)
		return
	}

	event := EventUserTyping
	if e.Stopped {
		event = EventUserStoppedTyping
	}

	msg := newServerMessage(0, event, TypingSignal{
		UserId:     c.identity.UserId,
		ProjectId:  projectId,
		ReceiverId: e.ReceiverId,
	})
	msg.SkipClient = c
	cs.broadcast(msg, ProjectRoom(projectId))
}
