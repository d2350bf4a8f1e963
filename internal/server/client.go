package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/bidroom/internal/types"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client is the server-side state of one authenticated websocket
// connection. It is created after the handshake succeeds and lives until
// the single Open -> Closed transition in ChatServer.disconnect.
type Client struct {
	id         uuid.UUID
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *zap.SugaredLogger
	identity   types.Identity
	send       chan *ServerMessage

	// ctx is cancelled at teardown; checks started for this connection run under it
	ctx    context.Context
	cancel context.CancelFunc

	violations   atomic.Int32
	lastActivity atomic.Int64
	closed       atomic.Bool

	// written once by the goroutine that wins the close transition
	closeCode   int
	closeReason string
}

func NewClient(identity types.Identity, conn *websocket.Conn, cs *ChatServer, l *zap.SugaredLogger) *Client {
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l.With("conn", id.String(), "user", identity.UserId),
		identity:   identity,
		send:       make(chan *ServerMessage, sendBufferSize),
		ctx:        ctx,
		cancel:     cancel,
		closeCode:  websocket.CloseNormalClosure,
	}
	c.touch(cs.now())

	return c
}

func (c *Client) Id() uuid.UUID {
	return c.id
}

func (c *Client) Identity() types.Identity {
	return c.identity
}

func (c *Client) authenticated() bool {
	return c.identity.UserId != ""
}

func (c *Client) touch(t time.Time) {
	c.lastActivity.Store(t.UnixNano())
}

func (c *Client) lastActive() time.Time {
	return time.Unix(0, c.lastActivity.Load()).UTC()
}

func (c *Client) isClosed() bool {
	return c.closed.Load()
}

// markClosed performs the Open -> Closed transition. Only the first caller
// gets true.
func (c *Client) markClosed(code int, reason string) bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}

	c.closeCode = code
	c.closeReason = reason
	c.cancel()
	return true
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			if !c.writeServerMessage(msg) {
				return
			}
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		case <-c.ctx.Done():
			c.flush()
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeReason))
			return
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.chatServer.disconnect(c, websocket.CloseNormalClosure, "connection closed")
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch(c.chatServer.now())
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warnf("ws: read: %v", err)
			}
			return
		}

		// frames already buffered when the connection was terminated are dropped
		if c.isClosed() {
			return
		}

		c.chatServer.handleFrame(c, raw)
	}
}

// flush writes whatever was queued before teardown, such as the final
// violation error.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if !c.writeServerMessage(msg) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	if c.isClosed() {
		return false
	}

	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) writeServerMessage(msg *ServerMessage) bool {
	bytes, err := serializeMessage(msg)
	if err != nil {
		c.log.Errorf("failed to serialize message: %v", err)
		return true
	}

	return c.sendMessage(websocket.TextMessage, bytes)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warnf("write message: %s", err)
		}
		return false
	}

	return true
}
