package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/bidroom/internal/database"
	"github.com/npezzotti/bidroom/internal/ratelimit"
	"github.com/npezzotti/bidroom/internal/stats"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

const (
	metricTotalConnections         = "TotalConnections"
	metricAuthenticatedConnections = "AuthenticatedConnections"
	metricMessagesSent             = "MessagesSent"
	metricErrors                   = "Errors"
)

// rate limited actions
const (
	ActionJoinRoom    = "join-room"
	ActionSendMessage = "send-message"
	ActionMarkRead    = "mark-read"
	ActionTyping      = "typing"
)

var ErrShuttingDown = errors.New("server is shutting down")

// AccessChecker answers whether a user participates in a project. A non-nil
// error means the answer is unknown and the caller must deny.
type AccessChecker interface {
	CanAccessProject(ctx context.Context, userId, projectId string) (bool, error)
}

type RateLimiter interface {
	TryConsume(ctx context.Context, action, subjectId string, window time.Duration, max int) ratelimit.Decision
}

type MessageStore interface {
	GetMessage(ctx context.Context, messageId string) (database.Message, error)
	MarkMessageRead(ctx context.Context, messageId string, readAt time.Time) (bool, error)
}

type Options struct {
	HeartbeatInterval time.Duration             `mapstructure:"heartbeat-interval"`
	StaleAfter        time.Duration             `mapstructure:"stale-after"`
	MaxViolations     int                       `mapstructure:"max-violations"`
	MaxTextLength     int                       `mapstructure:"max-text-length"`
	MaxAttachments    int                       `mapstructure:"max-attachments"`
	CheckTimeout      time.Duration             `mapstructure:"check-timeout"`
	Limits            map[string]ratelimit.Rule `mapstructure:"limits"`
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: time.Minute,
		StaleAfter:        5 * time.Minute,
		MaxViolations:     3,
		MaxTextLength:     5000,
		MaxAttachments:    10,
		CheckTimeout:      5 * time.Second,
		Limits: map[string]ratelimit.Rule{
			ActionJoinRoom:    {Window: time.Minute, Max: 20},
			ActionSendMessage: {Window: time.Minute, Max: 30},
			ActionMarkRead:    {Window: time.Minute, Max: 60},
			ActionTyping:      {Window: 10 * time.Second, Max: 30},
		},
	}
}

func (o Options) validate() error {
	if o.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %s", o.HeartbeatInterval)
	}
	if o.StaleAfter <= 0 {
		return fmt.Errorf("stale threshold must be positive, got %s", o.StaleAfter)
	}
	if o.MaxViolations < 1 {
		return fmt.Errorf("max violations must be at least 1, got %d", o.MaxViolations)
	}
	if o.MaxTextLength < 1 {
		return fmt.Errorf("max text length must be at least 1, got %d", o.MaxTextLength)
	}
	for action, rule := range o.Limits {
		if rule.Window <= 0 || rule.Max < 1 {
			return fmt.Errorf("invalid rate limit for %q: %d per %s", action, rule.Max, rule.Window)
		}
	}
	return nil
}

type stopReq struct {
	done chan struct{}
}

type ChatServer struct {
	log         *zap.SugaredLogger
	db          MessageStore
	access      AccessChecker
	limiter     RateLimiter
	stats       stats.StatsProvider
	rooms       *RoomManager
	opts        Options
	clients     map[uuid.UUID]*Client
	clientsLock sync.RWMutex
	now         func() time.Time
	newId       func() (string, error)
	stop        chan stopReq
	stopped     chan struct{}
	stopOnce    sync.Once
}

func NewChatServer(logger *zap.SugaredLogger, db MessageStore, access AccessChecker,
	limiter RateLimiter, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	su.RegisterMetric(metricTotalConnections)
	su.RegisterMetric(metricAuthenticatedConnections)
	su.RegisterMetric(metricMessagesSent)
	su.RegisterMetric(metricErrors)

	return &ChatServer{
		log:     logger,
		db:      db,
		access:  access,
		limiter: limiter,
		stats:   su,
		rooms:   NewRoomManager(),
		opts:    opts,
		clients: make(map[uuid.UUID]*Client),
		now:     Now,
		newId:   shortid.Generate,
		stop:    make(chan stopReq),
		stopped: make(chan struct{}),
	}, nil
}

// Run drives the heartbeat monitor until Shutdown is called, then closes
// every open connection.
func (cs *ChatServer) Run() {
	ticker := time.NewTicker(cs.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := cs.sweep(cs.now()); n > 0 {
				cs.log.Infof("evicted %d inactive connections", n)
			}
		case req := <-cs.stop:
			clients := cs.getClients()
			cs.log.Infof("closing %d connections", len(clients))
			for _, c := range clients {
				cs.disconnect(c, websocket.CloseGoingAway, "server shutting down")
			}

			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")
	cs.stopOnce.Do(func() { close(cs.stopped) })

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterClient admits an authenticated connection. Callers start the
// Read and Write pumps afterwards.
func (cs *ChatServer) RegisterClient(c *Client) error {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	select {
	case <-cs.stopped:
		return ErrShuttingDown
	default:
	}

	cs.clients[c.id] = c
	cs.stats.Incr(metricTotalConnections)
	cs.stats.Incr(metricAuthenticatedConnections)
	c.log.Infow("connection opened", "role", c.identity.Role, "company", c.identity.CompanyId)

	return nil
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c.id]; !ok {
		return
	}
	delete(cs.clients, c.id)
	cs.stats.Decr(metricAuthenticatedConnections)
}

func (cs *ChatServer) getClients() []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.clients))
	for _, c := range cs.clients {
		clients = append(clients, c)
	}
	return clients
}

func (cs *ChatServer) NumClients() int {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	return len(cs.clients)
}

// disconnect is the only way a connection leaves the Open state. Repeated
// calls are no-ops and report false.
func (cs *ChatServer) disconnect(c *Client, code int, reason string) bool {
	if !c.markClosed(code, reason) {
		return false
	}

	n := cs.rooms.LeaveAll(c)
	cs.removeClient(c)
	c.log.Infow("connection closed", "reason", reason, "rooms", n, "violations", c.violations.Load())

	return true
}

// broadcast delivers msg once to every open member of rooms, except
// msg.SkipClient.
func (cs *ChatServer) broadcast(msg *ServerMessage, rooms ...RoomId) int {
	delivered := 0
	for _, c := range cs.rooms.Members(rooms...) {
		if c == msg.SkipClient {
			continue
		}
		if c.queueMessage(msg) {
			delivered++
		}
	}
	return delivered
}

func (cs *ChatServer) checkContext(c *Client) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, cs.opts.CheckTimeout)
}
