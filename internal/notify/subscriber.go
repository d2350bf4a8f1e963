// Package notify feeds notifications published by other services into the
// connection layer.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/npezzotti/bidroom/internal/types"
	"go.uber.org/zap"
)

type Pusher interface {
	PushNotification(userId string, payload json.RawMessage) bool
}

// Subscriber listens on a NATS subject for types.Notification messages.
// Every instance receives every notification and delivers it to the
// connections it holds.
type Subscriber struct {
	url     string
	subject string
	pusher  Pusher
	log     *zap.SugaredLogger
	nc      *nats.Conn
	sub     *nats.Subscription
}

func NewSubscriber(url, subject string, pusher Pusher, logger *zap.SugaredLogger) *Subscriber {
	return &Subscriber{
		url:     url,
		subject: subject,
		pusher:  pusher,
		log:     logger.With("subject", subject),
	}
}

func (s *Subscriber) Start() error {
	nc, err := nats.Connect(s.url,
		nats.Name("bidroom"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	sub, err := nc.Subscribe(s.subject, s.handle)
	if err != nil {
		nc.Close()
		return fmt.Errorf("nats subscribe: %w", err)
	}

	s.nc = nc
	s.sub = sub
	s.log.Info("subscribed to notifications")

	return nil
}

// Stop drains in-flight messages and closes the connection.
func (s *Subscriber) Stop() error {
	if s.nc == nil {
		return nil
	}

	if err := s.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	var n types.Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		s.log.Warnf("dropping malformed notification: %v", err)
		return
	}

	if err := n.Validate(); err != nil {
		s.log.Warnf("dropping invalid notification: %v", err)
		return
	}

	delivered := s.pusher.PushNotification(n.UserId, n.Payload)
	s.log.Debugw("notification handled", "user", n.UserId, "delivered", delivered)
}
