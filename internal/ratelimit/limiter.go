package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Rule caps an action at Max hits per Window.
type Rule struct {
	Window time.Duration `mapstructure:"window"`
	Max    int           `mapstructure:"max"`
}

type Decision struct {
	Allowed bool
	Count   int64
	ResetAt time.Time
}

type Limiter struct {
	store Store
	log   *zap.SugaredLogger
}

func NewLimiter(store Store, logger *zap.SugaredLogger) *Limiter {
	return &Limiter{
		store: store,
		log:   logger,
	}
}

func Key(action, subjectId string) string {
	return action + ":" + subjectId
}

// TryConsume counts one hit of action by subjectId. When the store cannot
// be reached the hit is allowed.
func (l *Limiter) TryConsume(ctx context.Context, action, subjectId string, window time.Duration, max int) Decision {
	count, resetAt, err := l.store.Incr(ctx, Key(action, subjectId), window)
	if err != nil {
		l.log.Warnw("rate limit store unavailable, allowing action",
			"action", action,
			"subject", subjectId,
			"error", err,
		)
		return Decision{Allowed: true}
	}

	return Decision{
		Allowed: count <= int64(max),
		Count:   count,
		ResetAt: resetAt,
	}
}
