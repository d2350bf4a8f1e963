// Package access answers whether a user may act on a project: owners and
// subcontractors with a submitted bid may, everyone else may not. Results
// are not cached, so a withdrawn bid keeps working for connections that
// already joined the project room.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the store cannot answer. Callers must deny.
var ErrUnavailable = errors.New("project access store unavailable")

type ProjectStore interface {
	GetProjectOwnerId(ctx context.Context, projectId string) (string, error)
	SubmittedBidExists(ctx context.Context, projectId, subcontractorId string) (bool, error)
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          15 * time.Second,
		FailureThreshold: 5,
	}
}

type Oracle struct {
	store   ProjectStore
	breaker *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

func NewOracle(store ProjectStore, cfg BreakerConfig, logger *zap.SugaredLogger) *Oracle {
	o := &Oracle{
		store: store,
		log:   logger,
	}

	o.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "project-access",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a client hanging up mid-check says nothing about the store
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return o
}

// CanAccessProject reports whether userId owns projectId or has a submitted
// bid on it. An unknown project yields false. Any store failure yields
// false together with an error wrapping ErrUnavailable.
func (o *Oracle) CanAccessProject(ctx context.Context, userId, projectId string) (bool, error) {
	if userId == "" || projectId == "" {
		return false, nil
	}

	res, err := o.breaker.Execute(func() (interface{}, error) {
		ownerId, err := o.store.GetProjectOwnerId(ctx, projectId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, fmt.Errorf("get project owner: %w", err)
		}

		if ownerId == userId {
			return true, nil
		}

		exists, err := o.store.SubmittedBidExists(ctx, projectId, userId)
		if err != nil {
			return false, fmt.Errorf("submitted bid exists: %w", err)
		}

		return exists, nil
	})
	if err != nil {
		o.log.Warnw("project access check failed", "user", userId, "project", projectId, "error", err)
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return res.(bool), nil
}
