package database

import (
	"context"
	"time"
)

// Repository is the subset of the platform store the real-time layer reads.
// Lookups of missing rows return sql.ErrNoRows.
type Repository interface {
	Ping(ctx context.Context) error
	GetProjectOwnerId(ctx context.Context, projectId string) (string, error)
	SubmittedBidExists(ctx context.Context, projectId, subcontractorId string) (bool, error)
	GetMessage(ctx context.Context, messageId string) (Message, error)
	MarkMessageRead(ctx context.Context, messageId string, readAt time.Time) (bool, error)
}

var (
	_ Repository = (*PgRepository)(nil)
	_ Repository = (*MockRepository)(nil)
)
