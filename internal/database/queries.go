package database

import (
	"context"
	"time"
)

func (db *PgRepository) GetProjectOwnerId(ctx context.Context, projectId string) (string, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT owner_id FROM projects WHERE id = $1 LIMIT 1",
		projectId,
	)

	var ownerId string
	err := row.Scan(&ownerId)

	return ownerId, err
}

func (db *PgRepository) SubmittedBidExists(ctx context.Context, projectId, subcontractorId string) (bool, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM bids WHERE project_id = $1 AND subcontractor_id = $2 AND status = $3)",
		projectId,
		subcontractorId,
		BidStatusSubmitted,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}

func (db *PgRepository) GetMessage(ctx context.Context, messageId string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, project_id, sender_id, receiver_id, read_at, created_at FROM messages "+
			"WHERE id = $1 LIMIT 1",
		messageId,
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.ProjectId,
		&msg.SenderId,
		&msg.ReceiverId,
		&msg.ReadAt,
		&msg.CreatedAt,
	)

	return msg, err
}

// MarkMessageRead sets the read marker once. It reports false when the
// message was already read.
func (db *PgRepository) MarkMessageRead(ctx context.Context, messageId string, readAt time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET read_at = $2 WHERE id = $1 AND read_at IS NULL",
		messageId,
		readAt.UTC(),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}
