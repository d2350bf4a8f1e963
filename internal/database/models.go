package database

import (
	"database/sql"
	"time"
)

const BidStatusSubmitted = "submitted"

type Message struct {
	Id         string
	ProjectId  string
	SenderId   string
	ReceiverId string
	ReadAt     sql.NullTime
	CreatedAt  time.Time
}

func (m Message) IsRead() bool {
	return m.ReadAt.Valid
}
