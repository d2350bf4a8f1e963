package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Role string

const (
	// RoleContractor can own projects.
	RoleContractor Role = "contractor"
	// RoleSubcontractor can bid on projects.
	RoleSubcontractor Role = "subcontractor"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleContractor, RoleSubcontractor:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserId    string `json:"userId"`
	Role      Role   `json:"role"`
	CompanyId string `json:"companyId,omitempty"`
}

type Attachment struct {
	Url      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Envelope is a chat message in flight. It is never persisted here.
type Envelope struct {
	Id          string       `json:"id"`
	ProjectId   string       `json:"projectId"`
	SenderId    string       `json:"senderId"`
	ReceiverId  string       `json:"receiverId"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	SentAt      time.Time    `json:"sentAt"`
}

// Notification is an externally produced payload addressed to one user.
type Notification struct {
	UserId  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

func (n Notification) Validate() error {
	if n.UserId == "" {
		return errors.New("notification has no user id")
	}
	if len(n.Payload) == 0 || !json.Valid(n.Payload) {
		return errors.New("notification payload must be valid json")
	}
	return nil
}
