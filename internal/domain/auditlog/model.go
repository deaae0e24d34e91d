package auditlog

import (
	"context"
	"time"
)

// Entry is one append-only operational log record. Entries are never
// mutated; failures to write one are logged but never fail the
// originating operation.
type Entry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Module       string    `json:"module"`
	Action       string    `json:"action"`
	ParentPath   string    `json:"parentPath,omitempty"`
	DocID        string    `json:"docId,omitempty"`
	FriendlyName string    `json:"friendlyName,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	UserID       string    `json:"userId,omitempty"`
}

// Repository appends audit entries.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context) ([]*Entry, error)
}
