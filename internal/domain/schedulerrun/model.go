package schedulerrun

import (
	"context"
	"time"

	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/types"
)

// Task names, in execution order.
const (
	TaskBackup       = "backup"
	TaskPenalty      = "penaltyRefresh"
	TaskExchangeRate = "exchangeRate"
)

// TaskResult is the outcome of one nightly task.
type TaskResult struct {
	Status     types.TaskStatus `json:"status"`
	DurationMs int64            `json:"durationMs"`
	Error      string           `json:"error,omitempty"`
}

// RunLog is the persisted record of one nightly run, keyed by the Cancun
// calendar date.
type RunLog struct {
	Date          string                `json:"date"`
	Status        types.RunStatus       `json:"status"`
	StartedAt     time.Time             `json:"startedAt"`
	FinishedAt    time.Time             `json:"finishedAt"`
	DurationMs    int64                 `json:"durationMs"`
	Tasks         map[string]TaskResult `json:"tasks"`
	OverallStatus types.RunStatus       `json:"overallStatus"`
}

// Lease is the singleton document that serializes scheduler instances.
// A live lease (unexpired token) blocks new invocations; a lease left by
// a completed run for the same date signals "already ran today".
type Lease struct {
	Token      string    `json:"token"`
	Date       string    `json:"date"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Completed  bool      `json:"completed"`
}

// Repository defines persistence for scheduler run logs and the lease.
type Repository interface {
	GetRun(ctx context.Context, date string) (*RunLog, error)
	SetRun(ctx context.Context, run *RunLog) error

	GetLease(ctx context.Context) (*Lease, docstore.Revision, error)
	// CreateLease writes the lease only when absent.
	CreateLease(ctx context.Context, lease *Lease) error
	// ReplaceLease overwrites the lease conditional on the revision read.
	ReplaceLease(ctx context.Context, lease *Lease, rev docstore.Revision) error
}
