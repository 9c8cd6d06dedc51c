package job

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const TypeGenerateAll Type = "generate_all"

func (t Type) Valid() bool {
	return t == TypeGenerateAll
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a worker patch may move a job from one
// status to another. processing->processing is a lease heartbeat.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusProcessing || to.Terminal()
	default:
		return false
	}
}

type Job struct {
	ID             uuid.UUID
	AssetID        uuid.UUID
	Type           Type
	Status         Status
	Attempts       int
	MaxAttempts    int
	ErrorMessage   *string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LeaseExpiresAt *time.Time
}

type TransitionInput struct {
	From         Status
	To           Status
	ErrorMessage *string
	Lease        time.Duration
}

// SweepResult counts what a lease sweep did.
type SweepResult struct {
	Requeued int64
	Failed   int64
}

const LeaseExpiredMessage = "lease expired"
