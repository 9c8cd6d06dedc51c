package download

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber is the slice of a user record the download path needs. The
// payment collaborator owns writes to these fields.
type Subscriber struct {
	UserID                uuid.UUID
	SubscriptionStatus    string
	SubscriptionExpiresAt *time.Time
}

const SubscriptionActive = "active"

// Entitled reports whether the subscriber may download at the given time.
func (s *Subscriber) Entitled(now time.Time) bool {
	if s == nil || s.SubscriptionStatus != SubscriptionActive {
		return false
	}
	return s.SubscriptionExpiresAt == nil || now.Before(*s.SubscriptionExpiresAt)
}
