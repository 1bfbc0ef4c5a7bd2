package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber is a stored subscription. Records are immutable once inserted.
type Subscriber struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// SubscriptionRequest is the url-encoded form posted to /subscriptions.
// Both keys must be present; their values are not checked further.
type SubscriptionRequest struct {
	Name  string `form:"name"`
	Email string `form:"email"`
}

// NewSubscriber builds a record for req with the given identifier and the
// subscription time normalised to UTC.
func NewSubscriber(id uuid.UUID, req SubscriptionRequest, at time.Time) *Subscriber {
	return &Subscriber{
		ID:           id,
		Email:        req.Email,
		Name:         req.Name,
		SubscribedAt: at.UTC(),
	}
}
