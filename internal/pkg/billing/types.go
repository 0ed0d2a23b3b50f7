package billing

import (
	"context"
	"time"
)

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}

// WebhookResult describes how a verified delivery was handled.
type WebhookResult struct {
	EventID   string
	EventType string
	Kind      EventKind
	Duplicate bool
}

// AccessGranter grants storefront products to the account owning an email,
// or queues pending grants when there is none yet.
type AccessGranter interface {
	Grant(ctx context.Context, email, sessionID string, productIDs []string) error
}

// Locker serializes concurrent deliveries of the same event. release is only
// set when acquired is true.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Archiver keeps a copy of verified raw payloads.
type Archiver interface {
	Archive(ctx context.Context, eventID string, receivedAt time.Time, payload []byte) error
}
