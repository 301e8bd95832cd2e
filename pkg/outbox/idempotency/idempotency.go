// Package idempotency deduplicates Pub/Sub deliveries of ledger events per
// consumer. Pub/Sub is at-least-once, so a usage projection would otherwise
// count a deduction twice when a message is redelivered.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/pkg/redis"
)

// DefaultTTL covers Pub/Sub's maximum message retention, after which a
// redelivery can no longer happen.
const DefaultTTL = 7 * 24 * time.Hour

// Manager marks ledger event IDs as processed under
// ss:idempotency:evt:processed:<consumer>:<event_id>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

// NewManager keeps marks for ttl; zero means DefaultTTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed reports whether the consumer has already handled
// eventID, marking it handled when it has not. The mark stores when it was set.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s processed by %s: %w", eventID, consumer, err)
	}
	return !set, nil
}

// Release drops the mark so a redelivery is handled again. Consumers call it
// when their handler failed after the mark was set.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
