// Package broadcast implements the per-tenant real-time message hub.
//
// Cascade effects publish here after commit. Delivery is best-effort: a slow
// or dead subscriber is dropped, never waited on, and publish failures do not
// affect committed state.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/pkg/logger"
)

// Subscriber receives messages for one tenant topic.
type Subscriber interface {
	Send(payload []byte) error
	Close()
}

// Hub fans broadcast messages out to tenant-scoped subscribers. Implements
// cascade.Broadcaster.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[Subscriber]struct{})}
}

// Register adds a subscriber to the tenant topic.
func (h *Hub) Register(tenantID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[tenantID]; !ok {
		h.topics[tenantID] = make(map[Subscriber]struct{})
	}
	h.topics[tenantID][sub] = struct{}{}
}

// Unregister removes a subscriber from the tenant topic.
func (h *Hub) Unregister(tenantID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[tenantID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, tenantID)
		}
	}
}

// Publish implements cascade.Broadcaster. Subscribers whose send fails are
// closed and dropped.
func (h *Hub) Publish(ctx context.Context, tenantID string, msg domain.BroadcastMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Error("marshal broadcast message",
			zap.String("tenant_id", tenantID),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[tenantID]
	if !ok {
		return
	}
	for sub := range subs {
		if err := sub.Send(payload); err != nil {
			sub.Close()
			delete(subs, sub)
		}
	}
	if len(subs) == 0 {
		delete(h.topics, tenantID)
	}
}

// SubscriberCount reports the number of live subscribers for a tenant.
func (h *Hub) SubscriberCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[tenantID])
}
