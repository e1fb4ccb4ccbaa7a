package bus

import (
	"context"
	"sync"

	"github.com/platformbuilds/opsagents/internal/agent"
	"github.com/platformbuilds/opsagents/internal/logging"
	"github.com/platformbuilds/opsagents/internal/models"
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
)

const actionLogLimit = 1000

// MemoryBus is the in-process event bus: events fan out synchronously
// to every handler subscribed to their type, and published actions are
// kept in a bounded in-memory log.
type MemoryBus struct {
	logger logging.Logger

	mu       sync.RWMutex
	handlers map[models.EventType][]agent.EventHandler
	actions  []*models.AgentAction
}

// NewMemoryBus builds an empty in-process bus.
func NewMemoryBus(log corelogger.Logger) *MemoryBus {
	return &MemoryBus{
		logger:   logging.FromCoreLogger(log),
		handlers: make(map[models.EventType][]agent.EventHandler),
	}
}

// Subscribe registers a handler for each given event type.
func (b *MemoryBus) Subscribe(_ context.Context, eventTypes []models.EventType, handler agent.EventHandler) error {
	b.mu.Lock()
	for _, t := range eventTypes {
		b.handlers[t] = append(b.handlers[t], handler)
	}
	b.mu.Unlock()
	b.logger.Debug("Registered bus subscription", "event_types", len(eventTypes))
	return nil
}

// PublishEvent delivers the event to every handler subscribed to its
// type. Handler panics are contained so one subscriber cannot break
// delivery to the others.
func (b *MemoryBus) PublishEvent(ctx context.Context, event *models.SystemEvent) error {
	b.mu.RLock()
	handlers := make([]agent.EventHandler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.deliver(ctx, handler, event)
	}

	b.logger.Debug("Published event", "event_id", event.ID, "type", event.Type, "subscribers", len(handlers))
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, handler agent.EventHandler, event *models.SystemEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("Event handler panicked", "event_id", event.ID, "type", event.Type, "panic", rec)
		}
	}()
	handler(ctx, event)
}

// PublishAction records the action in the bounded action log.
func (b *MemoryBus) PublishAction(_ context.Context, action *models.AgentAction) error {
	b.mu.Lock()
	b.actions = append(b.actions, action)
	if len(b.actions) > actionLogLimit {
		b.actions = b.actions[len(b.actions)-actionLogLimit:]
	}
	b.mu.Unlock()

	b.logger.Debug("Published action", "action_id", action.ID, "agent_id", action.AgentID, "type", action.Type)
	return nil
}

// Actions returns a copy of the recorded action log, oldest first.
func (b *MemoryBus) Actions() []*models.AgentAction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*models.AgentAction, len(b.actions))
	copy(out, b.actions)
	return out
}
