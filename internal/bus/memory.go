package bus

import (
	"context"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

// MemoryBus dispatches synchronously in-process: Send/Publish call matching
// handlers directly on the caller's goroutine. Suitable for tests and for a
// single-process deployment where durability across restarts isn't
// required; production deployments needing at-least-once redelivery across
// restarts use FileQueueBus instead.
type MemoryBus struct {
	reg *registry
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{reg: newRegistry()}
}

func (b *MemoryBus) Handle(messageType string, fn HandlerFunc) {
	b.reg.add(messageType, fn)
}

func (b *MemoryBus) Send(ctx context.Context, env Envelope) error {
	handlers := b.reg.get(env.MessageType)
	if len(handlers) == 0 {
		return errNoHandler(env.MessageType)
	}
	return handlers[0](ctx, env)
}

func (b *MemoryBus) Publish(ctx context.Context, env Envelope) error {
	handlers := b.reg.get(env.MessageType)
	var firstErr error
	for _, h := range handlers {
		if err := h(ctx, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return svcerr.New(svcerr.HandlerError, firstErr, "bus: publish %s", env.MessageType)
	}
	return nil
}
