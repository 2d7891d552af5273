package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is a domain lifecycle event published after a successful commit.
type Event struct {
	Tag       string
	OpType    string // remittance, payout, linked_payout; empty for currency events
	OpID      uuid.UUID
	OpRef     string // human-readable operation id
	OwnerID   uuid.UUID
	OwnerName string
	ActorID   *uuid.UUID
	Currency  string
	Amount    decimal.Decimal
	USD       decimal.Decimal
	Notes     string
	// BalanceChange carries the USD delta applied to the owner's balance for
	// delete events.
	BalanceChange *decimal.Decimal
	// Silent suppresses the external WhatsApp sink; the internal inbox still
	// records the event. Set by cancel-by-time.
	Silent bool
	// InboxDone marks events whose internal notifications were already
	// written transactionally (the watchdog does this for exactly-once).
	InboxDone bool
	At        time.Time
}

// Handler consumes a published event. Handlers run off the command path and
// must not assume a request-scoped context.
type Handler func(ctx context.Context, ev Event)

// Bus is an in-process publish/subscribe dispatcher. Subscribers register at
// startup from the composition root; Publish never blocks the caller on
// subscriber work.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	wg       sync.WaitGroup
	timeout  time.Duration
}

func NewBus() *Bus {
	return &Bus{timeout: 60 * time.Second}
}

// Subscribe registers a handler. Not safe to call concurrently with Publish
// during startup races; register everything before serving traffic.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish dispatches the event to every subscriber sequentially in a
// background goroutine. Domain state is already committed by the time this
// runs; subscriber failures must be handled (and persisted) by the
// subscribers themselves.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		for _, h := range handlers {
			h(ctx, ev)
		}
	}()
}

// Drain waits for in-flight dispatches, bounding the wait. Used on shutdown
// and in tests.
func (b *Bus) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
