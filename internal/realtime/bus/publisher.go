package bus

import (
	"context"

	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/realtime"
)

// Publisher decouples event publication from the store's critical section:
// Enqueue never blocks, a background goroutine does the network write. Every
// published event is tagged with this instance's origin so forwarders on the
// other end can skip it.
type Publisher struct {
	log    *logger.Logger
	bus    Bus
	origin string
	ch     chan realtime.Event
}

func NewPublisher(ctx context.Context, b Bus, origin string, log *logger.Logger) *Publisher {
	p := &Publisher{
		log:    log.With("component", "EventPublisher"),
		bus:    b,
		origin: origin,
		ch:     make(chan realtime.Event, 256),
	}
	go p.run(ctx)
	return p
}

// Enqueue queues ev for publication. Events are dropped with a warning when
// the buffer is full; remote instances resync from their own subscriptions.
func (p *Publisher) Enqueue(ev realtime.Event) {
	ev.Origin = p.origin
	select {
	case p.ch <- ev:
	default:
		p.log.Warn("Dropping event; publish buffer full", "list_id", ev.ListID, "revision", ev.Revision)
	}
}

func (p *Publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.ch:
			if err := p.bus.Publish(ctx, ev); err != nil {
				p.log.Warn("Failed to publish event", "error", err, "list_id", ev.ListID)
			}
		}
	}
}
