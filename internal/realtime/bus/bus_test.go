package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/realtime"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

// fakeBus records published events; an optional block channel stalls Publish
// until it is closed.
type fakeBus struct {
	mu     sync.Mutex
	events []realtime.Event
	block  chan struct{}
}

func (f *fakeBus) Publish(ctx context.Context, ev realtime.Event) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error {
	return nil
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeBus) first() realtime.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[0]
}

func TestPublisherTagsOrigin(t *testing.T) {
	fake := &fakeBus{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPublisher(ctx, fake, "instance-a", mustTestLogger(t))
	p.Enqueue(realtime.NewEvent(realtime.EventItemAdded, "groceries", 1, nil))

	deadline := time.Now().Add(2 * time.Second)
	for fake.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fake.count() != 1 {
		t.Fatalf("published: want=1 got=%d", fake.count())
	}
	got := fake.first()
	if got.Origin != "instance-a" {
		t.Fatalf("origin: want=instance-a got=%q", got.Origin)
	}
	if got.ListID != "groceries" || got.Revision != 1 {
		t.Fatalf("event body wrong: %+v", got)
	}
}

func TestPublisherDropsWhenBufferFull(t *testing.T) {
	fake := &fakeBus{block: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPublisher(ctx, fake, "inst", mustTestLogger(t))

	// Publish is stalled, so after the buffer fills every further Enqueue
	// must drop rather than block the caller.
	const total = 400
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			p.Enqueue(realtime.NewEvent(realtime.EventItemAdded, "l", uint64(i+1), nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Enqueue blocked on a full buffer")
	}

	close(fake.block)
	deadline := time.Now().Add(3 * time.Second)
	last := -1
	for time.Now().Before(deadline) {
		n := fake.count()
		if n > 0 && n == last {
			break
		}
		last = n
		time.Sleep(50 * time.Millisecond)
	}

	got := fake.count()
	if got == 0 {
		t.Fatalf("nothing was published after unblocking")
	}
	if got >= total {
		t.Fatalf("overflow events must be dropped: published=%d of %d", got, total)
	}
}

func TestOriginFilterSkipsOwnEvents(t *testing.T) {
	var got []realtime.Event
	filter := OriginFilter("me", func(ev realtime.Event) {
		got = append(got, ev)
	})

	self := realtime.NewEvent(realtime.EventItemAdded, "l", 1, nil)
	self.Origin = "me"
	filter(self)

	remote := realtime.NewEvent(realtime.EventItemAdded, "l", 2, nil)
	remote.Origin = "other"
	filter(remote)

	untagged := realtime.NewEvent(realtime.EventItemAdded, "l", 3, nil)
	filter(untagged)

	if len(got) != 2 {
		t.Fatalf("forwarded events: want=2 got=%d", len(got))
	}
	if got[0].Origin != "other" || got[1].Revision != 3 {
		t.Fatalf("wrong events forwarded: %+v", got)
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(`{"type":"event","event":"item_added","list_id":"g","revision":7,"origin":"a"}`)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if ev.Event != realtime.EventItemAdded || ev.ListID != "g" || ev.Revision != 7 || ev.Origin != "a" {
		t.Fatalf("decoded event wrong: %+v", ev)
	}

	if _, err := decodeEvent(`{"revision":`); err == nil {
		t.Fatalf("malformed payload must fail to decode")
	}
}
