package bus

import (
	"context"

	"github.com/cartsync/cartsync-backend/internal/realtime"
)

// Bus mirrors change events across backend instances so every instance's hub
// fans out the same notifications.
type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error
	Close() error
}

// OriginFilter wraps a forwarder callback so events this instance published
// itself are not broadcast a second time.
func OriginFilter(instanceID string, next func(ev realtime.Event)) func(ev realtime.Event) {
	return func(ev realtime.Event) {
		if ev.Origin != "" && ev.Origin == instanceID {
			return
		}
		next(ev)
	}
}
