package liststore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/storage"
	"github.com/cartsync/cartsync-backend/internal/types"
	"github.com/cartsync/cartsync-backend/internal/utils"
)

// saver coalesces persistence: mutations mark dirty, one background flush
// writes the whole collection after a short debounce window. Commits never
// wait on storage; a failed write degrades durability (flagged, retried)
// instead of rolling anything back.
type saver struct {
	log      *logger.Logger
	adapter  storage.Adapter
	kick     chan struct{}
	debounce time.Duration
	retry    time.Duration
	flushMu  sync.Mutex
	degraded atomic.Bool
}

func newSaver(log *logger.Logger, adapter storage.Adapter) *saver {
	debounceMs := utils.GetEnvAsInt("SAVE_DEBOUNCE_MS", 500, log)
	retryMs := utils.GetEnvAsInt("SAVE_RETRY_MS", 5000, log)
	return &saver{
		log:      log.With("component", "Saver"),
		adapter:  adapter,
		kick:     make(chan struct{}, 1),
		debounce: time.Duration(debounceMs) * time.Millisecond,
		retry:    time.Duration(retryMs) * time.Millisecond,
	}
}

// MarkDirty never blocks; callers hold list locks.
func (sv *saver) MarkDirty() {
	select {
	case sv.kick <- struct{}{}:
	default:
	}
}

func (sv *saver) Degraded() bool {
	return sv.degraded.Load()
}

// Run drives the debounce loop until ctx is cancelled, then makes a final
// flush of anything still pending.
func (sv *saver) Run(ctx context.Context, snapshot func() []*types.ShoppingList) {
	timer := time.NewTimer(sv.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			// A kick can still be queued when cancellation wins the
			// select; drain it so the dirty signal is not lost.
			select {
			case <-sv.kick:
				pending = true
			default:
			}
			if pending || sv.degraded.Load() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := sv.Flush(flushCtx, snapshot); err != nil {
					sv.log.Error("Final flush failed, recent mutations may be lost", "error", err)
				}
				cancel()
			}
			return
		case <-sv.kick:
			if !pending {
				pending = true
				timer.Reset(sv.debounce)
			}
		case <-timer.C:
			pending = false
			if err := sv.Flush(ctx, snapshot); err != nil {
				pending = true
				timer.Reset(sv.retry)
			}
		}
	}
}

// Flush writes the current collection synchronously and updates the
// degraded flag.
func (sv *saver) Flush(ctx context.Context, snapshot func() []*types.ShoppingList) error {
	sv.flushMu.Lock()
	defer sv.flushMu.Unlock()

	lists := snapshot()
	if err := sv.adapter.Save(ctx, lists); err != nil {
		sv.degraded.Store(true)
		sv.log.Warn("Persistence write failed, durability degraded until next successful flush", "error", err)
		return err
	}
	if sv.degraded.Swap(false) {
		sv.log.Info("Persistence recovered")
	}
	return nil
}
