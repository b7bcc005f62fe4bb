package liststore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cartsync/cartsync-backend/internal/pkg/apperr"
	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/realtime"
	"github.com/cartsync/cartsync-backend/internal/types"
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

// memAdapter keeps the last saved collection in memory.
type memAdapter struct {
	mu     sync.Mutex
	saved  []*types.ShoppingList
	saves  int
	failed bool
}

func (m *memAdapter) Load(ctx context.Context) ([]*types.ShoppingList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, nil
}

func (m *memAdapter) Save(ctx context.Context, lists []*types.ShoppingList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return errors.New("disk unavailable")
	}
	m.saved = lists
	m.saves++
	return nil
}

func newTestStore(t *testing.T) (*Store, *memAdapter) {
	t.Helper()
	adapter := &memAdapter{}
	store := New(mustTestLogger(t), adapter)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store, adapter
}

func TestRevisionIncrementsByOnePerMutation(t *testing.T) {
	store, _ := newTestStore(t)
	list, err := store.CreateList("", "Weekend")
	if err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	if list.Revision != 0 {
		t.Fatalf("fresh list revision: want=0 got=%d", list.Revision)
	}

	var itemID string
	for i := 0; i < 5; i++ {
		item, rev, err := store.AddItem(list.ID, "thing", "")
		if err != nil {
			t.Fatalf("AddItem %d: %v", i, err)
		}
		if rev != uint64(i+1) {
			t.Fatalf("revision after add %d: want=%d got=%d", i, i+1, rev)
		}
		itemID = item.ID
	}

	rev, err := store.RemoveItem(list.ID, itemID)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if rev != 6 {
		t.Fatalf("revision after remove: want=6 got=%d", rev)
	}
}

func TestAddItemAppearsAtEndUnchecked(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Pantry")

	if _, _, err := store.AddItem(list.ID, "flour", ""); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	item, _, err := store.AddItem(list.ID, "  olive oil  ", "extra virgin")
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	snap, err := store.GetSnapshot(list.ID)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	last := snap.Items[len(snap.Items)-1]
	if last.ID != item.ID {
		t.Fatalf("new item not at end of sequence")
	}
	if last.Text != "olive oil" {
		t.Fatalf("item text: want=%q got=%q", "olive oil", last.Text)
	}
	if last.Checked {
		t.Fatalf("new item must start unchecked")
	}
	if last.Note != "extra virgin" {
		t.Fatalf("item note: want=%q got=%q", "extra virgin", last.Note)
	}
}

func TestAddItemEmptyTextRejected(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Pantry")

	if _, _, err := store.AddItem(list.ID, "   ", ""); !apperr.IsInvalidArgument(err) {
		t.Fatalf("empty text: want invalid_argument, got %v", err)
	}
	snap, _ := store.GetSnapshot(list.ID)
	if snap.Revision != 0 || len(snap.Items) != 0 {
		t.Fatalf("failed validation must not mutate state: rev=%d items=%d", snap.Revision, len(snap.Items))
	}
}

func TestRemoveItemTwiceFailsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Pantry")
	item, _, _ := store.AddItem(list.ID, "rice", "")

	if _, err := store.RemoveItem(list.ID, item.ID); err != nil {
		t.Fatalf("first RemoveItem: %v", err)
	}
	if _, err := store.RemoveItem(list.ID, item.ID); !apperr.IsNotFound(err) {
		t.Fatalf("second RemoveItem: want not_found, got %v", err)
	}
}

func TestDeleteListNotIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Short lived")

	if err := store.DeleteList(list.ID); err != nil {
		t.Fatalf("first DeleteList: %v", err)
	}
	if err := store.DeleteList(list.ID); !apperr.IsNotFound(err) {
		t.Fatalf("second DeleteList: want not_found, got %v", err)
	}
}

func TestCreateListDuplicateID(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.CreateList("groceries", "Groceries"); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	if _, err := store.CreateList("groceries", "Other"); !apperr.IsAlreadyExists(err) {
		t.Fatalf("duplicate id: want already_exists, got %v", err)
	}
}

func TestGroceriesScenario(t *testing.T) {
	store, _ := newTestStore(t)
	list, err := store.CreateList("groceries", "Groceries")
	if err != nil {
		t.Fatalf("CreateList: %v", err)
	}

	ids := map[string]string{}
	for i, text := range []string{"milk", "eggs", "bread"} {
		item, rev, err := store.AddItem(list.ID, text, "")
		if err != nil {
			t.Fatalf("AddItem %q: %v", text, err)
		}
		if rev != uint64(i+1) {
			t.Fatalf("revision after adding %q: want=%d got=%d", text, i+1, rev)
		}
		ids[text] = item.ID
	}

	checked := true
	_, rev, err := store.UpdateItem(list.ID, ids["eggs"], ItemUpdate{Checked: &checked})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if rev != 4 {
		t.Fatalf("revision after check: want=4 got=%d", rev)
	}

	count, rev, err := store.ClearChecked(list.ID)
	if err != nil {
		t.Fatalf("ClearChecked: %v", err)
	}
	if count != 1 {
		t.Fatalf("ClearChecked count: want=1 got=%d", count)
	}
	if rev != 5 {
		t.Fatalf("revision after clear: want=5 got=%d", rev)
	}

	snap, _ := store.GetSnapshot(list.ID)
	if len(snap.Items) != 2 || snap.Items[0].Text != "milk" || snap.Items[1].Text != "bread" {
		t.Fatalf("final items wrong: %+v", snap.Items)
	}
}

func TestConcurrentAddsNoLostUpdate(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Shared")

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := store.AddItem(list.ID, "item", ""); err != nil {
				t.Errorf("AddItem: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, _ := store.GetSnapshot(list.ID)
	if len(snap.Items) != writers {
		t.Fatalf("items: want=%d got=%d", writers, len(snap.Items))
	}
	if snap.Revision != writers {
		t.Fatalf("revision: want=%d got=%d", writers, snap.Revision)
	}
}

func TestReorderItem(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Ordered")
	var ids []string
	for _, text := range []string{"a", "b", "c"} {
		item, _, _ := store.AddItem(list.ID, text, "")
		ids = append(ids, item.ID)
	}

	if _, err := store.ReorderItem(list.ID, ids[2], 0); err != nil {
		t.Fatalf("ReorderItem: %v", err)
	}
	snap, _ := store.GetSnapshot(list.ID)
	got := []string{snap.Items[0].Text, snap.Items[1].Text, snap.Items[2].Text}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order after reorder: want=%v got=%v", want, got)
		}
	}

	if _, err := store.ReorderItem(list.ID, ids[0], 3); !apperr.IsInvalidArgument(err) {
		t.Fatalf("out-of-bounds position: want invalid_argument, got %v", err)
	}
	if _, err := store.ReorderItem(list.ID, ids[0], -1); !apperr.IsInvalidArgument(err) {
		t.Fatalf("negative position: want invalid_argument, got %v", err)
	}
}

func TestBulkCheckSingleRevisionBump(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Bulk")
	var ids []string
	for _, text := range []string{"a", "b", "c"} {
		item, _, _ := store.AddItem(list.ID, text, "")
		ids = append(ids, item.ID)
	}

	count, rev, err := store.BulkCheck(list.ID, []string{ids[0], ids[2], "missing"}, true)
	if err != nil {
		t.Fatalf("BulkCheck: %v", err)
	}
	if count != 2 {
		t.Fatalf("BulkCheck count: want=2 got=%d", count)
	}
	if rev != 4 {
		t.Fatalf("BulkCheck must bump revision exactly once: want=4 got=%d", rev)
	}

	count, rev, err = store.BulkCheck(list.ID, []string{"missing"}, true)
	if err != nil {
		t.Fatalf("BulkCheck no-op: %v", err)
	}
	if count != 0 || rev != 4 {
		t.Fatalf("no-op BulkCheck must not move revision: count=%d rev=%d", count, rev)
	}
}

func TestRenameListMissing(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.RenameList("nope", "New name"); !apperr.IsNotFound(err) {
		t.Fatalf("RenameList missing: want not_found, got %v", err)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Copied")
	store.AddItem(list.ID, "original", "")

	snap, _ := store.GetSnapshot(list.ID)
	snap.Name = "tampered"
	snap.Items[0].Text = "tampered"

	again, _ := store.GetSnapshot(list.ID)
	if again.Name != "Copied" || again.Items[0].Text != "original" {
		t.Fatalf("snapshot aliases live state: %+v", again)
	}
}

func TestDeleteLastItemKeepsList(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Sticky")
	item, _, _ := store.AddItem(list.ID, "only", "")

	if _, err := store.RemoveItem(list.ID, item.ID); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	snap, err := store.GetSnapshot(list.ID)
	if err != nil {
		t.Fatalf("list must survive losing its last item: %v", err)
	}
	if len(snap.Items) != 0 {
		t.Fatalf("items: want=0 got=%d", len(snap.Items))
	}
}

func TestNotifierSeesCommitOrder(t *testing.T) {
	store, _ := newTestStore(t)

	var mu sync.Mutex
	var events []realtime.Event
	store.SetNotifier(func(ev realtime.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	list, _ := store.CreateList("", "Watched")
	store.AddItem(list.ID, "a", "")
	store.AddItem(list.ID, "b", "")
	store.RenameList(list.ID, "Watched closely")

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 4 {
		t.Fatalf("events: want=4 got=%d", len(events))
	}
	if events[0].Event != realtime.EventListCreated || events[0].Revision != 0 {
		t.Fatalf("first event: %+v", events[0])
	}
	for i := 1; i < len(events); i++ {
		if events[i].Revision != uint64(i) {
			t.Fatalf("event %d revision: want=%d got=%d", i, i, events[i].Revision)
		}
		if events[i].List == nil {
			t.Fatalf("event %d missing snapshot", i)
		}
	}
}

func TestSubscribeFreshListSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	list, _ := store.CreateList("", "Empty")

	var attached *types.ShoppingList
	snap, err := store.Subscribe(list.ID, func(snap *types.ShoppingList) { attached = snap })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if attached == nil {
		t.Fatalf("attach callback not invoked")
	}
	if attached != snap {
		t.Fatalf("attach must receive the returned snapshot")
	}
	if snap.Revision != 0 || len(snap.Items) != 0 {
		t.Fatalf("fresh subscription snapshot: rev=%d items=%d", snap.Revision, len(snap.Items))
	}
}

func TestFlushWritesAndRecoversDegraded(t *testing.T) {
	store, adapter := newTestStore(t)
	list, _ := store.CreateList("", "Durable")
	store.AddItem(list.ID, "a", "")

	adapter.mu.Lock()
	adapter.failed = true
	adapter.mu.Unlock()
	if err := store.Flush(context.Background()); err == nil {
		t.Fatalf("Flush should fail while adapter is down")
	}
	if !store.DurabilityDegraded() {
		t.Fatalf("store must report degraded durability after failed save")
	}

	adapter.mu.Lock()
	adapter.failed = false
	adapter.mu.Unlock()
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if store.DurabilityDegraded() {
		t.Fatalf("degraded flag must clear after successful save")
	}

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if len(adapter.saved) != 1 || len(adapter.saved[0].Items) != 1 {
		t.Fatalf("saved collection wrong: %+v", adapter.saved)
	}
}

func TestLoadRestoresState(t *testing.T) {
	adapter := &memAdapter{}
	first := New(mustTestLogger(t), adapter)
	if err := first.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	list, _ := first.CreateList("groceries", "Groceries")
	first.AddItem(list.ID, "milk", "")
	if err := first.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	second := New(mustTestLogger(t), adapter)
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap, err := second.GetSnapshot("groceries")
	if err != nil {
		t.Fatalf("GetSnapshot after restart: %v", err)
	}
	if snap.Revision != 1 || len(snap.Items) != 1 || snap.Items[0].Text != "milk" {
		t.Fatalf("restored state wrong: %+v", snap)
	}
}
