package liststore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartsync/cartsync-backend/internal/pkg/apperr"
	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/realtime"
	"github.com/cartsync/cartsync-backend/internal/storage"
	"github.com/cartsync/cartsync-backend/internal/types"
)

// Notifier receives one event per committed mutation, invoked inside the
// affected list's critical section so per-list delivery order equals commit
// order. Implementations must not block.
type Notifier func(ev realtime.Event)

// Store owns the authoritative list state. Mutations on the same list are
// strictly serialized by a per-list mutex; unrelated lists never contend.
// The registry lock (mu) only guards the id -> entry map, it is never held
// across an item mutation.
type Store struct {
	log    *logger.Logger
	mu     sync.RWMutex
	lists  map[string]*listEntry
	saver  *saver
	notify Notifier
}

type listEntry struct {
	mu      sync.Mutex
	deleted bool
	list    *types.ShoppingList
}

// ItemUpdate is a partial item update; nil fields are left unchanged.
type ItemUpdate struct {
	Text    *string
	Checked *bool
	Note    *string
}

func New(log *logger.Logger, adapter storage.Adapter) *Store {
	storeLog := log.With("component", "ListStore")
	return &Store{
		log:    storeLog,
		lists:  make(map[string]*listEntry),
		saver:  newSaver(storeLog, adapter),
		notify: func(realtime.Event) {},
	}
}

// SetNotifier wires the broadcast sink. Must be called before serving
// commands.
func (s *Store) SetNotifier(fn Notifier) {
	if fn == nil {
		fn = func(realtime.Event) {}
	}
	s.notify = fn
}

// Load replaces in-memory state from the adapter. Called once at startup,
// before any command is served.
func (s *Store) Load(ctx context.Context) error {
	lists, err := s.saver.adapter.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = make(map[string]*listEntry, len(lists))
	for _, list := range lists {
		if list.Items == nil {
			list.Items = []types.ListItem{}
		}
		s.lists[list.ID] = &listEntry{list: list}
	}
	s.log.Info("Loaded lists into memory", "lists", len(lists))
	return nil
}

// Start launches the debounced persistence loop; it flushes pending state
// when ctx is cancelled.
func (s *Store) Start(ctx context.Context) {
	go s.saver.Run(ctx, s.snapshotAll)
}

// Flush forces a synchronous save of current state.
func (s *Store) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx, s.snapshotAll)
}

// DurabilityDegraded reports whether the last persistence attempt failed.
func (s *Store) DurabilityDegraded() bool {
	return s.saver.Degraded()
}

func (s *Store) snapshotAll() []*types.ShoppingList {
	s.mu.RLock()
	entries := make([]*listEntry, 0, len(s.lists))
	for _, entry := range s.lists {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	out := make([]*types.ShoppingList, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		if !entry.deleted {
			out = append(out, entry.list.Clone())
		}
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// entry returns the live entry for listID or a not_found error.
func (s *Store) entry(listID string) (*listEntry, error) {
	s.mu.RLock()
	entry, ok := s.lists[listID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("list %q does not exist", listID)
	}
	return entry, nil
}

// CreateList registers a new list. When id is empty an opaque unique
// identifier is generated. Revision starts at 0.
func (s *Store) CreateList(id, name string) (*types.ShoppingList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidArgument("list name must not be empty")
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[id]; exists {
		return nil, apperr.AlreadyExists("list %q already exists", id)
	}

	now := time.Now().UTC()
	list := &types.ShoppingList{
		ID:        id,
		Name:      name,
		Revision:  0,
		Items:     []types.ListItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.lists[id] = &listEntry{list: list}

	snap := list.Clone()
	s.saver.MarkDirty()
	s.notify(realtime.NewEvent(realtime.EventListCreated, id, 0, snap))
	s.log.Info("Created list", "list_id", id, "name", name)
	return snap, nil
}

// DeleteList removes a list. A second delete of the same id fails with
// not_found; deletion is deliberately not idempotent.
func (s *Store) DeleteList(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lists[id]
	if !ok {
		return apperr.NotFound("list %q does not exist", id)
	}

	entry.mu.Lock()
	entry.deleted = true
	revision := entry.list.Revision
	entry.mu.Unlock()
	delete(s.lists, id)

	s.saver.MarkDirty()
	s.notify(realtime.NewEvent(realtime.EventListDeleted, id, revision, nil))
	s.log.Info("Deleted list", "list_id", id)
	return nil
}

// RenameList changes a list's display name.
func (s *Store) RenameList(id, name string) (*types.ShoppingList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidArgument("list name must not be empty")
	}
	return s.mutate(id, realtime.EventListRenamed, func(list *types.ShoppingList) error {
		list.Name = name
		return nil
	})
}

// Lists returns snapshots of every list, ordered by creation time.
func (s *Store) Lists() []*types.ShoppingList {
	return s.snapshotAll()
}

// GetSnapshot returns a copy of the list's current state. It never blocks on
// mutations of other lists.
func (s *Store) GetSnapshot(listID string) (*types.ShoppingList, error) {
	entry, err := s.entry(listID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, apperr.NotFound("list %q does not exist", listID)
	}
	return entry.list.Clone(), nil
}

// Subscribe atomically snapshots the list and runs attach inside the list's
// critical section, so no mutation can broadcast between the snapshot and
// the registration (snapshot-then-stream). attach receives the snapshot so
// callers can deliver it before any later event is queued.
func (s *Store) Subscribe(listID string, attach func(snap *types.ShoppingList)) (*types.ShoppingList, error) {
	entry, err := s.entry(listID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, apperr.NotFound("list %q does not exist", listID)
	}
	snap := entry.list.Clone()
	if attach != nil {
		attach(snap)
	}
	return snap, nil
}

// mutate runs fn on the live list under its lock, and on success bumps the
// revision by exactly 1, marks storage dirty and broadcasts. fn returning an
// error leaves the list untouched.
func (s *Store) mutate(listID string, kind realtime.EventKind, fn func(list *types.ShoppingList) error) (*types.ShoppingList, error) {
	entry, err := s.entry(listID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, apperr.NotFound("list %q does not exist", listID)
	}

	if err := fn(entry.list); err != nil {
		return nil, err
	}

	entry.list.Revision++
	entry.list.UpdatedAt = time.Now().UTC()
	snap := entry.list.Clone()

	s.saver.MarkDirty()
	s.notify(realtime.NewEvent(kind, listID, snap.Revision, snap))
	return snap, nil
}

// AddItem appends a new unchecked item to the end of the list.
func (s *Store) AddItem(listID, text, note string) (*types.ListItem, uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, apperr.InvalidArgument("item text must not be empty")
	}

	var added types.ListItem
	snap, err := s.mutate(listID, realtime.EventItemAdded, func(list *types.ShoppingList) error {
		now := time.Now().UTC()
		added = types.ListItem{
			ID:        uuid.NewString(),
			Text:      text,
			Checked:   false,
			Note:      note,
			CreatedAt: now,
			UpdatedAt: now,
		}
		list.Items = append(list.Items, added)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	s.log.Debug("Added item", "list_id", listID, "item_id", added.ID)
	return &added, snap.Revision, nil
}

// UpdateItem applies a partial update to one item.
func (s *Store) UpdateItem(listID, itemID string, upd ItemUpdate) (*types.ListItem, uint64, error) {
	if upd.Text != nil {
		trimmed := strings.TrimSpace(*upd.Text)
		if trimmed == "" {
			return nil, 0, apperr.InvalidArgument("item text must not be empty")
		}
		upd.Text = &trimmed
	}

	var updated types.ListItem
	snap, err := s.mutate(listID, realtime.EventItemUpdated, func(list *types.ShoppingList) error {
		idx := list.IndexOfItem(itemID)
		if idx < 0 {
			return apperr.NotFound("item %q does not exist in list %q", itemID, listID)
		}
		item := &list.Items[idx]
		if upd.Text != nil {
			item.Text = *upd.Text
		}
		if upd.Checked != nil {
			item.Checked = *upd.Checked
		}
		if upd.Note != nil {
			item.Note = *upd.Note
		}
		item.UpdatedAt = time.Now().UTC()
		updated = *item
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &updated, snap.Revision, nil
}

// RemoveItem deletes one item; its identifier is never reused.
func (s *Store) RemoveItem(listID, itemID string) (uint64, error) {
	snap, err := s.mutate(listID, realtime.EventItemRemoved, func(list *types.ShoppingList) error {
		idx := list.IndexOfItem(itemID)
		if idx < 0 {
			return apperr.NotFound("item %q does not exist in list %q", itemID, listID)
		}
		list.Items = append(list.Items[:idx], list.Items[idx+1:]...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return snap.Revision, nil
}

// ReorderItem moves an item to newPosition (0-based) within its list.
func (s *Store) ReorderItem(listID, itemID string, newPosition int) (uint64, error) {
	snap, err := s.mutate(listID, realtime.EventItemsReordered, func(list *types.ShoppingList) error {
		if newPosition < 0 || newPosition >= len(list.Items) {
			return apperr.InvalidArgument("position %d out of bounds for %d items", newPosition, len(list.Items))
		}
		idx := list.IndexOfItem(itemID)
		if idx < 0 {
			return apperr.NotFound("item %q does not exist in list %q", itemID, listID)
		}
		item := list.Items[idx]
		list.Items = append(list.Items[:idx], list.Items[idx+1:]...)
		list.Items = append(list.Items[:newPosition], append([]types.ListItem{item}, list.Items[newPosition:]...)...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return snap.Revision, nil
}

// BulkCheck sets the checked flag on every listed item id in one revision
// bump. Unknown ids are skipped; it returns how many items matched. When
// nothing matches, state is unchanged and the revision does not move.
func (s *Store) BulkCheck(listID string, itemIDs []string, checked bool) (int, uint64, error) {
	entry, err := s.entry(listID)
	if err != nil {
		return 0, 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return 0, 0, apperr.NotFound("list %q does not exist", listID)
	}

	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}

	now := time.Now().UTC()
	count := 0
	for i := range entry.list.Items {
		if wanted[entry.list.Items[i].ID] {
			entry.list.Items[i].Checked = checked
			entry.list.Items[i].UpdatedAt = now
			count++
		}
	}
	if count == 0 {
		return 0, entry.list.Revision, nil
	}

	entry.list.Revision++
	entry.list.UpdatedAt = now
	snap := entry.list.Clone()
	s.saver.MarkDirty()
	s.notify(realtime.NewEvent(realtime.EventItemsChecked, listID, snap.Revision, snap))
	return count, snap.Revision, nil
}

// ClearChecked removes every checked item atomically as one revision bump
// and returns the count removed. Clearing an already-clean list is a no-op
// that does not move the revision.
func (s *Store) ClearChecked(listID string) (int, uint64, error) {
	entry, err := s.entry(listID)
	if err != nil {
		return 0, 0, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return 0, 0, apperr.NotFound("list %q does not exist", listID)
	}

	kept := entry.list.Items[:0:0]
	for _, item := range entry.list.Items {
		if !item.Checked {
			kept = append(kept, item)
		}
	}
	removed := len(entry.list.Items) - len(kept)
	if removed == 0 {
		return 0, entry.list.Revision, nil
	}

	entry.list.Items = kept
	entry.list.Revision++
	entry.list.UpdatedAt = time.Now().UTC()
	snap := entry.list.Clone()
	s.saver.MarkDirty()
	s.notify(realtime.NewEvent(realtime.EventItemsCleared, listID, snap.Revision, snap))
	s.log.Debug("Cleared checked items", "list_id", listID, "removed", removed)
	return removed, snap.Revision, nil
}
