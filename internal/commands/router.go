package commands

import (
	"encoding/json"

	"github.com/cartsync/cartsync-backend/internal/liststore"
	"github.com/cartsync/cartsync-backend/internal/pkg/apperr"
	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/realtime"
	"github.com/cartsync/cartsync-backend/internal/types"
)

const (
	TypeListsCreate       = "lists/create"
	TypeListsDelete       = "lists/delete"
	TypeListsRename       = "lists/rename"
	TypeListsGetAll       = "lists/get_all"
	TypeListsGet          = "lists/get"
	TypeSubscribe         = "subscribe"
	TypeUnsubscribe       = "unsubscribe"
	TypeItemsAdd          = "items/add"
	TypeItemsUpdate       = "items/update"
	TypeItemsRemove       = "items/remove"
	TypeItemsReorder      = "items/reorder"
	TypeItemsBulkCheck    = "items/bulk_check"
	TypeItemsClearChecked = "items/clear_checked"
)

// Envelope is one inbound client command. ID is an opaque client-supplied
// correlation token echoed back verbatim on the response; pointer fields
// distinguish "absent" from zero values for partial updates.
type Envelope struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Type     string          `json:"type"`
	ListID   string          `json:"list_id,omitempty"`
	Name     string          `json:"name,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	Text     *string         `json:"text,omitempty"`
	Note     *string         `json:"note,omitempty"`
	Checked  *bool           `json:"checked,omitempty"`
	Position *int            `json:"position,omitempty"`
	ItemIDs  []string        `json:"item_ids,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response answers exactly one Envelope. Revision carries the list's
// revision after the command; it is always present so revision 0 (a fresh
// list) survives the wire.
type Response struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Type     string          `json:"type"`
	Success  bool            `json:"success"`
	Result   any             `json:"result,omitempty"`
	Revision uint64          `json:"revision"`
	Error    *ErrorBody      `json:"error,omitempty"`
}

// Router statelessly translates wire commands into List Store calls. Every
// command is handled independently; commands against the same list are
// serialized by the store itself, not here.
type Router struct {
	log   *logger.Logger
	store *liststore.Store
	hub   *realtime.Hub
}

func NewRouter(log *logger.Logger, store *liststore.Store, hub *realtime.Hub) *Router {
	return &Router{
		log:   log.With("component", "CommandRouter"),
		store: store,
		hub:   hub,
	}
}

// Dispatch decodes and executes one raw command frame for sess. The second
// return value reports whether the caller still has to deliver the response;
// subscribe queues its own response inside the list's critical section so the
// snapshot frame always precedes the first event frame.
func (r *Router) Dispatch(sess *realtime.Session, raw []byte) (Response, bool) {
	var cmd Envelope
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return fail(nil, apperr.InvalidArgument("malformed command payload: %v", err)), true
	}
	if cmd.Type == "" {
		return fail(cmd.ID, apperr.InvalidArgument("command type is required")), true
	}
	if cmd.Type == TypeSubscribe {
		return r.subscribe(sess, cmd)
	}

	resp := r.handle(sess, cmd)
	resp.ID = cmd.ID
	resp.Type = "result"
	if !resp.Success {
		r.log.Debug("Command failed", "command", cmd.Type, "list_id", cmd.ListID, "code", resp.Error.Code)
	}
	return resp, true
}

// subscribe snapshots and registers in one critical section, queueing the
// response frame to the session before the hub registration so no event can
// overtake the snapshot on the wire.
func (r *Router) subscribe(sess *realtime.Session, cmd Envelope) (Response, bool) {
	_, err := r.store.Subscribe(cmd.ListID, func(snap *types.ShoppingList) {
		resp := Response{
			ID:       cmd.ID,
			Type:     "result",
			Success:  true,
			Result:   snap,
			Revision: snap.Revision,
		}
		payload, merr := json.Marshal(resp)
		if merr != nil {
			r.log.Error("Failed to marshal subscribe response", "list_id", cmd.ListID, "error", merr)
			return
		}
		if sess.Send(payload) {
			r.hub.Subscribe(sess, cmd.ListID)
		}
	})
	if err != nil {
		return fail(cmd.ID, err), true
	}
	return Response{}, false
}

func (r *Router) handle(sess *realtime.Session, cmd Envelope) Response {
	switch cmd.Type {
	case TypeListsCreate:
		list, err := r.store.CreateList(cmd.ListID, cmd.Name)
		if err != nil {
			return fail(nil, err)
		}
		return ok(list, list.Revision)

	case TypeListsDelete:
		if err := r.store.DeleteList(cmd.ListID); err != nil {
			return fail(nil, err)
		}
		return ok(nil, 0)

	case TypeListsRename:
		list, err := r.store.RenameList(cmd.ListID, cmd.Name)
		if err != nil {
			return fail(nil, err)
		}
		return ok(list, list.Revision)

	case TypeListsGetAll:
		return ok(r.store.Lists(), 0)

	case TypeListsGet:
		list, err := r.store.GetSnapshot(cmd.ListID)
		if err != nil {
			return fail(nil, err)
		}
		return ok(list, list.Revision)

	case TypeUnsubscribe:
		if _, err := r.store.GetSnapshot(cmd.ListID); err != nil {
			return fail(nil, err)
		}
		r.hub.Unsubscribe(sess, cmd.ListID)
		return ok(nil, 0)

	case TypeItemsAdd:
		if cmd.Text == nil {
			return fail(nil, apperr.InvalidArgument("text is required"))
		}
		note := ""
		if cmd.Note != nil {
			note = *cmd.Note
		}
		item, revision, err := r.store.AddItem(cmd.ListID, *cmd.Text, note)
		if err != nil {
			return fail(nil, err)
		}
		return ok(item, revision)

	case TypeItemsUpdate:
		item, revision, err := r.store.UpdateItem(cmd.ListID, cmd.ItemID, liststore.ItemUpdate{
			Text:    cmd.Text,
			Checked: cmd.Checked,
			Note:    cmd.Note,
		})
		if err != nil {
			return fail(nil, err)
		}
		return ok(item, revision)

	case TypeItemsRemove:
		revision, err := r.store.RemoveItem(cmd.ListID, cmd.ItemID)
		if err != nil {
			return fail(nil, err)
		}
		return ok(nil, revision)

	case TypeItemsReorder:
		if cmd.Position == nil {
			return fail(nil, apperr.InvalidArgument("position is required"))
		}
		revision, err := r.store.ReorderItem(cmd.ListID, cmd.ItemID, *cmd.Position)
		if err != nil {
			return fail(nil, err)
		}
		return ok(nil, revision)

	case TypeItemsBulkCheck:
		if cmd.Checked == nil {
			return fail(nil, apperr.InvalidArgument("checked is required"))
		}
		count, revision, err := r.store.BulkCheck(cmd.ListID, cmd.ItemIDs, *cmd.Checked)
		if err != nil {
			return fail(nil, err)
		}
		return ok(map[string]int{"count": count}, revision)

	case TypeItemsClearChecked:
		count, revision, err := r.store.ClearChecked(cmd.ListID)
		if err != nil {
			return fail(nil, err)
		}
		return ok(map[string]int{"count": count}, revision)

	default:
		return fail(nil, apperr.InvalidArgument("unknown command type %q", cmd.Type))
	}
}

func ok(result any, revision uint64) Response {
	return Response{Success: true, Result: result, Revision: revision}
}

func fail(id json.RawMessage, err error) Response {
	return Response{
		ID:      id,
		Type:    "result",
		Success: false,
		Error: &ErrorBody{
			Code:    apperr.CodeOf(err),
			Message: apperr.MessageOf(err),
		},
	}
}
