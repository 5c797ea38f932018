package apply

import (
	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/envelope"
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/metrics"
	"github.com/notebridge/marksync/pkg/nodeindex"
	"github.com/notebridge/marksync/pkg/suppress"
	"github.com/notebridge/marksync/pkg/types"
)

// Outcome is the result of applying one inbound action, expressed in
// the legacy ack vocabulary the bridge and the queue reconciler share.
type Outcome struct {
	Status       types.LegacyAckStatus
	Reason       string
	ResolvedKey  string
	ResolvedPath string
}

// Ack builds the ack envelope for this outcome, correlated to the
// action that produced it. The WS status is folded from the legacy one
// and both travel on the frame.
func (o Outcome) Ack(act *envelope.Action, clientID string) *envelope.Ack {
	ack := &envelope.Ack{
		Header:       envelope.NewHeader(envelope.TypeAck, clientID),
		Status:       envelope.FromLegacyStatus(o.Status),
		Reason:       o.Reason,
		ResolvedKey:  o.ResolvedKey,
		ResolvedPath: o.ResolvedPath,
		LegacyStatus: o.Status,
	}
	ack.CorrelationID = act.EventID
	ack.IdempotencyKey = act.IdempotencyKey
	return ack
}

func applied(resolvedKey string) Outcome {
	return Outcome{Status: types.LegacyApplied, ResolvedKey: resolvedKey}
}

func rejected(reason string) Outcome {
	return Outcome{Status: types.LegacyRejectedInvalid, Reason: reason}
}

func ambiguous(err error) Outcome {
	return Outcome{Status: types.LegacySkippedAmbiguous, Reason: err.Error()}
}

// Applier executes inbound actions against the local tree and the
// managed state. The caller owns the state lock and persistence.
type Applier struct {
	tree bookmarks.Store
}

// New builds an Applier over the local tree.
func New(tree bookmarks.Store) *Applier {
	return &Applier{tree: tree}
}

// Bracket runs fn inside an apply epoch: the epoch opens (and is
// persisted) before fn, and on exit, success or failure, the epoch
// closes and the cooldown tail is armed, so observer events fired by
// the apply cannot echo back out.
func Bracket(st *types.ManagedState, persist func(), fn func() Outcome) Outcome {
	suppress.SetApplyEpoch(&st.Suppression, true)
	persist()
	defer func() {
		suppress.SetApplyEpoch(&st.Suppression, false)
		suppress.SetCooldown(&st.Suppression, suppress.CooldownMs)
		persist()
	}()
	return fn()
}

// Apply executes one validated inbound action. Unknown ops are
// rejected; missing required fields reject with a missing_* reason;
// tree failures are reported as skipped_ambiguous with the error text.
func (a *Applier) Apply(st *types.ManagedState, act *envelope.Action) Outcome {
	outcome := a.dispatch(st, act)
	metrics.InboundActionsTotal.WithLabelValues(string(outcome.Status)).Inc()
	logger := log.WithComponent("apply")
	logger.Debug().
		Str("op", act.Op).
		Str("target", act.Target).
		Str("status", string(outcome.Status)).
		Str("reason", outcome.Reason).
		Msg("Applied inbound action")
	return outcome
}

func (a *Applier) dispatch(st *types.ManagedState, act *envelope.Action) Outcome {
	switch act.Op {
	case "bookmark_created":
		return a.createBookmark(st, act)
	case "bookmark_updated":
		return a.updateBookmark(st, act)
	case "bookmark_deleted":
		return a.deleteBookmark(st, act)
	case "folder_renamed":
		return a.renameFolder(st, act)
	case "bookmark_moved":
		return a.moveBookmark(st, act)
	case "snapshot":
		return a.applySnapshot(st, act)
	default:
		return rejected("unsupported_action")
	}
}

func (a *Applier) createBookmark(st *types.ManagedState, act *envelope.Action) Outcome {
	parentRef := strField(act.Payload, "parentId")
	if parentRef == "" {
		return rejected("missing_parent_id")
	}
	parentID, ok := a.resolveFolder(st, parentRef)
	if !ok {
		return rejected("missing_parent_id")
	}

	index := intField(act.Payload, "index")
	node, err := a.tree.Create(parentID, strField(act.Payload, "title"), strField(act.Payload, "url"), index)
	if err != nil {
		return ambiguous(err)
	}

	key := strField(act.Payload, "managedKey")
	if key == "" {
		key = act.Target
	}
	if key == "" {
		key = node.ID
	}
	st.Bookmarks[key] = node.ID
	nodeindex.RecordMapping(st, node.ID, key)
	return applied(key)
}

func (a *Applier) updateBookmark(st *types.ManagedState, act *envelope.Action) Outcome {
	id, ok := a.resolveBookmark(st, act)
	if !ok {
		return rejected("missing_bookmark_id")
	}

	title := optField(act.Payload, "title")
	url := optField(act.Payload, "url")
	if _, err := a.tree.Update(id, title, url); err != nil {
		return ambiguous(err)
	}

	key := strField(act.Payload, "managedKey")
	if key == "" {
		key = act.Target
	}
	if key == "" {
		key = id
	}
	return applied(key)
}

func (a *Applier) deleteBookmark(st *types.ManagedState, act *envelope.Action) Outcome {
	id, ok := a.resolveBookmark(st, act)
	if !ok {
		return rejected("missing_bookmark_id")
	}
	if err := a.tree.Remove(id); err != nil {
		return ambiguous(err)
	}
	if key := nodeindex.KeyForID(st, id); key != "" {
		delete(st.Bookmarks, key)
	}
	delete(st.IDToKey, id)
	return Outcome{Status: types.LegacyApplied}
}

func (a *Applier) renameFolder(st *types.ManagedState, act *envelope.Action) Outcome {
	ref := strField(act.Payload, "bookmarkId")
	if ref == "" {
		ref = strField(act.Payload, "managedKey")
	}
	if ref == "" {
		ref = act.Target
	}
	if ref == "" {
		return rejected("missing_bookmark_id")
	}

	id, ok := a.resolveFolder(st, ref)
	if !ok {
		return rejected("missing_bookmark_id")
	}
	title := optField(act.Payload, "title")
	if title == nil {
		return rejected("missing_title")
	}
	if _, err := a.tree.Update(id, title, nil); err != nil {
		return ambiguous(err)
	}
	return Outcome{Status: types.LegacyApplied}
}

func (a *Applier) moveBookmark(st *types.ManagedState, act *envelope.Action) Outcome {
	id, ok := a.resolveBookmark(st, act)
	if !ok {
		return rejected("missing_bookmark_id")
	}
	parentRef := strField(act.Payload, "parentId")
	if parentRef == "" {
		return rejected("missing_parent_id")
	}
	parentID, ok := a.resolveFolder(st, parentRef)
	if !ok {
		return rejected("missing_parent_id")
	}

	if _, err := a.tree.Move(id, parentID, intField(act.Payload, "index")); err != nil {
		return ambiguous(err)
	}
	return Outcome{Status: types.LegacyApplied}
}

// resolveBookmark finds the local node id an action refers to: an
// explicit bookmarkId wins, then the managed key through the state
// map, then the target as either a key or a raw id.
func (a *Applier) resolveBookmark(st *types.ManagedState, act *envelope.Action) (string, bool) {
	if id := strField(act.Payload, "bookmarkId"); id != "" {
		return id, true
	}
	if key := strField(act.Payload, "managedKey"); key != "" {
		if id, ok := st.Bookmarks[key]; ok {
			return id, true
		}
	}
	if act.Target != "" {
		if id, ok := st.Bookmarks[act.Target]; ok {
			return id, true
		}
		if _, err := a.tree.Get(act.Target); err == nil {
			return act.Target, true
		}
	}
	return "", false
}

// resolveFolder maps a folder reference (managed key or local id) to a
// local folder id.
func (a *Applier) resolveFolder(st *types.ManagedState, ref string) (string, bool) {
	if id, ok := st.Folders[ref]; ok {
		return id, true
	}
	if node, err := a.tree.Get(ref); err == nil && node.IsFolder() {
		return ref, true
	}
	return "", false
}

func strField(payload map[string]any, field string) string {
	if v, ok := payload[field].(string); ok {
		return v
	}
	return ""
}

// optField distinguishes "absent" from "present but empty" so partial
// updates leave untouched fields alone.
func optField(payload map[string]any, field string) *string {
	if v, ok := payload[field].(string); ok {
		return &v
	}
	return nil
}

// intField accepts any JSON number for an index and truncates it.
func intField(payload map[string]any, field string) *int {
	if v, ok := payload[field].(float64); ok {
		n := int(v)
		return &n
	}
	return nil
}
