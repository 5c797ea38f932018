package state

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/types"
)

// Defaults returns a fresh, fully-defaulted state record.
func Defaults() *types.ManagedState {
	return &types.ManagedState{
		Folders:     map[string]string{},
		Bookmarks:   map[string]string{},
		IDToKey:     map[string]string{},
		Queue:       []types.QueueItem{},
		Suppression: types.SuppressionState{},
		Dedupe:      types.DedupeLedger{},
	}
}

// Migrate turns whatever bytes were read from storage into a valid
// state record. Nil, JSON null, scalars, and arrays all become the
// defaulted record; recognized fields are preserved, missing fields
// get their defaults, legacy cooldownUntil strings are coerced to
// epoch-ms, and queue items are never dropped silently.
func Migrate(raw []byte) *types.ManagedState {
	st := Defaults()
	if len(raw) == 0 {
		return st
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return st
	}

	if m := stringMap(fields["folders"]); m != nil {
		st.Folders = m
	}
	if m := stringMap(fields["bookmarks"]); m != nil {
		st.Bookmarks = m
	}
	if m := stringMap(fields["idToKey"]); m != nil {
		st.IDToKey = m
	}
	st.Queue = migrateQueue(fields["queue"])
	st.Suppression = migrateSuppression(fields["suppressionState"])
	st.Dedupe = migrateDedupe(fields["dedupe"])
	if raw, ok := fields["importInProgress"]; ok {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			st.ImportInProgress = b
		}
	}
	return st
}

func stringMap(raw json.RawMessage) map[string]string {
	if raw == nil {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil
	}
	return m
}

func migrateQueue(raw json.RawMessage) []types.QueueItem {
	items := []types.QueueItem{}
	if raw == nil {
		return items
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return items
	}
	for _, entry := range entries {
		var item types.QueueItem
		if err := json.Unmarshal(entry, &item); err != nil {
			logger := log.WithComponent("state")
			logger.Warn().Msg("unreadable queue item dropped during migration")
			continue
		}
		if item.RetryCount < 0 {
			item.RetryCount = 0
		}
		if item.EnqueuedAt == "" {
			item.EnqueuedAt = types.NowISO()
		}
		if item.Event.SchemaVersion == "" {
			item.Event.SchemaVersion = types.ReverseSchemaVersion
		}
		items = append(items, item)
	}
	return items
}

func migrateSuppression(raw json.RawMessage) types.SuppressionState {
	var sup types.SuppressionState
	if raw == nil {
		return sup
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return sup
	}
	if b, ok := fields["applyEpoch"]; ok {
		var v bool
		if json.Unmarshal(b, &v) == nil {
			sup.ApplyEpoch = v
		}
	}
	if s, ok := fields["epochStartedAt"]; ok {
		var v string
		if json.Unmarshal(s, &v) == nil && v != "" {
			sup.EpochStartedAt = &v
		}
	}
	if c, ok := fields["cooldownUntil"]; ok {
		if ms := coerceEpochMs(c); ms != nil {
			sup.CooldownUntil = ms
		}
	}
	return sup
}

// coerceEpochMs accepts the current epoch-ms number plus the legacy
// string encodings (ISO-8601 timestamp or stringified number).
func coerceEpochMs(raw json.RawMessage) *int64 {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ms := t.UnixMilli()
		return &ms
	}
	if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &parsed
	}
	return nil
}

func migrateDedupe(raw json.RawMessage) types.DedupeLedger {
	ledger := types.DedupeLedger{}
	if raw == nil {
		return ledger
	}
	var buckets map[string]json.RawMessage
	if err := json.Unmarshal(raw, &buckets); err != nil || buckets == nil {
		return ledger
	}
	for client, entries := range buckets {
		var keys map[string]int64
		if err := json.Unmarshal(entries, &keys); err != nil || keys == nil {
			continue
		}
		ledger[client] = keys
	}
	return ledger
}
