package types

import (
	"time"
)

// Managed key namespaces. A managed key is the bridge-visible stable
// identifier for a node in the gateway subtree.
const (
	RootFolderKey  = "__root__"
	NotePrefix     = "note:"
	FolderPrefix   = "folder:"
	BookmarkPrefix = "bookmark:"
)

// ReverseEventType identifies a locally-captured bookmark mutation.
type ReverseEventType string

const (
	EventBookmarkCreated ReverseEventType = "bookmark_created"
	EventBookmarkUpdated ReverseEventType = "bookmark_updated"
	EventBookmarkDeleted ReverseEventType = "bookmark_deleted"
	EventFolderRenamed   ReverseEventType = "folder_renamed"
)

// ReverseSchemaVersion is the schema tag carried by every ReverseEvent.
const ReverseSchemaVersion = "1"

// ReverseEvent is one captured local mutation, queued for delivery to
// the bridge.
type ReverseEvent struct {
	BatchID       string           `json:"batchId"`
	EventID       string           `json:"eventId"`
	Type          ReverseEventType `json:"type"`
	BookmarkID    string           `json:"bookmarkId"`
	ManagedKey    string           `json:"managedKey"`
	Title         string           `json:"title,omitempty"`
	URL           string           `json:"url,omitempty"`
	ParentID      string           `json:"parentId,omitempty"`
	MoveIndex     *int             `json:"moveIndex,omitempty"`
	OccurredAt    string           `json:"occurredAt"`
	SchemaVersion string           `json:"schemaVersion"`
}

// QueueItem wraps a ReverseEvent with its delivery bookkeeping.
type QueueItem struct {
	Event      ReverseEvent `json:"event"`
	RetryCount int          `json:"retryCount"`
	EnqueuedAt string       `json:"enqueuedAt"`
}

// SuppressionState gates outbound capture while (and shortly after)
// the bridge mutates local bookmarks.
type SuppressionState struct {
	ApplyEpoch     bool    `json:"applyEpoch"`
	EpochStartedAt *string `json:"epochStartedAt"`
	CooldownUntil  *int64  `json:"cooldownUntil"` // epoch milliseconds
}

// DedupeLedger maps clientId -> dedupeKey -> epoch-ms of first sight.
// Entries older than the ledger TTL are evicted on access.
type DedupeLedger map[string]map[string]int64

// OutboundDedupeClient is the synthetic client id under which locally
// generated eventIds are deduped, keeping them segregated from peers.
const OutboundDedupeClient = "outbound"

// ManagedState is the single durable record the whole pipeline shares.
// It is created with defaults on first run, mutated only through
// component APIs, and persisted after every mutation.
type ManagedState struct {
	Folders          map[string]string `json:"folders"`
	Bookmarks        map[string]string `json:"bookmarks"`
	IDToKey          map[string]string `json:"idToKey"`
	Queue            []QueueItem       `json:"queue"`
	Suppression      SuppressionState  `json:"suppressionState"`
	Dedupe           DedupeLedger      `json:"dedupe"`
	ImportInProgress bool              `json:"importInProgress"`
}

// SessionStatus is the connection lifecycle state of the WebSocket
// session, persisted for the status surface.
type SessionStatus string

const (
	SessionDisconnected SessionStatus = "disconnected"
	SessionConnecting   SessionStatus = "connecting"
	SessionConnected    SessionStatus = "connected"
	SessionReconnecting SessionStatus = "reconnecting"
)

// Heartbeat interval bounds in milliseconds.
const (
	HeartbeatMinMs     = 1000
	HeartbeatMaxMs     = 120000
	HeartbeatDefaultMs = 25000
)

// SessionState is the persisted WebSocket session summary.
type SessionState struct {
	Status           SessionStatus `json:"status"`
	ActiveClientID   string        `json:"activeClientId"`
	WSURL            string        `json:"wsUrl"`
	ReconnectAttempt int           `json:"reconnectAttempt"`
	HeartbeatMs      int           `json:"heartbeatMs"`
	LastConnectedAt  string        `json:"lastConnectedAt,omitempty"`
	LastError        string        `json:"lastError,omitempty"`
	QueuedInbound    int           `json:"queuedInbound"`
	QueuedOutbound   int           `json:"queuedOutbound"`
}

// ClientProfile is one configured bridge endpoint.
type ClientProfile struct {
	ClientID string `json:"clientId" yaml:"clientId"`
	URL      string `json:"url" yaml:"url"`
	WSURL    string `json:"wsUrl" yaml:"wsUrl"`
	Token    string `json:"token" yaml:"token"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Priority int    `json:"priority" yaml:"priority"` // clamped to [-1000, 1000]
}

// BridgeConfig is the persisted bridge configuration surface.
type BridgeConfig struct {
	AutoSync       bool            `json:"autoSync" yaml:"autoSync"`
	ActiveClientID string          `json:"activeClientId" yaml:"activeClientId"`
	Profiles       []ClientProfile `json:"profiles" yaml:"profiles"`
}

// Default bridge endpoints.
const (
	DefaultBridgeWSURL   = "ws://127.0.0.1:27123/ws"
	DefaultBridgeHTTPURL = "http://127.0.0.1:27123/payload"
)

// ProfilePriorityBound clamps profile priorities to [-1000, 1000].
const ProfilePriorityBound = 1000

// ActiveProfile resolves the profile the session manager should use:
// the enabled profile matching ActiveClientID wins; otherwise the
// highest-priority enabled profile; otherwise the first profile.
// Returns nil when no profiles are configured.
func (c *BridgeConfig) ActiveProfile() *ClientProfile {
	if c == nil || len(c.Profiles) == 0 {
		return nil
	}
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.Enabled && p.ClientID == c.ActiveClientID {
			return p
		}
	}
	var best *ClientProfile
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if !p.Enabled {
			continue
		}
		if best == nil || clampPriority(p.Priority) > clampPriority(best.Priority) {
			best = p
		}
	}
	if best != nil {
		return best
	}
	return &c.Profiles[0]
}

func clampPriority(p int) int {
	if p > ProfilePriorityBound {
		return ProfilePriorityBound
	}
	if p < -ProfilePriorityBound {
		return -ProfilePriorityBound
	}
	return p
}

// LegacyAckStatus is the legacy/HTTP ack vocabulary; the reconciler
// keys its dispositions off these values.
type LegacyAckStatus string

const (
	LegacyApplied          LegacyAckStatus = "applied"
	LegacyDuplicate        LegacyAckStatus = "duplicate"
	LegacySkippedAmbiguous LegacyAckStatus = "skipped_ambiguous"
	LegacySkippedUnmanaged LegacyAckStatus = "skipped_unmanaged"
	LegacyRejectedInvalid  LegacyAckStatus = "rejected_invalid"
)

// AckResult is the bridge's per-event outcome.
type AckResult struct {
	EventID      string `json:"eventId"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	ResolvedKey  string `json:"resolvedKey,omitempty"`
	ResolvedPath string `json:"resolvedPath,omitempty"`
}

// BatchAckResponse is the bridge's reply to one reverse batch.
type BatchAckResponse struct {
	BatchID string      `json:"batchId"`
	Results []AckResult `json:"results"`
}

// ReverseBatch is the HTTP fallback request body.
type ReverseBatch struct {
	BatchID string         `json:"batchId"`
	Events  []ReverseEvent `json:"events"`
	SentAt  string         `json:"sentAt"`
}

// DebugEvent is one entry of the operator-facing debug timeline.
type DebugEvent struct {
	At      string `json:"at"`
	Level   string `json:"level"`
	Event   string `json:"event"`
	Summary string `json:"summary,omitempty"`
}

// NowISO returns the current UTC time as an ISO-8601 string, the
// timestamp format used on the wire and in persisted state.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// EpochMs returns the current time as epoch milliseconds, the format
// used for cooldown deadlines and dedupe timestamps.
func EpochMs() int64 {
	return time.Now().UnixMilli()
}
