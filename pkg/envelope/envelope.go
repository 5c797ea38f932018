package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/notebridge/marksync/pkg/types"
)

// SchemaVersion is the wire schema tag carried by every envelope.
const SchemaVersion = "1.0"

// ErrInvalid is returned by Parse for any frame that fails the typed
// schema of its declared type.
var ErrInvalid = errors.New("envelope: invalid message")

// Type discriminates the envelope variants.
type Type string

const (
	TypeHandshake     Type = "handshake"
	TypeHandshakeAck  Type = "handshake_ack"
	TypeAction        Type = "action"
	TypeAck           Type = "ack"
	TypeError         Type = "error"
	TypeHeartbeatPing Type = "heartbeat_ping"
	TypeHeartbeatPong Type = "heartbeat_pong"
)

// AckStatus is the WebSocket-side ack vocabulary.
type AckStatus string

const (
	AckReceived  AckStatus = "received"
	AckApplied   AckStatus = "applied"
	AckDuplicate AckStatus = "duplicate"
	AckSkipped   AckStatus = "skipped"
	AckRejected  AckStatus = "rejected"
)

// Header carries the fields shared by every envelope.
type Header struct {
	Type           Type   `json:"type"`
	EventID        string `json:"eventId"`
	ClientID       string `json:"clientId"`
	OccurredAt     string `json:"occurredAt"`
	SchemaVersion  string `json:"schemaVersion"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	CorrelationID  string `json:"correlationId,omitempty"`
}

// Head exposes the shared fields through the Message interface.
func (h *Header) Head() *Header { return h }

// Message is the closed sum over envelope variants; Parse returns one
// of the concrete types below.
type Message interface {
	Head() *Header
}

// Handshake opens a session; the bridge answers with HandshakeAck.
type Handshake struct {
	Header
	SessionID    string   `json:"sessionId"`
	Token        string   `json:"token"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// HandshakeAck accepts or refuses a session and negotiates the
// heartbeat interval.
type HandshakeAck struct {
	Header
	SessionID   string `json:"sessionId"`
	Accepted    bool   `json:"accepted"`
	HeartbeatMs int    `json:"heartbeatMs"`
}

// Action asks the receiving side to apply one mutation.
type Action struct {
	Header
	Op      string         `json:"op"`
	Target  string         `json:"target"`
	Payload map[string]any `json:"payload"`
}

// Ack reports the outcome of one previously-received action.
type Ack struct {
	Header
	Status       AckStatus             `json:"status"`
	Reason       string                `json:"reason,omitempty"`
	ResolvedPath string                `json:"resolvedPath,omitempty"`
	ResolvedKey  string                `json:"resolvedKey,omitempty"`
	LegacyStatus types.LegacyAckStatus `json:"legacyStatus,omitempty"`
}

// ErrorMessage carries a bridge-side failure report.
type ErrorMessage struct {
	Header
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// HeartbeatPing is a liveness probe; the peer answers with a pong
// correlated to the ping's eventId.
type HeartbeatPing struct {
	Header
}

// HeartbeatPong answers a ping.
type HeartbeatPong struct {
	Header
}

// NewHeader mints a header for an outgoing envelope: fresh eventId,
// current timestamp, current schema version.
func NewHeader(t Type, clientID string) Header {
	return Header{
		Type:          t,
		EventID:       uuid.NewString(),
		ClientID:      clientID,
		OccurredAt:    types.NowISO(),
		SchemaVersion: SchemaVersion,
	}
}

// Marshal serializes a message to its wire frame.
func Marshal(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// wire mirrors the union of all envelope fields with pointer types so
// that presence and JSON type mismatches are both detectable.
type wire struct {
	Type           *string `json:"type"`
	EventID        *string `json:"eventId"`
	ClientID       *string `json:"clientId"`
	OccurredAt     *string `json:"occurredAt"`
	SchemaVersion  *string `json:"schemaVersion"`
	IdempotencyKey *string `json:"idempotencyKey"`
	CorrelationID  *string `json:"correlationId"`

	SessionID    *string   `json:"sessionId"`
	Token        *string   `json:"token"`
	Capabilities *[]string `json:"capabilities"`

	Accepted    *bool        `json:"accepted"`
	HeartbeatMs *json.Number `json:"heartbeatMs"`

	Op      *string         `json:"op"`
	Target  *string         `json:"target"`
	Payload json.RawMessage `json:"payload"`

	Status       *string `json:"status"`
	Reason       *string `json:"reason"`
	ResolvedPath *string `json:"resolvedPath"`
	ResolvedKey  *string `json:"resolvedKey"`
	LegacyStatus *string `json:"legacyStatus"`

	Code      *string         `json:"code"`
	Message   *string         `json:"message"`
	Retryable *bool           `json:"retryable"`
	Details   json.RawMessage `json:"details"`
}

// Parse validates an already-received frame against the typed schema
// for its declared type. Any missing required field, wrong JSON type,
// or unknown enum value yields ErrInvalid; Parse never panics.
func Parse(data []byte) (Message, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	header, err := parseHeader(&w)
	if err != nil {
		return nil, err
	}

	switch header.Type {
	case TypeHandshake:
		return parseHandshake(&w, header)
	case TypeHandshakeAck:
		return parseHandshakeAck(&w, header)
	case TypeAction:
		return parseAction(&w, header)
	case TypeAck:
		return parseAck(&w, header)
	case TypeError:
		return parseError(&w, header)
	case TypeHeartbeatPing:
		return &HeartbeatPing{Header: header}, nil
	case TypeHeartbeatPong:
		if header.CorrelationID == "" {
			return nil, invalidf("heartbeat_pong missing correlationId")
		}
		return &HeartbeatPong{Header: header}, nil
	default:
		return nil, invalidf("unknown type %q", header.Type)
	}
}

func parseHeader(w *wire) (Header, error) {
	t, err := requireString(w.Type, "type")
	if err != nil {
		return Header{}, err
	}
	eventID, err := requireString(w.EventID, "eventId")
	if err != nil {
		return Header{}, err
	}
	clientID, err := requireString(w.ClientID, "clientId")
	if err != nil {
		return Header{}, err
	}
	occurredAt, err := requireString(w.OccurredAt, "occurredAt")
	if err != nil {
		return Header{}, err
	}
	schema, err := requireString(w.SchemaVersion, "schemaVersion")
	if err != nil {
		return Header{}, err
	}
	return Header{
		Type:           Type(t),
		EventID:        eventID,
		ClientID:       clientID,
		OccurredAt:     occurredAt,
		SchemaVersion:  schema,
		IdempotencyKey: optionalString(w.IdempotencyKey),
		CorrelationID:  optionalString(w.CorrelationID),
	}, nil
}

func parseHandshake(w *wire, header Header) (Message, error) {
	sessionID, err := requireString(w.SessionID, "sessionId")
	if err != nil {
		return nil, err
	}
	token, err := requireString(w.Token, "token")
	if err != nil {
		return nil, err
	}
	var capabilities []string
	if w.Capabilities != nil {
		for _, c := range *w.Capabilities {
			if strings.TrimSpace(c) == "" {
				return nil, invalidf("handshake capability must be non-empty")
			}
		}
		capabilities = *w.Capabilities
	}
	return &Handshake{Header: header, SessionID: sessionID, Token: token, Capabilities: capabilities}, nil
}

func parseHandshakeAck(w *wire, header Header) (Message, error) {
	sessionID, err := requireString(w.SessionID, "sessionId")
	if err != nil {
		return nil, err
	}
	if w.Accepted == nil {
		return nil, invalidf("handshake_ack missing accepted")
	}
	if w.HeartbeatMs == nil {
		return nil, invalidf("handshake_ack missing heartbeatMs")
	}
	ms, err := strconv.ParseInt(w.HeartbeatMs.String(), 10, 64)
	if err != nil {
		return nil, invalidf("handshake_ack heartbeatMs must be an integer")
	}
	if ms < types.HeartbeatMinMs || ms > types.HeartbeatMaxMs {
		return nil, invalidf("handshake_ack heartbeatMs out of range")
	}
	return &HandshakeAck{Header: header, SessionID: sessionID, Accepted: *w.Accepted, HeartbeatMs: int(ms)}, nil
}

func parseAction(w *wire, header Header) (Message, error) {
	op, err := requireString(w.Op, "op")
	if err != nil {
		return nil, err
	}
	target, err := requireString(w.Target, "target")
	if err != nil {
		return nil, err
	}
	if header.IdempotencyKey == "" || strings.TrimSpace(header.IdempotencyKey) == "" {
		return nil, invalidf("action missing idempotencyKey")
	}
	if w.Payload == nil {
		return nil, invalidf("action missing payload")
	}
	var payload map[string]any
	if err := json.Unmarshal(w.Payload, &payload); err != nil || payload == nil {
		return nil, invalidf("action payload must be an object")
	}
	return &Action{Header: header, Op: op, Target: target, Payload: payload}, nil
}

func parseAck(w *wire, header Header) (Message, error) {
	if header.CorrelationID == "" {
		return nil, invalidf("ack missing correlationId")
	}
	status, err := requireString(w.Status, "status")
	if err != nil {
		return nil, err
	}
	switch AckStatus(status) {
	case AckReceived, AckApplied, AckDuplicate, AckSkipped, AckRejected:
	default:
		return nil, invalidf("ack status %q unknown", status)
	}
	var legacy types.LegacyAckStatus
	if w.LegacyStatus != nil {
		switch types.LegacyAckStatus(*w.LegacyStatus) {
		case types.LegacyApplied, types.LegacyDuplicate, types.LegacySkippedAmbiguous,
			types.LegacySkippedUnmanaged, types.LegacyRejectedInvalid:
			legacy = types.LegacyAckStatus(*w.LegacyStatus)
		default:
			return nil, invalidf("ack legacyStatus %q unknown", *w.LegacyStatus)
		}
	}
	return &Ack{
		Header:       header,
		Status:       AckStatus(status),
		Reason:       optionalString(w.Reason),
		ResolvedPath: optionalString(w.ResolvedPath),
		ResolvedKey:  optionalString(w.ResolvedKey),
		LegacyStatus: legacy,
	}, nil
}

func parseError(w *wire, header Header) (Message, error) {
	code, err := requireString(w.Code, "code")
	if err != nil {
		return nil, err
	}
	message, err := requireString(w.Message, "message")
	if err != nil {
		return nil, err
	}
	if w.Retryable == nil {
		return nil, invalidf("error missing retryable")
	}
	var details map[string]any
	if w.Details != nil && string(w.Details) != "null" {
		if err := json.Unmarshal(w.Details, &details); err != nil || details == nil {
			return nil, invalidf("error details must be an object")
		}
	}
	return &ErrorMessage{Header: header, Code: code, Message: message, Retryable: *w.Retryable, Details: details}, nil
}

func requireString(p *string, field string) (string, error) {
	if p == nil {
		return "", invalidf("missing %s", field)
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return "", invalidf("empty %s", field)
	}
	return v, nil
}

func optionalString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// FromLegacyStatus maps the legacy ack vocabulary onto the WebSocket
// one: applied and duplicate pass through, both skipped flavors fold
// into skipped, anything else is rejected.
func FromLegacyStatus(legacy types.LegacyAckStatus) AckStatus {
	switch legacy {
	case types.LegacyApplied:
		return AckApplied
	case types.LegacyDuplicate:
		return AckDuplicate
	case types.LegacySkippedAmbiguous, types.LegacySkippedUnmanaged:
		return AckSkipped
	default:
		return AckRejected
	}
}

// ToLegacyStatus maps the WebSocket ack vocabulary back onto the
// legacy one, so an ack that omits legacyStatus still lands on a
// terminal disposition. received has no legacy counterpart and maps
// to the empty string.
func ToLegacyStatus(status AckStatus) types.LegacyAckStatus {
	switch status {
	case AckApplied:
		return types.LegacyApplied
	case AckDuplicate:
		return types.LegacyDuplicate
	case AckSkipped:
		return types.LegacySkippedUnmanaged
	case AckRejected:
		return types.LegacyRejectedInvalid
	default:
		return ""
	}
}
