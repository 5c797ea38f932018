package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/notebridge/marksync/pkg/envelope"
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/metrics"
	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/types"
)

const (
	wsReadBuffer       = 1024
	wsWriteBuffer      = 1024
	wsMessageSizeLimit = 1 << 20 // bookmark payloads are tiny; 1 MiB is generous
	wsDialTimeout      = 10 * time.Second
	wsWriteTimeout     = 10 * time.Second

	// heartbeatCeilingMs caps the ping interval regardless of what the
	// bridge negotiated.
	heartbeatCeilingMs = 25000

	// watchdogFactor times the heartbeat interval without any inbound
	// traffic marks the socket dead.
	watchdogFactor = 2

	// closeHeartbeatTimeout is the application close code sent when
	// the watchdog declares the peer gone.
	closeHeartbeatTimeout = 4000

	backoffBaseMs  = 500
	backoffCapMs   = 30000
	backoffMaxExp  = 6
	maxQueuedFrames = 512
)

// Hooks are the agent-side consumers of inbound traffic. Ack receives
// the legacy-shaped batch synthesized from a WS ack; Action handles an
// inbound mutation and returns the ack to send back, or nil when the
// action was dropped as a duplicate; Connected fires after the
// handshake is on the wire, a good moment to flush the reverse queue.
type Hooks struct {
	Ack       func(types.BatchAckResponse)
	Action    func(*envelope.Action) *envelope.Ack
	Connected func()
}

// Manager owns the WebSocket connection lifecycle: connect, handshake,
// heartbeat, watchdog, reconnect with backoff, and the in-memory
// outbound queue used while the socket is down.
type Manager struct {
	store  *state.Store
	config func() types.BridgeConfig
	hooks  Hooks
	logger zerolog.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	connecting     bool
	stopped        bool
	sess           types.SessionState
	sessionID      string
	clientID       string
	token          string
	outbound       []envelope.Message
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
	lastActivity   time.Time

	writeMu sync.Mutex

	dialer websocket.Dialer
}

// New builds a session manager. config is re-resolved on every Ensure
// so profile edits take effect on the next connect.
func New(store *state.Store, config func() types.BridgeConfig, hooks Hooks) *Manager {
	loaded, err := store.LoadSessionState()
	if err != nil {
		loaded = state.DefaultSessionState()
	}
	sess := *loaded
	sess.Status = types.SessionDisconnected

	return &Manager{
		store:  store,
		config: config,
		hooks:  hooks,
		logger: log.WithComponent("session"),
		sess:   sess,
		dialer: websocket.Dialer{
			ReadBufferSize:   wsReadBuffer,
			WriteBufferSize:  wsWriteBuffer,
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: wsDialTimeout,
		},
	}
}

// Status returns a copy of the persisted session summary.
func (m *Manager) Status() types.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Connected reports whether the socket is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// ClientID returns the profile id of the current (or last) connection.
func (m *Manager) ClientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID
}

// Ensure brings the session up if it is not already connected or
// connecting. Safe to call from timers, alarms, and the control API;
// concurrent calls collapse into one dial.
func (m *Manager) Ensure(reason string) {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return
	}

	cfg := m.config()
	profile := cfg.ActiveProfile()
	if profile == nil || !profile.Enabled {
		m.sess.Status = types.SessionDisconnected
		m.sess.LastError = "active_profile_disabled"
		m.persistLocked()
		m.mu.Unlock()
		return
	}

	if m.conn != nil || m.connecting {
		m.mu.Unlock()
		return
	}

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	m.connecting = true
	m.sessionID = uuid.NewString()
	m.clientID = profile.ClientID
	m.token = profile.Token
	wsURL := profile.WSURL
	if wsURL == "" {
		wsURL = types.DefaultBridgeWSURL
	}

	if m.sess.ReconnectAttempt > 0 {
		m.sess.Status = types.SessionReconnecting
	} else {
		m.sess.Status = types.SessionConnecting
	}
	m.sess.ActiveClientID = profile.ClientID
	m.sess.WSURL = wsURL
	m.persistLocked()

	m.logger.Info().
		Str("reason", reason).
		Str("clientId", profile.ClientID).
		Str("status", string(m.sess.Status)).
		Int("attempt", m.sess.ReconnectAttempt).
		Msg("Connecting to bridge")
	m.mu.Unlock()

	go m.dial(wsURL)
}

func (m *Manager) dial(wsURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), wsDialTimeout)
	defer cancel()

	conn, resp, err := m.dialer.DialContext(ctx, wsURL, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		m.markDisconnected("constructor_error", err.Error(), true)
		return
	}
	conn.SetReadLimit(wsMessageSizeLimit)
	m.onOpen(conn)
}

func (m *Manager) onOpen(conn *websocket.Conn) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.connecting = false
	m.sess.Status = types.SessionConnected
	m.sess.ReconnectAttempt = 0
	m.sess.LastConnectedAt = types.NowISO()
	m.sess.LastError = ""
	m.lastActivity = time.Now()
	m.persistLocked()
	metrics.WSSessionUp.Set(1)

	handshake := &envelope.Handshake{
		Header:       envelope.NewHeader(envelope.TypeHandshake, m.clientID),
		SessionID:    m.sessionID,
		Token:        m.token,
		Capabilities: []string{"action", "ack", "heartbeat"},
	}

	stop := make(chan struct{})
	m.heartbeatStop = stop
	intervalMs := m.sess.HeartbeatMs
	queued := m.outbound
	m.outbound = nil
	m.sess.QueuedOutbound = 0
	m.mu.Unlock()

	m.logger.Info().Str("sessionId", m.sessionID).Msg("Session connected")

	if err := m.write(conn, handshake); err != nil {
		m.markDisconnected("send_error", err.Error(), true)
		return
	}

	go m.heartbeatLoop(conn, intervalMs, stop)
	go m.readLoop(conn)

	// Frames queued while the socket was down go out first, in order.
	for _, msg := range queued {
		if err := m.write(conn, msg); err != nil {
			m.enqueueOutbound(msg)
		}
	}

	if m.hooks.Connected != nil {
		m.hooks.Connected()
	}
}

// heartbeatLoop sends pings at the negotiated interval and closes the
// socket when nothing has arrived for watchdogFactor intervals.
func (m *Manager) heartbeatLoop(conn *websocket.Conn, intervalMs int, stop chan struct{}) {
	interval := time.Duration(minInt(intervalMs, heartbeatCeilingMs)) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			open := m.conn == conn
			idle := time.Since(m.lastActivity)
			m.mu.Unlock()
			if !open {
				return
			}

			if idle > time.Duration(watchdogFactor)*interval {
				m.logger.Warn().
					Dur("idle", idle).
					Msg("No traffic from bridge, closing socket")
				deadline := time.Now().Add(wsWriteTimeout)
				msg := websocket.FormatCloseMessage(closeHeartbeatTimeout, "heartbeat_timeout")
				m.writeMu.Lock()
				conn.WriteControl(websocket.CloseMessage, msg, deadline)
				m.writeMu.Unlock()
				conn.Close()
				return
			}

			ping := &envelope.HeartbeatPing{
				Header: envelope.NewHeader(envelope.TypeHeartbeatPing, m.ClientID()),
			}
			if err := m.write(conn, ping); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			current := m.conn == conn
			stopped := m.stopped
			m.mu.Unlock()
			if !current || stopped {
				return
			}
			code, reason := closeDetails(err)
			m.markDisconnected(fmt.Sprintf("close_%d", code), reason, true)
			return
		}

		m.mu.Lock()
		m.lastActivity = time.Now()
		m.mu.Unlock()

		msg, err := envelope.Parse(data)
		if err != nil {
			m.logger.Warn().
				Str("event", "ws_invalid_message").
				Err(err).
				Msg("Dropping malformed frame")
			continue
		}
		m.dispatch(conn, msg)
	}
}

// dispatch routes one parsed inbound frame. Hooks run without the
// session lock held.
func (m *Manager) dispatch(conn *websocket.Conn, msg envelope.Message) {
	switch env := msg.(type) {
	case *envelope.HandshakeAck:
		clamped := state.ClampHeartbeat(env.HeartbeatMs)
		m.mu.Lock()
		m.sess.HeartbeatMs = clamped
		accepted := env.Accepted
		m.persistLocked()
		m.mu.Unlock()
		m.logger.Info().
			Bool("accepted", accepted).
			Int("heartbeatMs", clamped).
			Msg("Handshake acknowledged")

	case *envelope.HeartbeatPing:
		pong := &envelope.HeartbeatPong{
			Header: envelope.NewHeader(envelope.TypeHeartbeatPong, m.ClientID()),
		}
		pong.CorrelationID = env.EventID
		m.write(conn, pong)

	case *envelope.HeartbeatPong:
		// Traffic already refreshed the watchdog.

	case *envelope.Ack:
		if m.hooks.Ack != nil {
			m.hooks.Ack(bridgeAck(env))
		}

	case *envelope.ErrorMessage:
		m.logger.Warn().
			Str("code", env.Code).
			Str("message", env.Message).
			Bool("retryable", env.Retryable).
			Msg("Bridge reported an error")

	case *envelope.Action:
		if m.hooks.Action == nil {
			return
		}
		m.mu.Lock()
		m.sess.QueuedInbound++
		m.mu.Unlock()
		ack := m.hooks.Action(env)
		m.mu.Lock()
		m.sess.QueuedInbound--
		m.mu.Unlock()
		if ack != nil {
			m.Send(ack)
		}

	default:
		m.logger.Debug().
			Str("type", string(msg.Head().Type)).
			Msg("Ignoring unexpected frame")
	}
}

// bridgeAck synthesizes the legacy-shaped single-result batch from a
// WS ack so the queue reconciler keeps one vocabulary. The legacy
// status wins when present; otherwise the WS status is folded to its
// legacy counterpart so terminal acks still drain the queue. received
// stays as-is and the reconciler retains the item.
func bridgeAck(env *envelope.Ack) types.BatchAckResponse {
	batchID := env.IdempotencyKey
	if batchID == "" {
		batchID = env.CorrelationID
	}
	if batchID == "" {
		batchID = "ws"
	}
	status := string(env.LegacyStatus)
	if status == "" {
		if legacy := envelope.ToLegacyStatus(env.Status); legacy != "" {
			status = string(legacy)
		} else {
			status = string(env.Status)
		}
	}
	return types.BatchAckResponse{
		BatchID: batchID,
		Results: []types.AckResult{{
			EventID:      env.CorrelationID,
			Status:       status,
			Reason:       env.Reason,
			ResolvedKey:  env.ResolvedKey,
			ResolvedPath: env.ResolvedPath,
		}},
	}
}

// Send transmits a frame when the socket is open and queues it
// otherwise. A write failure falls back to queueing too; the read loop
// notices the dead socket separately.
func (m *Manager) Send(msg envelope.Message) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.enqueueOutbound(msg)
		return
	}
	if err := m.write(conn, msg); err != nil {
		m.enqueueOutbound(msg)
	}
}

func (m *Manager) enqueueOutbound(msg envelope.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outbound) >= maxQueuedFrames {
		// Drop the oldest; reverse events are durable in state anyway.
		m.outbound = m.outbound[1:]
	}
	m.outbound = append(m.outbound, msg)
	m.sess.QueuedOutbound = len(m.outbound)
	m.persistLocked()
}

func (m *Manager) write(conn *websocket.Conn, msg envelope.Message) error {
	data, err := envelope.Marshal(msg)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// FlushReverse sends one action envelope per coalesced queue item. The
// queue itself is never mutated here; drainage happens through acks.
// Returns false when the socket is down and nothing was sent.
func (m *Manager) FlushReverse(coalesced []types.QueueItem) bool {
	m.mu.Lock()
	conn := m.conn
	clientID := m.clientID
	m.mu.Unlock()
	if conn == nil {
		return false
	}

	for _, item := range coalesced {
		act := actionForEvent(item.Event, clientID)
		if err := m.write(conn, act); err != nil {
			m.logger.Warn().
				Str("eventId", item.Event.EventID).
				Err(err).
				Msg("Reverse send failed")
			return false
		}
	}
	return true
}

// actionForEvent wraps a reverse event in the wire envelope: the
// event's batch id is the idempotency key, its own id correlates the
// ack back to the queue.
func actionForEvent(ev types.ReverseEvent, clientID string) *envelope.Action {
	header := envelope.NewHeader(envelope.TypeAction, clientID)
	header.EventID = ev.EventID
	header.IdempotencyKey = ev.BatchID

	target := ev.ManagedKey
	if target == "" {
		target = ev.BookmarkID
	}

	payload := map[string]any{
		"bookmarkId": ev.BookmarkID,
		"managedKey": ev.ManagedKey,
		"title":      ev.Title,
		"url":        ev.URL,
		"parentId":   ev.ParentID,
	}
	if ev.MoveIndex != nil {
		payload["moveIndex"] = *ev.MoveIndex
	}

	return &envelope.Action{
		Header:  header,
		Op:      string(ev.Type),
		Target:  target,
		Payload: payload,
	}
}

// markDisconnected records the failure, tears the socket down, and,
// when rescheduling, arms the backoff timer for the next attempt.
func (m *Manager) markDisconnected(reason, detail string, reschedule bool) {
	m.mu.Lock()
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connecting = false
	m.sess.ReconnectAttempt++
	m.sess.Status = types.SessionDisconnected
	m.sess.LastError = reason + ":" + detail
	m.persistLocked()
	metrics.WSSessionUp.Set(0)
	attempt := m.sess.ReconnectAttempt
	stopped := m.stopped

	var delay time.Duration
	if reschedule && !stopped {
		metrics.WSReconnects.Inc()
		delay = BackoffDelay(attempt)
		if m.reconnectTimer != nil {
			m.reconnectTimer.Stop()
		}
		m.reconnectTimer = time.AfterFunc(delay, func() {
			m.Ensure("reconnect_backoff")
		})
	}
	m.mu.Unlock()

	event := m.logger.Warn().
		Str("reason", reason).
		Str("detail", detail).
		Int("attempt", attempt)
	if delay > 0 {
		event = event.Dur("retryIn", delay)
	}
	event.Msg("Session disconnected")
}

// Stop tears the session down for good; no reconnect is scheduled.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	conn := m.conn
	m.conn = nil
	m.sess.Status = types.SessionDisconnected
	m.persistLocked()
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown")
		m.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage, msg, deadline)
		m.writeMu.Unlock()
		conn.Close()
	}
}

// BackoffDelay computes the reconnect delay for an attempt count:
// 500 ms doubling per attempt, capped at 30 s.
func BackoffDelay(attempt int) time.Duration {
	exp := attempt
	if exp > backoffMaxExp {
		exp = backoffMaxExp
	}
	ms := backoffBaseMs << exp
	if ms > backoffCapMs {
		ms = backoffCapMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (m *Manager) persistLocked() {
	if err := m.store.SaveSessionState(&m.sess); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist session state")
	}
}

func closeDetails(err error) (int, string) {
	if closeErr, ok := err.(*websocket.CloseError); ok {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
