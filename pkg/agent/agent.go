package agent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/notebridge/marksync/pkg/alarm"
	"github.com/notebridge/marksync/pkg/apply"
	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/capture"
	"github.com/notebridge/marksync/pkg/dedupe"
	"github.com/notebridge/marksync/pkg/envelope"
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/metrics"
	"github.com/notebridge/marksync/pkg/queue"
	"github.com/notebridge/marksync/pkg/reverse"
	"github.com/notebridge/marksync/pkg/session"
	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/suppress"
	"github.com/notebridge/marksync/pkg/timeline"
	"github.com/notebridge/marksync/pkg/types"
)

// ensureInterval is the standing reconnect alarm: a second line of
// defense behind the in-process backoff timer, so a process that was
// suspended with a dead timer still reconnects.
const ensureInterval = 30 * time.Second

// Agent owns the durable state record and wires the pipeline together:
// bookmark changes flow through capture into the reverse queue, the
// session delivers them and brings back acks, inbound actions apply to
// the tree inside the echo gate. Every mutation of the state record
// happens under one mutex and is persisted before the lock drops.
type Agent struct {
	store    *state.Store
	tree     bookmarks.Store
	capture  *capture.Capture
	applier  *apply.Applier
	session  *session.Manager
	timeline *timeline.Recorder
	fallback *reverse.Client
	logger   zerolog.Logger

	mu sync.Mutex
	st *types.ManagedState

	inFlight    atomic.Bool
	debounce    *alarm.Debouncer
	flushAlarm  *alarm.Periodic
	ensureAlarm *alarm.Periodic

	sub    bookmarks.Subscriber
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds an agent over the durable store and the local tree. The
// session is constructed but not connected; Start brings it up.
func New(store *state.Store, tree bookmarks.Store) (*Agent, error) {
	st, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load managed state: %w", err)
	}

	a := &Agent{
		store:    store,
		tree:     tree,
		capture:  capture.New(tree),
		applier:  apply.New(tree),
		timeline: timeline.New(store),
		fallback: reverse.NewClient(),
		logger:   log.WithComponent("agent"),
		st:       st,
		stopCh:   make(chan struct{}),
	}

	a.session = session.New(store, a.bridgeConfig, session.Hooks{
		Ack:       a.onAck,
		Action:    a.onAction,
		Connected: func() { go a.Flush("ws_connected") },
	})

	a.debounce = alarm.NewDebouncer(queue.DebounceMs*time.Millisecond, func() {
		a.Flush("debounce")
	})
	a.flushAlarm = alarm.NewPeriodic(queue.PeriodicFlushMs*time.Millisecond, func() {
		if a.autoSync() {
			a.Flush("periodic_alarm")
		}
	})
	a.ensureAlarm = alarm.NewPeriodic(ensureInterval, func() {
		if a.autoSync() {
			a.session.Ensure("periodic_alarm")
		}
	})

	metrics.QueueDepth.Set(float64(len(st.Queue)))
	return a, nil
}

// Start subscribes to tree changes, arms the standing alarms, and,
// when auto-sync is on, brings the session up.
func (a *Agent) Start() {
	a.sub = a.tree.Events().Subscribe()
	a.wg.Add(1)
	go a.changeLoop()

	a.flushAlarm.Start()
	a.ensureAlarm.Start()

	if a.autoSync() {
		a.session.Ensure("startup")
	}
	a.logger.Info().Int("queued", a.QueueDepth()).Msg("Agent started")
}

// Stop tears the pipeline down: alarms first, then the change loop,
// then the session.
func (a *Agent) Stop() {
	a.flushAlarm.Stop()
	a.ensureAlarm.Stop()
	a.debounce.Stop()

	close(a.stopCh)
	if a.sub != nil {
		a.tree.Events().Unsubscribe(a.sub)
	}
	a.wg.Wait()

	a.session.Stop()
	a.logger.Info().Msg("Agent stopped")
}

func (a *Agent) changeLoop() {
	defer a.wg.Done()
	for {
		select {
		case change, ok := <-a.sub:
			if !ok {
				return
			}
			a.handleChange(change)
		case <-a.stopCh:
			return
		}
	}
}

// handleChange runs one capture cycle: gate, derive, enqueue, persist,
// and arm the debounced flush when something was queued.
func (a *Agent) handleChange(change *bookmarks.Change) {
	a.mu.Lock()
	mutated, enqueued := a.capture.Handle(a.st, change)
	if mutated {
		a.persistLocked()
	}
	depth := len(a.st.Queue)
	a.mu.Unlock()

	if enqueued {
		metrics.QueueDepth.Set(float64(depth))
		a.timeline.Record("debug", "capture", string(change.Type)+" "+change.ID)
		a.debounce.Schedule()
	}
}

// Sync is the manual trigger: make sure the session is up and flush
// whatever is queued. It works regardless of the autoSync setting.
func (a *Agent) Sync() {
	a.session.Ensure("manual_sync")
	go a.Flush("manual_sync")
}

// Flush runs one reverse delivery round. At most one flush executes at
// a time; a round that finds a flush already in flight returns
// immediately; the alarms will come back around.
func (a *Agent) Flush(reason string) {
	if !a.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer a.inFlight.Store(false)

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FlushDuration)

	a.mu.Lock()
	plan := queue.PlanFlush(a.st)
	a.mu.Unlock()
	if len(plan) == 0 {
		return
	}

	a.logger.Debug().
		Str("reason", reason).
		Int("events", len(plan)).
		Msg("Flushing reverse queue")

	if a.session.Connected() {
		if a.session.FlushReverse(plan) {
			a.mu.Lock()
			swept := queue.SweepSuperseded(a.st, plan)
			a.persistLocked()
			depth := len(a.st.Queue)
			a.mu.Unlock()

			metrics.QueueDepth.Set(float64(depth))
			metrics.FlushesTotal.WithLabelValues("ws_sent").Inc()
			a.timeline.Record("info", "reverse_flush",
				fmt.Sprintf("sent %d over ws, swept %d", len(plan), swept))
			return
		}
		a.markFailed(plan, "ws_send_failed")
		return
	}

	a.flushOverHTTP(plan)
}

// flushOverHTTP delivers one round through the legacy endpoint. Unlike
// the WS path the acks arrive synchronously, so the round reconciles
// immediately.
func (a *Agent) flushOverHTTP(plan []types.QueueItem) {
	cfg := a.bridgeConfig()
	profile := cfg.ActiveProfile()
	if profile == nil || !profile.Enabled {
		a.markFailed(plan, "active_profile_disabled")
		return
	}

	batch := reverse.NewBatch(plan)
	resp, err := a.fallback.Send(profile, batch)
	if err != nil {
		a.logger.Warn().Err(err).Msg("HTTP reverse delivery failed")
		a.markFailed(plan, "http_error")
		return
	}

	a.mu.Lock()
	summary := queue.Reconcile(a.st, *resp)
	swept := queue.SweepSuperseded(a.st, plan)
	a.persistLocked()
	depth := len(a.st.Queue)
	a.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	metrics.FlushesTotal.WithLabelValues("http_acked").Inc()
	a.timeline.Record("info", "reverse_flush",
		fmt.Sprintf("http acked %d, swept %d, retained %d",
			summary.Removed, swept, summary.Retained))
}

func (a *Agent) markFailed(plan []types.QueueItem, reason string) {
	a.mu.Lock()
	queue.MarkFailures(a.st, plan, reason)
	a.persistLocked()
	depth := len(a.st.Queue)
	a.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	metrics.FlushesTotal.WithLabelValues("failed").Inc()
	a.timeline.Record("warn", "reverse_flush_failed", reason)
}

// onAck reconciles one ack batch delivered over the session.
func (a *Agent) onAck(resp types.BatchAckResponse) {
	a.mu.Lock()
	summary := queue.Reconcile(a.st, resp)
	a.persistLocked()
	depth := len(a.st.Queue)
	a.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	if summary.Removed > 0 || summary.Retained > 0 {
		a.timeline.Record("debug", "ack",
			fmt.Sprintf("batch %s removed %d retained %d",
				resp.BatchID, summary.Removed, summary.Retained))
	}
}

// onAction applies one inbound action inside the echo gate and returns
// the ack the session should send back, or nil when the action was a
// duplicate.
func (a *Agent) onAction(act *envelope.Action) *envelope.Ack {
	key := act.IdempotencyKey
	if key == "" {
		key = act.EventID
	}

	a.mu.Lock()
	if !dedupe.RecordAndCheck(a.st.Dedupe, act.ClientID, key) {
		a.mu.Unlock()
		metrics.InboundDuplicates.Inc()
		a.logger.Info().
			Str("event", "ws_action_skip").
			Str("op", act.Op).
			Str("idempotencyKey", key).
			Msg("Dropping duplicate inbound action")
		a.timeline.Record("debug", "ws_action_skip", act.Op+" "+key)
		return nil
	}

	outcome := apply.Bracket(a.st, a.persistLocked, func() apply.Outcome {
		return a.applier.Apply(a.st, act)
	})
	a.mu.Unlock()

	a.timeline.Record("info", "inbound_action",
		fmt.Sprintf("%s -> %s", act.Op, outcome.Status))
	return outcome.Ack(act, a.session.ClientID())
}

// persistLocked saves the state record; the caller holds the mutex.
func (a *Agent) persistLocked() {
	if err := a.store.Save(a.st); err != nil {
		a.logger.Error().Err(err).Msg("Failed to persist managed state")
	}
}

func (a *Agent) bridgeConfig() types.BridgeConfig {
	cfg, err := a.store.LoadBridgeConfig()
	if err != nil {
		cfg = state.DefaultBridgeConfig()
	}
	return *cfg
}

func (a *Agent) autoSync() bool {
	return a.bridgeConfig().AutoSync
}

// QueueDepth is the current reverse queue length.
func (a *Agent) QueueDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.st.Queue)
}

// Status is the operator-facing summary served by the control API.
type Status struct {
	Session        types.SessionState `json:"session"`
	QueueDepth     int                `json:"queueDepth"`
	AutoSync       bool               `json:"autoSync"`
	ImportActive   bool               `json:"importInProgress"`
	SuppressActive bool               `json:"suppressionActive"`
}

// Status snapshots the session summary and queue state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	depth := len(a.st.Queue)
	importing := a.st.ImportInProgress
	suppressed := suppress.Active(&a.st.Suppression)
	a.mu.Unlock()

	return Status{
		Session:        a.session.Status(),
		QueueDepth:     depth,
		AutoSync:       a.autoSync(),
		ImportActive:   importing,
		SuppressActive: suppressed,
	}
}

// Config returns the persisted bridge configuration.
func (a *Agent) Config() types.BridgeConfig {
	return a.bridgeConfig()
}

// SetConfig replaces the bridge configuration and, when auto-sync is
// on, nudges the session so a profile change takes effect.
func (a *Agent) SetConfig(cfg *types.BridgeConfig) error {
	if err := a.store.SaveBridgeConfig(cfg); err != nil {
		return err
	}
	a.timeline.Record("info", "config_updated", "bridge config replaced")
	if cfg.AutoSync {
		a.session.Ensure("config_updated")
	}
	return nil
}

// Events returns the debug timeline, oldest first.
func (a *Agent) Events() []types.DebugEvent {
	return a.timeline.Events()
}

// ClearEvents drops the debug timeline.
func (a *Agent) ClearEvents() {
	a.timeline.Clear()
}

// Tree exposes the local bookmark store to the control API.
func (a *Agent) Tree() bookmarks.Store {
	return a.tree
}
