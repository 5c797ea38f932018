package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/notebridge/marksync/pkg/storage"
	"github.com/notebridge/marksync/pkg/types"
)

// Store owns serialization of the durable records. All mutation
// happens in memory; the store only moves bytes through the KV.
type Store struct {
	kv storage.KV
}

// NewStore creates a store over the given KV.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Load reads the managed state record and migrates whatever comes
// back: a missing record, null, junk, or a previous schema all yield
// a fully-defaulted record. Only real storage failures surface.
func (s *Store) Load() (*types.ManagedState, error) {
	raw, err := s.kv.Get(storage.KeyManagedState)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Migrate(nil), nil
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return Migrate(raw), nil
}

// Save persists the whole state record atomically.
func (s *Store) Save(st *types.ManagedState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return s.kv.Set(storage.KeyManagedState, data)
}

// LoadBridgeConfig reads the bridge configuration, falling back to a
// single default local profile when nothing is stored yet.
func (s *Store) LoadBridgeConfig() (*types.BridgeConfig, error) {
	raw, err := s.kv.Get(storage.KeyBridgeConfig)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return DefaultBridgeConfig(), nil
		}
		return nil, fmt.Errorf("failed to load bridge config: %w", err)
	}
	var cfg types.BridgeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return DefaultBridgeConfig(), nil
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = DefaultBridgeConfig().Profiles
	}
	return &cfg, nil
}

// SaveBridgeConfig persists the bridge configuration.
func (s *Store) SaveBridgeConfig(cfg *types.BridgeConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal bridge config: %w", err)
	}
	return s.kv.Set(storage.KeyBridgeConfig, data)
}

// LoadSessionState reads the persisted WebSocket session summary.
func (s *Store) LoadSessionState() (*types.SessionState, error) {
	raw, err := s.kv.Get(storage.KeyWSSession)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return DefaultSessionState(), nil
		}
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	var ss types.SessionState
	if err := json.Unmarshal(raw, &ss); err != nil {
		return DefaultSessionState(), nil
	}
	if ss.Status == "" {
		ss.Status = types.SessionDisconnected
	}
	ss.HeartbeatMs = ClampHeartbeat(ss.HeartbeatMs)
	return &ss, nil
}

// SaveSessionState persists the session summary for the status surface.
func (s *Store) SaveSessionState(ss *types.SessionState) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	return s.kv.Set(storage.KeyWSSession, data)
}

// LoadTimeline reads the persisted debug timeline.
func (s *Store) LoadTimeline() ([]types.DebugEvent, error) {
	raw, err := s.kv.Get(storage.KeyDebugTimeline)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load debug timeline: %w", err)
	}
	var events []types.DebugEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, nil
	}
	return events, nil
}

// SaveTimeline persists the debug timeline.
func (s *Store) SaveTimeline(events []types.DebugEvent) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal debug timeline: %w", err)
	}
	return s.kv.Set(storage.KeyDebugTimeline, data)
}

// DefaultBridgeConfig is the first-run bridge configuration: one
// enabled profile pointing at the local bridge, auto-sync on.
func DefaultBridgeConfig() *types.BridgeConfig {
	return &types.BridgeConfig{
		AutoSync:       true,
		ActiveClientID: "local",
		Profiles: []types.ClientProfile{
			{
				ClientID: "local",
				URL:      types.DefaultBridgeHTTPURL,
				WSURL:    types.DefaultBridgeWSURL,
				Enabled:  true,
				Priority: 0,
			},
		},
	}
}

// DefaultSessionState is the first-run session summary.
func DefaultSessionState() *types.SessionState {
	return &types.SessionState{
		Status:      types.SessionDisconnected,
		HeartbeatMs: types.HeartbeatDefaultMs,
	}
}

// ClampHeartbeat bounds a heartbeat interval to [1000, 120000] ms,
// substituting the default for non-positive values.
func ClampHeartbeat(ms int) int {
	if ms <= 0 {
		return types.HeartbeatDefaultMs
	}
	if ms < types.HeartbeatMinMs {
		return types.HeartbeatMinMs
	}
	if ms > types.HeartbeatMaxMs {
		return types.HeartbeatMaxMs
	}
	return ms
}
