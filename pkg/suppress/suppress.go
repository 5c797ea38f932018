package suppress

import (
	"github.com/notebridge/marksync/pkg/types"
)

// CooldownMs is the post-apply tail: after an apply cycle releases the
// epoch it arms a cooldown of this length so trailing observer events
// are still treated as echoes.
const CooldownMs int64 = 3000

// Active reports whether outbound capture is currently suppressed,
// either because an apply epoch is open or because a cooldown tail has
// not elapsed yet.
func Active(s *types.SuppressionState) bool {
	return ActiveAt(s, types.EpochMs())
}

// ActiveAt is Active with an explicit clock.
func ActiveAt(s *types.SuppressionState, nowMs int64) bool {
	if s == nil {
		return false
	}
	if s.ApplyEpoch {
		return true
	}
	return s.CooldownUntil != nil && *s.CooldownUntil > nowMs
}

// SetApplyEpoch opens or closes the apply window. Opening stamps
// epochStartedAt; closing clears both the stamp and any cooldown, so
// callers that want the post-apply tail must arm it after closing.
func SetApplyEpoch(s *types.SuppressionState, on bool) {
	if s == nil {
		return
	}
	s.ApplyEpoch = on
	if on {
		ts := types.NowISO()
		s.EpochStartedAt = &ts
		return
	}
	s.EpochStartedAt = nil
	s.CooldownUntil = nil
}

// SetCooldown arms the cooldown to expire ms from now.
func SetCooldown(s *types.SuppressionState, ms int64) {
	SetCooldownAt(s, ms, types.EpochMs())
}

// SetCooldownAt is SetCooldown with an explicit clock.
func SetCooldownAt(s *types.SuppressionState, ms, nowMs int64) {
	if s == nil {
		return
	}
	until := nowMs + ms
	s.CooldownUntil = &until
}
