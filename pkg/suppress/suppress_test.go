package suppress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/marksync/pkg/types"
)

func TestActiveDuringApplyEpoch(t *testing.T) {
	s := &types.SuppressionState{}
	require.False(t, Active(s))

	SetApplyEpoch(s, true)
	assert.True(t, Active(s))
	require.NotNil(t, s.EpochStartedAt)
	assert.NotEmpty(t, *s.EpochStartedAt)
}

func TestActiveDuringCooldown(t *testing.T) {
	s := &types.SuppressionState{}
	now := int64(1_000_000)

	SetCooldownAt(s, CooldownMs, now)

	assert.True(t, ActiveAt(s, now))
	assert.True(t, ActiveAt(s, now+CooldownMs-1))
	assert.False(t, ActiveAt(s, now+CooldownMs))
	assert.False(t, ActiveAt(s, now+CooldownMs+1))
}

func TestClosingEpochClearsEverything(t *testing.T) {
	s := &types.SuppressionState{}

	SetApplyEpoch(s, true)
	SetCooldown(s, CooldownMs)
	SetApplyEpoch(s, false)

	assert.False(t, s.ApplyEpoch)
	assert.Nil(t, s.EpochStartedAt)
	assert.Nil(t, s.CooldownUntil)
	assert.False(t, Active(s))
}

func TestApplyCycleBracket(t *testing.T) {
	s := &types.SuppressionState{}
	now := int64(1_000_000)

	// The sequence an apply cycle runs: open, work, close, arm tail.
	SetApplyEpoch(s, true)
	require.True(t, ActiveAt(s, now))

	SetApplyEpoch(s, false)
	SetCooldownAt(s, CooldownMs, now)

	assert.True(t, ActiveAt(s, now+CooldownMs-1))
	assert.False(t, ActiveAt(s, now+CooldownMs))
}

func TestNilStateIsNeverActive(t *testing.T) {
	assert.False(t, Active(nil))
	SetApplyEpoch(nil, true)
	SetCooldown(nil, CooldownMs)
}
