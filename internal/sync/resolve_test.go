package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

var resolveBase = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func TestResolve_Timestamp(t *testing.T) {
	t.Parallel()

	older := phase.Payload{Timestamp: resolveBase, Data: phase.Health{SleepHours: 6}}
	newer := phase.Payload{Timestamp: resolveBase.Add(time.Second), Data: phase.Health{SleepHours: 8}}

	got, err := Resolve(StrategyTimestamp, newer, older, resolveBase)
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	got, err = Resolve(StrategyTimestamp, older, newer, resolveBase)
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	// Equal timestamps favor the incoming write.
	same := phase.Payload{Timestamp: resolveBase, Data: phase.Health{SleepHours: 9}}
	got, err = Resolve("", older, same, resolveBase)
	require.NoError(t, err)
	assert.Equal(t, same, got)
}

func TestResolve_ScoreKeepsHigher(t *testing.T) {
	t.Parallel()

	low := phase.Payload{Timestamp: resolveBase, Data: phase.WellbeingData{Score: 10, Mood: "sad"}}
	high := phase.Payload{Timestamp: resolveBase, Data: phase.WellbeingData{Score: 20, Mood: "happy"}}

	got, err := Resolve(StrategyScore, low, high, resolveBase)
	require.NoError(t, err)
	assert.Equal(t, high, got)

	got, err = Resolve(StrategyScore, high, low, resolveBase)
	require.NoError(t, err)
	assert.Equal(t, high, got)
}

func TestResolve_ScoreMissingIsZero(t *testing.T) {
	t.Parallel()

	unscored := phase.Payload{Data: phase.Health{SleepHours: 7}}
	scored := phase.Payload{Data: phase.Progress{Subject: "art", Completion: 1}}

	got, err := Resolve(StrategyScore, scored, unscored, resolveBase)
	require.NoError(t, err)
	assert.Equal(t, scored, got)
}

func TestResolve_MergeOverlaysRemote(t *testing.T) {
	t.Parallel()

	local := phase.Payload{
		Timestamp: resolveBase,
		Data:      phase.AnalyticsData{Sessions: 1, MinutesActive: 2},
	}
	remote := phase.Payload{
		Timestamp: resolveBase.Add(2 * time.Second),
		Data:      phase.AnalyticsData{MinutesActive: 3, Engagement: 4},
		Fields:    []string{"engagement", "minutes_active"},
	}

	localBefore, remoteBefore := local, remote

	// A clock behind both inputs still yields a strictly later timestamp.
	got, err := Resolve(StrategyMerge, local, remote, resolveBase.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, phase.AnalyticsData{Sessions: 1, MinutesActive: 3, Engagement: 4}, got.Data)
	assert.True(t, got.Timestamp.After(local.Timestamp))
	assert.True(t, got.Timestamp.After(remote.Timestamp))

	assert.Equal(t, localBefore, local, "inputs are not mutated")
	assert.Equal(t, remoteBefore, remote, "inputs are not mutated")

	later := resolveBase.Add(time.Minute)
	got, err = Resolve(StrategyMerge, local, remote, later)
	require.NoError(t, err)
	assert.Equal(t, later, got.Timestamp)
}

func TestResolve_MergeTakesRemoteZero(t *testing.T) {
	t.Parallel()

	key := phase.Messages{}.Key()
	local := phase.Payload{Timestamp: resolveBase, Data: phase.Messages{Channel: "direct", Unread: 5}}

	// Marking everything read sends unread 0; it must not fall back to 5.
	remote, err := phase.DecodePayload(key, []byte(`{"data":{"channel":"direct","unread":0}}`))
	require.NoError(t, err)
	remote.Timestamp = resolveBase.Add(time.Second)

	got, err := Resolve(StrategyMerge, local, remote, resolveBase.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, phase.Messages{Channel: "direct", Unread: 0}, got.Data)

	// A payload built in Go carries every field.
	got, err = Resolve(StrategyMerge, local,
		phase.Payload{Timestamp: remote.Timestamp, Data: phase.Messages{Channel: "class"}},
		resolveBase.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, phase.Messages{Channel: "class", Unread: 0}, got.Data)
}

func TestResolve_MergeRejectsMixedVariants(t *testing.T) {
	t.Parallel()

	_, err := Resolve(StrategyMerge,
		phase.Payload{Data: phase.Health{}},
		phase.Payload{Data: phase.Progress{}},
		resolveBase)
	require.Error(t, err)
}

func TestResolve_UserPreference(t *testing.T) {
	t.Parallel()

	local := phase.Payload{Timestamp: resolveBase, Data: phase.WellbeingData{Score: 70, Mood: "happy"}}
	derived := phase.Payload{Timestamp: resolveBase, Data: phase.WellbeingData{Score: 55, Mood: "neutral"}}
	chosen := phase.Payload{Timestamp: resolveBase, UserInitiated: true, Data: phase.WellbeingData{Score: 30, Mood: "sad"}}

	got, err := Resolve(StrategyUserPreference, local, derived, resolveBase)
	require.NoError(t, err)
	assert.Equal(t, local, got)

	got, err = Resolve(StrategyUserPreference, local, chosen, resolveBase)
	require.NoError(t, err)
	assert.Equal(t, chosen, got)
}

func TestResolve_UnknownStrategy(t *testing.T) {
	t.Parallel()

	_, err := Resolve("coin_flip", phase.Payload{}, phase.Payload{}, resolveBase)
	require.Error(t, err)
}

func TestDefaultStrategies(t *testing.T) {
	t.Parallel()

	s := DefaultStrategies()
	assert.Equal(t, StrategyScore, s[phase.Gamification{}.Key()])
	assert.Equal(t, StrategyMerge, s[phase.Messages{}.Key()])
	assert.Equal(t, StrategyUserPreference, s[phase.WellbeingData{}.Key()])

	_, ok := s[phase.Health{}.Key()]
	assert.False(t, ok, "unlisted keys fall back to timestamp")
}
