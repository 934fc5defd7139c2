package sync

import (
	"fmt"
	"time"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// Strategy names a conflict resolver.
type Strategy string

// Conflict resolution strategies.
const (
	StrategyTimestamp      Strategy = "timestamp"
	StrategyScore          Strategy = "score"
	StrategyMerge          Strategy = "merge"
	StrategyUserPreference Strategy = "user_preference"
)

// DefaultStrategies returns the per-key strategy table. Keys not listed
// resolve by timestamp.
func DefaultStrategies() map[phase.Key]Strategy {
	return map[phase.Key]Strategy{
		phase.Gamification{}.Key():   StrategyScore,
		phase.AnalyticsData{}.Key():  StrategyMerge,
		phase.Messages{}.Key():       StrategyMerge,
		phase.Notifications{}.Key():  StrategyUserPreference,
		phase.WellbeingData{}.Key():  StrategyUserPreference,
		phase.AssessmentData{}.Key(): StrategyScore,
		phase.Progress{}.Key():       StrategyScore,
	}
}

// Resolve picks between the stored payload (local) and the incoming one
// (remote) under strategy s. now supplies the fresh timestamp for merges.
// Inputs are never mutated. Ties favor remote.
func Resolve(s Strategy, local, remote phase.Payload, now time.Time) (phase.Payload, error) {
	switch s {
	case StrategyTimestamp, "":
		return resolveTimestamp(local, remote), nil
	case StrategyScore:
		return resolveScore(local, remote), nil
	case StrategyMerge:
		return resolveMerge(local, remote, now)
	case StrategyUserPreference:
		return resolveUserPreference(local, remote), nil
	default:
		return phase.Payload{}, fmt.Errorf("sync: unknown conflict strategy %q", s)
	}
}

func resolveTimestamp(local, remote phase.Payload) phase.Payload {
	if local.Timestamp.After(remote.Timestamp) {
		return local
	}

	return remote
}

func resolveScore(local, remote phase.Payload) phase.Payload {
	if phase.Score(local.Data) > phase.Score(remote.Data) {
		return local
	}

	return remote
}

// resolveMerge overlays the fields remote carries on local's and stamps a
// timestamp strictly later than both inputs.
func resolveMerge(local, remote phase.Payload, now time.Time) (phase.Payload, error) {
	merged, err := phase.MergeData(local.Data, remote.Data, remote.Fields)
	if err != nil {
		return phase.Payload{}, fmt.Errorf("sync: merge: %w", err)
	}

	latest := local.Timestamp
	if remote.Timestamp.After(latest) {
		latest = remote.Timestamp
	}

	ts := now
	if !ts.After(latest) {
		ts = latest.Add(time.Nanosecond)
	}

	return phase.Payload{
		Timestamp:     ts,
		UserInitiated: local.UserInitiated || remote.UserInitiated,
		Data:          merged,
	}, nil
}

func resolveUserPreference(local, remote phase.Payload) phase.Payload {
	if remote.UserInitiated {
		return remote
	}

	return local
}
