// Package phase defines the logical partitions of school data that the sync
// coordinator moves between: phases, the data types inside each phase, the
// typed payload variants, their validators, and the static cross-phase
// derivation rules.
package phase

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKey is returned when a phase or data type is not registered.
var ErrUnknownKey = errors.New("phase: unknown phase or data type")

// Phase identifies one logical partition of application data.
type Phase string

// Registered phases.
const (
	Analytics     Phase = "PHASE_1" // analytics and gamification
	AIInsights    Phase = "PHASE_2"
	Communication Phase = "PHASE_3"
	Wellbeing     Phase = "PHASE_4"
	Assessment    Phase = "PHASE_5"
)

// DataType names a sub-category of data within a phase.
type DataType string

// Registered data types.
const (
	TypeGamification    DataType = "gamification"
	TypeAnalytics       DataType = "analytics"
	TypeInsights        DataType = "insights"
	TypeRecommendations DataType = "recommendations"
	TypeMessages        DataType = "messages"
	TypeNotifications   DataType = "notifications"
	TypeWellbeing       DataType = "wellbeing"
	TypeHealth          DataType = "health"
	TypeAssessment      DataType = "assessment"
	TypeProgress        DataType = "progress"
)

// registry lists the data types of each phase in display order.
var registry = []struct {
	phase Phase
	types []DataType
}{
	{Analytics, []DataType{TypeGamification, TypeAnalytics}},
	{AIInsights, []DataType{TypeInsights, TypeRecommendations}},
	{Communication, []DataType{TypeMessages, TypeNotifications}},
	{Wellbeing, []DataType{TypeWellbeing, TypeHealth}},
	{Assessment, []DataType{TypeAssessment, TypeProgress}},
}

// Phases returns every registered phase in stable order.
func Phases() []Phase {
	out := make([]Phase, 0, len(registry))
	for _, r := range registry {
		out = append(out, r.phase)
	}

	return out
}

// DataTypes returns the data types registered under p, or nil if p is unknown.
func DataTypes(p Phase) []DataType {
	for _, r := range registry {
		if r.phase == p {
			out := make([]DataType, len(r.types))
			copy(out, r.types)

			return out
		}
	}

	return nil
}

// Keys returns every registered key in stable order.
func Keys() []Key {
	var out []Key

	for _, r := range registry {
		for _, dt := range r.types {
			out = append(out, Key{Phase: r.phase, DataType: dt})
		}
	}

	return out
}

// ParsePhase validates s as a registered phase name.
func ParsePhase(s string) (Phase, error) {
	for _, r := range registry {
		if string(r.phase) == s {
			return r.phase, nil
		}
	}

	return "", fmt.Errorf("%w: phase %q", ErrUnknownKey, s)
}

// Key is the composite (phase, data type) identity used for validators,
// resolvers, rules and listeners.
type Key struct {
	Phase    Phase
	DataType DataType
}

// NewKey builds a Key and checks that it is registered.
func NewKey(p Phase, dt DataType) (Key, error) {
	k := Key{Phase: p, DataType: dt}
	if !k.Known() {
		return Key{}, fmt.Errorf("%w: %s", ErrUnknownKey, k)
	}

	return k, nil
}

// ParseKey parses the "{phase}:{dataType}" form.
func ParseKey(s string) (Key, error) {
	p, dt, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("%w: malformed key %q", ErrUnknownKey, s)
	}

	return NewKey(Phase(p), DataType(dt))
}

// String renders the key as "{phase}:{dataType}".
func (k Key) String() string {
	return string(k.Phase) + ":" + string(k.DataType)
}

// Known reports whether the key is in the registry.
func (k Key) Known() bool {
	for _, dt := range DataTypes(k.Phase) {
		if dt == k.DataType {
			return true
		}
	}

	return false
}

// MarshalText renders the key in its "{phase}:{dataType}" form.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses and validates the "{phase}:{dataType}" form.
func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}
