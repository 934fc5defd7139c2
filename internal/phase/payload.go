package phase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Data is the closed set of payload variants, one per registered key.
// Only types in this package implement it.
type Data interface {
	// Key reports which (phase, data type) the variant belongs to.
	Key() Key
	// Validate checks the variant's structural and semantic invariants.
	// It never mutates the receiver.
	Validate() error

	isData()
}

// Payload is the envelope carried by a queued write. Timestamp is assigned by
// the coordinator when the write is queued. Data is nil only for forced
// refreshes.
type Payload struct {
	Timestamp     time.Time `json:"timestamp"`
	UserInitiated bool      `json:"user_initiated,omitempty"`
	ForceRefresh  bool      `json:"force_refresh,omitempty"`
	Data          Data      `json:"data,omitempty"`

	// Fields names the data keys present in the encoding the payload was
	// decoded from, sorted. Nil means every field of Data counts as set.
	Fields []string `json:"-"`
}

// wirePayload is Payload with the variant left undecoded.
type wirePayload struct {
	Timestamp     time.Time       `json:"timestamp"`
	UserInitiated bool            `json:"user_initiated,omitempty"`
	ForceRefresh  bool            `json:"force_refresh,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// DecodePayload parses the wire form of a payload for key k. Unknown fields
// inside data are rejected.
func DecodePayload(k Key, b []byte) (Payload, error) {
	var w wirePayload
	if err := json.Unmarshal(b, &w); err != nil {
		return Payload{}, fmt.Errorf("phase: decoding payload for %s: %w", k, err)
	}

	p := Payload{
		Timestamp:     w.Timestamp,
		UserInitiated: w.UserInitiated,
		ForceRefresh:  w.ForceRefresh,
	}

	if len(w.Data) == 0 || bytes.Equal(w.Data, []byte("null")) {
		if !w.ForceRefresh {
			return Payload{}, fmt.Errorf("phase: payload for %s has no data", k)
		}

		return p, nil
	}

	d, err := DecodeData(k, w.Data)
	if err != nil {
		return Payload{}, err
	}

	fields, err := fieldNames(w.Data)
	if err != nil {
		return Payload{}, fmt.Errorf("phase: decoding %s data: %w", k, err)
	}

	p.Data = d
	p.Fields = fields

	return p, nil
}

func fieldNames(raw []byte) ([]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}

	names := slices.Sorted(maps.Keys(obj))
	if names == nil {
		names = []string{}
	}

	return names, nil
}

// DecodeData parses raw JSON into the variant registered for k.
func DecodeData(k Key, raw []byte) (Data, error) {
	switch k {
	case Key{Analytics, TypeGamification}:
		return decodeInto[Gamification](k, raw)
	case Key{Analytics, TypeAnalytics}:
		return decodeInto[AnalyticsData](k, raw)
	case Key{AIInsights, TypeInsights}:
		return decodeInto[Insights](k, raw)
	case Key{AIInsights, TypeRecommendations}:
		return decodeInto[Recommendations](k, raw)
	case Key{Communication, TypeMessages}:
		return decodeInto[Messages](k, raw)
	case Key{Communication, TypeNotifications}:
		return decodeInto[Notifications](k, raw)
	case Key{Wellbeing, TypeWellbeing}:
		return decodeInto[WellbeingData](k, raw)
	case Key{Wellbeing, TypeHealth}:
		return decodeInto[Health](k, raw)
	case Key{Assessment, TypeAssessment}:
		return decodeInto[AssessmentData](k, raw)
	case Key{Assessment, TypeProgress}:
		return decodeInto[Progress](k, raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, k)
	}
}

func decodeInto[T Data](k Key, raw []byte) (Data, error) {
	var v T

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("phase: decoding %s data: %w", k, err)
	}

	return v, nil
}

// Score returns the numeric score a variant competes on under the "score"
// conflict strategy. Variants without a natural score return 0.
func Score(d Data) float64 {
	switch v := d.(type) {
	case Gamification:
		return v.Score
	case WellbeingData:
		return v.Score
	case AssessmentData:
		return v.Score
	case Progress:
		return v.Completion
	case AnalyticsData, Insights, Recommendations, Messages, Notifications, Health, nil:
		return 0
	default:
		return 0
	}
}

// MergeData shallow-merges the JSON fields of remote over local. Both must be
// the same variant. With a non-nil present, only those fields of remote are
// taken and the rest keep local's value; zero values count when present.
// A nil present takes every field of remote.
func MergeData(local, remote Data, present []string) (Data, error) {
	if local == nil {
		return remote, nil
	}

	if remote == nil {
		return local, nil
	}

	if local.Key() != remote.Key() {
		return nil, fmt.Errorf("phase: cannot merge %s into %s", remote.Key(), local.Key())
	}

	base, err := fieldsOf(local)
	if err != nil {
		return nil, err
	}

	over, err := fieldsOf(remote)
	if err != nil {
		return nil, err
	}

	for name, v := range over {
		if present == nil || slices.Contains(present, name) {
			base[name] = v
		}
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("phase: encoding merged fields: %w", err)
	}

	return DecodeData(local.Key(), raw)
}

func fieldsOf(d Data) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("phase: encoding %s: %w", d.Key(), err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("phase: splitting %s fields: %w", d.Key(), err)
	}

	return fields, nil
}

// errNilData is reported when a non-refresh payload has no variant.
var errNilData = errors.New("phase: payload has no data")

// Validator checks a payload variant. Validators are pure.
type Validator func(Data) error

// DefaultValidators maps every registered key to its variant's Validate
// method. The coordinator treats a key missing from the map as always valid.
func DefaultValidators() map[Key]Validator {
	out := make(map[Key]Validator, len(Keys()))
	for _, k := range Keys() {
		out[k] = func(d Data) error {
			if d == nil {
				return errNilData
			}

			return d.Validate()
		}
	}

	return out
}
