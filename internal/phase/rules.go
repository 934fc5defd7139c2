package phase

import "fmt"

// Rule derives a write for Target from a resolved write for Source. Derive
// is pure; it returns false when the source produces nothing for the target.
type Rule struct {
	Source Key
	Target Key
	Derive func(Data) (Data, bool)
}

// Thresholds used by the default rules.
const (
	wellbeingBase         = 50
	wellbeingPerLevel     = 5
	excitedLevel          = 5
	wellbeingConcernBelow = 40
)

// DefaultRules returns the static cross-phase rule table keyed by source.
func DefaultRules() map[Key][]Rule {
	rules := []Rule{
		{
			Source: Gamification{}.Key(),
			Target: WellbeingData{}.Key(),
			Derive: gamificationToWellbeing,
		},
		{
			Source: AssessmentData{}.Key(),
			Target: Insights{}.Key(),
			Derive: assessmentToInsights,
		},
		{
			Source: AssessmentData{}.Key(),
			Target: Progress{}.Key(),
			Derive: assessmentToProgress,
		},
		{
			Source: WellbeingData{}.Key(),
			Target: Notifications{}.Key(),
			Derive: wellbeingToNotifications,
		},
	}

	out := make(map[Key][]Rule)
	for _, r := range rules {
		out[r.Source] = append(out[r.Source], r)
	}

	return out
}

func gamificationToWellbeing(d Data) (Data, bool) {
	g, ok := d.(Gamification)
	if !ok {
		return nil, false
	}

	mood := "happy"
	if g.Level >= excitedLevel {
		mood = "excited"
	}

	return WellbeingData{
		Score:  clamp(float64(wellbeingBase+wellbeingPerLevel*g.Level), 0, maxPercent),
		Mood:   mood,
		Source: "gamification",
	}, true
}

func assessmentToInsights(d Data) (Data, bool) {
	a, ok := d.(AssessmentData)
	if !ok {
		return nil, false
	}

	return Insights{
		Category:   "academic",
		Summary:    fmt.Sprintf("%s assessed at grade %s", a.Subject, a.Grade),
		Confidence: clamp(a.Score/maxPercent, 0, 1),
	}, true
}

func assessmentToProgress(d Data) (Data, bool) {
	a, ok := d.(AssessmentData)
	if !ok {
		return nil, false
	}

	return Progress{Subject: a.Subject, Completion: a.Score}, true
}

func wellbeingToNotifications(d Data) (Data, bool) {
	w, ok := d.(WellbeingData)
	if !ok || w.Score >= wellbeingConcernBelow {
		return nil, false
	}

	return Notifications{
		Items: []Notification{{
			Title: "Wellbeing check-in",
			Body:  fmt.Sprintf("Wellbeing score dropped to %.0f", w.Score),
		}},
		Unread: 1,
	}, true
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
