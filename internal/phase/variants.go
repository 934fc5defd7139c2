package phase

import (
	"errors"
	"fmt"
)

// Gamification is PHASE_1:gamification.
type Gamification struct {
	Points       int            `json:"points"`
	Level        int            `json:"level"`
	Achievements []string       `json:"achievements"`
	Streaks      map[string]int `json:"streaks"`
	Score        float64        `json:"score"`
}

// AnalyticsData is PHASE_1:analytics.
type AnalyticsData struct {
	Sessions      int     `json:"sessions"`
	MinutesActive int     `json:"minutes_active"`
	Engagement    float64 `json:"engagement"`
}

// Insights is PHASE_2:insights.
type Insights struct {
	Category   string  `json:"category"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// Recommendations is PHASE_2:recommendations.
type Recommendations struct {
	Items []string `json:"items"`
}

// Messages is PHASE_3:messages.
type Messages struct {
	Channel string `json:"channel"`
	Unread  int    `json:"unread"`
}

// Notification is one entry of a Notifications variant.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// Notifications is PHASE_3:notifications.
type Notifications struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

// WellbeingData is PHASE_4:wellbeing.
type WellbeingData struct {
	Score  float64 `json:"score"`
	Mood   string  `json:"mood"`
	Source string  `json:"source"`
}

// Health is PHASE_4:health.
type Health struct {
	SleepHours      float64 `json:"sleep_hours"`
	ActivityMinutes int     `json:"activity_minutes"`
}

// AssessmentData is PHASE_5:assessment.
type AssessmentData struct {
	Subject string  `json:"subject"`
	Score   float64 `json:"score"`
	Grade   string  `json:"grade"`
}

// Progress is PHASE_5:progress.
type Progress struct {
	Subject    string  `json:"subject"`
	Completion float64 `json:"completion"`
}

// Enumerated values accepted by validators.
var (
	insightCategories = map[string]bool{"academic": true, "behavioural": true, "wellbeing": true, "engagement": true}
	messageChannels   = map[string]bool{"direct": true, "class": true, "broadcast": true}
	moods             = map[string]bool{"happy": true, "neutral": true, "sad": true, "stressed": true, "excited": true}
	grades            = map[string]bool{"A": true, "B": true, "C": true, "D": true, "E": true, "F": true}
)

// Validation bounds.
const (
	maxPercent    = 100
	maxSleepHours = 24
)

func (Gamification) Key() Key    { return Key{Analytics, TypeGamification} }
func (AnalyticsData) Key() Key   { return Key{Analytics, TypeAnalytics} }
func (Insights) Key() Key        { return Key{AIInsights, TypeInsights} }
func (Recommendations) Key() Key { return Key{AIInsights, TypeRecommendations} }
func (Messages) Key() Key        { return Key{Communication, TypeMessages} }
func (Notifications) Key() Key   { return Key{Communication, TypeNotifications} }
func (WellbeingData) Key() Key   { return Key{Wellbeing, TypeWellbeing} }
func (Health) Key() Key          { return Key{Wellbeing, TypeHealth} }
func (AssessmentData) Key() Key  { return Key{Assessment, TypeAssessment} }
func (Progress) Key() Key        { return Key{Assessment, TypeProgress} }

func (Gamification) isData()    {}
func (AnalyticsData) isData()   {}
func (Insights) isData()        {}
func (Recommendations) isData() {}
func (Messages) isData()        {}
func (Notifications) isData()   {}
func (WellbeingData) isData()   {}
func (Health) isData()          {}
func (AssessmentData) isData()  {}
func (Progress) isData()        {}

// Validate implements Data.
func (g Gamification) Validate() error {
	var errs []error

	if g.Points < 0 {
		errs = append(errs, fmt.Errorf("points: must be >= 0, got %d", g.Points))
	}

	if g.Level < 1 {
		errs = append(errs, fmt.Errorf("level: must be >= 1, got %d", g.Level))
	}

	if g.Achievements == nil {
		errs = append(errs, errors.New("achievements: must be a list"))
	}

	if g.Streaks == nil {
		errs = append(errs, errors.New("streaks: must be an object"))
	}

	return errors.Join(errs...)
}

// Validate implements Data.
func (a AnalyticsData) Validate() error {
	var errs []error

	if a.Sessions < 0 {
		errs = append(errs, fmt.Errorf("sessions: must be >= 0, got %d", a.Sessions))
	}

	if a.MinutesActive < 0 {
		errs = append(errs, fmt.Errorf("minutes_active: must be >= 0, got %d", a.MinutesActive))
	}

	errs = append(errs, checkRange("engagement", a.Engagement, 0, maxPercent)...)

	return errors.Join(errs...)
}

// Validate implements Data.
func (i Insights) Validate() error {
	var errs []error

	if !insightCategories[i.Category] {
		errs = append(errs, fmt.Errorf("category: unknown value %q", i.Category))
	}

	errs = append(errs, checkRange("confidence", i.Confidence, 0, 1)...)

	return errors.Join(errs...)
}

// Validate implements Data.
func (r Recommendations) Validate() error {
	if r.Items == nil {
		return errors.New("items: must be a list")
	}

	return nil
}

// Validate implements Data.
func (m Messages) Validate() error {
	var errs []error

	if !messageChannels[m.Channel] {
		errs = append(errs, fmt.Errorf("channel: unknown value %q", m.Channel))
	}

	if m.Unread < 0 {
		errs = append(errs, fmt.Errorf("unread: must be >= 0, got %d", m.Unread))
	}

	return errors.Join(errs...)
}

// Validate implements Data.
func (n Notifications) Validate() error {
	var errs []error

	if n.Items == nil {
		errs = append(errs, errors.New("items: must be a list"))
	}

	if n.Unread < 0 {
		errs = append(errs, fmt.Errorf("unread: must be >= 0, got %d", n.Unread))
	}

	return errors.Join(errs...)
}

// Validate implements Data.
func (w WellbeingData) Validate() error {
	var errs []error

	errs = append(errs, checkRange("score", w.Score, 0, maxPercent)...)

	if !moods[w.Mood] {
		errs = append(errs, fmt.Errorf("mood: unknown value %q", w.Mood))
	}

	return errors.Join(errs...)
}

// Validate implements Data.
func (h Health) Validate() error {
	var errs []error

	errs = append(errs, checkRange("sleep_hours", h.SleepHours, 0, maxSleepHours)...)

	if h.ActivityMinutes < 0 {
		errs = append(errs, fmt.Errorf("activity_minutes: must be >= 0, got %d", h.ActivityMinutes))
	}

	return errors.Join(errs...)
}

// Validate implements Data.
func (a AssessmentData) Validate() error {
	var errs []error

	if a.Subject == "" {
		errs = append(errs, errors.New("subject: must not be empty"))
	}

	errs = append(errs, checkRange("score", a.Score, 0, maxPercent)...)

	if !grades[a.Grade] {
		errs = append(errs, fmt.Errorf("grade: unknown value %q", a.Grade))
	}

	return errors.Join(errs...)
}

// Validate implements Data.
func (p Progress) Validate() error {
	return errors.Join(checkRange("completion", p.Completion, 0, maxPercent)...)
}

func checkRange(field string, v, lo, hi float64) []error {
	if v < lo || v > hi {
		return []error{fmt.Errorf("%s: must be between %g and %g, got %g", field, lo, hi, v)}
	}

	return nil
}
