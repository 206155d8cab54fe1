package feedback

import (
	"encoding/json"
	"strings"
)

// Insight types.
const (
	PositiveValidation    = "positive_validation"
	NegativeFeedback      = "negative_feedback"
	TimePreferenceEarlier = "time_preference_earlier"
	TimePreferenceLater   = "time_preference_later"
	TimingTooEarly        = "timing_too_early"
	TimingTooLate         = "timing_too_late"
)

// User actions recognised by the rules.
const (
	ActionMovedEarlier = "moved_earlier"
	ActionMovedLater   = "moved_later"
)

// Impact levels.
const (
	ImpactLow    = "low"
	ImpactMedium = "medium"
	ImpactHigh   = "high"
)

// Pattern update keys and the delta each insight type contributes.
const (
	UpdateTimeAdjustment    = "time_adjustment"
	UpdateConfidencePenalty = "confidence_penalty"
	UpdateConfidenceBoost   = "confidence_boost"
)

var updateRules = map[string]struct {
	key   string
	delta float64
}{
	TimePreferenceEarlier: {UpdateTimeAdjustment, -30},
	TimePreferenceLater:   {UpdateTimeAdjustment, 30},
	NegativeFeedback:      {UpdateConfidencePenalty, -0.1},
	PositiveValidation:    {UpdateConfidenceBoost, 0.05},
}

// Classify derives insights from one feedback event. Rating rules run
// first, then user action, then comment keywords; each group adds at most
// one insight.
func Classify(e Event) []Insight {
	var insights []Insight

	switch rating := e.RatingOrDefault(); {
	case rating >= 4:
		insights = append(insights, newInsight(PositiveValidation, e, 0.8, ImpactMedium))
	case rating <= 2:
		insights = append(insights, newInsight(NegativeFeedback, e, 0.9, ImpactHigh))
	}

	switch e.UserAction {
	case ActionMovedEarlier:
		insights = append(insights, newInsight(TimePreferenceEarlier, timePreference{e.SuggestedTime, "earlier"}, 0.7, ImpactMedium))
	case ActionMovedLater:
		insights = append(insights, newInsight(TimePreferenceLater, timePreference{e.SuggestedTime, "later"}, 0.7, ImpactMedium))
	}

	comment := strings.ToLower(e.Comment)
	switch {
	case strings.Contains(comment, "muito cedo") || strings.Contains(comment, "too early"):
		insights = append(insights, newInsight(TimingTooEarly, commentData{comment}, 0.8, ImpactHigh))
	case strings.Contains(comment, "muito tarde") || strings.Contains(comment, "too late"):
		insights = append(insights, newInsight(TimingTooLate, commentData{comment}, 0.8, ImpactHigh))
	}

	return insights
}

// PatternUpdates maps insights onto pattern adjustment deltas. When two
// insights share an update key the later one wins.
func PatternUpdates(insights []Insight) map[string]float64 {
	updates := make(map[string]float64)
	for _, in := range insights {
		if rule, ok := updateRules[in.Type]; ok {
			updates[rule.key] = rule.delta
		}
	}
	return updates
}

type timePreference struct {
	OriginalTime string `json:"original_time,omitempty"`
	Preference   string `json:"preference"`
}

type commentData struct {
	Comment string `json:"comment"`
}

func newInsight(typ string, data any, confidence float64, impact string) Insight {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("{}")
	}
	return Insight{Type: typ, Data: raw, Confidence: confidence, Impact: impact}
}
