// Package patterns derives productivity patterns from task history and keeps
// them in the learning store.
package patterns

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Type names a pattern family. Exactly one stored row exists per type.
type Type string

const (
	TypeHourly     Type = "hourly_productivity"
	TypeDaily      Type = "daily_productivity"
	TypeCategory   Type = "category_efficiency"
	TypeEstimation Type = "estimation_accuracy"
	TypeEnergy     Type = "energy_cycles"
)

// AllTypes lists the pattern families in analysis order.
var AllTypes = []Type{TypeHourly, TypeDaily, TypeCategory, TypeEstimation, TypeEnergy}

// defaultConfidence is reported by patterns that carry no confidence of their own.
const defaultConfidence = 0.5

// Pattern is one of HourlyProductivity, DailyProductivity, CategoryEfficiency,
// EstimationAccuracy or EnergyCycles.
type Pattern interface {
	Type() Type
	// Confidence is the mean of the confidences held in the pattern, or 0.5
	// when it holds none.
	Confidence() float64
	// SampleSize is the largest sample size held in the pattern, or 0.
	SampleSize() int
}

// Bucket summarises task efficiency for one hour, weekday or category.
type Bucket struct {
	Efficiency float64 `json:"efficiency"`
	Confidence float64 `json:"confidence"`
	SampleSize int     `json:"sample_size"`
}

// HourlyProductivity is keyed by hour of day ("0".."23").
type HourlyProductivity map[string]Bucket

func (HourlyProductivity) Type() Type { return TypeHourly }

func (h HourlyProductivity) Confidence() float64 {
	return meanConfidence(h, func(b Bucket) float64 { return b.Confidence })
}

func (h HourlyProductivity) SampleSize() int {
	return maxSampleSize(h, func(b Bucket) int { return b.SampleSize })
}

// DailyProductivity is keyed by weekday name ("Monday".."Sunday").
type DailyProductivity map[string]Bucket

func (DailyProductivity) Type() Type { return TypeDaily }

func (d DailyProductivity) Confidence() float64 {
	return meanConfidence(d, func(b Bucket) float64 { return b.Confidence })
}

func (d DailyProductivity) SampleSize() int {
	return maxSampleSize(d, func(b Bucket) int { return b.SampleSize })
}

// CategoryStats is a Bucket plus the mean actual duration in minutes.
type CategoryStats struct {
	Efficiency      float64 `json:"efficiency"`
	Confidence      float64 `json:"confidence"`
	SampleSize      int     `json:"sample_size"`
	TypicalDuration float64 `json:"typical_duration"`
}

// CategoryEfficiency is keyed by task category.
type CategoryEfficiency map[string]CategoryStats

func (CategoryEfficiency) Type() Type { return TypeCategory }

func (c CategoryEfficiency) Confidence() float64 {
	return meanConfidence(c, func(s CategoryStats) float64 { return s.Confidence })
}

func (c CategoryEfficiency) SampleSize() int {
	return maxSampleSize(c, func(s CategoryStats) int { return s.SampleSize })
}

// Estimation tendencies.
const (
	TendencyUnderestimate = "underestimate"
	TendencyOverestimate  = "overestimate"
	TendencyBalanced      = "balanced"
)

// EstimationAccuracy describes how estimates compare with actual durations.
// The zero value means no task had both an estimate and an actual duration.
type EstimationAccuracy struct {
	OverallAccuracy     float64 `json:"overall_accuracy"`
	UnderestimationRate float64 `json:"underestimation_rate"`
	Samples             int     `json:"sample_size"`
	Conf                float64 `json:"confidence"`
	Tendency            string  `json:"tendency"`
}

func (EstimationAccuracy) Type() Type { return TypeEstimation }

func (e EstimationAccuracy) Confidence() float64 {
	if e.Samples == 0 {
		return defaultConfidence
	}
	return e.Conf
}

func (e EstimationAccuracy) SampleSize() int { return e.Samples }

// MarshalJSON writes an empty object for the zero value.
func (e EstimationAccuracy) MarshalJSON() ([]byte, error) {
	if e.Samples == 0 {
		return []byte("{}"), nil
	}
	type plain EstimationAccuracy
	return json.Marshal(plain(e))
}

// EnergyLevel is the mean energy score observed at one hour.
type EnergyLevel struct {
	EnergyLevel float64 `json:"energy_level"`
	SampleSize  int     `json:"sample_size"`
}

// EnergyCycles ranks hours of the day by energy score. It carries no
// confidence values, so its aggregate confidence is always the default.
type EnergyCycles struct {
	PeakEnergyHours []string               `json:"peak_energy_hours"`
	LowEnergyHours  []string               `json:"low_energy_hours"`
	HourlyEnergy    map[string]EnergyLevel `json:"hourly_energy"`
}

func (EnergyCycles) Type() Type { return TypeEnergy }

func (EnergyCycles) Confidence() float64 { return defaultConfidence }

func (e EnergyCycles) SampleSize() int {
	return maxSampleSize(e.HourlyEnergy, func(l EnergyLevel) int { return l.SampleSize })
}

// Empty reports whether no hour had enough samples.
func (e EnergyCycles) Empty() bool { return len(e.HourlyEnergy) == 0 }

// MarshalJSON writes an empty object when no hour qualified.
func (e EnergyCycles) MarshalJSON() ([]byte, error) {
	if e.Empty() {
		return []byte("{}"), nil
	}
	type plain EnergyCycles
	return json.Marshal(plain(e))
}

// Decode restores a stored pattern of the given type.
func Decode(t Type, data []byte) (Pattern, error) {
	var p Pattern
	var err error
	switch t {
	case TypeHourly:
		var v HourlyProductivity
		err = json.Unmarshal(data, &v)
		p = v
	case TypeDaily:
		var v DailyProductivity
		err = json.Unmarshal(data, &v)
		p = v
	case TypeCategory:
		var v CategoryEfficiency
		err = json.Unmarshal(data, &v)
		p = v
	case TypeEstimation:
		var v EstimationAccuracy
		err = json.Unmarshal(data, &v)
		p = v
	case TypeEnergy:
		var v EnergyCycles
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown pattern type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t, err)
	}
	return p, nil
}

// ParseType validates a pattern type name.
func ParseType(s string) (Type, error) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown pattern type %q", s)
}

func meanConfidence[V any](m map[string]V, conf func(V) float64) float64 {
	if len(m) == 0 {
		return defaultConfidence
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sum float64
	for _, k := range keys {
		sum += conf(m[k])
	}
	return sum / float64(len(m))
}

func maxSampleSize[V any](m map[string]V, size func(V) int) int {
	largest := 0
	for _, v := range m {
		if n := size(v); n > largest {
			largest = n
		}
	}
	return largest
}
