package patterns

import (
	"math"
	"sort"
	"strconv"

	"github.com/TobiSchelling/chronos/internal/taskstore"
)

// Minimum samples per bucket and the sample count at which a bucket reaches
// full confidence.
const (
	hourlyMinSamples   = 3
	hourlyFullSamples  = 10
	dailyMinSamples    = 2
	dailyFullSamples   = 8
	categoryMinSamples = 2
	categoryFullSample = 5
	estimationFull     = 20
	energyMinSamples   = 2

	energyFactor  = 1.2
	energyCeiling = 2.0
	peakHours     = 3
	lowHours      = 2
)

// Set holds one value of every pattern family computed from the same history.
type Set struct {
	Hourly     HourlyProductivity
	Daily      DailyProductivity
	Category   CategoryEfficiency
	Estimation EstimationAccuracy
	Energy     EnergyCycles
}

// Patterns returns the members of the set in analysis order.
func (s *Set) Patterns() []Pattern {
	return []Pattern{s.Hourly, s.Daily, s.Category, s.Estimation, s.Energy}
}

// ByType returns the member of the given family.
func (s *Set) ByType(t Type) Pattern {
	switch t {
	case TypeHourly:
		return s.Hourly
	case TypeDaily:
		return s.Daily
	case TypeCategory:
		return s.Category
	case TypeEstimation:
		return s.Estimation
	case TypeEnergy:
		return s.Energy
	}
	return nil
}

// Compute derives all five pattern families from task history. Records
// without the fields a family needs are skipped.
func Compute(history []taskstore.Task) *Set {
	return &Set{
		Hourly:     hourlyProductivity(history),
		Daily:      dailyProductivity(history),
		Category:   categoryEfficiency(history),
		Estimation: estimationAccuracy(history),
		Energy:     energyCycles(history),
	}
}

func hasActual(t taskstore.Task) bool {
	return t.ActualTime != nil && *t.ActualTime > 0
}

// efficiency is estimate over actual, or 1.0 when there is no estimate.
func efficiency(t taskstore.Task) float64 {
	if t.EstimatedTime == nil || *t.EstimatedTime == 0 {
		return 1.0
	}
	return *t.EstimatedTime / math.Max(*t.ActualTime, 1)
}

func confidence(count, full int) float64 {
	return math.Min(float64(count)/float64(full), 1.0)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func hourlyProductivity(tasks []taskstore.Task) HourlyProductivity {
	byHour := make(map[int][]float64)
	for _, t := range tasks {
		if !t.Completed() {
			continue
		}
		h := t.CompletedDate.Hour()
		byHour[h] = append(byHour[h], efficiency(t))
	}

	out := make(HourlyProductivity)
	for h, effs := range byHour {
		if len(effs) < hourlyMinSamples {
			continue
		}
		out[strconv.Itoa(h)] = Bucket{
			Efficiency: mean(effs),
			Confidence: confidence(len(effs), hourlyFullSamples),
			SampleSize: len(effs),
		}
	}
	return out
}

func dailyProductivity(tasks []taskstore.Task) DailyProductivity {
	byDay := make(map[string][]float64)
	for _, t := range tasks {
		if !t.Completed() {
			continue
		}
		day := t.CompletedDate.Weekday().String()
		byDay[day] = append(byDay[day], efficiency(t))
	}

	out := make(DailyProductivity)
	for day, effs := range byDay {
		if len(effs) < dailyMinSamples {
			continue
		}
		out[day] = Bucket{
			Efficiency: mean(effs),
			Confidence: confidence(len(effs), dailyFullSamples),
			SampleSize: len(effs),
		}
	}
	return out
}

func categoryEfficiency(tasks []taskstore.Task) CategoryEfficiency {
	type acc struct {
		effs   []float64
		actual float64
	}
	byCat := make(map[string]*acc)
	for _, t := range tasks {
		if t.Category == "" || !hasActual(t) {
			continue
		}
		a, ok := byCat[t.Category]
		if !ok {
			a = &acc{}
			byCat[t.Category] = a
		}
		a.effs = append(a.effs, efficiency(t))
		a.actual += *t.ActualTime
	}

	out := make(CategoryEfficiency)
	for cat, a := range byCat {
		n := len(a.effs)
		if n < categoryMinSamples {
			continue
		}
		out[cat] = CategoryStats{
			Efficiency:      mean(a.effs),
			Confidence:      confidence(n, categoryFullSample),
			SampleSize:      n,
			TypicalDuration: a.actual / float64(n),
		}
	}
	return out
}

func estimationAccuracy(tasks []taskstore.Task) EstimationAccuracy {
	var accuracies []float64
	under := 0
	for _, t := range tasks {
		if t.EstimatedTime == nil || *t.EstimatedTime == 0 || !hasActual(t) {
			continue
		}
		accuracies = append(accuracies, *t.EstimatedTime / *t.ActualTime)
		if *t.ActualTime > *t.EstimatedTime {
			under++
		}
	}
	if len(accuracies) == 0 {
		return EstimationAccuracy{}
	}

	n := len(accuracies)
	rate := float64(under) / float64(n)
	tendency := TendencyBalanced
	switch {
	case rate > 0.6:
		tendency = TendencyUnderestimate
	case rate < 0.4:
		tendency = TendencyOverestimate
	}
	return EstimationAccuracy{
		OverallAccuracy:     mean(accuracies),
		UnderestimationRate: rate,
		Samples:             n,
		Conf:                confidence(n, estimationFull),
		Tendency:            tendency,
	}
}

func energyCycles(tasks []taskstore.Task) EnergyCycles {
	byHour := make(map[int][]float64)
	for _, t := range tasks {
		if !t.Completed() {
			continue
		}
		h := t.CompletedDate.Hour()
		byHour[h] = append(byHour[h], math.Min(efficiency(t)*energyFactor, energyCeiling))
	}

	type ranked struct {
		hour   int
		energy float64
	}
	var hours []ranked
	levels := make(map[string]EnergyLevel)
	for h, scores := range byHour {
		if len(scores) < energyMinSamples {
			continue
		}
		m := mean(scores)
		levels[strconv.Itoa(h)] = EnergyLevel{EnergyLevel: m, SampleSize: len(scores)}
		hours = append(hours, ranked{hour: h, energy: m})
	}
	if len(hours) == 0 {
		return EnergyCycles{}
	}

	sort.Slice(hours, func(i, j int) bool {
		if hours[i].energy != hours[j].energy {
			return hours[i].energy > hours[j].energy
		}
		return hours[i].hour < hours[j].hour
	})

	names := make([]string, len(hours))
	for i, r := range hours {
		names[i] = strconv.Itoa(r.hour)
	}
	return EnergyCycles{
		PeakEnergyHours: append([]string(nil), names[:min(peakHours, len(names))]...),
		LowEnergyHours:  append([]string(nil), names[max(len(names)-lowHours, 0):]...),
		HourlyEnergy:    levels,
	}
}
