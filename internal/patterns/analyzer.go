package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/database"
	"github.com/TobiSchelling/chronos/internal/logging"
	"github.com/TobiSchelling/chronos/internal/metrics"
	"github.com/TobiSchelling/chronos/internal/taskstore"
)

// Stored is a pattern read back from the learning store, annotated with the
// confidence and sample size it was stored with.
type Stored struct {
	Type        Type      `json:"pattern_type"`
	Data        Pattern   `json:"pattern_data"`
	Confidence  float64   `json:"confidence_score"`
	SampleSize  int       `json:"sample_size"`
	LastUpdated time.Time `json:"last_updated"`
}

// Analyzer computes pattern families and serves them from the learning store.
type Analyzer struct {
	db        *database.DB
	threshold float64
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewAnalyzer creates an Analyzer using the configured confidence threshold.
func NewAnalyzer(db *database.DB, cfg config.Learning, logger *zap.Logger, m *metrics.Metrics) *Analyzer {
	logger = logging.OrNop(logger)
	return &Analyzer{
		db:        db,
		threshold: cfg.ConfidenceThreshold,
		logger:    logger.Named("patterns"),
		metrics:   m,
		now:       time.Now,
	}
}

// Threshold returns the minimum confidence for patterns served by CurrentPatterns.
func (a *Analyzer) Threshold() float64 { return a.threshold }

// Analyze computes every pattern family from history, upserts each one and
// records a performance snapshot. The computed set is returned even when
// some writes fail; the error then lists the failed writes.
func (a *Analyzer) Analyze(ctx context.Context, history []taskstore.Task) (*Set, error) {
	now := a.now()
	set := Compute(history)
	a.metrics.RecordPatternRun()

	var errs []error
	for _, p := range set.Patterns() {
		if err := a.store(ctx, p, now); err != nil {
			a.logger.Error("storing pattern failed", zap.String("pattern_type", string(p.Type())), zap.Error(err))
			a.metrics.RecordPersistenceFailure("patterns")
			errs = append(errs, err)
			continue
		}
		a.logger.Debug("stored pattern",
			zap.String("pattern_type", string(p.Type())),
			zap.Float64("confidence", p.Confidence()),
			zap.Int("sample_size", p.SampleSize()),
		)
	}

	perf := ComputePerformance(history, now)
	if data, err := json.Marshal(perf); err != nil {
		errs = append(errs, err)
	} else if err := a.db.InsertPerformanceSnapshot(ctx, string(data), perf.SampleSize); err != nil {
		a.logger.Error("storing performance snapshot failed", zap.Error(err))
		a.metrics.RecordPersistenceFailure("performance")
		errs = append(errs, err)
	}

	a.logger.Info("analyzed task history", zap.Int("tasks", len(history)), zap.Int("failed_writes", len(errs)))
	return set, errors.Join(errs...)
}

func (a *Analyzer) store(ctx context.Context, p Pattern, now time.Time) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", p.Type(), err)
	}
	return a.db.UpsertPattern(ctx, database.PatternRow{
		PatternType:     string(p.Type()),
		PatternData:     string(data),
		ConfidenceScore: p.Confidence(),
		SampleSize:      p.SampleSize(),
		LastUpdated:     now,
	})
}

// CurrentPatterns returns stored patterns at or above the configured
// threshold, most recently updated first.
func (a *Analyzer) CurrentPatterns(ctx context.Context) ([]Stored, error) {
	return a.CurrentPatternsAbove(ctx, a.threshold)
}

// CurrentPatternsAbove is CurrentPatterns with an explicit threshold. Rows
// that fail to decode are skipped.
func (a *Analyzer) CurrentPatternsAbove(ctx context.Context, minConfidence float64) ([]Stored, error) {
	rows, err := a.db.ListPatterns(ctx, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}

	out := make([]Stored, 0, len(rows))
	for _, row := range rows {
		s, err := decodeRow(row)
		if err != nil {
			a.logger.Warn("skipping unreadable pattern", zap.String("pattern_type", row.PatternType), zap.Error(err))
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func decodeRow(row database.PatternRow) (*Stored, error) {
	t, err := ParseType(row.PatternType)
	if err != nil {
		return nil, err
	}
	p, err := Decode(t, []byte(row.PatternData))
	if err != nil {
		return nil, err
	}
	return &Stored{
		Type:        t,
		Data:        p,
		Confidence:  row.ConfidenceScore,
		SampleSize:  row.SampleSize,
		LastUpdated: row.LastUpdated,
	}, nil
}

// ValidatePattern appends an observed result for a stored pattern. It reports
// false when the pattern type has never been stored. Validations do not
// change the stored confidence.
func (a *Analyzer) ValidatePattern(ctx context.Context, t Type, result float64, vctx map[string]any) (bool, error) {
	if vctx == nil {
		vctx = map[string]any{}
	}
	data, err := json.Marshal(vctx)
	if err != nil {
		return false, fmt.Errorf("encoding validation context: %w", err)
	}
	ok, err := a.db.InsertPatternValidation(ctx, string(t), result, string(data))
	if err != nil {
		a.metrics.RecordPersistenceFailure("validations")
		return false, err
	}
	if !ok {
		a.logger.Info("validation for unknown pattern ignored", zap.String("pattern_type", string(t)))
	}
	return ok, nil
}

// RecentPerformance returns the latest performance snapshot, or a zero value
// when none has been recorded.
func (a *Analyzer) RecentPerformance(ctx context.Context) (Performance, error) {
	row, err := a.db.LatestPerformanceSnapshot(ctx)
	if err != nil || row == nil {
		return Performance{}, err
	}
	var p Performance
	if err := json.Unmarshal([]byte(row.Data), &p); err != nil {
		return Performance{}, fmt.Errorf("decoding performance snapshot: %w", err)
	}
	recorded := row.RecordedAt
	p.RecordedAt = &recorded
	return p, nil
}

// EnergyPatterns returns the latest stored energy cycles regardless of the
// confidence threshold, or an empty value when none is stored.
func (a *Analyzer) EnergyPatterns(ctx context.Context) (EnergyCycles, error) {
	row, err := a.db.GetPattern(ctx, string(TypeEnergy))
	if err != nil || row == nil {
		return EnergyCycles{}, err
	}
	p, err := Decode(TypeEnergy, []byte(row.PatternData))
	if err != nil {
		return EnergyCycles{}, err
	}
	return p.(EnergyCycles), nil
}
