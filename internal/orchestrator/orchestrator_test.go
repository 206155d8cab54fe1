package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TobiSchelling/chronos/internal/config"
	"github.com/TobiSchelling/chronos/internal/metrics"
	"github.com/TobiSchelling/chronos/internal/patterns"
	"github.com/TobiSchelling/chronos/internal/suggest"
	"github.com/TobiSchelling/chronos/internal/taskstore"
)

var callTime = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

type fakePatterns struct {
	stored []patterns.Stored
	err    error
}

func (f *fakePatterns) CurrentPatterns(context.Context) ([]patterns.Stored, error) {
	return f.stored, f.err
}

func (f *fakePatterns) RecentPerformance(context.Context) (patterns.Performance, error) {
	if f.err != nil {
		return patterns.Performance{}, f.err
	}
	return patterns.Performance{Last7DaysEfficiency: 0.9, CompletionRate: 0.8, SampleSize: 12}, nil
}

func (f *fakePatterns) EnergyPatterns(context.Context) (patterns.EnergyCycles, error) {
	if f.err != nil {
		return patterns.EnergyCycles{}, f.err
	}
	return patterns.EnergyCycles{PeakEnergyHours: []string{"9", "10", "11"}}, nil
}

type fakeStrategy struct {
	s     *suggest.Suggestion
	err   error
	block bool
	req   suggest.Request
}

func (f *fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Suggest(ctx context.Context, req suggest.Request) (*suggest.Suggestion, error) {
	f.req = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.s, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	existing  []taskstore.Task
	listErr   error
	createErr error
	created   []taskstore.NewTask
}

func (f *fakeStore) RecentTasks(context.Context, time.Duration) ([]taskstore.Task, error) {
	return f.existing, f.listErr
}

func (f *fakeStore) Create(_ context.Context, t taskstore.NewTask) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, t)
	return "page-1", nil
}

func (f *fakeStore) Update(context.Context, string, taskstore.Fields) error { return nil }

func newTestOrchestrator(t *testing.T, deps Deps) (*Orchestrator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	deps.Logger = zap.New(core)
	if deps.Patterns == nil {
		deps.Patterns = &fakePatterns{}
	}
	o := New(config.AI{TimeoutSeconds: 5}, deps)
	o.now = func() time.Time { return callTime }
	return o, logs
}

func meetingRequest() TaskRequest {
	return TaskRequest{Title: "Sprint sync", Category: "Meetings", Priority: "Média", EstimatedTime: 45}
}

func TestOrchestrateFallbackWithoutPrimary(t *testing.T) {
	o, logs := newTestOrchestrator(t, Deps{})

	res, err := o.Orchestrate(context.Background(), meetingRequest())
	require.NoError(t, err)

	assert.Equal(t, callTime.Add(3*time.Hour), res.Suggestion.ScheduledAt)
	assert.Equal(t, 0.6, res.Confidence)
	assert.Contains(t, res.Reasoning, "Meetings")
	assert.Equal(t, suggest.SourceFallback, res.Suggestion.Source)
	assert.Len(t, res.Alternatives, 2)
	assert.Nil(t, res.ExternalTaskID)
	assert.Equal(t, o.SessionID(), res.SessionID)
	assert.Equal(t, 1, logs.FilterMessage("fallback suggestion").Len())
}

func TestOrchestrateUsesPrimary(t *testing.T) {
	at := callTime.Add(5 * time.Hour)
	primary := &fakeStrategy{s: &suggest.Suggestion{
		TaskID:      "task_abcdef12",
		ScheduledAt: at,
		Confidence:  0.85,
		Reasoning:   "Peak energy window",
		Source:      suggest.SourceAI,
	}}
	store := &fakeStore{existing: []taskstore.Task{{ID: "t1", Title: "Existing"}}}
	o, _ := newTestOrchestrator(t, Deps{Primary: primary, Tasks: store})

	res, err := o.Orchestrate(context.Background(), meetingRequest())
	require.NoError(t, err)

	assert.Equal(t, at, res.Suggestion.ScheduledAt)
	assert.Equal(t, 0.85, res.Confidence)
	assert.Equal(t, "Peak energy window", res.Reasoning)

	// Context handed to the strategy.
	assert.Equal(t, callTime, primary.req.Context.CurrentTime)
	assert.Len(t, primary.req.Context.ExistingTasks, 1)
	assert.Equal(t, 0.9, primary.req.Context.RecentPerformance.Last7DaysEfficiency)
	assert.Equal(t, []string{"9", "10", "11"}, primary.req.Context.EnergyPatterns.PeakEnergyHours)
	assert.Equal(t, suggest.Workload{Status: "normal", Capacity: 0.7}, primary.req.Context.WorkloadStatus)

	require.NotNil(t, res.ExternalTaskID)
	assert.Equal(t, "page-1", *res.ExternalTaskID)
	require.Len(t, store.created, 1)
	assert.Equal(t, at, store.created[0].ScheduledAt)
	assert.Equal(t, 0.85, store.created[0].Confidence)
	assert.Equal(t, 45, store.created[0].EstimatedTime)
}

func TestOrchestrateFallsBackOnPrimaryFailure(t *testing.T) {
	tests := []struct {
		name    string
		primary *fakeStrategy
		class   string
	}{
		{"unavailable", &fakeStrategy{err: suggest.ErrUnavailable}, "unavailable"},
		{"malformed", &fakeStrategy{err: suggest.ErrMalformed}, "malformed"},
		{"missing datetime", &fakeStrategy{s: &suggest.Suggestion{Confidence: 0.9}}, "malformed"},
		{"nil suggestion", &fakeStrategy{}, "malformed"},
		{"other", &fakeStrategy{err: errors.New("boom")}, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			o, logs := newTestOrchestrator(t, Deps{Primary: tt.primary, Metrics: m})

			res, err := o.Orchestrate(context.Background(), meetingRequest())
			require.NoError(t, err)

			assert.Equal(t, 0.6, res.Confidence)
			assert.Equal(t, callTime.Add(3*time.Hour), res.Suggestion.ScheduledAt)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.AIFailuresTotal.WithLabelValues(tt.class)))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.SuggestionsTotal.WithLabelValues(suggest.SourceFallback)))

			warn := logs.FilterMessage("AI suggestion failed, using fallback").All()
			require.Len(t, warn, 1)
			assert.Equal(t, tt.class, warn[0].ContextMap()["error_class"])
		})
	}
}

func TestOrchestrateTimesOutPrimary(t *testing.T) {
	o, _ := newTestOrchestrator(t, Deps{Primary: &fakeStrategy{block: true}})
	o.timeout = 20 * time.Millisecond

	start := time.Now()
	res, err := o.Orchestrate(context.Background(), meetingRequest())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, suggest.SourceFallback, res.Suggestion.Source)
}

func TestOrchestrateRejectsInvalidTask(t *testing.T) {
	primary := &fakeStrategy{}
	store := &fakeStore{}
	o, _ := newTestOrchestrator(t, Deps{Primary: primary, Tasks: store})

	tests := []struct {
		req   TaskRequest
		field string
	}{
		{TaskRequest{Category: "Meetings"}, "title"},
		{TaskRequest{Title: "   ", Category: "Meetings"}, "title"},
		{TaskRequest{Title: "x"}, "category"},
		{TaskRequest{Title: "x", Category: "y", EstimatedTime: -5}, "estimated_time"},
	}
	for _, tt := range tests {
		_, err := o.Orchestrate(context.Background(), tt.req)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, tt.field, verr.Field)
	}
	assert.Empty(t, store.created)
	assert.Empty(t, primary.req.Task.Title, "strategy must not be called")
}

func TestOrchestrateDegradesOnContextFailures(t *testing.T) {
	store := &fakeStore{listErr: errors.New("notion down"), createErr: errors.New("notion down")}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	o, logs := newTestOrchestrator(t, Deps{
		Patterns: &fakePatterns{err: errors.New("db locked")},
		Tasks:    store,
		Metrics:  m,
	})

	res, err := o.Orchestrate(context.Background(), meetingRequest())
	require.NoError(t, err)

	assert.NotNil(t, res.Context.ExistingTasks)
	assert.Empty(t, res.Context.ExistingTasks)
	assert.Zero(t, res.Context.RecentPerformance.SampleSize)
	assert.True(t, res.Context.EnergyPatterns.Empty())
	assert.Nil(t, res.ExternalTaskID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailuresTotal.WithLabelValues("tasks")))
	assert.Equal(t, 1, logs.FilterMessage("fetching existing tasks failed, using empty list").Len())
	assert.Equal(t, 1, logs.FilterMessage("reading patterns failed, continuing without").Len())
}

func TestSessionIDStable(t *testing.T) {
	o, _ := newTestOrchestrator(t, Deps{})
	assert.True(t, strings.HasPrefix(o.SessionID(), "chronos_"))
	assert.Len(t, o.SessionID(), len("chronos_")+8)

	a, err := o.Orchestrate(context.Background(), meetingRequest())
	require.NoError(t, err)
	b, err := o.Orchestrate(context.Background(), TaskRequest{Title: "Fix bug", Category: "Development"})
	require.NoError(t, err)
	assert.Equal(t, a.SessionID, b.SessionID)

	other, _ := newTestOrchestrator(t, Deps{})
	assert.NotEqual(t, o.SessionID(), other.SessionID())
}

type shiftOptimizer struct{}

func (shiftOptimizer) Optimize(_ context.Context, s *suggest.Suggestion, _ suggest.Context) *suggest.Suggestion {
	out := *s
	out.ScheduledAt = s.ScheduledAt.Add(15 * time.Minute)
	return &out
}

func TestOptimizerApplied(t *testing.T) {
	o, _ := newTestOrchestrator(t, Deps{Optimizer: shiftOptimizer{}})

	res, err := o.Orchestrate(context.Background(), meetingRequest())
	require.NoError(t, err)
	assert.Equal(t, callTime.Add(3*time.Hour+15*time.Minute), res.Suggestion.ScheduledAt)
}
