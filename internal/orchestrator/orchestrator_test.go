package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shaiso/Dirigent/internal/domain"
	"github.com/shaiso/Dirigent/internal/engine"
	"github.com/shaiso/Dirigent/internal/registry"
	"github.com/shaiso/Dirigent/internal/telemetry"
)

// fakeInvoker returns scripted outcomes per backend.
type fakeInvoker struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	// payloads records the payload of each invocation per backend.
	payloads map[string][]map[string]any
}

func (f *fakeInvoker) Invoke(_ context.Context, backendID, method string, payload map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, backendID)
	if f.payloads == nil {
		f.payloads = map[string][]map[string]any{}
	}
	f.payloads[backendID] = append(f.payloads[backendID], payload)
	failed := f.fail[backendID]
	f.mu.Unlock()

	if failed {
		return nil, fmt.Errorf("backend %s: simulated failure", backendID)
	}
	return map[string]any{"served_by": backendID, "method": method}, nil
}

func (f *fakeInvoker) Probe(context.Context, string) error { return nil }

type fakeCircuit struct {
	mu       sync.Mutex
	rejected map[string]bool
	failures []string
}

func (c *fakeCircuit) Guard(backendID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.rejected[backendID]
}

func (c *fakeCircuit) OnSuccess(string) {}

func (c *fakeCircuit) OnFailure(backendID string) {
	c.mu.Lock()
	c.failures = append(c.failures, backendID)
	c.mu.Unlock()
}

type fixture struct {
	orch    *Orchestrator
	invoker *fakeInvoker
	circuit *fakeCircuit
	reg     *registry.Registry
	engine  *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.New()
	profiles := []*domain.BackendProfile{
		{ID: "analysis-a", Capabilities: []string{"analysis"}, PerformanceScore: 9, ReliabilityScore: 9, MaxCapacity: 10},
		{ID: "analysis-b", Capabilities: []string{"analysis"}, PerformanceScore: 8, ReliabilityScore: 8, MaxCapacity: 10},
		{ID: "media", Capabilities: []string{"media"}, PerformanceScore: 8, ReliabilityScore: 8, MaxCapacity: 10},
	}
	for _, p := range profiles {
		p.BaseURL = "http://" + p.ID + ":8000"
		if err := reg.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.ID, err)
		}
	}

	inv := &fakeInvoker{fail: map[string]bool{}}
	circuit := &fakeCircuit{rejected: map[string]bool{}}
	eng := engine.New(engine.Config{Registry: reg, Circuits: circuit, Invoker: inv})

	orch := New(Config{
		Registry: reg,
		Scorer:   registry.NewScorer(reg, nil),
		Circuits: circuit,
		Invoker:  inv,
		Engine:   eng,
		Metrics:  telemetry.NewMetrics(),
	})
	return &fixture{orch: orch, invoker: inv, circuit: circuit, reg: reg, engine: eng}
}

func TestClassify(t *testing.T) {
	f := newFixture(t)
	err := f.engine.RegisterTemplate(&domain.WorkflowTemplate{
		Name:  "review",
		Steps: []domain.Step{{ID: "s", Backend: "analysis-a", Method: "m"}},
	})
	if err != nil {
		t.Fatalf("register template: %v", err)
	}

	tests := []struct {
		name string
		req  *domain.Request
		want domain.Strategy
	}{
		{"registered template", &domain.Request{Type: "review"}, domain.StrategyWorkflow},
		{"unregistered type", &domain.Request{Type: "unknown"}, domain.StrategySingle},
		{"tasks", &domain.Request{Tasks: []domain.TaskSpec{{ID: "t", Method: "m"}}}, domain.StrategyParallel},
		{"stages", &domain.Request{Stages: []domain.StageSpec{{ID: "s", Method: "m"}}}, domain.StrategyPipeline},
		{"empty", &domain.Request{}, domain.StrategySingle},
		// A registered template wins over an explicit task list.
		{"template over tasks", &domain.Request{Type: "review", Tasks: []domain.TaskSpec{{ID: "t"}}}, domain.StrategyWorkflow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.orch.Classify(tc.req); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSingleSelectsByCapability(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Orchestrate(context.Background(), &domain.Request{
		Type:         "analyze-text",
		Capabilities: []string{"media"},
		Method:       "transcode",
	})
	if err != nil {
		t.Fatalf("orchestrate: %v", err)
	}

	if res.Strategy != domain.StrategySingle {
		t.Fatalf("expected SINGLE, got %s", res.Strategy)
	}
	if res.Backend != "media" {
		t.Fatalf("expected media backend, got %s", res.Backend)
	}
	if res.Output["served_by"] != "media" {
		t.Fatalf("unexpected output: %v", res.Output)
	}
}

func TestSingleNoBackendAvailable(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Orchestrate(context.Background(), &domain.Request{
		Capabilities: []string{"quantum"},
	})
	if !errors.Is(err, registry.ErrNoAvailableBackend) {
		t.Fatalf("expected ErrNoAvailableBackend, got %v", err)
	}
}

func TestSingleGuardedBackendSurfacesAsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.circuit.rejected["media"] = true

	_, err := f.orch.Orchestrate(context.Background(), &domain.Request{
		Capabilities: []string{"media"},
		Method:       "transcode",
	})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	// Guard rejection is not an attempt.
	if len(f.circuit.failures) != 0 {
		t.Fatalf("expected no OnFailure, got %v", f.circuit.failures)
	}
	if len(f.invoker.calls) != 0 {
		t.Fatalf("expected no invocations, got %v", f.invoker.calls)
	}
}

func TestSingleFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.invoker.fail["media"] = true

	_, err := f.orch.Orchestrate(context.Background(), &domain.Request{
		Capabilities: []string{"media"},
		Method:       "transcode",
	})
	if err == nil {
		t.Fatal("expected failure to propagate")
	}
	if len(f.circuit.failures) != 1 || f.circuit.failures[0] != "media" {
		t.Fatalf("expected OnFailure(media), got %v", f.circuit.failures)
	}
	// SINGLE has no fallback: exactly one invocation.
	if len(f.invoker.calls) != 1 {
		t.Fatalf("expected one invocation, got %v", f.invoker.calls)
	}
}

func TestWorkflowDelegation(t *testing.T) {
	f := newFixture(t)
	err := f.engine.RegisterTemplate(&domain.WorkflowTemplate{
		Name: "review",
		Steps: []domain.Step{
			{ID: "analyze", Backend: "analysis-a", Method: "analyze", Critical: true},
		},
	})
	if err != nil {
		t.Fatalf("register template: %v", err)
	}

	res, err := f.orch.Orchestrate(context.Background(), &domain.Request{Type: "review"})
	if err != nil {
		t.Fatalf("orchestrate: %v", err)
	}

	if res.Strategy != domain.StrategyWorkflow {
		t.Fatalf("expected WORKFLOW, got %s", res.Strategy)
	}
	if res.Instance == nil || res.Instance.Status != domain.InstanceStatusSucceeded {
		t.Fatalf("expected succeeded instance, got %+v", res.Instance)
	}
}

func TestWorkflowCriticalFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.invoker.fail["analysis-a"] = true

	err := f.engine.RegisterTemplate(&domain.WorkflowTemplate{
		Name: "review",
		Steps: []domain.Step{
			{ID: "analyze", Backend: "analysis-a", Method: "analyze", Critical: true},
		},
	})
	if err != nil {
		t.Fatalf("register template: %v", err)
	}

	res, err := f.orch.Orchestrate(context.Background(), &domain.Request{Type: "review"})

	var stepErr *engine.CriticalStepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected CriticalStepError, got %v", err)
	}
	// The failed instance still comes back for introspection.
	if res == nil || res.Instance == nil || res.Instance.Status != domain.InstanceStatusFailed {
		t.Fatalf("expected failed instance in result, got %+v", res)
	}
}

func TestParallelReturnsExactlyKResults(t *testing.T) {
	f := newFixture(t)
	f.invoker.fail["analysis-b"] = true

	req := &domain.Request{
		Tasks: []domain.TaskSpec{
			{ID: "t1", Backend: "analysis-a", Method: "analyze"},
			{ID: "t2", Backend: "analysis-b", Method: "analyze"},
			{ID: "t3", Backend: "media", Method: "transcode"},
		},
	}

	res, err := f.orch.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("parallel must not fail on individual task errors: %v", err)
	}

	if len(res.TaskResults) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.TaskResults))
	}
	// Results keep the task order.
	for i, want := range []string{"t1", "t2", "t3"} {
		if res.TaskResults[i].TaskID != want {
			t.Fatalf("expected result %d for %s, got %s", i, want, res.TaskResults[i].TaskID)
		}
	}
	if !res.TaskResults[0].OK || res.TaskResults[1].OK || !res.TaskResults[2].OK {
		t.Fatalf("unexpected outcomes: %+v", res.TaskResults)
	}
	if res.TaskResults[1].Error == "" {
		t.Fatal("expected error text on failed task")
	}
}

func TestParallelResolvesBackendViaScorer(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Orchestrate(context.Background(), &domain.Request{
		Tasks: []domain.TaskSpec{
			{ID: "t1", Capabilities: []string{"media"}, Method: "transcode"},
		},
	})
	if err != nil {
		t.Fatalf("orchestrate: %v", err)
	}
	if res.TaskResults[0].Backend != "media" {
		t.Fatalf("expected scorer to pick media, got %s", res.TaskResults[0].Backend)
	}
}

func TestPipelineChainsStageOutput(t *testing.T) {
	f := newFixture(t)

	req := &domain.Request{
		Payload: map[string]any{"text": "hello"},
		Stages: []domain.StageSpec{
			{ID: "first", Backend: "analysis-a", Method: "analyze"},
			{ID: "second", Backend: "media", Method: "render"},
		},
	}

	res, err := f.orch.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("orchestrate: %v", err)
	}

	// Final output is the last stage's output.
	if res.Output["served_by"] != "media" {
		t.Fatalf("unexpected final output: %v", res.Output)
	}

	// The second stage sees the original payload plus the first
	// stage's output under "input".
	payloads := f.invoker.payloads["media"]
	if len(payloads) != 1 {
		t.Fatalf("expected one media invocation, got %d", len(payloads))
	}
	got := payloads[0]
	if got["text"] != "hello" {
		t.Fatalf("expected original payload preserved, got %v", got)
	}
	input, ok := got["input"].(map[string]any)
	if !ok || input["served_by"] != "analysis-a" {
		t.Fatalf("expected chained input from first stage, got %v", got["input"])
	}
}

func TestPipelineAbortNamesFailedStage(t *testing.T) {
	f := newFixture(t)
	f.invoker.fail["analysis-a"] = true

	req := &domain.Request{
		Stages: []domain.StageSpec{
			{ID: "extract", Backend: "analysis-a", Method: "extract"},
			{ID: "render", Backend: "media", Method: "render"},
		},
	}

	res, err := f.orch.Orchestrate(context.Background(), req)
	if err == nil {
		t.Fatal("expected pipeline abort")
	}
	if res.FailedStage != "extract" {
		t.Fatalf("expected failed stage extract, got %q", res.FailedStage)
	}
	if !strings.Contains(err.Error(), "extract") {
		t.Fatalf("expected error to name the stage, got %v", err)
	}
	// The chain stops at the first failure.
	for _, id := range f.invoker.calls {
		if id == "media" {
			t.Fatal("expected render stage to never run")
		}
	}
}

func TestMetricsRecordedPerRequest(t *testing.T) {
	f := newFixture(t)
	f.invoker.fail["media"] = true

	f.orch.Orchestrate(context.Background(), &domain.Request{
		Capabilities: []string{"analysis"}, Method: "analyze",
	})
	f.orch.Orchestrate(context.Background(), &domain.Request{
		Capabilities: []string{"media"}, Method: "transcode",
	})

	snap := f.orch.MetricsSnapshot()
	if snap.TotalRequests != 2 {
		t.Fatalf("expected 2 requests, got %d", snap.TotalRequests)
	}
	if snap.SuccessfulRequests != 1 || snap.FailedRequests != 1 {
		t.Fatalf("unexpected outcome counts: %+v", snap)
	}
	if snap.AverageLatencyMs < 0 {
		t.Fatalf("unexpected average latency: %f", snap.AverageLatencyMs)
	}
}

// recordingAuditor captures audit writes.
type recordingAuditor struct {
	mu      sync.Mutex
	results []*domain.OrchestrationResult
}

func (a *recordingAuditor) SaveOutcome(_ context.Context, _ *domain.Request, result *domain.OrchestrationResult, _ error) error {
	a.mu.Lock()
	a.results = append(a.results, result)
	a.mu.Unlock()
	return nil
}

func TestAuditReceivesTerminalOutcome(t *testing.T) {
	f := newFixture(t)
	auditor := &recordingAuditor{}

	orch := New(Config{
		Registry: f.reg,
		Scorer:   registry.NewScorer(f.reg, nil),
		Circuits: f.circuit,
		Invoker:  f.invoker,
		Engine:   f.engine,
		Metrics:  telemetry.NewMetrics(),
		Auditor:  auditor,
	})

	if _, err := orch.Orchestrate(context.Background(), &domain.Request{
		Capabilities: []string{"analysis"}, Method: "analyze",
	}); err != nil {
		t.Fatalf("orchestrate: %v", err)
	}

	if len(auditor.results) != 1 {
		t.Fatalf("expected one audit write, got %d", len(auditor.results))
	}
	if auditor.results[0].Strategy != domain.StrategySingle {
		t.Fatalf("unexpected audited strategy: %s", auditor.results[0].Strategy)
	}
}
