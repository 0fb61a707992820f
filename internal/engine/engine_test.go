package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shaiso/Dirigent/internal/domain"
	"github.com/shaiso/Dirigent/internal/registry"
)

// fakeInvoker returns scripted outcomes per backend.
type fakeInvoker struct {
	mu sync.Mutex
	// fail marks backends whose invocations fail.
	fail map[string]bool
	// calls records invoked backends in order.
	calls []string
}

func (f *fakeInvoker) Invoke(_ context.Context, backendID, method string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, backendID)
	failed := f.fail[backendID]
	f.mu.Unlock()

	if failed {
		return nil, fmt.Errorf("backend %s: simulated failure", backendID)
	}
	return map[string]any{"served_by": backendID, "method": method}, nil
}

func (f *fakeInvoker) Probe(context.Context, string) error { return nil }

func (f *fakeInvoker) invoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeCircuit rejects configured backends and records outcomes.
type fakeCircuit struct {
	mu        sync.Mutex
	rejected  map[string]bool
	successes []string
	failures  []string
}

func (c *fakeCircuit) Guard(backendID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.rejected[backendID]
}

func (c *fakeCircuit) OnSuccess(backendID string) {
	c.mu.Lock()
	c.successes = append(c.successes, backendID)
	c.mu.Unlock()
}

func (c *fakeCircuit) OnFailure(backendID string) {
	c.mu.Lock()
	c.failures = append(c.failures, backendID)
	c.mu.Unlock()
}

func newEngineFixture(t *testing.T, inv *fakeInvoker, circuit *fakeCircuit) *Engine {
	t.Helper()

	reg := registry.New()
	for _, id := range []string{"primary", "standby", "reserve"} {
		err := reg.Register(&domain.BackendProfile{
			ID:           id,
			BaseURL:      "http://" + id + ":8000",
			Capabilities: []string{"analysis"},
			MaxCapacity:  10,
		})
		if err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	if circuit.rejected == nil {
		circuit.rejected = map[string]bool{}
	}
	if inv.fail == nil {
		inv.fail = map[string]bool{}
	}

	return New(Config{Registry: reg, Circuits: circuit, Invoker: inv})
}

func twoStepTemplate() *domain.WorkflowTemplate {
	return &domain.WorkflowTemplate{
		Name: "content-review",
		Steps: []domain.Step{
			{ID: "moderate", Backend: "primary", Method: "moderate", Critical: true},
			{ID: "enrich", Backend: "standby", Method: "enrich"},
		},
		Fallbacks: map[string][]string{
			"primary": {"standby", "reserve"},
		},
	}
}

func TestRegisterTemplateValidation(t *testing.T) {
	e := newEngineFixture(t, &fakeInvoker{}, &fakeCircuit{})

	tests := []struct {
		name string
		tmpl *domain.WorkflowTemplate
		want error
	}{
		{
			name: "empty name",
			tmpl: &domain.WorkflowTemplate{Steps: []domain.Step{{ID: "s", Backend: "primary", Method: "m"}}},
			want: ErrInvalidTemplate,
		},
		{
			name: "no steps",
			tmpl: &domain.WorkflowTemplate{Name: "empty"},
			want: ErrInvalidTemplate,
		},
		{
			name: "duplicate step id",
			tmpl: &domain.WorkflowTemplate{Name: "dup", Steps: []domain.Step{
				{ID: "s", Backend: "primary", Method: "m"},
				{ID: "s", Backend: "standby", Method: "m"},
			}},
			want: ErrInvalidTemplate,
		},
		{
			name: "unknown backend",
			tmpl: &domain.WorkflowTemplate{Name: "ghost", Steps: []domain.Step{
				{ID: "s", Backend: "missing", Method: "m"},
			}},
			want: ErrInvalidTemplate,
		},
		{
			name: "unknown fallback backend",
			tmpl: &domain.WorkflowTemplate{
				Name:      "bad-fallback",
				Steps:     []domain.Step{{ID: "s", Backend: "primary", Method: "m"}},
				Fallbacks: map[string][]string{"primary": {"missing"}},
			},
			want: ErrInvalidTemplate,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := e.RegisterTemplate(tc.tmpl); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterTemplateDuplicateName(t *testing.T) {
	e := newEngineFixture(t, &fakeInvoker{}, &fakeCircuit{})

	if err := e.RegisterTemplate(twoStepTemplate()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := e.RegisterTemplate(twoStepTemplate()); !errors.Is(err, ErrDuplicateTemplate) {
		t.Fatalf("expected ErrDuplicateTemplate, got %v", err)
	}
}

func TestExecuteUnknownTemplate(t *testing.T) {
	e := newEngineFixture(t, &fakeInvoker{}, &fakeCircuit{})

	_, err := e.Execute(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestExecuteHappyPath(t *testing.T) {
	inv := &fakeInvoker{}
	circuit := &fakeCircuit{}
	e := newEngineFixture(t, inv, circuit)
	if err := e.RegisterTemplate(twoStepTemplate()); err != nil {
		t.Fatalf("register: %v", err)
	}

	inst, err := e.Execute(context.Background(), "content-review", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if inst.Status != domain.InstanceStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", inst.Status)
	}
	if inst.FailoverCount != 0 {
		t.Fatalf("expected no failovers, got %d", inst.FailoverCount)
	}
	if inst.Steps["moderate"].Status != domain.StepStatusCompleted {
		t.Fatalf("unexpected step state: %+v", inst.Steps["moderate"])
	}
	if inst.Results["moderate"]["served_by"] != "primary" {
		t.Fatalf("unexpected step result: %v", inst.Results["moderate"])
	}
	if inst.FinishedAt == nil {
		t.Fatal("expected finished timestamp")
	}
}

func TestExecuteFallbackSuccess(t *testing.T) {
	inv := &fakeInvoker{fail: map[string]bool{"primary": true}}
	circuit := &fakeCircuit{}
	e := newEngineFixture(t, inv, circuit)
	if err := e.RegisterTemplate(twoStepTemplate()); err != nil {
		t.Fatalf("register: %v", err)
	}

	inst, err := e.Execute(context.Background(), "content-review", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	state := inst.Steps["moderate"]
	if state.Status != domain.StepStatusCompletedViaFallback {
		t.Fatalf("expected COMPLETED_VIA_FALLBACK, got %s", state.Status)
	}
	if state.ServedBy != "standby" {
		t.Fatalf("expected standby to serve, got %s", state.ServedBy)
	}
	if inst.FailoverCount != 1 {
		t.Fatalf("expected failover count 1, got %d", inst.FailoverCount)
	}

	// The failed primary must be recorded, the fallback rewarded.
	if len(circuit.failures) != 1 || circuit.failures[0] != "primary" {
		t.Fatalf("expected OnFailure(primary), got %v", circuit.failures)
	}
	if len(circuit.successes) == 0 || circuit.successes[0] != "standby" {
		t.Fatalf("expected OnSuccess(standby) first, got %v", circuit.successes)
	}
}

func TestExecuteCircuitRejectedIsNotAttempt(t *testing.T) {
	inv := &fakeInvoker{}
	circuit := &fakeCircuit{rejected: map[string]bool{"primary": true}}
	e := newEngineFixture(t, inv, circuit)
	if err := e.RegisterTemplate(twoStepTemplate()); err != nil {
		t.Fatalf("register: %v", err)
	}

	inst, err := e.Execute(context.Background(), "content-review", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if inst.Steps["moderate"].ServedBy != "standby" {
		t.Fatalf("expected standby fallback, got %s", inst.Steps["moderate"].ServedBy)
	}
	// Guard rejection skips the invoke and the breaker record.
	for _, id := range inv.invoked() {
		if id == "primary" {
			t.Fatal("expected primary to never be invoked")
		}
	}
	if len(circuit.failures) != 0 {
		t.Fatalf("expected no OnFailure calls, got %v", circuit.failures)
	}
}

func TestExecuteCriticalStepAborts(t *testing.T) {
	inv := &fakeInvoker{fail: map[string]bool{"primary": true, "standby": true, "reserve": true}}
	circuit := &fakeCircuit{}
	e := newEngineFixture(t, inv, circuit)
	if err := e.RegisterTemplate(twoStepTemplate()); err != nil {
		t.Fatalf("register: %v", err)
	}

	inst, err := e.Execute(context.Background(), "content-review", nil)

	var stepErr *CriticalStepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected CriticalStepError, got %v", err)
	}
	if stepErr.Step != "moderate" {
		t.Fatalf("expected failed step moderate, got %s", stepErr.Step)
	}
	if stepErr.Backend != "reserve" {
		t.Fatalf("expected last backend reserve, got %s", stepErr.Backend)
	}

	if inst.Status != domain.InstanceStatusFailed {
		t.Fatalf("expected FAILED instance, got %s", inst.Status)
	}
	// The second step never runs after a critical abort.
	if inst.Steps["enrich"].Status != domain.StepStatusPending {
		t.Fatalf("expected enrich to stay PENDING, got %s", inst.Steps["enrich"].Status)
	}
	if len(inst.Errors) != 1 || inst.Errors[0].StepID != "moderate" {
		t.Fatalf("unexpected error list: %+v", inst.Errors)
	}

	// Every invoked candidate is recorded as a failure, exactly once.
	if len(circuit.failures) != 3 {
		t.Fatalf("expected 3 OnFailure calls, got %v", circuit.failures)
	}
}

func TestExecuteNonCriticalStepContinues(t *testing.T) {
	inv := &fakeInvoker{fail: map[string]bool{"standby": true}}
	circuit := &fakeCircuit{}
	e := newEngineFixture(t, inv, circuit)

	tmpl := &domain.WorkflowTemplate{
		Name: "best-effort",
		Steps: []domain.Step{
			{ID: "first", Backend: "primary", Method: "run", Critical: true},
			{ID: "optional", Backend: "standby", Method: "run"},
			{ID: "last", Backend: "reserve", Method: "run", Critical: true},
		},
	}
	if err := e.RegisterTemplate(tmpl); err != nil {
		t.Fatalf("register: %v", err)
	}

	inst, err := e.Execute(context.Background(), "best-effort", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if inst.Status != domain.InstanceStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", inst.Status)
	}
	if inst.Steps["optional"].Status != domain.StepStatusFailed {
		t.Fatalf("expected optional FAILED, got %s", inst.Steps["optional"].Status)
	}
	if _, ok := inst.Results["optional"]; ok {
		t.Fatal("expected no result for failed step")
	}
	if inst.Steps["last"].Status != domain.StepStatusCompleted {
		t.Fatalf("expected last step to run, got %s", inst.Steps["last"].Status)
	}
	if len(inst.Errors) != 1 {
		t.Fatalf("expected one recorded error, got %+v", inst.Errors)
	}
}

func TestExecuteAtMostOneAttemptPerCandidate(t *testing.T) {
	inv := &fakeInvoker{fail: map[string]bool{"primary": true, "standby": true}}
	circuit := &fakeCircuit{}
	e := newEngineFixture(t, inv, circuit)

	// The fallback chain repeats the primary; it must not be retried.
	tmpl := &domain.WorkflowTemplate{
		Name: "looped",
		Steps: []domain.Step{
			{ID: "s", Backend: "primary", Method: "run"},
		},
		Fallbacks: map[string][]string{
			"primary": {"standby", "primary", "standby"},
		},
	}
	if err := e.RegisterTemplate(tmpl); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := e.Execute(context.Background(), "looped", nil); err != nil {
		t.Fatalf("execute: %v", err)
	}

	calls := inv.invoked()
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 invocations, got %v", calls)
	}
}

func TestExecuteReleasesLoad(t *testing.T) {
	inv := &fakeInvoker{fail: map[string]bool{"primary": true}}
	circuit := &fakeCircuit{}
	e := newEngineFixture(t, inv, circuit)
	if err := e.RegisterTemplate(twoStepTemplate()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := e.Execute(context.Background(), "content-review", nil); err != nil {
		t.Fatalf("execute: %v", err)
	}

	for _, id := range []string{"primary", "standby", "reserve"} {
		if load := e.registry.Load(id); load != 0 {
			t.Fatalf("expected zero load on %s after execute, got %d", id, load)
		}
	}
}
