package registry

import (
	"errors"
	"math"
	"testing"

	"github.com/shaiso/Dirigent/internal/domain"
)

// fakeCircuits marks configured backends as open.
type fakeCircuits struct {
	open map[string]bool
}

func (f *fakeCircuits) IsOpen(backendID string) bool {
	return f.open[backendID]
}

func scorerFixture(t *testing.T, profiles ...*domain.BackendProfile) (*Registry, *Scorer, *fakeCircuits) {
	t.Helper()
	reg := New()
	for _, p := range profiles {
		if err := reg.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.ID, err)
		}
	}
	circuits := &fakeCircuits{open: map[string]bool{}}
	return reg, NewScorer(reg, circuits), circuits
}

func TestScoreFormula(t *testing.T) {
	p := &domain.BackendProfile{
		ID:               "svc",
		Capabilities:     []string{"analysis", "sentiment"},
		PerformanceScore: 8,
		ReliabilityScore: 7,
		MaxCapacity:      10,
		ResponseTimeMs:   120,
		ErrorRate:        0.02,
	}
	_, scorer, _ := scorerFixture(t, p)

	// 2 matches ×10 + 8 + 7 + (10 − 0) − 12 − 2 = 31
	got := scorer.Score(p, []string{"analysis", "sentiment", "speech"})
	if math.Abs(got-31) > 1e-9 {
		t.Fatalf("expected score 31, got %f", got)
	}
}

func TestScoreLoadPenalty(t *testing.T) {
	p := &domain.BackendProfile{
		ID:           "svc",
		Capabilities: []string{"analysis"},
		MaxCapacity:  10,
	}
	reg, scorer, _ := scorerFixture(t, p)

	base := scorer.Score(p, []string{"analysis"})

	for i := 0; i < 5; i++ {
		reg.Acquire("svc")
	}
	loaded := scorer.Score(p, []string{"analysis"})

	// Half load costs 5 points.
	if math.Abs(base-loaded-5) > 1e-9 {
		t.Fatalf("expected load penalty 5, got %f", base-loaded)
	}
}

func TestScoreOpenCircuitPenalty(t *testing.T) {
	p := &domain.BackendProfile{
		ID:               "svc",
		Capabilities:     []string{"analysis"},
		PerformanceScore: 50,
		MaxCapacity:      10,
	}
	_, scorer, circuits := scorerFixture(t, p)

	base := scorer.Score(p, []string{"analysis"})
	circuits.open["svc"] = true
	penalized := scorer.Score(p, []string{"analysis"})

	if math.Abs(base-penalized-50) > 1e-9 {
		t.Fatalf("expected open-circuit penalty 50, got %f", base-penalized)
	}
}

func TestScoreClampsAtZero(t *testing.T) {
	p := &domain.BackendProfile{
		ID:             "svc",
		MaxCapacity:    10,
		ResponseTimeMs: 5000,
		ErrorRate:      0.9,
	}
	_, scorer, _ := scorerFixture(t, p)

	if got := scorer.Score(p, nil); got != 0 {
		t.Fatalf("expected clamped score 0, got %f", got)
	}
}

func TestSelectBackendPrefersCapabilityMatch(t *testing.T) {
	_, scorer, _ := scorerFixture(t,
		&domain.BackendProfile{ID: "match", Capabilities: []string{"moderation"}, MaxCapacity: 10},
		&domain.BackendProfile{ID: "other", Capabilities: []string{"media"}, PerformanceScore: 5, MaxCapacity: 10},
	)

	got, err := scorer.SelectBackend([]string{"moderation"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != "match" {
		t.Fatalf("expected match, got %s", got)
	}
}

func TestSelectBackendTieBreaksOnLoad(t *testing.T) {
	reg, scorer, _ := scorerFixture(t,
		&domain.BackendProfile{ID: "busy", Capabilities: []string{"analysis"}, MaxCapacity: 10},
		&domain.BackendProfile{ID: "idle", Capabilities: []string{"analysis"}, MaxCapacity: 10},
	)

	// Near-equal scores: the lower load ratio wins even though the
	// busy backend still scores within the 0.9 band.
	for i := 0; i < 2; i++ {
		reg.Acquire("busy")
	}

	got, err := scorer.SelectBackend([]string{"analysis"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != "idle" {
		t.Fatalf("expected idle to win the tie-break, got %s", got)
	}
}

func TestSelectBackendExcludesUnhealthy(t *testing.T) {
	reg, scorer, _ := scorerFixture(t,
		&domain.BackendProfile{ID: "sick", Capabilities: []string{"analysis"}, PerformanceScore: 100, MaxCapacity: 10},
		&domain.BackendProfile{ID: "healthy", Capabilities: []string{"analysis"}, MaxCapacity: 10},
	)
	reg.SetStatus("sick", domain.BackendStatusUnhealthy)

	got, err := scorer.SelectBackend([]string{"analysis"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != "healthy" {
		t.Fatalf("expected healthy, got %s", got)
	}
}

func TestSelectBackendNoCandidates(t *testing.T) {
	reg, scorer, _ := scorerFixture(t,
		&domain.BackendProfile{ID: "svc", Capabilities: []string{"analysis"}, MaxCapacity: 10},
	)

	// All backends unhealthy.
	reg.SetStatus("svc", domain.BackendStatusUnhealthy)
	if _, err := scorer.SelectBackend([]string{"analysis"}); !errors.Is(err, ErrNoAvailableBackend) {
		t.Fatalf("expected ErrNoAvailableBackend, got %v", err)
	}
}

func TestSelectBackendAllScoresZero(t *testing.T) {
	_, scorer, _ := scorerFixture(t,
		&domain.BackendProfile{ID: "svc", MaxCapacity: 10, ResponseTimeMs: 9000},
	)

	if _, err := scorer.SelectBackend([]string{"analysis"}); !errors.Is(err, ErrNoAvailableBackend) {
		t.Fatalf("expected ErrNoAvailableBackend, got %v", err)
	}
}

func TestSelectBackendWithoutCircuitView(t *testing.T) {
	reg := New()
	if err := reg.Register(&domain.BackendProfile{ID: "svc", Capabilities: []string{"analysis"}, MaxCapacity: 10}); err != nil {
		t.Fatalf("register: %v", err)
	}
	scorer := NewScorer(reg, nil)

	got, err := scorer.SelectBackend([]string{"analysis"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != "svc" {
		t.Fatalf("expected svc, got %s", got)
	}
}
