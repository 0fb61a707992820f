package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/shaiso/Dirigent/internal/domain"
)

func profile(id string, capacity int, caps ...string) *domain.BackendProfile {
	return &domain.BackendProfile{
		ID:           id,
		BaseURL:      "http://" + id + ":8000",
		Capabilities: caps,
		MaxCapacity:  capacity,
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := New()

	if err := reg.Register(profile("", 10)); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile for empty id, got %v", err)
	}
	if err := reg.Register(profile("svc", 0)); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile for zero capacity, got %v", err)
	}
	if err := reg.Register(profile("svc", 10)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(profile("svc", 10)); !errors.Is(err, ErrDuplicateBackend) {
		t.Fatalf("expected ErrDuplicateBackend, got %v", err)
	}
}

func TestRegisterDefaultsToActive(t *testing.T) {
	reg := New()
	if err := reg.Register(profile("svc", 10)); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, err := reg.Get("svc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != domain.BackendStatusActive {
		t.Fatalf("expected ACTIVE default, got %s", p.Status)
	}
}

func TestGetUnknown(t *testing.T) {
	reg := New()
	if _, err := reg.Get("ghost"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	reg := New()
	if err := reg.Register(profile("svc", 10)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := reg.SetStatus("svc", domain.BackendStatusUnhealthy); err != nil {
		t.Fatalf("set status: %v", err)
	}
	p, _ := reg.Get("svc")
	if p.Status != domain.BackendStatusUnhealthy {
		t.Fatalf("expected UNHEALTHY, got %s", p.Status)
	}

	if err := reg.SetStatus("ghost", domain.BackendStatusActive); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestLoadAccounting(t *testing.T) {
	reg := New()
	if err := reg.Register(profile("svc", 4)); err != nil {
		t.Fatalf("register: %v", err)
	}

	reg.Acquire("svc")
	reg.Acquire("svc")
	if got := reg.Load("svc"); got != 2 {
		t.Fatalf("expected load 2, got %d", got)
	}
	if got := reg.LoadRatio("svc"); got != 0.5 {
		t.Fatalf("expected ratio 0.5, got %f", got)
	}

	reg.Release("svc")
	reg.Release("svc")
	reg.Release("svc") // extra release must not go negative
	if got := reg.Load("svc"); got != 0 {
		t.Fatalf("expected load 0, got %d", got)
	}
}

func TestLoadAccountingConcurrent(t *testing.T) {
	reg := New()
	if err := reg.Register(profile("svc", 100)); err != nil {
		t.Fatalf("register: %v", err)
	}

	const workers = 50
	const iterations = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				reg.Acquire("svc")
				reg.Release("svc")
			}
		}()
	}
	wg.Wait()

	if got := reg.Load("svc"); got != 0 {
		t.Fatalf("expected zero load after balanced acquire/release, got %d", got)
	}
}

func TestListAndIDs(t *testing.T) {
	reg := New()
	for _, id := range []string{"a", "b", "c"} {
		if err := reg.Register(profile(id, 10)); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	if got := reg.Size(); got != 3 {
		t.Fatalf("expected size 3, got %d", got)
	}
	if got := len(reg.List()); got != 3 {
		t.Fatalf("expected 3 profiles, got %d", got)
	}
	if got := len(reg.IDs()); got != 3 {
		t.Fatalf("expected 3 ids, got %d", got)
	}
}
