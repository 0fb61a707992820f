package registry

import (
	"fmt"
	"sync"

	"github.com/shaiso/Dirigent/internal/domain"
)

// Registry — таблица профилей backend'ов с учётом текущей нагрузки.
//
// Профили регистрируются при старте процесса и живут до его завершения.
// Registry — разделяемое состояние: нагрузку мутирует каждый вызов,
// статус — HealthMonitor. Все мутации идут через методы Registry,
// напрямую внутренности никто не трогает.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*entry
}

// entry — профиль + изменяемая часть (нагрузка, статус).
type entry struct {
	profile *domain.BackendProfile
	load    int
}

// New создаёт пустой Registry.
func New() *Registry {
	return &Registry{
		backends: make(map[string]*entry),
	}
}

// Register добавляет профиль backend'а.
// Профиль без статуса регистрируется как ACTIVE.
func (r *Registry) Register(profile *domain.BackendProfile) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: empty backend id", ErrInvalidProfile)
	}
	if profile.MaxCapacity <= 0 {
		return fmt.Errorf("%w: backend %s: max_capacity must be positive", ErrInvalidProfile, profile.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[profile.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, profile.ID)
	}

	if profile.Status == "" {
		profile.Status = domain.BackendStatusActive
	}
	r.backends[profile.ID] = &entry{profile: profile}
	return nil
}

// Get возвращает профиль backend'а по ID.
func (r *Registry) Get(id string) (*domain.BackendProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	return e.profile, nil
}

// List возвращает все профили.
func (r *Registry) List() []*domain.BackendProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*domain.BackendProfile, 0, len(r.backends))
	for _, e := range r.backends {
		profiles = append(profiles, e.profile)
	}
	return profiles
}

// IDs возвращает идентификаторы всех backend'ов.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	return ids
}

// SetStatus устанавливает статус здоровья backend'а.
// Вызывается только HealthMonitor'ом.
func (r *Registry) SetStatus(id string, status domain.BackendStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.backends[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	e.profile.Status = status
	return nil
}

// Acquire увеличивает счётчик нагрузки backend'а.
//
// Вызывается непосредственно перед invoke; парный Release — после
// завершения (успешного или нет). Именно это делает отношение
// load/capacity осмысленным для конкурентных запросов.
func (r *Registry) Acquire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.backends[id]; ok {
		e.load++
	}
}

// Release уменьшает счётчик нагрузки backend'а.
// Счётчик не опускается ниже нуля.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.backends[id]; ok && e.load > 0 {
		e.load--
	}
}

// Load возвращает текущую нагрузку backend'а.
func (r *Registry) Load(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.backends[id]; ok {
		return e.load
	}
	return 0
}

// LoadRatio возвращает отношение load/capacity в [0..1+].
func (r *Registry) LoadRatio(id string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.backends[id]
	if !ok || e.profile.MaxCapacity <= 0 {
		return 0
	}
	return float64(e.load) / float64(e.profile.MaxCapacity)
}

// Size возвращает количество зарегистрированных backend'ов.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}
