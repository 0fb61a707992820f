package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default configuration values.
const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// State — состояние контура.
type State string

const (
	// StateClosed — вызовы проходят свободно.
	StateClosed State = "CLOSED"

	// StateOpen — вызовы отклоняются до истечения cooldown.
	StateOpen State = "OPEN"

	// StateHalfOpen — допускается ровно один пробный вызов.
	StateHalfOpen State = "HALF_OPEN"
)

// Settings — настройки контура одного backend'а.
type Settings struct {
	// FailureThreshold — количество consecutive failures для открытия.
	FailureThreshold int

	// ResetTimeout — сколько контур остаётся открытым до перехода
	// в HALF_OPEN (по тику монитора).
	ResetTimeout time.Duration
}

// withDefaults заполняет нулевые поля значениями по умолчанию.
func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = DefaultResetTimeout
	}
	return s
}

// circuit — состояние контура одного backend'а.
//
// Переходы:
//
//	CLOSED → (failures ≥ threshold) → OPEN
//	OPEN → (resetTimeout истёк, по тику монитора) → HALF_OPEN
//	HALF_OPEN → (пробный вызов успешен) → CLOSED
//	HALF_OPEN → (пробный вызов упал) → OPEN с новым nextAttemptAt
type circuit struct {
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	nextAttemptAt       time.Time

	// trialInFlight — в HALF_OPEN уже допущен пробный вызов.
	// Гарантирует ровно один trial: конкурентные Guard отклоняются,
	// пока исход пробного вызова не зафиксирован.
	trialInFlight bool

	settings Settings
}

// Snapshot — read-only снимок контура для интроспекции.
type Snapshot struct {
	// Backend — ID backend'а.
	Backend string `json:"backend"`

	// State — текущее состояние.
	State State `json:"state"`

	// ConsecutiveFailures — счётчик подряд идущих ошибок.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastFailureAt — время последней ошибки.
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`

	// NextAttemptAt — когда открытый контур перейдёт в HALF_OPEN.
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`
}

// Manager управляет контурами всех backend'ов.
//
// Состояние контуров — долгоживущий разделяемый ресурс; мутируется
// только через Guard/OnSuccess/OnFailure и периодический Tick.
// Переходы состояний — не ошибки, а policy-driven изменения:
// наружу они уходят только как события Notifier'ам и метрики.
type Manager struct {
	mu       sync.Mutex
	circuits map[string]*circuit

	defaults  Settings
	notifiers []Notifier

	// now — источник времени (подменяется в тестах).
	now func() time.Time

	logger *slog.Logger
}

// Config — конфигурация Manager.
type Config struct {
	// Defaults — настройки контура по умолчанию.
	Defaults Settings

	// Notifiers — получатели событий переходов.
	Notifiers []Notifier

	// Now — источник времени (default: time.Now).
	Now func() time.Time

	// Logger
	Logger *slog.Logger
}

// NewManager создаёт Manager контуров.
func NewManager(cfg Config) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		circuits:  make(map[string]*circuit),
		defaults:  cfg.Defaults.withDefaults(),
		notifiers: cfg.Notifiers,
		now:       now,
		logger:    logger,
	}
}

// Register создаёт контур для backend'а с указанными настройками.
// Нулевые поля Settings берутся из defaults.
func (m *Manager) Register(backendID string, settings Settings) {
	s := settings
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = m.defaults.FailureThreshold
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = m.defaults.ResetTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.circuits[backendID]; !exists {
		m.circuits[backendID] = &circuit{state: StateClosed, settings: s}
	}
}

// get возвращает контур, создавая его с defaults при первом обращении.
// Вызывается под m.mu.
func (m *Manager) get(backendID string) *circuit {
	c, ok := m.circuits[backendID]
	if !ok {
		c = &circuit{state: StateClosed, settings: m.defaults}
		m.circuits[backendID] = c
	}
	return c
}

// Guard решает, можно ли вызывать backend.
//
// false — только для открытого контура (вызов отклоняется без попытки
// достучаться до backend'а). Guard сам состояние не переводит: переход
// OPEN → HALF_OPEN делает периодический Tick. В HALF_OPEN допускается
// ровно один пробный вызов.
func (m *Manager) Guard(backendID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.get(backendID)

	switch c.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if c.trialInFlight {
			return false
		}
		c.trialInFlight = true
		return true
	default:
		return true
	}
}

// OnSuccess фиксирует успешный вызов backend'а.
// Сбрасывает счётчик ошибок; из HALF_OPEN закрывает контур.
func (m *Manager) OnSuccess(backendID string) {
	m.mu.Lock()
	c := m.get(backendID)
	c.consecutiveFailures = 0

	var transition *Transition
	if c.state == StateHalfOpen {
		c.state = StateClosed
		c.trialInFlight = false
		transition = &Transition{
			Backend: backendID,
			From:    StateHalfOpen,
			To:      StateClosed,
			At:      m.now(),
		}
	}
	m.mu.Unlock()

	if transition != nil {
		m.notify(*transition)
	}
}

// OnFailure фиксирует неуспешный вызов backend'а.
//
// Таймаут и ошибка ответа считаются одинаково. Достижение порога
// из CLOSED или любая ошибка пробного вызова в HALF_OPEN открывает
// контур со свежим nextAttemptAt.
func (m *Manager) OnFailure(backendID string) {
	now := m.now()

	m.mu.Lock()
	c := m.get(backendID)
	c.consecutiveFailures++
	c.lastFailureAt = now

	var transition *Transition
	switch c.state {
	case StateHalfOpen:
		c.state = StateOpen
		c.trialInFlight = false
		c.nextAttemptAt = now.Add(c.settings.ResetTimeout)
		transition = &Transition{Backend: backendID, From: StateHalfOpen, To: StateOpen, At: now}

	case StateClosed:
		if c.consecutiveFailures >= c.settings.FailureThreshold {
			c.state = StateOpen
			c.nextAttemptAt = now.Add(c.settings.ResetTimeout)
			transition = &Transition{Backend: backendID, From: StateClosed, To: StateOpen, At: now}
		}
	}
	m.mu.Unlock()

	if transition != nil {
		m.notify(*transition)
	}
}

// Tick переводит открытые контуры с истёкшим cooldown в HALF_OPEN.
// Вызывается периодическим монитором, не Guard'ом.
func (m *Manager) Tick() {
	now := m.now()

	m.mu.Lock()
	var transitions []Transition
	for backendID, c := range m.circuits {
		if c.state == StateOpen && !now.Before(c.nextAttemptAt) {
			c.state = StateHalfOpen
			c.trialInFlight = false
			transitions = append(transitions, Transition{
				Backend: backendID,
				From:    StateOpen,
				To:      StateHalfOpen,
				At:      now,
			})
		}
	}
	m.mu.Unlock()

	for _, t := range transitions {
		m.notify(t)
	}
}

// Run запускает периодический монитор контуров.
// Блокируется до отмены контекста.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// IsOpen возвращает true, если контур backend'а открыт.
// Реализует registry.CircuitView.
func (m *Manager) IsOpen(backendID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.circuits[backendID]
	return ok && c.state == StateOpen
}

// State возвращает текущее состояние контура backend'а.
func (m *Manager) State(backendID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.circuits[backendID]
	if !ok {
		return StateClosed
	}
	return c.state
}

// ConsecutiveFailures возвращает счётчик подряд идущих ошибок.
func (m *Manager) ConsecutiveFailures(backendID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.circuits[backendID]
	if !ok {
		return 0
	}
	return c.consecutiveFailures
}

// SnapshotFor возвращает снимок контура backend'а.
func (m *Manager) SnapshotFor(backendID string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.circuits[backendID]
	if !ok {
		return Snapshot{Backend: backendID, State: StateClosed}
	}
	return Snapshot{
		Backend:             backendID,
		State:               c.state,
		ConsecutiveFailures: c.consecutiveFailures,
		LastFailureAt:       c.lastFailureAt,
		NextAttemptAt:       c.nextAttemptAt,
	}
}

// notify рассылает событие перехода всем подписчикам.
func (m *Manager) notify(t Transition) {
	m.logger.Info("circuit transition",
		"backend_id", t.Backend,
		"from", t.From,
		"to", t.To,
	)
	for _, n := range m.notifiers {
		n.CircuitTransition(t)
	}
}
