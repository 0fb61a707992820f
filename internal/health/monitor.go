package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Dirigent/internal/domain"
	"github.com/shaiso/Dirigent/internal/registry"
)

// Default configuration values.
const (
	DefaultInterval     = 15 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// cronParser — парсер cron-выражений расписания проверок.
// Поддерживает пятипольный формат и дескрипторы ("@every 30s").
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Prober проверяет живость backend'а.
// Реализуется invoker'ом.
type Prober interface {
	Probe(ctx context.Context, backendID string) error
}

// Monitor — периодическая проверка здоровья backend'ов.
//
// Probe проходит — backend ACTIVE, не проходит — UNHEALTHY; статус
// меняется только здесь. Состояние circuit breaker'ов Monitor
// не трогает: здоровье и контур — независимые сигналы.
type Monitor struct {
	registry *registry.Registry
	prober   Prober

	interval     time.Duration
	schedule     cron.Schedule
	probeTimeout time.Duration

	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config — конфигурация Monitor.
type Config struct {
	// Registry — реестр backend'ов (обязательно).
	Registry *registry.Registry

	// Prober — транспорт проверок (обязательно).
	Prober Prober

	// Interval — фиксированный интервал проверок (default: 15s).
	// Игнорируется, если задан Schedule.
	Interval time.Duration

	// Schedule — cron-выражение расписания проверок
	// (пятипольное или "@every 30s"). Пустое — фиксированный интервал.
	Schedule string

	// ProbeTimeout — таймаут одной проверки (default: 5s).
	ProbeTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Monitor.
func New(cfg Config) (*Monitor, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var schedule cron.Schedule
	if cfg.Schedule != "" {
		parsed, err := cronParser.Parse(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("parse health schedule %q: %w", cfg.Schedule, err)
		}
		schedule = parsed
	}

	return &Monitor{
		registry:     cfg.Registry,
		prober:       cfg.Prober,
		interval:     interval,
		schedule:     schedule,
		probeTimeout: probeTimeout,
		logger:       logger,
	}, nil
}

// Start запускает фоновый цикл проверок.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("health monitor started",
		"interval", m.interval,
		"scheduled", m.schedule != nil,
	)
}

// Stop останавливает цикл проверок и дожидается его завершения.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

// loop — фоновый цикл: ожидание следующего срока, проверка всех backend'ов.
func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	for {
		wait := m.interval
		if m.schedule != nil {
			wait = time.Until(m.schedule.Next(time.Now()))
			if wait < 0 {
				wait = 0
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll проверяет все backend'ы конкурентно и обновляет их статусы.
func (m *Monitor) CheckAll(ctx context.Context) {
	ids := m.registry.IDs()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.checkOne(ctx, id)
		}(id)
	}
	wg.Wait()
}

// checkOne проверяет один backend и выставляет его статус.
func (m *Monitor) checkOne(ctx context.Context, backendID string) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	status := domain.BackendStatusActive
	if err := m.prober.Probe(probeCtx, backendID); err != nil {
		status = domain.BackendStatusUnhealthy
		m.logger.Warn("health probe failed", "backend_id", backendID, "error", err)
	}

	prev, err := m.registry.Get(backendID)
	if err != nil {
		return
	}
	if prev.Status != status {
		m.logger.Info("backend status changed",
			"backend_id", backendID, "from", prev.Status, "to", status)
	}
	m.registry.SetStatus(backendID, status)
}
