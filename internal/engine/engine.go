package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Dirigent/internal/domain"
	"github.com/shaiso/Dirigent/internal/invoker"
	"github.com/shaiso/Dirigent/internal/registry"
	"github.com/shaiso/Dirigent/internal/telemetry"
)

// Circuit — решения circuit breaker'а, нужные движку.
// Реализуется breaker.Manager'ом.
type Circuit interface {
	// Guard решает, можно ли вызывать backend.
	Guard(backendID string) bool

	// OnSuccess фиксирует успешный вызов.
	OnSuccess(backendID string)

	// OnFailure фиксирует неуспешный вызов.
	OnFailure(backendID string)
}

// Engine выполняет workflow-шаблоны.
//
// Шаблоны регистрируются на этапе конфигурации и после этого
// неизменяемы; Execute можно вызывать конкурентно — каждый запуск
// получает собственный instance.
type Engine struct {
	registry *registry.Registry
	circuits Circuit
	invoker  invoker.Invoker
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	mu        sync.RWMutex
	templates map[string]*domain.WorkflowTemplate

	activeMu sync.Mutex
	active   map[uuid.UUID]*domain.WorkflowInstance
}

// Config — конфигурация Engine.
type Config struct {
	// Registry — реестр backend'ов (обязательно).
	Registry *registry.Registry

	// Circuits — circuit breaker'ы (обязательно).
	Circuits Circuit

	// Invoker — транспорт вызовов (обязательно).
	Invoker invoker.Invoker

	// Metrics — сборщик метрик (опционально).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:  cfg.Registry,
		circuits:  cfg.Circuits,
		invoker:   cfg.Invoker,
		metrics:   cfg.Metrics,
		logger:    logger,
		templates: make(map[string]*domain.WorkflowTemplate),
		active:    make(map[uuid.UUID]*domain.WorkflowInstance),
	}
}

// RegisterTemplate регистрирует workflow-шаблон.
//
// Все backend'ы шагов и fallback-цепочек должны быть известны
// реестру — привязка проверяется здесь, а не в момент выполнения.
func (e *Engine) RegisterTemplate(tmpl *domain.WorkflowTemplate) error {
	if err := e.validateTemplate(tmpl); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.templates[tmpl.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTemplate, tmpl.Name)
	}
	e.templates[tmpl.Name] = tmpl
	return nil
}

// validateTemplate проверяет структуру шаблона и привязки к реестру.
func (e *Engine) validateTemplate(tmpl *domain.WorkflowTemplate) error {
	if tmpl.Name == "" {
		return fmt.Errorf("%w: empty template name", ErrInvalidTemplate)
	}
	if len(tmpl.Steps) == 0 {
		return fmt.Errorf("%w: template %s has no steps", ErrInvalidTemplate, tmpl.Name)
	}

	seen := make(map[string]bool, len(tmpl.Steps))
	for _, step := range tmpl.Steps {
		if step.ID == "" {
			return fmt.Errorf("%w: template %s: step with empty id", ErrInvalidTemplate, tmpl.Name)
		}
		if seen[step.ID] {
			return fmt.Errorf("%w: template %s: duplicate step id %s", ErrInvalidTemplate, tmpl.Name, step.ID)
		}
		seen[step.ID] = true

		if step.Method == "" {
			return fmt.Errorf("%w: template %s: step %s has no method", ErrInvalidTemplate, tmpl.Name, step.ID)
		}
		if _, err := e.registry.Get(step.Backend); err != nil {
			return fmt.Errorf("%w: template %s: step %s: %v", ErrInvalidTemplate, tmpl.Name, step.ID, err)
		}
	}

	for backendID, chain := range tmpl.Fallbacks {
		if _, err := e.registry.Get(backendID); err != nil {
			return fmt.Errorf("%w: template %s: fallback key: %v", ErrInvalidTemplate, tmpl.Name, err)
		}
		for _, fb := range chain {
			if _, err := e.registry.Get(fb); err != nil {
				return fmt.Errorf("%w: template %s: fallback for %s: %v", ErrInvalidTemplate, tmpl.Name, backendID, err)
			}
		}
	}
	return nil
}

// Template возвращает шаблон по имени.
func (e *Engine) Template(name string) (*domain.WorkflowTemplate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return tmpl, nil
}

// HasTemplate возвращает true, если шаблон зарегистрирован.
func (e *Engine) HasTemplate(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[name]
	return ok
}

// Templates возвращает все зарегистрированные шаблоны.
func (e *Engine) Templates() []*domain.WorkflowTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.WorkflowTemplate, 0, len(e.templates))
	for _, tmpl := range e.templates {
		out = append(out, tmpl)
	}
	return out
}

// Active возвращает снимок выполняющихся instance'ов.
func (e *Engine) Active() []*domain.WorkflowInstance {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	out := make([]*domain.WorkflowInstance, 0, len(e.active))
	for _, inst := range e.active {
		out = append(out, inst)
	}
	return out
}

// Execute выполняет шаблон с указанным payload.
//
// Шаги идут строго в объявленном порядке. Невосстановимое падение
// критического шага прерывает workflow с CriticalStepError;
// некритический шаг пропускается, выполнение продолжается.
// Возвращаемый instance заполнен в обоих случаях.
func (e *Engine) Execute(ctx context.Context, name string, payload map[string]any) (*domain.WorkflowInstance, error) {
	tmpl, err := e.Template(name)
	if err != nil {
		return nil, err
	}

	inst := domain.NewWorkflowInstance(tmpl)

	e.activeMu.Lock()
	e.active[inst.ID] = inst
	e.activeMu.Unlock()
	defer func() {
		e.activeMu.Lock()
		delete(e.active, inst.ID)
		e.activeMu.Unlock()
	}()

	logger := telemetry.WithInstanceID(e.logger, inst.ID.String())
	logger.Info("workflow started", "template", name, "steps", len(tmpl.Steps))

	for _, step := range tmpl.Steps {
		ok, servedBy := e.executeStep(ctx, tmpl, &step, payload, inst, logger)
		if ok {
			continue
		}

		if step.Critical {
			inst.Finish(domain.InstanceStatusFailed)
			logger.Error("critical step failed, workflow aborted",
				"step_id", step.ID, "backend_id", servedBy)
			return inst, &CriticalStepError{Step: step.ID, Backend: servedBy}
		}
		logger.Warn("non-critical step failed, continuing", "step_id", step.ID)
	}

	inst.Finish(domain.InstanceStatusSucceeded)
	logger.Info("workflow finished",
		"status", inst.Status,
		"failovers", inst.FailoverCount,
		"duration_ms", inst.Duration().Milliseconds(),
	)
	return inst, nil
}

// executeStep выполняет один шаг: основной backend, затем fallback-цепочка.
//
// Возвращает успех и backend последней попытки (для CriticalStepError).
// На каждого кандидата — не более одной попытки; отклонение guard'ом
// попыткой не считается и OnFailure не вызывает.
func (e *Engine) executeStep(ctx context.Context, tmpl *domain.WorkflowTemplate, step *domain.Step, payload map[string]any, inst *domain.WorkflowInstance, logger *slog.Logger) (bool, string) {
	candidates := append([]string{step.Backend}, tmpl.FallbacksFor(step.Backend)...)

	stepCtx := ctx
	if step.TimeoutSec > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutSec)*time.Second)
		defer cancel()
	}

	attempted := make(map[string]bool, len(candidates))
	lastErr := fmt.Errorf("%w: backend %s", ErrCircuitOpen, step.Backend)
	lastBackend := step.Backend

	for _, candidate := range candidates {
		if attempted[candidate] {
			continue
		}

		if !e.circuits.Guard(candidate) {
			logger.Warn("candidate rejected by circuit", "step_id", step.ID, "backend_id", candidate)
			continue
		}
		attempted[candidate] = true

		e.registry.Acquire(candidate)
		result, err := e.invoker.Invoke(stepCtx, candidate, step.Method, payload)
		e.registry.Release(candidate)

		if err == nil {
			e.circuits.OnSuccess(candidate)
			if candidate == step.Backend {
				inst.MarkStepCompleted(step.ID, candidate, result)
			} else {
				inst.MarkStepCompletedViaFallback(step.ID, candidate, result)
				if e.metrics != nil {
					e.metrics.RecordFailover()
				}
				logger.Info("step completed via fallback",
					"step_id", step.ID, "backend_id", candidate, "primary", step.Backend)
			}
			return true, candidate
		}

		e.circuits.OnFailure(candidate)
		lastErr = err
		lastBackend = candidate
		logger.Warn("candidate failed", "step_id", step.ID, "backend_id", candidate, "error", err)
	}

	inst.MarkStepFailed(step.ID, lastErr.Error())
	return false, lastBackend
}
