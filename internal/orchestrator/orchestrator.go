package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Dirigent/internal/domain"
	"github.com/shaiso/Dirigent/internal/engine"
	"github.com/shaiso/Dirigent/internal/invoker"
	"github.com/shaiso/Dirigent/internal/registry"
	"github.com/shaiso/Dirigent/internal/telemetry"
)

// Auditor пишет терминальные исходы оркестрации в долговременное
// хранилище. Реализуется repo.OutcomeRepo; запись best-effort.
type Auditor interface {
	SaveOutcome(ctx context.Context, req *domain.Request, result *domain.OrchestrationResult, resultErr error) error
}

// Orchestrator — входная точка выполнения запросов.
//
// Классифицирует запрос в одну из четырёх стратегий и выполняет её,
// обновляя метрики на каждом терминальном исходе. Сам состояния
// не держит: вся разделяемая изменяемость живёт в Registry,
// circuit breaker'ах и Metrics.
type Orchestrator struct {
	registry *registry.Registry
	scorer   *registry.Scorer
	circuits engine.Circuit
	invoker  invoker.Invoker
	engine   *engine.Engine
	metrics  *telemetry.Metrics
	auditor  Auditor
	logger   *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Registry — реестр backend'ов (обязательно).
	Registry *registry.Registry

	// Scorer — выбор backend'а (обязательно).
	Scorer *registry.Scorer

	// Circuits — circuit breaker'ы (обязательно).
	Circuits engine.Circuit

	// Invoker — транспорт вызовов (обязательно).
	Invoker invoker.Invoker

	// Engine — движок workflow (обязательно).
	Engine *engine.Engine

	// Metrics — счётчики оркестрации (default: NewMetrics).
	Metrics *telemetry.Metrics

	// Auditor — audit trail исходов (опционально).
	Auditor Auditor

	// Logger
	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: cfg.Registry,
		scorer:   cfg.Scorer,
		circuits: cfg.Circuits,
		invoker:  cfg.Invoker,
		engine:   cfg.Engine,
		metrics:  metrics,
		auditor:  cfg.Auditor,
		logger:   logger,
	}
}

// Classify определяет стратегию выполнения запроса.
//
// Порядок разрешения: имя зарегистрированного шаблона → WORKFLOW,
// непустой набор задач → PARALLEL, непустой список стадий → PIPELINE,
// иначе SINGLE.
func (o *Orchestrator) Classify(req *domain.Request) domain.Strategy {
	switch {
	case req.Type != "" && o.engine.HasTemplate(req.Type):
		return domain.StrategyWorkflow
	case len(req.Tasks) > 0:
		return domain.StrategyParallel
	case len(req.Stages) > 0:
		return domain.StrategyPipeline
	default:
		return domain.StrategySingle
	}
}

// Orchestrate выполняет запрос по разрешённой стратегии.
//
// Каждый терминальный исход (успешный или нет) попадает в метрики
// и, при настроенном Auditor'е, в audit trail.
func (o *Orchestrator) Orchestrate(ctx context.Context, req *domain.Request) (*domain.OrchestrationResult, error) {
	strategy := o.Classify(req)
	logger := telemetry.WithRequestType(o.logger, req.Type).With("strategy", strategy)

	start := time.Now()
	var result *domain.OrchestrationResult
	var err error

	switch strategy {
	case domain.StrategyWorkflow:
		result, err = o.executeWorkflow(ctx, req)
	case domain.StrategyParallel:
		result, err = o.executeParallel(ctx, req)
	case domain.StrategyPipeline:
		result, err = o.executePipeline(ctx, req)
	default:
		result, err = o.executeSingle(ctx, req)
	}

	duration := time.Since(start)
	if result == nil {
		result = &domain.OrchestrationResult{Strategy: strategy}
	}
	result.Strategy = strategy
	result.Duration = duration

	o.metrics.RecordRequest(string(strategy), err == nil, duration)

	if err != nil {
		logger.Warn("orchestration failed", "error", err, "duration_ms", duration.Milliseconds())
	} else {
		logger.Info("orchestration completed", "duration_ms", duration.Milliseconds())
	}

	o.audit(ctx, req, result, err)
	return result, err
}

// MetricsSnapshot возвращает снимок счётчиков оркестрации.
func (o *Orchestrator) MetricsSnapshot() telemetry.MetricsSnapshot {
	return o.metrics.Snapshot()
}

// audit пишет исход в audit trail. Ошибка записи только логируется.
func (o *Orchestrator) audit(ctx context.Context, req *domain.Request, result *domain.OrchestrationResult, resultErr error) {
	if o.auditor == nil {
		return
	}
	if err := o.auditor.SaveOutcome(ctx, req, result, resultErr); err != nil {
		o.logger.Warn("audit write failed", "error", err)
	}
}

// executeSingle — один вызов одного backend'а, выбранного scorer'ом.
// Без fallback'а: ошибка уходит вызывающему как есть.
func (o *Orchestrator) executeSingle(ctx context.Context, req *domain.Request) (*domain.OrchestrationResult, error) {
	backendID, err := o.scorer.SelectBackend(req.Capabilities)
	if err != nil {
		return nil, err
	}

	output, err := o.invokeOne(ctx, backendID, req.Method, req.Payload, req.TimeoutSec)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", backendID, err)
	}

	return &domain.OrchestrationResult{Backend: backendID, Output: output}, nil
}

// executeWorkflow делегирует выполнение движку workflow.
func (o *Orchestrator) executeWorkflow(ctx context.Context, req *domain.Request) (*domain.OrchestrationResult, error) {
	inst, err := o.engine.Execute(ctx, req.Type, req.Payload)
	result := &domain.OrchestrationResult{Instance: inst}
	if err != nil {
		return result, err
	}
	return result, nil
}

// executeParallel — конкурентный fan-out всех задач запроса.
//
// Возвращает ровно столько TaskResult'ов, сколько было задач, в их
// исходном порядке. Падения отдельных задач в ошибку запроса
// не превращаются.
func (o *Orchestrator) executeParallel(ctx context.Context, req *domain.Request) (*domain.OrchestrationResult, error) {
	results := make([]domain.TaskResult, len(req.Tasks))

	var wg sync.WaitGroup
	for i, task := range req.Tasks {
		wg.Add(1)
		go func(i int, task domain.TaskSpec) {
			defer wg.Done()
			results[i] = o.runTask(ctx, task)
		}(i, task)
	}
	wg.Wait()

	return &domain.OrchestrationResult{TaskResults: results}, nil
}

// runTask выполняет одну задачу параллельного набора.
func (o *Orchestrator) runTask(ctx context.Context, task domain.TaskSpec) domain.TaskResult {
	backendID := task.Backend
	if backendID == "" {
		selected, err := o.scorer.SelectBackend(task.Capabilities)
		if err != nil {
			return domain.TaskResult{TaskID: task.ID, Error: err.Error()}
		}
		backendID = selected
	}

	output, err := o.invokeOne(ctx, backendID, task.Method, task.Payload, task.TimeoutSec)
	if err != nil {
		return domain.TaskResult{TaskID: task.ID, Backend: backendID, Error: err.Error()}
	}
	return domain.TaskResult{TaskID: task.ID, Backend: backendID, OK: true, Output: output}
}

// executePipeline — строгая цепочка стадий слева направо.
//
// Результат стадии подаётся следующей под ключом "input" поверх
// исходного payload. Первая упавшая стадия прерывает цепочку;
// fallback'а у стадий нет.
func (o *Orchestrator) executePipeline(ctx context.Context, req *domain.Request) (*domain.OrchestrationResult, error) {
	payload := req.Payload
	var output map[string]any

	for _, stage := range req.Stages {
		backendID := stage.Backend
		if backendID == "" {
			selected, err := o.scorer.SelectBackend(stage.Capabilities)
			if err != nil {
				return &domain.OrchestrationResult{FailedStage: stage.ID}, fmt.Errorf("stage %s: %w", stage.ID, err)
			}
			backendID = selected
		}

		out, err := o.invokeOne(ctx, backendID, stage.Method, payload, stage.TimeoutSec)
		if err != nil {
			return &domain.OrchestrationResult{FailedStage: stage.ID},
				fmt.Errorf("stage %s: invoke %s: %w", stage.ID, backendID, err)
		}

		output = out
		payload = chainPayload(req.Payload, out)
	}

	return &domain.OrchestrationResult{Output: output}, nil
}

// chainPayload собирает payload следующей стадии: исходный payload
// плюс результат предыдущей стадии под ключом "input".
func chainPayload(original, stageOutput map[string]any) map[string]any {
	next := make(map[string]any, len(original)+1)
	for k, v := range original {
		next[k] = v
	}
	next["input"] = stageOutput
	return next
}

// invokeOne — guard, учёт нагрузки, вызов, запись исхода в контур.
//
// Отклонение guard'ом наружу уходит как ErrBackendUnavailable,
// без вызова OnFailure: попытки достучаться до backend'а не было.
func (o *Orchestrator) invokeOne(ctx context.Context, backendID, method string, payload map[string]any, timeoutSec int) (map[string]any, error) {
	if !o.circuits.Guard(backendID) {
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, backendID)
	}

	if timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
		defer cancel()
	}

	o.registry.Acquire(backendID)
	output, err := o.invoker.Invoke(ctx, backendID, method, payload)
	o.registry.Release(backendID)

	if err != nil {
		o.circuits.OnFailure(backendID)
		return nil, err
	}
	o.circuits.OnSuccess(backendID)
	return output, nil
}
