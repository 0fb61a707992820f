package domain

import "time"

// Strategy — стратегия выполнения запроса.
//
// Закрытый набор тегов, разрешаемый из формы запроса при классификации
// (вместо эвристик по строкам): имя зарегистрированного шаблона → WORKFLOW,
// явный набор задач → PARALLEL, явный список стадий → PIPELINE,
// иначе → SINGLE.
type Strategy string

const (
	// StrategySingle — один вызов одного backend'а, выбранного scorer'ом.
	// Без fallback'а: ошибка уходит вызывающему как есть.
	StrategySingle Strategy = "SINGLE"

	// StrategyWorkflow — выполнение именованного шаблона через WorkflowEngine.
	StrategyWorkflow Strategy = "WORKFLOW"

	// StrategyParallel — параллельный fan-out набора задач.
	// Частичные падения не прерывают выполнение.
	StrategyParallel Strategy = "PARALLEL"

	// StrategyPipeline — строгая цепочка стадий слева направо.
	// Без fallback'а: первая упавшая стадия прерывает цепочку.
	StrategyPipeline Strategy = "PIPELINE"
)

// Request — входной запрос оркестратора.
type Request struct {
	// Type — тип запроса. Если совпадает с именем зарегистрированного
	// шаблона — выполняется как workflow.
	Type string `json:"type"`

	// Payload — полезная нагрузка запроса.
	Payload map[string]any `json:"payload,omitempty"`

	// Capabilities — требуемые возможности для SINGLE-стратегии.
	Capabilities []string `json:"capabilities,omitempty"`

	// Method — метод для SINGLE-стратегии.
	Method string `json:"method,omitempty"`

	// Tasks — набор задач для PARALLEL-стратегии.
	Tasks []TaskSpec `json:"tasks,omitempty"`

	// Stages — стадии для PIPELINE-стратегии.
	Stages []StageSpec `json:"stages,omitempty"`

	// TimeoutSec — таймаут отдельного вызова.
	// 0 — использовать таймаут целевого backend'а.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// TaskSpec — одна задача параллельного набора.
type TaskSpec struct {
	// ID — идентификатор задачи в рамках запроса.
	ID string `json:"id"`

	// Backend — явная привязка к backend'у.
	// Пустое значение — backend выбирает scorer по Capabilities.
	Backend string `json:"backend,omitempty"`

	// Capabilities — требуемые возможности (при выборе через scorer).
	Capabilities []string `json:"capabilities,omitempty"`

	// Method — вызываемый метод.
	Method string `json:"method"`

	// Payload — полезная нагрузка задачи.
	Payload map[string]any `json:"payload,omitempty"`

	// TimeoutSec — таймаут вызова. 0 — таймаут backend'а.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// StageSpec — одна стадия pipeline.
//
// Результат стадии подаётся на вход следующей; у стадий нет fallback'а.
type StageSpec struct {
	// ID — идентификатор стадии.
	ID string `json:"id"`

	// Backend — явная привязка к backend'у.
	// Пустое значение — backend выбирает scorer по Capabilities.
	Backend string `json:"backend,omitempty"`

	// Capabilities — требуемые возможности (при выборе через scorer).
	Capabilities []string `json:"capabilities,omitempty"`

	// Method — вызываемый метод.
	Method string `json:"method"`

	// TimeoutSec — таймаут вызова. 0 — таймаут backend'а.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// TaskResult — результат одной задачи параллельного набора.
type TaskResult struct {
	// TaskID — идентификатор задачи.
	TaskID string `json:"task_id"`

	// Backend — backend, выполнявший задачу (пустой, если выбрать не удалось).
	Backend string `json:"backend,omitempty"`

	// OK — успешно ли завершилась задача.
	OK bool `json:"ok"`

	// Output — результат успешной задачи.
	Output map[string]any `json:"output,omitempty"`

	// Error — текст ошибки упавшей задачи.
	Error string `json:"error,omitempty"`
}

// OrchestrationResult — результат оркестрации.
type OrchestrationResult struct {
	// Strategy — стратегия, по которой выполнялся запрос.
	Strategy Strategy `json:"strategy"`

	// Backend — backend, обслуживший SINGLE-запрос.
	Backend string `json:"backend,omitempty"`

	// Output — результат SINGLE-вызова или последней стадии pipeline.
	Output map[string]any `json:"output,omitempty"`

	// Instance — снимок workflow instance (для WORKFLOW).
	Instance *WorkflowInstance `json:"instance,omitempty"`

	// TaskResults — результаты всех задач (для PARALLEL, всегда ровно
	// столько записей, сколько было задач).
	TaskResults []TaskResult `json:"task_results,omitempty"`

	// FailedStage — стадия, прервавшая pipeline.
	FailedStage string `json:"failed_stage,omitempty"`

	// Duration — общее время выполнения запроса.
	Duration time.Duration `json:"duration"`
}
