package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus — статус выполнения шага внутри instance.
type StepStatus string

const (
	// StepStatusPending — шаг ещё не выполнялся.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusCompleted — шаг выполнен основным backend'ом.
	StepStatusCompleted StepStatus = "COMPLETED"

	// StepStatusCompletedViaFallback — шаг выполнен одним из запасных backend'ов.
	StepStatusCompletedViaFallback StepStatus = "COMPLETED_VIA_FALLBACK"

	// StepStatusFailed — ни основной, ни запасные backend'ы не справились.
	StepStatusFailed StepStatus = "FAILED"
)

// InstanceStatus — статус выполнения workflow instance.
type InstanceStatus string

const (
	// InstanceStatusRunning — instance в процессе выполнения.
	InstanceStatusRunning InstanceStatus = "RUNNING"

	// InstanceStatusSucceeded — все шаги отработаны, критических падений нет.
	InstanceStatusSucceeded InstanceStatus = "SUCCEEDED"

	// InstanceStatusFailed — критический шаг упал, workflow прерван.
	InstanceStatusFailed InstanceStatus = "FAILED"
)

// StepState — runtime-состояние одного шага внутри instance.
type StepState struct {
	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// ServedBy — backend, фактически выполнивший шаг
	// (отличается от Step.Backend при fallback'е).
	ServedBy string `json:"served_by,omitempty"`

	// Error — текст последней ошибки шага.
	Error string `json:"error,omitempty"`
}

// StepError — запись об ошибке шага в упорядоченном списке ошибок instance.
type StepError struct {
	// StepID — шаг, на котором произошла ошибка.
	StepID string `json:"step_id"`

	// Message — текст ошибки.
	Message string `json:"message"`

	// Timestamp — время фиксации ошибки.
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowInstance — один запуск workflow-шаблона.
//
// Создаётся при начале оркестрации, мутирует по мере выполнения шагов
// и удаляется из активного набора по достижении терминального статуса.
// Живёт только в памяти запроса — долговременно не хранится
// (опциональный audit trail пишет уже терминальный снимок).
type WorkflowInstance struct {
	// ID — уникальный идентификатор запуска.
	ID uuid.UUID `json:"id"`

	// Template — имя шаблона.
	Template string `json:"template"`

	// Status — текущий статус instance.
	Status InstanceStatus `json:"status"`

	// Steps — состояние каждого шага (stepID → StepState).
	Steps map[string]*StepState `json:"steps"`

	// Results — результаты успешных шагов (stepID → результат).
	// У упавшего некритического шага результата нет.
	Results map[string]map[string]any `json:"results,omitempty"`

	// Errors — упорядоченный список ошибок шагов.
	Errors []StepError `json:"errors,omitempty"`

	// FailoverCount — сколько шагов выполнено через fallback.
	FailoverCount int `json:"failover_count"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения (nil, пока instance выполняется).
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewWorkflowInstance создаёт instance для шаблона со всеми шагами в PENDING.
func NewWorkflowInstance(tmpl *WorkflowTemplate) *WorkflowInstance {
	steps := make(map[string]*StepState, len(tmpl.Steps))
	for _, s := range tmpl.Steps {
		steps[s.ID] = &StepState{Status: StepStatusPending}
	}
	return &WorkflowInstance{
		ID:        uuid.New(),
		Template:  tmpl.Name,
		Status:    InstanceStatusRunning,
		Steps:     steps,
		Results:   make(map[string]map[string]any),
		StartedAt: time.Now(),
	}
}

// MarkStepCompleted фиксирует успешное выполнение шага.
func (i *WorkflowInstance) MarkStepCompleted(stepID, backendID string, result map[string]any) {
	i.Steps[stepID] = &StepState{Status: StepStatusCompleted, ServedBy: backendID}
	i.Results[stepID] = result
}

// MarkStepCompletedViaFallback фиксирует выполнение шага запасным backend'ом.
func (i *WorkflowInstance) MarkStepCompletedViaFallback(stepID, backendID string, result map[string]any) {
	i.Steps[stepID] = &StepState{Status: StepStatusCompletedViaFallback, ServedBy: backendID}
	i.Results[stepID] = result
	i.FailoverCount++
}

// MarkStepFailed фиксирует невосстановимое падение шага
// и добавляет запись в список ошибок.
func (i *WorkflowInstance) MarkStepFailed(stepID, errMsg string) {
	i.Steps[stepID] = &StepState{Status: StepStatusFailed, Error: errMsg}
	i.Errors = append(i.Errors, StepError{
		StepID:    stepID,
		Message:   errMsg,
		Timestamp: time.Now(),
	})
}

// Finish переводит instance в терминальный статус и фиксирует время.
func (i *WorkflowInstance) Finish(status InstanceStatus) {
	now := time.Now()
	i.Status = status
	i.FinishedAt = &now
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если instance ещё не завершён.
func (i *WorkflowInstance) Duration() time.Duration {
	if i.FinishedAt == nil {
		return 0
	}
	return i.FinishedAt.Sub(i.StartedAt)
}

// IsFinished возвращает true, если instance в терминальном статусе.
func (i *WorkflowInstance) IsFinished() bool {
	return i.Status == InstanceStatusSucceeded || i.Status == InstanceStatusFailed
}
