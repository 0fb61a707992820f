package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Dirigent/internal/domain"
)

// Outcome — запись audit trail об одном завершённом запросе.
type Outcome struct {
	// ID — идентификатор записи.
	ID uuid.UUID `json:"id"`

	// Strategy — стратегия выполнения.
	Strategy string `json:"strategy"`

	// RequestType — тип запроса.
	RequestType string `json:"request_type,omitempty"`

	// Backend — backend SINGLE-запроса.
	Backend string `json:"backend,omitempty"`

	// OK — завершился ли запрос успешно.
	OK bool `json:"ok"`

	// Error — текст ошибки неуспешного запроса.
	Error string `json:"error,omitempty"`

	// FailedStage — стадия, прервавшая pipeline.
	FailedStage string `json:"failed_stage,omitempty"`

	// Instance — снимок workflow instance (JSON).
	Instance *domain.WorkflowInstance `json:"instance,omitempty"`

	// DurationMs — время выполнения в миллисекундах.
	DurationMs int64 `json:"duration_ms"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}

// OutcomeRepo — audit trail терминальных исходов оркестрации.
//
// Запись best-effort: ошибка БД логируется вызывающим и на обработку
// запросов не влияет. Домашняя таблица — orchestration_outcomes.
type OutcomeRepo struct {
	pool *pgxpool.Pool
}

// NewOutcomeRepo создаёт OutcomeRepo.
func NewOutcomeRepo(pool *pgxpool.Pool) *OutcomeRepo {
	return &OutcomeRepo{pool: pool}
}

// SaveOutcome пишет терминальный исход запроса.
// Реализует orchestrator.Auditor.
func (r *OutcomeRepo) SaveOutcome(ctx context.Context, req *domain.Request, result *domain.OrchestrationResult, resultErr error) error {
	errText := ""
	if resultErr != nil {
		errText = resultErr.Error()
	}

	var instanceJSON []byte
	if result.Instance != nil {
		var err error
		instanceJSON, err = json.Marshal(result.Instance)
		if err != nil {
			return fmt.Errorf("marshal instance: %w", err)
		}
	}

	var tasksJSON []byte
	if len(result.TaskResults) > 0 {
		var err error
		tasksJSON, err = json.Marshal(result.TaskResults)
		if err != nil {
			return fmt.Errorf("marshal task results: %w", err)
		}
	}

	query := `
		INSERT INTO orchestration_outcomes
			(id, strategy, request_type, backend, ok, error, failed_stage,
			 instance, task_results, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		uuid.New(),
		string(result.Strategy),
		nullString(req.Type),
		nullString(result.Backend),
		resultErr == nil,
		nullString(errText),
		nullString(result.FailedStage),
		instanceJSON,
		tasksJSON,
		result.Duration.Milliseconds(),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// ListRecent возвращает последние записи audit trail.
func (r *OutcomeRepo) ListRecent(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, strategy, request_type, backend, ok, error, failed_stage,
		       instance, duration_ms, created_at
		FROM orchestration_outcomes
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var requestType, backend, errText, failedStage *string
		var instanceJSON []byte

		err := rows.Scan(&o.ID, &o.Strategy, &requestType, &backend, &o.OK,
			&errText, &failedStage, &instanceJSON, &o.DurationMs, &o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}

		o.RequestType = deref(requestType)
		o.Backend = deref(backend)
		o.Error = deref(errText)
		o.FailedStage = deref(failedStage)

		if len(instanceJSON) > 0 {
			var inst domain.WorkflowInstance
			if err := json.Unmarshal(instanceJSON, &inst); err != nil {
				return nil, fmt.Errorf("unmarshal instance: %w", err)
			}
			o.Instance = &inst
		}

		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// deref возвращает пустую строку для nil.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
