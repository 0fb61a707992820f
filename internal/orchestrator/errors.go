package orchestrator

import "errors"

// Ошибки оркестрации.
var (
	// ErrBackendUnavailable — выбранный backend отклонён circuit breaker'ом.
	// Наружу уходит как ошибка вызова, без деталей состояния контура.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
