package engine

import (
	"errors"
	"fmt"
)

// Ошибки движка workflow.
var (
	// ErrUnknownTemplate — шаблон с таким именем не зарегистрирован.
	ErrUnknownTemplate = errors.New("unknown workflow template")

	// ErrDuplicateTemplate — шаблон с таким именем уже зарегистрирован.
	ErrDuplicateTemplate = errors.New("workflow template already registered")

	// ErrInvalidTemplate — шаблон не прошёл валидацию.
	ErrInvalidTemplate = errors.New("invalid workflow template")

	// ErrCircuitOpen — все кандидаты шага отклонены открытыми контурами.
	// Наружу не отдаётся: в instance попадает как текст ошибки шага.
	ErrCircuitOpen = errors.New("circuit open")
)

// CriticalStepError — невосстановимое падение критического шага.
// Называет шаг и backend последней попытки.
type CriticalStepError struct {
	// Step — ID упавшего шага.
	Step string

	// Backend — backend последней попытки.
	Backend string
}

// Error реализует error.
func (e *CriticalStepError) Error() string {
	return fmt.Sprintf("critical step %s failed (last backend: %s)", e.Step, e.Backend)
}
