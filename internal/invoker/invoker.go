package invoker

import "context"

// Invoker выполняет вызовы backend'ов.
//
// Invoke обязан уважать контекст: истечение дедлайна возвращается
// как ErrInvocationTimeout, остальные ошибки транспорта и ответа —
// как ErrInvocationFailed. Для circuit breaker'а оба исхода
// равнозначны.
type Invoker interface {
	// Invoke вызывает метод backend'а с указанным payload.
	Invoke(ctx context.Context, backendID, method string, payload map[string]any) (map[string]any, error)

	// Probe проверяет живость backend'а.
	Probe(ctx context.Context, backendID string) error
}
