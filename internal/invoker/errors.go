package invoker

import "errors"

// Ошибки вызовов backend'ов.
var (
	// ErrInvocationTimeout — backend не ответил в срок.
	ErrInvocationTimeout = errors.New("invocation timeout")

	// ErrInvocationFailed — транспортная ошибка или код ответа >= 400.
	ErrInvocationFailed = errors.New("invocation failed")
)
