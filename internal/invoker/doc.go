// Package invoker — транспорт вызовов backend'ов.
//
// Invoker абстрагирует механику вызова от решений о том, кого
// вызывать: выбор backend'а, circuit breaker и fallback'и живут
// уровнем выше. HTTPInvoker — production-реализация поверх
// POST {base_url}/{method}.
package invoker
