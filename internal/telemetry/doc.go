// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — счётчики оркестрации + Prometheus метрики
//
// Все компоненты используют единый формат логирования,
// сервисный бинарник экспортирует метрики на /metrics endpoint.
package telemetry
