// Package orchestrator — входная точка выполнения запросов.
//
// Orchestrator разрешает форму запроса в одну из стратегий:
// SINGLE (один вызов через scorer), WORKFLOW (делегирование движку
// шаблонов), PARALLEL (fan-out задач) и PIPELINE (строгая цепочка
// стадий). Терминальные исходы уходят в метрики и опциональный
// audit trail.
package orchestrator
