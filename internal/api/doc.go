// Package api — HTTP API оркестратора.
//
// Тонкий слой над orchestrator/engine/registry: декодирование запросов,
// отображение ошибок в HTTP статусы, единый формат ответов.
package api
