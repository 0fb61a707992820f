// Package domain содержит основные типы данных Dirigent.
//
// Здесь определены:
//   - BackendProfile — профиль возможностей backend'а
//   - WorkflowTemplate, Step — декларативные шаблоны workflow
//   - WorkflowInstance — runtime-состояние одного запуска
//   - Request, Strategy, OrchestrationResult — вход и выход оркестратора
//
// Пакет не зависит от других пакетов проекта и не содержит бизнес-логики —
// только структуры данных и методы их жизненного цикла.
package domain
