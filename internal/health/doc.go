// Package health — периодический мониторинг здоровья backend'ов.
//
// Monitor по расписанию (фиксированный интервал или cron-выражение)
// конкурентно probe'ит все backend'ы и переводит их между ACTIVE и
// UNHEALTHY в реестре. Circuit breaker'ы живут отдельно: probe может
// проходить при падающих бизнес-вызовах и наоборот.
package health
