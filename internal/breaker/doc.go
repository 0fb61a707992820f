// Package breaker — circuit breaker'ы backend'ов.
//
// Manager ведёт независимый контур на каждый backend: CLOSED → OPEN
// по порогу подряд идущих ошибок, OPEN → HALF_OPEN по тику
// периодического монитора после cooldown, HALF_OPEN → CLOSED или
// обратно в OPEN по исходу единственного пробного вызова.
//
// Guard сам состояние никогда не переводит — только отвечает, можно
// ли вызывать backend. Исходы фиксируются вызывающим через
// OnSuccess/OnFailure; переходы рассылаются Notifier'ам.
package breaker
