// Package events — публикация событий оркестратора в RabbitMQ.
//
// Оркестратор только публикует; потребление очередей — забота внешних
// сборщиков. Publisher реализует breaker.Notifier и отправляет
// переходы контуров в events.circuit. Шина опциональна: без
// AMQP_URL события просто не публикуются.
package events
