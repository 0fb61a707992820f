package events

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Топология событийной шины.
const (
	// ExchangeEvents — обменник событий оркестратора.
	ExchangeEvents Exchange = "dirigent.events"

	// QueueCircuitEvents — очередь переходов circuit breaker'ов.
	// Потребитель — внешний сборщик наблюдаемости.
	QueueCircuitEvents Queue = "events.circuit"

	// RoutingKeyCircuit — ключ маршрутизации переходов контуров.
	RoutingKeyCircuit RoutingKey = "circuit"
)

// SetupTopology создаёт обменник и очередь событий.
// Идемпотентно: повторное объявление той же топологии безопасно.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeEvents), // name
			"direct",               // type
			true,                   // durable
			false,                  // auto-deleted
			false,                  // internal
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueCircuitEvents), // name
			true,                       // durable
			false,                      // delete when unused
			false,                      // exclusive
			false,                      // no-wait
			nil,                        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueCircuitEvents, err)
		}

		err = ch.QueueBind(
			string(QueueCircuitEvents),
			string(RoutingKeyCircuit),
			string(ExchangeEvents),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueCircuitEvents, ExchangeEvents, err)
		}

		return nil
	})
}
