package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Dirigent/internal/breaker"
)

// EventType — тип события.
type EventType string

// Типы событий.
const (
	EventTypeCircuitTransition EventType = "circuit.transition"
)

// Event — конверт публикуемого события.
type Event struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует события оркестратора в RabbitMQ.
//
// Реализует breaker.Notifier: переходы контуров уходят в очередь
// events.circuit. Публикация best-effort — ошибка логируется,
// на выполнение запросов не влияет.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// CircuitTransition реализует breaker.Notifier.
//
// Вызывается синхронно из Manager'а, поэтому сама публикация уходит
// в отдельную горутину — медленный брокер не задерживает обработку.
func (p *Publisher) CircuitTransition(t breaker.Transition) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.PublishCircuitTransition(ctx, t); err != nil {
			p.logger.Warn("publish circuit transition failed",
				"backend_id", t.Backend, "error", err)
		}
	}()
}

// PublishCircuitTransition публикует переход контура.
func (p *Publisher) PublishCircuitTransition(ctx context.Context, t breaker.Transition) error {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeCircuitTransition,
		Payload:   t,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, ExchangeEvents, RoutingKeyCircuit, event)
}

// publish сериализует и отправляет событие.
func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    event.ID,
				Timestamp:    event.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published event",
			"exchange", exchange,
			"routing_key", routingKey,
			"event_id", event.ID,
			"type", event.Type,
		)

		return nil
	})
}
