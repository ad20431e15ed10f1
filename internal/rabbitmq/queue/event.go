package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/model"
)

const (
	ExchangeName   = "echo-events-exchange"
	MainQueueName  = "echo-events"
	RetryQueueName = "echo-events-retry"
	DLQName        = "echo-events-dlq"
	RoutingKey     = "echo-event"
)

// EventMessage is one dispatched platform event together with the users it
// targets. Target user snapshots travel inline so the consumer does not need
// access to the platform's user store.
type EventMessage struct {
	ID        uuid.UUID    `json:"id"`
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	AgentID   int64        `json:"agent_id"`
	Extra     string       `json:"extra"`
	BundleKey string       `json:"bundle_key"`
	Timestamp time.Time    `json:"timestamp"`
	Targets   []model.User `json:"targets"`
}

// EventQueue publishes and consumes event dispatch messages.
type EventQueue struct {
	Publisher *rabbitmq.Publisher
	Consumer  *rabbitmq.Consumer
}

// NewEventQueue declares the exchange and the main/retry/DLQ queues.
func NewEventQueue(ch *rabbitmq.Channel) (*EventQueue, error) {
	exchange := rabbitmq.NewExchange(ExchangeName, "direct")
	if err := exchange.BindToChannel(ch); err != nil {
		return nil, fmt.Errorf("failed to bind to exchange: %w", err)
	}

	qm := rabbitmq.NewQueueManager(ch)

	_, err := qm.DeclareQueue(DLQName, rabbitmq.QueueConfig{Durable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	retryArgs := map[string]interface{}{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": MainQueueName,
		"x-message-ttl":             int32(5000),
	}

	_, err = qm.DeclareQueue(RetryQueueName, rabbitmq.QueueConfig{
		Durable: true,
		Args:    retryArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare retry queue: %w", err)
	}

	mainArgs := map[string]interface{}{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DLQName,
	}

	mainQ, err := qm.DeclareQueue(MainQueueName, rabbitmq.QueueConfig{
		Durable: true,
		Args:    mainArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare main queue: %w", err)
	}

	if err := ch.QueueBind(mainQ.Name, RoutingKey, exchange.Name(), false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind the exchange to the main queue: %w", err)
	}

	pub := rabbitmq.NewPublisher(ch, exchange.Name())
	cons := rabbitmq.NewConsumer(ch, rabbitmq.NewConsumerConfig(mainQ.Name))

	return &EventQueue{Publisher: pub, Consumer: cons}, nil
}

// Publish enqueues one event dispatch message.
func (q *EventQueue) Publish(msg EventMessage, strategy retry.Strategy) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.Publisher.PublishWithRetry(body, RoutingKey, "application/json", strategy)
}

// Consume forwards decoded dispatch messages to out.
func (q *EventQueue) Consume(out chan<- EventMessage, strategy retry.Strategy) error {
	msgChan := make(chan []byte)

	go func() {
		for m := range msgChan {
			var msg EventMessage
			if err := json.Unmarshal(m, &msg); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to unmarshal message")
				continue
			}

			out <- msg
		}
	}()

	return q.Consumer.ConsumeWithRetry(msgChan, strategy)
}
