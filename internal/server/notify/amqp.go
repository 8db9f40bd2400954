package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/lfras/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPDispatcher hands messages to a durable queue; a mail worker outside
// this service drains it. Publishing counts as delivery.
type AMQPDispatcher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	queue    string
	declared bool
	logger   logging.Logger
}

func NewAMQPDispatcher(url, queue string, l logging.Logger) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return &AMQPDispatcher{conn: conn, channel: ch, queue: queue, logger: l.With("module", "notify_amqp")}, nil
}

func (d *AMQPDispatcher) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.declared {
		if _, err := d.channel.QueueDeclare(d.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		d.declared = true
	}

	err = d.channel.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	d.logger.Debug(ctx, "notification queued", "to", m.To, "queue", d.queue, "size", len(body))
	return nil
}

func (d *AMQPDispatcher) Close() error {
	if d.channel != nil {
		_ = d.channel.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
