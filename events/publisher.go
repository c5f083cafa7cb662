// events/publisher.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/settlement"
)

const publishTimeout = 5 * time.Second

// AMQPPublisher pushes settlement events to a topic exchange. It is a
// best-effort sink: settlement already committed by the time we get
// here, so a broker outage is logged and swallowed by the caller.
type AMQPPublisher struct {
	url      string
	exchange string

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:      url,
		exchange: exchange,
	}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	logger.Log.Infof("connected to RabbitMQ, exchange %s", p.exchange)
	return nil
}

// PublishSettled sends one settlement event. Routing key encodes the
// terminal status so consumers can bind to e.g. game.settled.expired.
func (p *AMQPPublisher) PublishSettled(ctx context.Context, ev settlement.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()

	if channel == nil || channel.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
		p.mu.Lock()
		channel = p.channel
		p.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	routingKey := fmt.Sprintf("game.settled.%s", ev.Status)
	return channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.SettledAt,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	logger.Log.Info("publisher closed")
}

// NopPublisher drops every event. Used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishSettled(ctx context.Context, ev settlement.Event) error {
	return nil
}
