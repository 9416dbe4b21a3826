// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package syncbridge

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/metrics"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// AMQPBus connects to a RabbitMQ broker and declares a durable topic
// exchange with an exclusive, auto-deleted queue bound to the requested
// routing keys. Each Subscriber it hands out owns one channel and
// reconnects transparently on connection loss.
type AMQPBus struct {
	url    string
	logger zerolog.Logger
}

// NewAMQPBus constructs a Bus dialing the given AMQP URL on Connect.
func NewAMQPBus(url string) *AMQPBus {
	return &AMQPBus{url: url, logger: applog.WithComponent("syncbridge.bus")}
}

// Ping dials the broker briefly to confirm it is reachable, independent
// of any active Subscriber. Used by the readiness checker; it does not
// reuse Connect's long-lived connection since that one is owned by the
// Bridge's reconnect loop.
func (b *AMQPBus) Ping(ctx context.Context) error {
	conn, err := amqp.DialConfig(b.url, amqp.Config{})
	if err != nil {
		return fmt.Errorf("syncbridge: ping dial failed: %w", err)
	}
	return conn.Close()
}

func (b *AMQPBus) Connect(ctx context.Context, exchange string, routingKeys []string) (Subscriber, error) {
	sub := &amqpSubscriber{
		url:         b.url,
		exchange:    exchange,
		routingKeys: routingKeys,
		logger:      b.logger,
		out:         make(chan Delivery, 64),
		done:        make(chan struct{}),
	}
	if err := sub.dial(ctx); err != nil {
		return nil, err
	}
	go sub.run(ctx)
	return sub, nil
}

type amqpSubscriber struct {
	url         string
	exchange    string
	routingKeys []string
	logger      zerolog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	out  chan Delivery
	done chan struct{}

	closeOnce sync.Once
}

func (s *amqpSubscriber) Deliveries() <-chan Delivery { return s.out }

func (s *amqpSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.channel != nil {
			_ = s.channel.Close()
		}
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.mu.Unlock()
	})
	return err
}

// dial establishes the connection, channel, exchange, and exclusive
// queue bound to every requested routing key.
func (s *amqpSubscriber) dial(ctx context.Context) error {
	conn, err := amqp.DialConfig(s.url, amqp.Config{})
	if err != nil {
		return fmt.Errorf("syncbridge: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("syncbridge: channel open failed: %w", err)
	}

	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("syncbridge: exchange declare failed: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("syncbridge: queue declare failed: %w", err)
	}

	for _, rk := range s.routingKeys {
		if err := ch.QueueBind(q.Name, rk, s.exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("syncbridge: queue bind %q failed: %w", rk, err)
		}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("syncbridge: consume failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.channel = ch
	s.mu.Unlock()

	go s.pump(deliveries)
	return nil
}

func (s *amqpSubscriber) pump(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		select {
		case s.out <- Delivery{RoutingKey: d.RoutingKey, Body: d.Body}:
			metrics.IncBusMessage("delivered")
		case <-s.done:
			return
		}
	}
	// Channel closed: connection was lost. run() will notice via
	// NotifyClose and trigger a reconnect.
}

// run watches the connection for unexpected closure and reconnects with
// exponential backoff capped at maxBackoff, jittered.
func (s *amqpSubscriber) run(ctx context.Context) {
	backoff := minBackoff
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		closeErr := make(chan *amqp.Error, 1)
		conn.NotifyClose(closeErr)

		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case err := <-closeErr:
			if err != nil {
				s.logger.Warn().Err(err).Msg("bus connection closed, reconnecting")
			}
			metrics.IncBusMessage("connection_lost")
		}

		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		for {
			jittered := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(jittered):
			}

			if err := s.dial(ctx); err != nil {
				s.logger.Warn().Err(err).Dur("backoff", jittered).Msg("reconnect attempt failed")
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			metrics.IncBusReconnect()
			backoff = minBackoff
			break
		}
	}
}
