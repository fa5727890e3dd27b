// Package events publishes stock ledger events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nikolayk812/shipstock/internal/domain"
	"github.com/segmentio/kafka-go"
)

var ErrProducerClosed = errors.New("producer is closed")

const defaultWriteTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in memory and writes them from a single goroutine.
// Publish only fails when the event cannot be encoded or the producer is closed.
type Producer struct {
	w            messageWriter
	name         string
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan kafka.Message
	done   chan struct{}
}

type Option func(*Producer)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Producer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(p *Producer) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

func NewProducer(brokers []string, topic, name string, buf int, opts ...Option) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	return newProducer(w, name, buf, opts...)
}

func newProducer(w messageWriter, name string, buf int, opts ...Option) *Producer {
	p := &Producer{
		w:            w,
		name:         name,
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
		inbox:        make(chan kafka.Message, buf),
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start runs the write loop until Close is called or ctx is done.
// Buffered messages are flushed before the writer is closed.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)

		ctxDone := ctx.Done()
		for {
			select {
			case <-ctxDone:
				ctxDone = nil
				// Close waits for blocked publishers, which need this loop to drain
				go p.Close()
			case m, ok := <-p.inbox:
				if !ok {
					if err := p.w.Close(); err != nil {
						p.logger.Error("kafka writer close failed", "method", "Producer.Start", "error", err)
					}
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) Publish(ctx context.Context, event domain.StockEvent) error {
	env, err := NewEnvelope(p.name, event)
	if err != nil {
		return fmt.Errorf("NewEnvelope: %w", err)
	}

	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	msg := kafka.Message{
		Key:   PartitionKey(event.OrderID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrProducerClosed
	}

	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events. It is safe to call more than once.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the write loop has flushed and exited.
func (p *Producer) WaitClosed() { <-p.done }

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.logger.Error("kafka write failed",
			"method", "Producer.write",
			"key", string(m.Key),
			"error", err)
	}
}
