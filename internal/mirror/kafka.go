// Package mirror republishes broker events to Kafka. It is an optional,
// fire-and-forget egress: mirror failures are logged and never affect
// client-facing delivery.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/relaykit/relay/internal/broker"
)

// Mirror writes every published broker event to Kafka, one Kafka topic per
// broker topic (prefixed). Events are handed off through a buffered channel
// so the publish path never blocks on Kafka I/O.
type Mirror struct {
	writer *kafka.Writer
	prefix string

	mu     sync.Mutex
	closed bool

	events chan broker.Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Mirror producing to the given brokers. Call Attach to hook
// it into a registry and Close to flush and stop it.
func New(brokers []string, prefix string) (*Mirror, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker address is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		prefix: prefix,
		events: make(chan broker.Event, 1024),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go m.run()
	return m, nil
}

// Attach registers the mirror on the registry's publish hook.
func (m *Mirror) Attach(reg *broker.Registry) {
	reg.OnPublish(func(ev broker.Event) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return
		}
		select {
		case m.events <- ev:
		default:
			log.Printf("mirror: buffer full, dropped event for topic %q", ev.Topic)
		}
	})
}

func (m *Mirror) run() {
	defer close(m.done)

	for ev := range m.events {
		value, err := json.Marshal(ev)
		if err != nil {
			log.Printf("mirror: marshal event: %v", err)
			continue
		}
		msg := kafka.Message{
			Topic: m.prefix + ev.Topic,
			Key:   []byte(ev.Message.ID),
			Value: value,
		}
		if err := m.writer.WriteMessages(m.ctx, msg); err != nil {
			if m.ctx.Err() != nil {
				return
			}
			log.Printf("mirror: write to kafka: %v", err)
		}
	}
}

// Close stops accepting events, flushes the writer, and releases resources.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.events)
	m.mu.Unlock()

	<-m.done
	m.cancel()
	return m.writer.Close()
}
