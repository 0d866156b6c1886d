// Package feed publishes trade events to Kafka with at-least-once
// delivery. The live path records every event in the outbox before the
// first publish attempt; a broadcaster job sweeps whatever the live path
// could not deliver.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/outbox"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// messageWriter is the slice of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is the live path: outbox first, then a synchronous produce.
type Publisher struct {
	store  *outbox.Store
	writer messageWriter
}

// NewPublisher connects the live path to the given brokers.
func NewPublisher(store *outbox.Store, brokers []string, topic string) *Publisher {
	return &Publisher{
		store: store,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Run consumes trade events until the context ends. It is the consumer
// side of a channel registered with the sequencer.
func (p *Publisher) Run(ctx context.Context, events <-chan domain.TradeEvent) {
	log.Println("[feed] publisher started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[feed] publisher stopped")
			return
		case ev := <-events:
			p.publish(ctx, ev)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev domain.TradeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[feed] ERROR: encode event %d: %v", ev.Seq, err)
		return
	}
	if err := p.store.Put(ev.Seq, payload); err != nil {
		log.Printf("[feed] ERROR: outbox put %d: %v", ev.Seq, err)
		return
	}

	msg := kafka.Message{Key: []byte(ev.Symbol), Value: payload}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		// Still pending; the broadcaster retries it.
		log.Printf("[feed] WARN: live publish %d failed: %v", ev.Seq, err)
		telemetry.FeedPublishes.WithLabelValues("live", "error").Inc()
		if _, err := p.store.MarkFailed(ev.Seq); err != nil {
			log.Printf("[feed] ERROR: outbox mark failed %d: %v", ev.Seq, err)
		}
		return
	}
	telemetry.FeedPublishes.WithLabelValues("live", "ok").Inc()
	if _, err := p.store.MarkSent(ev.Seq); err != nil {
		log.Printf("[feed] ERROR: outbox mark sent %d: %v", ev.Seq, err)
	}
}

// Close releases the Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
