package feed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"

	"github.com/nathanyu/matching-engine/internal/outbox"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

const (
	sweepInterval     = 250 * time.Millisecond
	defaultRetryDelay = 500 * time.Millisecond
)

// Broadcaster republishes outbox entries the live path failed to deliver.
type Broadcaster struct {
	store      *outbox.Store
	producer   sarama.SyncProducer
	topic      string
	retryDelay time.Duration
}

// NewBroadcaster connects the retry path to the given brokers. retryDelay
// 0 selects the default; an entry is retried only once its last attempt
// is at least that old.
func NewBroadcaster(store *outbox.Store, brokers []string, topic string, retryDelay time.Duration) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return newBroadcaster(store, producer, topic, retryDelay), nil
}

func newBroadcaster(store *outbox.Store, producer sarama.SyncProducer, topic string, retryDelay time.Duration) *Broadcaster {
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Broadcaster{
		store:      store,
		producer:   producer,
		topic:      topic,
		retryDelay: retryDelay,
	}
}

// Start launches the sweep loop until the context ends.
func (b *Broadcaster) Start(ctx context.Context) {
	log.Println("[feed] broadcaster started")
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("[feed] broadcaster stopped")
				return
			case <-ticker.C:
				b.sweep()
			}
		}
	}()
}

// sweep republishes every pending entry that is due for a retry.
func (b *Broadcaster) sweep() {
	now := time.Now().UnixNano()
	err := b.store.ScanByState(outbox.StatePending, func(seq uint64, e outbox.Entry) error {
		if e.LastAttempt != 0 && now-e.LastAttempt < b.retryDelay.Nanoseconds() {
			return nil
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(symbolOf(e.Payload)),
			Value: sarama.ByteEncoder(e.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			telemetry.FeedPublishes.WithLabelValues("retry", "error").Inc()
			res, merr := b.store.MarkFailed(seq)
			if merr != nil {
				log.Printf("[feed] ERROR: outbox mark failed %d: %v", seq, merr)
			} else if res.State == outbox.StateFailed {
				log.Printf("[feed] WARN: event %d parked as failed after %d attempts: %v", seq, res.Attempts, err)
			}
			return nil
		}
		telemetry.FeedPublishes.WithLabelValues("retry", "ok").Inc()
		if _, err := b.store.MarkSent(seq); err != nil {
			log.Printf("[feed] ERROR: outbox mark sent %d: %v", seq, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("[feed] ERROR: outbox scan: %v", err)
	}
}

// Close releases the producer.
func (b *Broadcaster) Close() error {
	return b.producer.Close()
}

// symbolOf pulls the partition key out of a stored trade event payload.
func symbolOf(payload []byte) string {
	var meta struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(payload, &meta); err != nil || meta.Symbol == "" {
		return "unknown"
	}
	return meta.Symbol
}
