// Package config loads the server configuration from the environment.
// Unset variables fall back to defaults; unparseable values are logged
// and fall back too.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr  string
	MetricsAddr string
	Symbol      string

	JournalDir          string
	JournalSegmentBytes int64
	JournalSync         bool

	OutboxDir    string
	KafkaBrokers []string
	KafkaTopic   string

	// EventBuffer sizes the per-consumer event channels; CommandBuffer
	// sizes the sequencer command queue.
	EventBuffer   int
	CommandBuffer int

	ShutdownTimeout time.Duration
}

func Load() *Config {
	return &Config{
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:         getEnv("METRICS_ADDR", ":9100"),
		Symbol:              getEnv("SYMBOL", "AAPL"),
		JournalDir:          getEnv("JOURNAL_DIR", "data/journal"),
		JournalSegmentBytes: parseIntEnv("JOURNAL_SEGMENT_BYTES", 16<<20),
		JournalSync:         parseBoolEnv("JOURNAL_SYNC", false),
		OutboxDir:           getEnv("OUTBOX_DIR", "data/outbox"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "trades"),
		EventBuffer:         int(parseIntEnv("EVENT_BUFFER", 1024)),
		CommandBuffer:       int(parseIntEnv("COMMAND_BUFFER", 4096)),
		ShutdownTimeout:     parseDurationEnv("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

// FeedEnabled reports whether the Kafka trade feed should run. No
// brokers means the feed and the outbox stay off.
func (c *Config) FeedEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("[config] invalid %s value %s: %v, falling back to %d", key, value, err, defaultValue)
		return defaultValue
	}
	return parsed
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("[config] invalid %s value %s: %v, falling back to %t", key, value, err, defaultValue)
		return defaultValue
	}
	return parsed
}

func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[config] invalid %s value %s: %v, falling back to %s", key, value, err, defaultValue)
		return defaultValue
	}
	return parsed
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
