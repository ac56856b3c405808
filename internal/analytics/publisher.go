// Package analytics publishes domain events to a Redis channel for
// downstream consumers. Publishing is best effort and never fails the
// request that triggered it.
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

const publishTimeout = 2 * time.Second

// Event is a single analytics record.
type Event struct {
	Name      string            `json:"name"`
	Wallet    string            `json:"wallet,omitempty"`
	TxHash    string            `json:"txHash,omitempty"`
	Value     string            `json:"value,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// Publisher sends events to Redis. A nil Publisher, or one created from an
// empty address, drops every event.
type Publisher struct {
	rdb     *redis.Client
	channel string
	log     *logger.Logger
}

// NewPublisher connects to Redis at addr. An empty addr yields a disabled
// publisher.
func NewPublisher(addr, password, channel string, log *logger.Logger) *Publisher {
	if addr == "" {
		return &Publisher{log: log}
	}
	if channel == "" {
		channel = "likecoin:events"
	}
	return &Publisher{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		channel: channel,
		log:     log,
	}
}

// Publish emits one event. Errors are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.rdb == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).Warn("marshal analytics event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.WithError(err).WithField("event", ev.Name).Warn("publish analytics event")
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
