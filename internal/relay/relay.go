// Package relay forwards every engine event to Redis pub/sub so other processes
// can follow activities they do not own.
package relay

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"eventwall/internal/config"
	"eventwall/internal/models"

	"github.com/google/logger"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type message struct {
	channel string
	body    []byte
}

// Relay is a bus tap. Handle only queues the encoded event; Run does the network
// writes, so a slow Redis never holds up an activity.
type Relay struct {
	client  publisher
	prefix  string
	ch      chan message
	dropped atomic.Int64
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "relay: ping %s", cfg.Addr)
	}
	return rdb, nil
}

func New(client publisher, prefix string, queue int) *Relay {
	return &Relay{
		client: client,
		prefix: prefix,
		ch:     make(chan message, queue),
	}
}

// Channel names the pub/sub channel carrying activityID's events.
func (r *Relay) Channel(activityID string) string {
	return r.prefix + ":" + activityID
}

// Handle implements bus.Handler.
func (r *Relay) Handle(ev models.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrapf(err, "relay: encode %s event", ev.Type)
	}
	select {
	case r.ch <- message{channel: r.Channel(ev.ActivityID), body: body}:
		return nil
	default:
		r.dropped.Add(1)
		return errors.Errorf("relay: queue full, dropped %s event of %s", ev.Type, ev.ActivityID)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (r *Relay) Dropped() int64 { return r.dropped.Load() }

// Run publishes queued events until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-r.ch:
			if err := r.client.Publish(ctx, m.channel, m.body).Err(); err != nil {
				logger.Warningf("relay: publish to %s: %v", m.channel, err)
			}
		}
	}
}
