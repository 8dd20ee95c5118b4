package funnelreferences

import (
	"context"
	"crm/source/schemas"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const FUNNEL_EVENTS_CHANNEL = "funnels:events"

// Notifier reacts to durable reference changes. Notifiers run after the
// change is stored and cannot undo it.
type Notifier interface {
	Notify(ctx context.Context, event schemas.FunnelEvent) error
}

type NotifierFunc func(ctx context.Context, event schemas.FunnelEvent) error

func (f NotifierFunc) Notify(ctx context.Context, event schemas.FunnelEvent) error {
	return f(ctx, event)
}

// Notifiers calls every notifier, even when one of them fails.
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, event schemas.FunnelEvent) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RedisPublisher publishes events as JSON on FUNNEL_EVENTS_CHANNEL for
// collaborators living outside this service.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, channel: FUNNEL_EVENTS_CHANNEL}
}

func (p *RedisPublisher) Notify(ctx context.Context, event schemas.FunnelEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal funnel event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish funnel event: %w", err)
	}
	return nil
}
