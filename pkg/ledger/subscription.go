package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/redis/go-redis/v9"
)

// subscriptionBuffer is the capacity of the events and errors channels.
const subscriptionBuffer = 10

// Subscription represents an active Pub/Sub subscription to canvas events.
// Caller must call Close() when done to clean up resources.
type Subscription[T any] struct {
	events <-chan *T
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of decoded events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription[T]) Events() <-chan *T {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *Subscription[T]) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription[T]) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribePixelEvents subscribes to PixelChanged events for this instance.
// Context cancellation also stops the subscription.
//
// Delivery is at-most-once: a subscriber that falls behind loses events.
func (c *Client) SubscribePixelEvents(ctx context.Context) (*Subscription[canvas.PixelChanged], error) {
	return subscribe[canvas.PixelChanged](ctx, c.rdb, PixelEventsChannel(c.instanceName), "pixel")
}

// SubscribeShardEvents subscribes to ShardInitialized events for this instance.
func (c *Client) SubscribeShardEvents(ctx context.Context) (*Subscription[canvas.ShardInitialized], error) {
	return subscribe[canvas.ShardInitialized](ctx, c.rdb, ShardEventsChannel(c.instanceName), "shard")
}

func subscribe[T any](ctx context.Context, rdb *redis.Client, channel, label string) (*Subscription[T], error) {
	pubsub := rdb.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so no event published after
	// return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	eventsChan := make(chan *T, subscriptionBuffer)
	errorsChan := make(chan error, subscriptionBuffer)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev T
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal %s event: %w", label, err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription[T]{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
