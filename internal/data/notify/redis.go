package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// RedisNotifier subscribes to a pub/sub channel. A message body is a scope,
// or a JSON object carrying one under "scope".
type RedisNotifier struct {
	client *redis.Client
	pubsub *redis.PubSub
	events chan Notice
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRedisNotifier subscribes and waits for the subscription to be
// confirmed.
func NewRedisNotifier(ctx context.Context, cfg config.RedisNotifier) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pubsub := client.Subscribe(ctx, cfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Channel, err)
	}

	r := &RedisNotifier{
		client: client,
		pubsub: pubsub,
		events: make(chan Notice, 100),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.forward(pubsub.Channel())

	util.LogInfof("Redis notifier subscribed to %s on %s", cfg.Channel, cfg.Addr)
	return r, nil
}

func (r *RedisNotifier) forward(messages <-chan *redis.Message) {
	defer r.wg.Done()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			notice := Notice{Scope: scopeFromPayload([]byte(msg.Payload), ""), Origin: r.Name()}
			select {
			case r.events <- notice:
			case <-r.done:
				return
			}
		case <-r.done:
			return
		}
	}
}

func (r *RedisNotifier) Name() string { return "redis" }

func (r *RedisNotifier) Events() <-chan Notice { return r.events }

func (r *RedisNotifier) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.pubsub.Close()
		if cerr := r.client.Close(); err == nil {
			err = cerr
		}
		r.wg.Wait()
	})
	return err
}
