package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/data/scanner"
)

// NewFromConfig starts every configured push notifier. The fallback poller
// is not included. On error the notifiers already started are closed.
func NewFromConfig(ctx context.Context, cfg *config.Config) ([]Notifier, error) {
	var notifiers []Notifier
	fail := func(err error) ([]Notifier, error) {
		CloseAll(notifiers)
		return nil, err
	}

	if cfg.Notifiers.Watch.Enabled {
		if cfg.Sources.Store.Dir == "" {
			return fail(errors.New("notifiers.watch requires sources.store.dir"))
		}
		fw, err := NewFileWatcher(scanner.NewFileScanner(cfg.Sources.Store.Dir))
		if err != nil {
			return fail(fmt.Errorf("failed to create file watcher: %w", err))
		}
		notifiers = append(notifiers, fw)
	}

	if len(cfg.Notifiers.Kafka.Brokers) > 0 {
		k, err := NewKafkaNotifier(ctx, cfg.Notifiers.Kafka)
		if err != nil {
			return fail(err)
		}
		notifiers = append(notifiers, k)
	}

	if cfg.Notifiers.Redis.Addr != "" {
		r, err := NewRedisNotifier(ctx, cfg.Notifiers.Redis)
		if err != nil {
			return fail(err)
		}
		notifiers = append(notifiers, r)
	}

	return notifiers, nil
}

// CloseAll closes notifiers and joins their errors.
func CloseAll(notifiers []Notifier) error {
	var errs []error
	for _, n := range notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
