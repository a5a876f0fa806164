// Package source retrieves raw timeline records for a scope from the
// configured upstream systems.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/core/model"
)

// Source kinds accepted by New.
const (
	KindStore    = "store"
	KindHTTP     = "http"
	KindPostgres = "postgres"
)

// ErrUnknownSource is returned by New for an unsupported kind.
var ErrUnknownSource = errors.New("unknown source")

// ErrNoSources is returned by NewFromConfig when nothing is configured.
var ErrNoSources = errors.New("no sources configured")

// Source returns the raw records currently available for a scope. Timeouts
// and retries are the source's own concern; the caller sees one outcome.
type Source interface {
	Name() string
	Fetch(ctx context.Context, scope string) ([]model.RawRecord, error)
}

// New builds a single source of the given kind.
func New(ctx context.Context, kind string, c config.Sources) (Source, error) {
	switch kind {
	case KindStore:
		return NewStoreSource(c.Store.Dir), nil
	case KindHTTP:
		return NewHTTPSource(c.HTTP), nil
	case KindPostgres:
		return NewPostgresSource(ctx, c.Postgres)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, kind)
	}
}

// NewFromConfig builds every configured source. More than one is wrapped in
// a Composite.
func NewFromConfig(ctx context.Context, c config.Sources) (Source, error) {
	var kinds []string
	if c.Store.Dir != "" {
		kinds = append(kinds, KindStore)
	}
	if c.HTTP.BaseURL != "" {
		kinds = append(kinds, KindHTTP)
	}
	if c.Postgres.DSN != "" {
		kinds = append(kinds, KindPostgres)
	}
	if len(kinds) == 0 {
		return nil, ErrNoSources
	}

	sources := make([]Source, 0, len(kinds))
	for _, kind := range kinds {
		s, err := New(ctx, kind, c)
		if err != nil {
			closeAll(sources)
			return nil, fmt.Errorf("%s source: %w", kind, err)
		}
		sources = append(sources, s)
	}

	if len(sources) == 1 {
		return sources[0], nil
	}
	return NewComposite(sources...), nil
}

// Close releases resources held by s if it has any.
func Close(s Source) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
	}
}

func closeAll(sources []Source) {
	for _, s := range sources {
		Close(s)
	}
}
