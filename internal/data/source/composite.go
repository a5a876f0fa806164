package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// Composite fetches from several sources concurrently. Fetch concatenates
// their records in member order and FetchEach keeps them apart. Both fail
// only when every member fails.
type Composite struct {
	sources []Source
}

func NewComposite(sources ...Source) *Composite {
	return &Composite{sources: sources}
}

func (c *Composite) Name() string {
	names := make([]string, 0, len(c.sources))
	for _, s := range c.sources {
		names = append(names, s.Name())
	}
	return "composite(" + strings.Join(names, ",") + ")"
}

func (c *Composite) Fetch(ctx context.Context, scope string) ([]model.RawRecord, error) {
	parts, err := c.FetchEach(ctx, scope)
	if err != nil {
		return nil, err
	}
	records := make([]model.RawRecord, 0)
	for _, part := range parts {
		records = append(records, part...)
	}
	return records, nil
}

// FetchEach returns the records of every member that succeeded, one list per
// member in member order.
func (c *Composite) FetchEach(ctx context.Context, scope string) ([][]model.RawRecord, error) {
	if len(c.sources) == 0 {
		return [][]model.RawRecord{}, nil
	}

	results := make([][]model.RawRecord, len(c.sources))
	errs := make([]error, len(c.sources))

	var wg sync.WaitGroup
	for i, s := range c.sources {
		wg.Add(1)
		go func(i int, s Source) {
			defer wg.Done()
			records, err := s.Fetch(ctx, scope)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return
			}
			results[i] = records
		}(i, s)
	}
	wg.Wait()

	var failed []error
	parts := make([][]model.RawRecord, 0, len(c.sources))
	for i := range c.sources {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		parts = append(parts, results[i])
	}

	if len(failed) == len(c.sources) {
		return nil, errors.Join(failed...)
	}
	if len(failed) > 0 {
		util.Named("source").Warn("Partial fetch failure",
			util.F("scope", scope), util.F("failed", len(failed)), util.F("error", errors.Join(failed...).Error()))
	}
	return parts, nil
}

// Close closes every member that holds resources.
func (c *Composite) Close() {
	closeAll(c.sources)
}
