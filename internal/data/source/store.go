package source

import (
	"context"
	"fmt"
	"runtime"

	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/data/parser"
	"github.com/penwyp/go-station-timeline/internal/data/scanner"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// StoreSource reads a scope's records from the local mock data store.
type StoreSource struct {
	scanner *scanner.FileScanner
	parser  *parser.Parser
}

func NewStoreSource(dir string) *StoreSource {
	return &StoreSource{
		scanner: scanner.NewFileScanner(dir),
		parser:  parser.NewParser(runtime.NumCPU()),
	}
}

func (s *StoreSource) Name() string { return KindStore }

// Scanner exposes the store layout, e.g. for scope discovery.
func (s *StoreSource) Scanner() *scanner.FileScanner { return s.scanner }

// Fetch returns the records of every store file of scope in file order.
// Unreadable files are skipped unless no file could be read.
func (s *StoreSource) Fetch(ctx context.Context, scope string) ([]model.RawRecord, error) {
	files, err := s.scanner.ScanScope(scope)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		util.LogDebugf("No store files for scope %s in %s", scope, s.scanner.BaseDir())
		return []model.RawRecord{}, nil
	}

	byFile := make(map[string][]model.RawRecord, len(files))
	var firstErr error
	failed := 0
	for result := range s.parser.ParseFiles(files) {
		if result.Error != nil {
			failed++
			if firstErr == nil {
				firstErr = result.Error
			}
			util.LogWarnf("Skipping store file %s: %v", result.File, result.Error)
			continue
		}
		byFile[result.File] = result.Records
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == len(files) {
		return nil, fmt.Errorf("read store for scope %s: %w", scope, firstErr)
	}

	records := make([]model.RawRecord, 0)
	for _, file := range files {
		records = append(records, byFile[file]...)
	}
	return records, nil
}
