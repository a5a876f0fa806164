package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/jsonc"

	"github.com/penwyp/go-station-timeline/internal/core/coerce"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// Supported record file extensions.
const (
	ExtJSON  = ".json"
	ExtJSONC = ".jsonc"
	ExtJSONL = ".jsonl"
)

// IsRecordFile reports whether path has a supported extension.
func IsRecordFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtJSON, ExtJSONC, ExtJSONL:
		return true
	}
	return false
}

type cachedFile struct {
	stamp   util.FileStamp
	records []model.RawRecord
}

// Parser reads raw records from store files. Parsed files are cached and
// reused while their FileStamp is unchanged.
type Parser struct {
	concurrency int
	mu          sync.Mutex
	cache       map[string]cachedFile
}

// ParseResult represents the result of parsing a single file.
type ParseResult struct {
	File    string
	Records []model.RawRecord
	Error   error
}

// NewParser creates a new Parser instance.
func NewParser(concurrency int) *Parser {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Parser{
		concurrency: concurrency,
		cache:       make(map[string]cachedFile),
	}
}

// ParseFile returns the records stored at path. JSON and JSONC files hold
// either a record array or an envelope object; JSONL files hold one record
// per line and undecodable lines are skipped.
func (p *Parser) ParseFile(path string) ([]model.RawRecord, error) {
	stamp, err := util.StatFile(path)
	if err != nil {
		util.LogDebug(fmt.Sprintf("Failed to stat file: %s - %v", path, err))
		return nil, err
	}

	p.mu.Lock()
	if cached, ok := p.cache[path]; ok {
		reason := cached.stamp.StaleReason(stamp)
		if reason == "" {
			p.mu.Unlock()
			return cached.records, nil
		}
		util.LogDebug(fmt.Sprintf("Cache invalid for %s: %s", path, reason))
	}
	p.mu.Unlock()

	util.LogDebug(fmt.Sprintf("Start parsing file: %s", path))

	var records []model.RawRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtJSONL:
		records, err = parseLines(path)
	case ExtJSONC:
		records, err = parseDocument(path, true)
	default:
		records, err = parseDocument(path, false)
	}
	if err != nil {
		util.LogDebug(fmt.Sprintf("Error parsing file: %s - %v", path, err))
		return nil, err
	}

	p.mu.Lock()
	p.cache[path] = cachedFile{stamp: stamp, records: records}
	p.mu.Unlock()

	return records, nil
}

func parseDocument(path string, withComments bool) ([]model.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if withComments {
		data = jsonc.ToJSON(data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.RawRecord{}, nil
	}

	var payload interface{}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return timeline.UnwrapRecords(payload), nil
}

func parseLines(path string) ([]model.RawRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records := make([]model.RawRecord, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lineCount := 0
	for scanner.Scan() {
		lineCount++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var value interface{}
		if err := sonic.Unmarshal(line, &value); err != nil {
			util.LogDebug(fmt.Sprintf("Skip invalid JSON line %s:%d - %v", path, lineCount, err))
			continue
		}
		record, ok := coerce.ToRecord(value)
		if !ok {
			util.LogDebug(fmt.Sprintf("Skip non-object line %s:%d", path, lineCount))
			continue
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Forget drops the cached parse of path.
func (p *Parser) Forget(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, path)
}

// ParseFiles parses multiple files concurrently and returns a channel of ParseResult.
func (p *Parser) ParseFiles(files []string) <-chan ParseResult {
	start := time.Now()
	results := make(chan ParseResult, len(files))
	var wg sync.WaitGroup

	util.LogDebug(fmt.Sprintf("Start concurrent parsing of %d files, concurrency: %d", len(files), p.concurrency))

	semaphore := make(chan struct{}, p.concurrency)

	for _, file := range files {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fileStart := time.Now()
			records, err := p.ParseFile(f)
			if err != nil {
				util.LogDebug(fmt.Sprintf("File parsing failed: %s, duration %v - %v", f, time.Since(fileStart), err))
			}

			results <- ParseResult{
				File:    f,
				Records: records,
				Error:   err,
			}
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
		util.LogDebug(fmt.Sprintf("Concurrent parsing finished, total duration: %v", time.Since(start)))
	}()

	return results
}
