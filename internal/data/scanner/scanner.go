package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/penwyp/go-station-timeline/internal/data/parser"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// ScopeFileSuffix names a scope's top-level store file:
// <dir>/<scope>-timeline.{json,jsonc,jsonl}.
const ScopeFileSuffix = "-timeline"

// FileScanner locates record files in a mock data store directory.
type FileScanner struct {
	baseDir string
}

// NewFileScanner creates a new FileScanner instance
func NewFileScanner(baseDir string) *FileScanner {
	return &FileScanner{baseDir: baseDir}
}

// BaseDir returns the store directory.
func (s *FileScanner) BaseDir() string {
	return s.baseDir
}

// Scan walks the store and returns every record file path.
func (s *FileScanner) Scan() ([]string, error) {
	return s.walk(s.baseDir)
}

// ScanScope returns the record files belonging to scope, sorted: the
// top-level <scope>-timeline file(s) and everything under <dir>/<scope>/.
func (s *FileScanner) ScanScope(scope string) ([]string, error) {
	if scope == "" || strings.ContainsAny(scope, `/\`) || scope == "." || scope == ".." {
		return nil, fmt.Errorf("invalid scope %q", scope)
	}

	var files []string
	for _, ext := range []string{parser.ExtJSON, parser.ExtJSONC, parser.ExtJSONL} {
		path := filepath.Join(s.baseDir, scope+ScopeFileSuffix+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			files = append(files, path)
		}
	}

	nested, err := s.walk(filepath.Join(s.baseDir, scope))
	if err != nil {
		return nil, err
	}
	files = append(files, nested...)
	sort.Strings(files)
	return files, nil
}

// Scopes lists the scopes that have at least one record file, sorted.
func (s *FileScanner) Scopes() ([]string, error) {
	files, err := s.Scan()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, file := range files {
		if scope, ok := s.ScopeForPath(file); ok {
			seen[scope] = struct{}{}
		}
	}

	scopes := make([]string, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// ScopeForPath maps a path inside the store back to its scope. Paths outside
// the store, and top-level files not named <scope>-timeline.*, have none.
func (s *FileScanner) ScopeForPath(path string) (string, bool) {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	first, rest, nested := strings.Cut(filepath.ToSlash(rel), "/")
	if nested {
		return first, rest != ""
	}

	name := strings.TrimSuffix(first, filepath.Ext(first))
	scope, ok := strings.CutSuffix(name, ScopeFileSuffix)
	if !ok || scope == "" {
		return "", false
	}
	return scope, true
}

func (s *FileScanner) walk(root string) ([]string, error) {
	start := time.Now()
	var files []string
	dirCount := 0
	totalCount := 0

	util.LogDebug(fmt.Sprintf("Start scanning directory: %s", root))

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			util.LogDebug(fmt.Sprintf("Skip file (error): %s - %v", path, err))
			return nil
		}

		if info.IsDir() {
			dirCount++
			return nil
		}

		totalCount++
		if parser.IsRecordFile(path) {
			files = append(files, path)
		}
		return nil
	})

	util.LogDebug(fmt.Sprintf("File scan completed: duration %v, scanned %d directories, %d files, found %d record files",
		time.Since(start), dirCount, totalCount, len(files)))

	return files, err
}
