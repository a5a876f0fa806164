package notify

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/go-station-timeline/internal/data/parser"
	"github.com/penwyp/go-station-timeline/internal/data/scanner"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// FileWatcher watches the mock data store and emits a notice for the scope
// owning every changed record file.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	store   *scanner.FileScanner
	events  chan Notice
	done    chan struct{}
	once    sync.Once
}

func NewFileWatcher(store *scanner.FileScanner) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher: watcher,
		store:   store,
		events:  make(chan Notice, 100),
		done:    make(chan struct{}),
	}

	if err := fw.addPath(store.BaseDir()); err != nil {
		watcher.Close()
		return nil, err
	}

	go fw.processEvents()

	return fw, nil
}

func (fw *FileWatcher) Name() string { return "watch" }

func (fw *FileWatcher) addPath(path string) error {
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return fw.watcher.Add(p)
		}
		return nil
	})
}

func (fw *FileWatcher) processEvents() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			util.LogError("File monitoring error: " + err.Error())

		case <-fw.done:
			return
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addPath(event.Name); err != nil {
				util.LogWarnf("Failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if !parser.IsRecordFile(event.Name) {
		return
	}

	scope, ok := fw.store.ScopeForPath(event.Name)
	if !ok {
		return
	}
	util.LogDebugf("Store change %s on %s -> scope %s", event.Op, event.Name, scope)

	select {
	case fw.events <- Notice{Scope: scope, Origin: fw.Name()}:
	case <-fw.done:
	}
}

func (fw *FileWatcher) Events() <-chan Notice {
	return fw.events
}

func (fw *FileWatcher) Close() error {
	var err error
	fw.once.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
	})
	return err
}
