package vault

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind classifies a raw filesystem notification for a note.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeFunc receives raw note changes on the watcher goroutine. It must
// be non-blocking; debouncing and settling are the receiver's concern.
type ChangeFunc func(absPath string, kind ChangeKind)

// Watcher monitors the vault directory tree for markdown note changes and
// forwards them to a ChangeFunc.
type Watcher struct {
	parser   *Parser
	watcher  *fsnotify.Watcher
	onChange ChangeFunc
	done     chan struct{}
}

func NewWatcher(parser *Parser, onChange ChangeFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		parser:   parser,
		watcher:  fsw,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start registers the vault tree and begins dispatching events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.parser.Root()); err != nil {
		return err
	}

	go w.processEvents(ctx)

	return nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip inaccessible paths
		}
		if !info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(w.parser.Root(), path)
		if err != nil {
			return nil
		}
		if rel != "." && w.parser.excluded.MatchesPath(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.parser.ShouldProcess(event.Name) {
		// New directories must still be added to the watch set.
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.addRecursive(event.Name); err != nil {
					log.Printf("Warning: failed to watch new directory %s: %v", event.Name, err)
				}
			}
		}
		return
	}

	var kind ChangeKind
	switch {
	case event.Has(fsnotify.Create):
		kind = ChangeCreated
	case event.Has(fsnotify.Write):
		kind = ChangeModified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename looks like a removal at the old path; the new path
		// arrives as its own create event.
		kind = ChangeDeleted
	default:
		return
	}

	w.onChange(event.Name, kind)
}
