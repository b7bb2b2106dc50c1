package index

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// Watcher observes a project root for manifest and index-store changes
// and invokes onChange, debounced, so a long-lived caller (the external
// dashboard/server process) can invalidate project discovery and
// trigger a rebuild without polling. Grounded on the teacher's
// indexer.Index.watchLoop (fsnotify.Watcher, Events/Errors select
// loop), with its hand-rolled batching timer replaced by
// github.com/bep/debounce per SPEC_FULL.md's domain-stack wiring.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debounced func(func())
	done      chan struct{}
}

// NewWatcher watches root (non-recursively; manifests and the index
// store both live at or directly under root) and calls onChange no
// more than once per debounceWindow regardless of how many relevant
// events arrive in that span.
func NewWatcher(root string, debounceWindow time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}
	buildDir := filepath.Join(root, ".build", "index", "store")
	_ = fsw.Add(buildDir) // best-effort: may not exist until the first build

	w := &Watcher{
		fsw:       fsw,
		debounced: debounce.New(debounceWindow),
		done:      make(chan struct{}),
	}
	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func()) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if isRelevantChange(ev.Name) {
				w.debounced(onChange)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// isRelevantChange reports whether a fsnotify event path is a project
// manifest, an Xcode project/workspace bundle, or inside the index
// store — the three things that make a discovered root or its index
// stale.
func isRelevantChange(name string) bool {
	base := filepath.Base(name)
	if base == "Package.swift" {
		return true
	}
	if strings.HasSuffix(base, ".xcodeproj") || strings.HasSuffix(base, ".xcworkspace") {
		return true
	}
	return strings.Contains(filepath.ToSlash(name), "/.build/index/store")
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() {
	w.fsw.Close()
	<-w.done
}
