// Package project implements §4.C: walking a file's ancestor directories
// to find the nearest recognized project root, classifying it as a
// Swift package, an Xcode project, or an Xcode workspace.
package project

import (
	"os"
	"path/filepath"
	"sync"
)

// Kind classifies what was found at a ProjectRoot.
type Kind string

const (
	KindPackage        Kind = "package"
	KindXcodeWorkspace Kind = "xcode-workspace"
	KindXcodeProject   Kind = "xcode-project"
	KindNone           Kind = "none"
)

// Root is immutable after construction, matching spec.md §3.
type Root struct {
	Path           string
	Kind           Kind
	DiscoveredFrom string
}

// Discoverer memoizes discovery results per absolute input path within a
// session, per spec.md §4.C.
type Discoverer struct {
	mu    sync.RWMutex
	cache map[string]Root
}

func NewDiscoverer() *Discoverer {
	return &Discoverer{cache: make(map[string]Root)}
}

// Discover walks ancestors of the directory containing filePath (or
// filePath itself if it is already a directory) until the filesystem
// root, returning the first match by precedence: package manifest,
// then Xcode workspace, then Xcode project, else none. Symlinks are
// resolved before comparison.
func (d *Discoverer) Discover(filePath string) (Root, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return Root{}, err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// File may not exist yet (e.g. a path being validated); fall
		// back to the lexical absolute path.
		real = abs
	}

	d.mu.RLock()
	if cached, ok := d.cache[real]; ok {
		d.mu.RUnlock()
		return cached, nil
	}
	d.mu.RUnlock()

	start := real
	if info, err := os.Stat(real); err == nil && !info.IsDir() {
		start = filepath.Dir(real)
	}

	root := classifyAncestors(start)
	root.DiscoveredFrom = filePath

	d.mu.Lock()
	d.cache[real] = root
	d.mu.Unlock()
	return root, nil
}

// Invalidate drops the memoized entry for filePath, used after an
// fsnotify event touches a manifest/workspace/project file so the next
// Discover call re-walks the filesystem.
func (d *Discoverer) Invalidate(filePath string) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		real = abs
	}
	d.mu.Lock()
	delete(d.cache, real)
	d.mu.Unlock()
}

func classifyAncestors(origin string) Root {
	dir := origin
	for {
		if hasFile(dir, "Package.swift") {
			return Root{Path: dir, Kind: KindPackage}
		}
		if hasGlobMatch(dir, "*.xcworkspace") {
			return Root{Path: dir, Kind: KindXcodeWorkspace}
		}
		if hasGlobMatch(dir, "*.xcodeproj") {
			return Root{Path: dir, Kind: KindXcodeProject}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return Root{Path: origin, Kind: KindNone}
}

func hasFile(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}

func hasGlobMatch(dir, pattern string) bool {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	return err == nil && len(matches) > 0
}
