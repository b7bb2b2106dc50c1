// Package batch implements §4.F: parallel fan-out of one analyzer
// operation across many file paths, grouped by discovered project root
// so each group shares a single server session, each group bounded by
// its own weighted semaphore so no more than W operations run
// concurrently per project root.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"swiftlens/internal/swifterr"
)

// Result pairs one input path with its outcome; Err carries a
// swifterr.Error so callers can switch on kind without a type
// assertion.
type Result struct {
	Path  string
	Value any
	Err   error
}

// Op is one analyzer operation, e.g. Analyzer.AnalyzeFileSymbols bound
// to its context.
type Op func(ctx context.Context, path string) (any, error)

// GroupKeyFunc returns the grouping key (typically a discovered
// project root's path) for one input path. A nil GroupKeyFunc puts
// every path in a single group.
type GroupKeyFunc func(path string) string

// DefaultWorkers mirrors spec.md §4.F: min(8, n), overridable by
// configuration.
func DefaultWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

// AnalyzeMany runs op across every path in paths, grouped by groupKey
// so each group's operations can share the analyzer's per-root server
// session; within a group at most workers calls run concurrently.
// Results preserve input order. One path's failure never aborts the
// batch (§8 property 11); cancelling ctx stops launching new work and
// lets already-completed results stand.
func AnalyzeMany(ctx context.Context, paths []string, workers int, groupKey GroupKeyFunc, op Op) []Result {
	if workers < 1 {
		workers = DefaultWorkers(len(paths))
	}
	if groupKey == nil {
		groupKey = func(string) string { return "" }
	}

	results := make([]Result, len(paths))
	sems := make(map[string]*semaphore.Weighted)
	var semsMu sync.Mutex
	semFor := func(key string) *semaphore.Weighted {
		semsMu.Lock()
		defer semsMu.Unlock()
		s, ok := sems[key]
		if !ok {
			s = semaphore.NewWeighted(int64(workers))
			sems[key] = s
		}
		return s
	}

	var wg sync.WaitGroup
	for i, p := range paths {
		i, p := i, p
		sem := semFor(groupKey(p))
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(paths); j++ {
				results[j] = Result{Path: paths[j], Err: swifterr.Wrap(swifterr.Timeout, err, "batch cancelled before %s ran", paths[j])}
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			value, err := op(ctx, p)
			results[i] = Result{Path: p, Value: value, Err: err}
		}()
	}
	wg.Wait()
	return results
}
