package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"swiftlens/internal/swifterr"
)

func TestAnalyzeManyPreservesOrderAndIsolatesFailures(t *testing.T) {
	paths := []string{"/a.swift", "/missing.swift", "/b.swift", "/c.swift", "/d.swift"}
	op := func(ctx context.Context, p string) (any, error) {
		if p == "/missing.swift" {
			return nil, swifterr.New(swifterr.FileNotFound, "no such file: %s", p)
		}
		return "ok:" + p, nil
	}

	results := AnalyzeMany(context.Background(), paths, 0, nil, op)
	if len(results) != len(paths) {
		t.Fatalf("expected %d results, got %d", len(paths), len(results))
	}
	for i, r := range results {
		if r.Path != paths[i] {
			t.Fatalf("result %d: expected path %s, got %s (order not preserved)", i, paths[i], r.Path)
		}
		if paths[i] == "/missing.swift" {
			if swifterr.KindOf(r.Err) != swifterr.FileNotFound {
				t.Fatalf("expected file-not-found for missing path, got %v", r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Fatalf("unexpected error for %s: %v", paths[i], r.Err)
		}
	}
}

func TestAnalyzeManyRespectsPerGroupWorkerCap(t *testing.T) {
	const groups = 2
	const perGroup = 6
	const workers = 2

	var paths []string
	groupOf := map[string]string{}
	for g := 0; g < groups; g++ {
		groupName := "group-" + string(rune('A'+g))
		for i := 0; i < perGroup; i++ {
			p := groupName + "/file" + string(rune('0'+i)) + ".swift"
			paths = append(paths, p)
			groupOf[p] = groupName
		}
	}

	var inFlight, maxInFlight int64
	release := make(chan struct{})
	op := func(ctx context.Context, p string) (any, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt64(&maxInFlight, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt64(&inFlight, -1)
		return nil, nil
	}

	done := make(chan []Result, 1)
	go func() {
		done <- AnalyzeMany(context.Background(), paths, workers, func(p string) string { return groupOf[p] }, op)
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case results := <-done:
		if len(results) != len(paths) {
			t.Fatalf("expected %d results, got %d", len(paths), len(results))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AnalyzeMany did not complete promptly")
	}

	// Two groups each capped at 2 concurrent: global max in flight
	// should never exceed groups*workers.
	if got := atomic.LoadInt64(&maxInFlight); got > int64(groups*workers) {
		t.Fatalf("observed %d concurrent operations, expected at most %d", got, groups*workers)
	}
}
