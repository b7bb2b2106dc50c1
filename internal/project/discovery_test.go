package project

import (
	"os"
	"path/filepath"
	"testing"
)

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func mustTouch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWorkspaceBeatsProjectInSameDirectory(t *testing.T) {
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "App.xcworkspace"))
	mustMkdir(t, filepath.Join(root, "App.xcodeproj"))
	file := filepath.Join(root, "main.swift")
	mustTouch(t, file)

	d := NewDiscoverer()
	got, err := d.Discover(file)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindXcodeWorkspace {
		t.Fatalf("expected workspace precedence, got %s", got.Kind)
	}
}

func TestNearestPackageManifestWinsOverXcodeAbove(t *testing.T) {
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "App.xcodeproj"))
	sub := filepath.Join(root, "Sources", "Lib")
	mustMkdir(t, sub)
	mustTouch(t, filepath.Join(sub, "Package.swift"))
	file := filepath.Join(sub, "Lib.swift")
	mustTouch(t, file)

	d := NewDiscoverer()
	got, err := d.Discover(file)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindPackage || got.Path != sub {
		t.Fatalf("expected nearest package manifest to win, got %+v", got)
	}
}

func TestNoneWhenNothingFound(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "scratch.swift")
	mustTouch(t, file)

	d := NewDiscoverer()
	got, err := d.Discover(file)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindNone || got.Path != root {
		t.Fatalf("expected none rooted at file's directory, got %+v", got)
	}
}

func TestDiscoveryIsMemoized(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "scratch.swift")
	mustTouch(t, file)

	d := NewDiscoverer()
	first, _ := d.Discover(file)
	mustTouch(t, filepath.Join(root, "Package.swift")) // would change the answer if re-walked
	second, _ := d.Discover(file)
	if first.Kind != second.Kind {
		t.Fatalf("expected memoized result to be stable, got %s then %s", first.Kind, second.Kind)
	}

	d.Invalidate(file)
	third, _ := d.Discover(file)
	if third.Kind != KindPackage {
		t.Fatalf("expected invalidation to pick up new manifest, got %s", third.Kind)
	}
}
