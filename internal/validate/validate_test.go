package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"swiftlens/internal/swifterr"
)

func TestSwiftFileAcceptsExistingSwiftFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Foo.swift")
	if err := os.WriteFile(path, []byte("struct Foo {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	abs, err := SwiftFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(abs) {
		t.Fatalf("expected absolute path, got %q", abs)
	}
}

func TestSwiftFileRejectsMissingFile(t *testing.T) {
	_, err := SwiftFile(filepath.Join(t.TempDir(), "missing.swift"))
	if swifterr.KindOf(err) != swifterr.FileNotFound {
		t.Fatalf("expected file-not-found, got %v", err)
	}
}

func TestSwiftFileRejectsWrongExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := SwiftFile(path)
	if swifterr.KindOf(err) != swifterr.NotSwiftFile {
		t.Fatalf("expected not-swift-file, got %v", err)
	}
}

func TestProjectDirRequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Foo.swift")
	if err := os.WriteFile(file, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ProjectDir(file); swifterr.KindOf(err) != swifterr.Validation {
		t.Fatalf("expected validation error for a file path, got %v", err)
	}
	if _, err := ProjectDir(dir); err != nil {
		t.Fatalf("unexpected error for real directory: %v", err)
	}
}

func TestMaxFileSizeEnforcesCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Big.swift")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := MaxFileSize(path, 10); err == nil {
		t.Fatal("expected cap violation error")
	}
	if err := MaxFileSize(path, 1000); err != nil {
		t.Fatalf("unexpected error under cap: %v", err)
	}
}

func TestHoverPositionRejectsOutOfRangeInputs(t *testing.T) {
	if err := HoverPosition(0, 0); err == nil {
		t.Fatal("expected rejection of line 0 (one-based lines start at 1)")
	}
	if err := HoverPosition(1, -1); err == nil {
		t.Fatal("expected rejection of negative character")
	}
	if err := HoverPosition(1, 0); err != nil {
		t.Fatalf("unexpected error for valid position: %v", err)
	}
}

func TestSchemeNameAcceptsValidGrammar(t *testing.T) {
	for _, name := range []string{"MyApp", "My-App_2024", "App One"} {
		if err := SchemeName(name); err != nil {
			t.Fatalf("expected %q to be accepted, got %v", name, err)
		}
	}
}

func TestSchemeNameRejectsInjectionAttempts(t *testing.T) {
	cases := []string{
		"app; rm -rf /",
		"app`whoami`",
		"\"app\n x\"",
		strings.Repeat("a", 101),
	}
	for _, name := range cases {
		if err := SchemeName(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestIndexPathWithinRootAcceptsNestedPathAndRejectsEscape(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, ".build", "index", "store")
	if err := IndexPathWithinRoot(root, nested); err != nil {
		t.Fatalf("expected nested path to be accepted: %v", err)
	}

	outside := filepath.Join(filepath.Dir(root), "elsewhere")
	if err := IndexPathWithinRoot(root, outside); err == nil {
		t.Fatal("expected path outside root to be rejected")
	}
}
