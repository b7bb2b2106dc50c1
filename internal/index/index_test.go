package index

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swiftlens/internal/project"
	"swiftlens/internal/swifterr"
)

// fakeExecCommand re-invokes this test binary under
// -test.run=TestIndexHelperProcess, the standard os/exec testing idiom
// (see compiler_test.go for the same pattern).
func fakeExecCommand(script string) execFunc {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestIndexHelperProcess", "--", script, name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "SWIFTLENS_INDEX_HELPER=1")
		return cmd
	}
}

func TestIndexHelperProcess(t *testing.T) {
	if os.Getenv("SWIFTLENS_INDEX_HELPER") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		os.Exit(2)
	}
	args = args[1:]
	script := args[0]

	switch script {
	case "spm-ok":
		if containsArg(args, "--find") {
			os.Exit(0)
		}
		os.Stdout.WriteString("Compiling Demo\n")
		os.Exit(0)
	case "spm-fails":
		if containsArg(args, "--find") {
			os.Exit(0)
		}
		os.Stderr.WriteString("/private/tmp/foo.swift:1:1: error: bad\n")
		os.Exit(1)
	case "env-missing":
		os.Exit(1)
	case "slow":
		if containsArg(args, "--find") {
			os.Exit(0)
		}
		time.Sleep(5 * time.Second)
		os.Exit(0)
	}
	os.Exit(0)
}

func containsArg(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

func mkPackageRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Package.swift"), []byte("// swift-tools-version:5.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestBuildPackageSucceeds(t *testing.T) {
	root := mkPackageRoot(t)
	b := NewWithExec(fakeExecCommand("spm-ok"))

	res, err := b.Build(context.Background(), project.Root{Path: root, Kind: project.KindPackage}, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK || res.ProjectType != "package" {
		t.Fatalf("expected successful package build, got %+v", res)
	}
}

func TestBuildPackageFailureSanitizesOutputAndReturnsBuildError(t *testing.T) {
	root := mkPackageRoot(t)
	b := NewWithExec(fakeExecCommand("spm-fails"))

	_, err := b.Build(context.Background(), project.Root{Path: root, Kind: project.KindPackage}, "", 0)
	if swifterr.KindOf(err) != swifterr.BuildError {
		t.Fatalf("expected build-error, got %v", err)
	}
	se, ok := err.(*swifterr.Error)
	if !ok {
		t.Fatalf("expected *swifterr.Error, got %T", err)
	}
	if strings.Contains(se.Details, "/private/tmp") {
		t.Fatalf("expected sanitized path in details, got %q", se.Details)
	}
}

func TestBuildRejectsNoneKind(t *testing.T) {
	root := t.TempDir()
	b := NewWithExec(fakeExecCommand("spm-ok"))

	_, err := b.Build(context.Background(), project.Root{Path: root, Kind: project.KindNone}, "", 0)
	if swifterr.KindOf(err) != swifterr.Validation {
		t.Fatalf("expected validation error for kind=none, got %v", err)
	}
}

func TestBuildPackageTimesOut(t *testing.T) {
	root := mkPackageRoot(t)
	b := NewWithExec(fakeExecCommand("slow"))

	_, err := b.Build(context.Background(), project.Root{Path: root, Kind: project.KindPackage}, "", 100*time.Millisecond)
	if swifterr.KindOf(err) != swifterr.BuildError {
		t.Fatalf("expected build-error timeout, got %v", err)
	}
}

func TestBuildPackageFailsFastOnLockContention(t *testing.T) {
	root := mkPackageRoot(t)
	lock, err := acquireBuildLock(root)
	if err != nil {
		t.Fatalf("failed to pre-acquire lock: %v", err)
	}
	defer lock.release()

	b := NewWithExec(fakeExecCommand("spm-ok"))
	_, err = b.Build(context.Background(), project.Root{Path: root, Kind: project.KindPackage}, "", 0)
	if swifterr.KindOf(err) != swifterr.BuildInProgress {
		t.Fatalf("expected build-in-progress, got %v", err)
	}
}

func TestFindXcodeProjectFileRequiresMatch(t *testing.T) {
	dir := t.TempDir()
	if _, err := findXcodeProjectFile(dir, false); swifterr.KindOf(err) != swifterr.ProjectNotFound {
		t.Fatalf("expected project-not-found when no .xcodeproj exists, got %v", err)
	}

	if err := os.Mkdir(filepath.Join(dir, "Demo.xcodeproj"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := findXcodeProjectFile(dir, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(got) != "Demo.xcodeproj" {
		t.Fatalf("expected Demo.xcodeproj, got %s", got)
	}
}
