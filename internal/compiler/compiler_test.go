package compiler

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

// fakeExecCommand builds commands that re-invoke this test binary under
// -test.run=TestHelperProcess, the standard os/exec testing idiom for
// exercising subprocess-calling code without a real external binary.
func fakeExecCommand(script string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", script, name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "SWIFTLENS_HELPER_PROCESS=1")
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("SWIFTLENS_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		os.Exit(2)
	}
	args = args[1:] // drop "--"
	script := args[0]

	switch script {
	case "env-ok":
		switch {
		case len(args) >= 2 && args[1] == "xcrun" && contains(args, "--find"):
			os.Stdout.WriteString("/usr/bin/swiftc\n")
		case len(args) >= 2 && args[1] == "xcrun" && contains(args, "--version"):
			os.Stdout.WriteString("Swift version 5.9\n")
		case contains(args, "-typecheck"):
			os.Stdout.WriteString("")
		}
		os.Exit(0)
	case "env-missing":
		os.Stderr.WriteString("xcrun: error: unable to find utility \"swiftc\"\n")
		os.Exit(1)
	case "typecheck-fails":
		if contains(args, "--find") {
			os.Stdout.WriteString("/usr/bin/swiftc\n")
			os.Exit(0)
		}
		if contains(args, "--version") {
			os.Stdout.WriteString("Swift version 5.9\n")
			os.Exit(0)
		}
		os.Stderr.WriteString("/Users/alice/src/Foo.swift:3:5: error: cannot find 'Bar' in scope\n")
		os.Exit(1)
	case "hangs":
		if contains(args, "--find") {
			os.Stdout.WriteString("/usr/bin/swiftc\n")
			os.Exit(0)
		}
		if contains(args, "--version") {
			os.Stdout.WriteString("Swift version 5.9\n")
			os.Exit(0)
		}
		time.Sleep(5 * time.Second)
		os.Exit(0)
	}
	os.Exit(0)
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

func writeSwiftFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckEnvironmentCachesResult(t *testing.T) {
	calls := 0
	base := fakeExecCommand("env-ok")
	counting := func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls++
		return base(ctx, name, args...)
	}

	c := NewWithExec(DefaultConfig(), nil, counting)

	ok, msg := c.CheckEnvironment(context.Background())
	if !ok {
		t.Fatalf("expected environment ok, got message %q", msg)
	}
	firstCalls := calls

	ok2, _ := c.CheckEnvironment(context.Background())
	if !ok2 {
		t.Fatal("expected cached environment check to still report ok")
	}
	if calls != firstCalls {
		t.Fatalf("expected cached probe to avoid re-invoking subprocess, calls went from %d to %d", firstCalls, calls)
	}
}

func TestCheckEnvironmentReportsUnavailable(t *testing.T) {
	c := NewWithExec(DefaultConfig(), nil, fakeExecCommand("env-missing"))
	ok, msg := c.CheckEnvironment(context.Background())
	if ok {
		t.Fatal("expected environment check to fail")
	}
	if msg == "" {
		t.Fatal("expected a non-empty diagnostic message")
	}
}

func TestTypecheckFileRejectsNonSwiftExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeSwiftFile(t, dir, "notes.txt", "hello")

	c := NewWithExec(DefaultConfig(), nil, fakeExecCommand("env-ok"))
	_, err := c.TypecheckFile(context.Background(), path)
	if swifterr.KindOf(err) != swifterr.NotSwiftFile {
		t.Fatalf("expected not-swift-file, got %v", err)
	}
}

func TestTypecheckFileRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeSwiftFile(t, dir, "Big.swift", strings.Repeat("x", 100))

	cfg := DefaultConfig()
	cfg.MaxFileSize = 10
	c := NewWithExec(cfg, nil, fakeExecCommand("env-ok"))

	_, err := c.TypecheckFile(context.Background(), path)
	if swifterr.KindOf(err) != swifterr.Validation {
		t.Fatalf("expected validation error for oversized file, got %v", err)
	}
}

func TestTypecheckFileReturnsOKWithSanitizedDiagnostics(t *testing.T) {
	dir := t.TempDir()
	path := writeSwiftFile(t, dir, "Foo.swift", "struct Foo {}")

	c := NewWithExec(DefaultConfig(), nil, fakeExecCommand("typecheck-fails"))
	res, err := c.TypecheckFile(context.Background(), path)
	if err != nil {
		t.Fatalf("expected ok=true result (compiler ran, just reported diagnostics), got err %v", err)
	}
	if !res.OK {
		t.Fatal("expected OK=true: process ran to completion")
	}
	if strings.Contains(res.Stderr, "/Users/alice") {
		t.Fatalf("expected stderr path to be sanitized, got %q", res.Stderr)
	}
	if !strings.Contains(res.Stderr, "<path>") {
		t.Fatalf("expected sanitized placeholder in stderr, got %q", res.Stderr)
	}
}

func TestTypecheckFileTimesOutAfterDeadline(t *testing.T) {
	dir := t.TempDir()
	path := writeSwiftFile(t, dir, "Slow.swift", "struct Slow {}")

	cfg := Config{Deadline: 100 * time.Millisecond, MaxFileSize: DefaultMaxFileSize}
	c := NewWithExec(cfg, nil, fakeExecCommand("hangs"))

	_, err := c.TypecheckFile(context.Background(), path)
	if swifterr.KindOf(err) != swifterr.Timeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}

func TestTypecheckWithProjectContextFallsBackWhenNoManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeSwiftFile(t, dir, "Lonely.swift", "struct Lonely {}")

	c := NewWithExec(DefaultConfig(), project.NewDiscoverer(), fakeExecCommand("env-ok"))
	res, err := c.TypecheckWithProjectContext(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK {
		t.Fatal("expected fallback typecheck to report OK")
	}
}
