// Package compiler implements §4.G: driving swiftc/swift build to
// typecheck a single Swift file without letting compiler-generated
// artifacts land in a user-controlled directory.
package compiler

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"swiftlens/internal/project"
	"swiftlens/internal/sanitize"
	"swiftlens/internal/swifterr"
	"swiftlens/internal/validate"
)

const (
	// DefaultDeadline and MaxDeadline match spec.md §4.G.
	DefaultDeadline = 30 * time.Second
	MaxDeadline     = 60 * time.Second

	// DefaultMaxFileSize is the 1 MiB cap spec.md §4.G states.
	DefaultMaxFileSize int64 = 1024 * 1024

	environmentCacheTTL = 5 * time.Minute
)

// Config controls one Client's deadlines and size cap; Deadline is
// clamped to MaxDeadline by New.
type Config struct {
	Deadline    time.Duration
	MaxFileSize int64
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{Deadline: DefaultDeadline, MaxFileSize: DefaultMaxFileSize}
}

// Result is the (ok, stdout, stderr) triple spec.md §4.G returns; ok
// means the compiler process ran to completion, not that it reported
// zero diagnostics.
type Result struct {
	OK     bool
	Stdout string
	Stderr string
}

type environmentProbe struct {
	available bool
	message   string
}

// Client drives the Swift compiler for typecheck-style operations. The
// zero value is not usable; construct with New.
type Client struct {
	cfg Config

	discoverer *project.Discoverer

	mu        sync.Mutex
	probe     environmentProbe
	probedAt  time.Time
	hasProbed bool

	// execCommand builds the *exec.Cmd for one invocation. It defaults
	// to exec.CommandContext; tests substitute a fake binary so probing
	// and typechecking can be exercised without a real Swift toolchain.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New builds a Client. A cfg.Deadline <= 0 becomes DefaultDeadline and
// one above MaxDeadline becomes MaxDeadline (there is no lower floor);
// cfg.MaxFileSize defaults to DefaultMaxFileSize if unset.
func New(cfg Config, discoverer *project.Discoverer) *Client {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Deadline > MaxDeadline {
		cfg.Deadline = MaxDeadline
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	return &Client{cfg: cfg, discoverer: discoverer, execCommand: exec.CommandContext}
}

// NewWithExec is New, but lets the caller substitute execCommand so
// tests can replace the real xcrun/swiftc/swift invocations with a
// fake helper binary.
func NewWithExec(cfg Config, discoverer *project.Discoverer, execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd) *Client {
	c := New(cfg, discoverer)
	c.execCommand = execCommand
	return c
}

// CheckEnvironment probes once for a working swiftc and caches the
// result for 5 minutes, so repeated typecheck calls don't re-spawn
// xcrun on every invocation.
func (c *Client) CheckEnvironment(ctx context.Context) (bool, string) {
	c.mu.Lock()
	if c.hasProbed && time.Since(c.probedAt) < environmentCacheTTL {
		probe := c.probe
		c.mu.Unlock()
		return probe.available, probe.message
	}
	c.mu.Unlock()

	probe := c.probeEnvironment(ctx)

	c.mu.Lock()
	c.probe = probe
	c.probedAt = time.Now()
	c.hasProbed = true
	c.mu.Unlock()

	return probe.available, probe.message
}

func (c *Client) probeEnvironment(ctx context.Context) environmentProbe {
	findCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	findOut, err := c.execCommand(findCtx, "xcrun", "--find", "swiftc").Output()
	if err != nil {
		return environmentProbe{false, "xcrun not found or Swift compiler not available"}
	}
	swiftPath := strings.TrimSpace(string(findOut))
	if swiftPath == "" {
		return environmentProbe{false, "Swift compiler path not found"}
	}

	versionCtx, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	versionOut, err := c.execCommand(versionCtx, "xcrun", "swiftc", "--version").Output()
	if err != nil {
		return environmentProbe{false, "Swift compiler not functional"}
	}
	lines := strings.SplitN(strings.TrimSpace(string(versionOut)), "\n", 2)
	return environmentProbe{true, "Swift compiler available: " + lines[0]}
}

// TypecheckFile runs `swiftc -typecheck` on path inside a freshly
// created temporary directory used as the subprocess cwd, so compiler
// artifacts never land next to the user's source.
func (c *Client) TypecheckFile(ctx context.Context, path string) (Result, error) {
	absPath, err := validate.SwiftFile(path)
	if err != nil {
		return Result{}, err
	}
	if err := validate.MaxFileSize(absPath, c.cfg.MaxFileSize); err != nil {
		return Result{}, err
	}
	if ok, msg := c.CheckEnvironment(ctx); !ok {
		return Result{}, swifterr.New(swifterr.Environment, "%s", msg)
	}

	sandbox, err := os.MkdirTemp("", "swiftlens_typecheck_")
	if err != nil {
		return Result{}, swifterr.Wrap(swifterr.Internal, err, "create sandbox directory")
	}
	defer os.RemoveAll(sandbox)

	return c.run(ctx, sandbox, "xcrun", "swiftc", "-typecheck", absPath)
}

// TypecheckWithProjectContext behaves like TypecheckFile, but first
// looks for a Swift package manifest above path and, if found, runs
// `swift build --build-tests -Xswiftc -typecheck` in that package's
// root instead; any failure of the package build falls back to the
// plain per-file typecheck (§4.G, §8 property: Xcode projects always
// fall back since building a scheme requires more context than a bare
// typecheck can supply).
func (c *Client) TypecheckWithProjectContext(ctx context.Context, path string) (Result, error) {
	absPath, err := validate.SwiftFile(path)
	if err != nil {
		return Result{}, err
	}

	if c.discoverer != nil {
		root, err := c.discoverer.Discover(absPath)
		if err == nil && root.Kind == project.KindPackage {
			res, err := c.typecheckWithSPM(ctx, absPath, root.Path)
			if err == nil && res.OK {
				return res, nil
			}
		}
	}

	return c.TypecheckFile(ctx, path)
}

func (c *Client) typecheckWithSPM(ctx context.Context, absPath, packageDir string) (Result, error) {
	if err := validate.MaxFileSize(absPath, c.cfg.MaxFileSize); err != nil {
		return Result{}, err
	}
	if ok, msg := c.CheckEnvironment(ctx); !ok {
		return Result{}, swifterr.New(swifterr.Environment, "%s", msg)
	}

	realDir, err := filepath.EvalSymlinks(packageDir)
	if err != nil {
		return Result{}, swifterr.Wrap(swifterr.Internal, err, "resolve package directory")
	}
	if _, err := os.Stat(filepath.Join(realDir, "Package.swift")); err != nil {
		return Result{}, swifterr.New(swifterr.Validation, "Package.swift missing under %s", realDir)
	}

	return c.run(ctx, realDir, "xcrun", "swift", "build", "--build-tests", "-Xswiftc", "-typecheck")
}

// run executes name+args with dir as cwd, bounded by the client's
// deadline, and returns sanitized stdout/stderr.
func (c *Client) run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()

	cmd := c.execCommand(runCtx, name, args...)
	cmd.Dir = dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{}, swifterr.New(swifterr.Timeout, "compilation timed out after %s", c.cfg.Deadline)
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return Result{}, swifterr.Wrap(swifterr.Internal, err, "run %s", name)
		}
	}

	return Result{
		OK:     true,
		Stdout: sanitize.Output(stdout.String()),
		Stderr: sanitize.Output(stderr.String()),
	}, nil
}
