// Package index implements §4.H: building the on-disk index store the
// language server consumes for cross-file operations, for both Swift
// Package Manager and Xcode projects.
package index

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"swiftlens/internal/project"
	"swiftlens/internal/sanitize"
	"swiftlens/internal/swifterr"
	"swiftlens/internal/validate"
)

const (
	// DefaultTimeout and MaxTimeout match spec.md §4.H.
	DefaultTimeout = 60 * time.Second
	MaxTimeout     = 300 * time.Second

	environmentCheckTimeout = 5 * time.Second
)

// Result is what one successful or failed build produced.
type Result struct {
	OK          bool
	ProjectType string // "package" or "xcode"
	IndexPath   string
	Output      string // sanitized stdout+stderr
	BuildTime   time.Duration
}

// Builder drives package/Xcode index builds.
type Builder struct {
	execCommand execFunc
}

// New constructs a Builder that shells out to the real toolchain.
func New() *Builder {
	return &Builder{execCommand: exec.CommandContext}
}

// NewWithExec is New, but lets tests substitute a fake execCommand.
func NewWithExec(execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd) *Builder {
	return &Builder{execCommand: execCommand}
}

// Build runs an index build for root, capping timeout at MaxTimeout and
// defaulting to DefaultTimeout when <= 0 (there is no lower floor). For
// Xcode projects/workspaces an empty scheme is auto-detected as the
// first non-hidden scheme that `xcodebuild -list` reports.
func (b *Builder) Build(ctx context.Context, root project.Root, scheme string, timeout time.Duration) (Result, error) {
	if _, err := validate.ProjectDir(root.Path); err != nil {
		return Result{}, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	switch root.Kind {
	case project.KindPackage:
		return b.buildPackage(ctx, root.Path, timeout)
	case project.KindXcodeProject, project.KindXcodeWorkspace:
		return b.buildXcode(ctx, root, scheme, timeout)
	default:
		return Result{}, swifterr.New(swifterr.Validation, "no Swift project found at %s (no Package.swift, .xcodeproj, or .xcworkspace)", root.Path)
	}
}

func (b *Builder) buildPackage(ctx context.Context, root string, timeout time.Duration) (Result, error) {
	if ok, msg := b.checkEnvironment(ctx, "swift"); !ok {
		return Result{}, swifterr.New(swifterr.Environment, "%s", msg)
	}

	lock, err := acquireBuildLock(root)
	if err != nil {
		return Result{}, err
	}
	defer lock.release()

	started := time.Now()
	out, err := b.run(ctx, root, timeout,
		"xcrun", "swift", "build", "-Xswiftc", "-index-store-path", "-Xswiftc", ".build/index/store")
	elapsed := time.Since(started)
	if err != nil {
		return Result{}, err
	}

	indexPath := filepath.Join(root, ".build", "index", "store")
	return b.finish("package", root, indexPath, out, elapsed)
}

func (b *Builder) buildXcode(ctx context.Context, root project.Root, scheme string, timeout time.Duration) (Result, error) {
	if ok, msg := b.checkEnvironment(ctx, "xcodebuild"); !ok {
		return Result{}, swifterr.New(swifterr.Environment, "%s", msg)
	}

	isWorkspace := root.Kind == project.KindXcodeWorkspace
	projectFile, err := findXcodeProjectFile(root.Path, isWorkspace)
	if err != nil {
		return Result{}, err
	}

	if scheme == "" {
		scheme, err = b.detectScheme(ctx, b.execCommand, projectFile, isWorkspace)
		if err != nil {
			return Result{}, err
		}
	}
	if err := validate.SchemeName(scheme); err != nil {
		return Result{}, err
	}

	indexPath := filepath.Join(root.Path, ".build", "index", "store")
	if err := validate.IndexPathWithinRoot(root.Path, indexPath); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(indexPath, 0o755); err != nil {
		return Result{}, swifterr.Wrap(swifterr.Internal, err, "create %s", indexPath)
	}

	lock, err := acquireBuildLock(root.Path)
	if err != nil {
		return Result{}, err
	}
	defer lock.release()

	projectFlag := "-project"
	if isWorkspace {
		projectFlag = "-workspace"
	}

	started := time.Now()
	out, err := b.run(ctx, root.Path, timeout,
		"xcrun", "xcodebuild", projectFlag, projectFile, "-scheme", scheme, "build",
		"INDEX_STORE_PATH="+indexPath,
		"CLANG_INDEX_STORE_PATH="+indexPath,
		"INDEX_ENABLE_BUILD_ARENA=YES")
	elapsed := time.Since(started)
	if err != nil {
		return Result{}, err
	}

	return b.finish("xcode", root.Path, indexPath, out, elapsed)
}

func (b *Builder) finish(projectType, root, indexPath string, out runOutput, elapsed time.Duration) (Result, error) {
	sanitized := sanitize.Output(out.stdout + out.stderr)
	if !out.succeeded {
		return Result{
			OK:          false,
			ProjectType: projectType,
			Output:      sanitized,
			BuildTime:   elapsed,
		}, swifterr.New(swifterr.BuildError, "build failed with exit code %d", out.exitCode).WithDetails(sanitized)
	}

	result := Result{OK: true, ProjectType: projectType, Output: sanitized, BuildTime: elapsed}
	if info, err := os.Stat(indexPath); err == nil && info.IsDir() {
		result.IndexPath = indexPath
	}
	return result, nil
}

type runOutput struct {
	stdout    string
	stderr    string
	succeeded bool
	exitCode  int
}

// run executes name+args with dir as cwd, bounded by timeout. On
// deadline, exec.CommandContext's cancellation kills the process.
func (b *Builder) run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (runOutput, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := b.execCommand(runCtx, name, args...)
	cmd.Dir = dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return runOutput{}, swifterr.New(swifterr.BuildError, "timed out after %s", timeout)
	}

	exitCode := 0
	succeeded := true
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			succeeded = false
			exitCode = exitErr.ExitCode()
		} else {
			return runOutput{}, swifterr.Wrap(swifterr.Internal, err, "run %s", name)
		}
	}

	return runOutput{stdout: stdout.String(), stderr: stderr.String(), succeeded: succeeded, exitCode: exitCode}, nil
}

func (b *Builder) checkEnvironment(ctx context.Context, tool string) (bool, string) {
	checkCtx, cancel := context.WithTimeout(ctx, environmentCheckTimeout)
	defer cancel()

	if err := b.execCommand(checkCtx, "xcrun", "--find", tool).Run(); err != nil {
		return false, tool + " not found. Please install Xcode or the Swift toolchain."
	}
	return true, ""
}

// findXcodeProjectFile returns the first *.xcworkspace (when
// isWorkspace) or *.xcodeproj (otherwise) directly under root; the
// choice between the two was already made by project.Discoverer.
func findXcodeProjectFile(root string, isWorkspace bool) (string, error) {
	pattern := "*.xcodeproj"
	if isWorkspace {
		pattern = "*.xcworkspace"
	}
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil || len(matches) == 0 {
		return "", swifterr.New(swifterr.ProjectNotFound, "no %s found under %s", pattern, root)
	}
	return matches[0], nil
}
