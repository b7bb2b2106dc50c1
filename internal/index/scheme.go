package index

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"swiftlens/internal/swifterr"
)

const schemeDetectionTimeout = 10 * time.Second

// detectScheme runs `xcodebuild -list` against an Xcode project or
// workspace and returns the first non-hidden scheme, per spec.md
// §4.H's auto-detect rule. Grounded on
// original_source/swiftlens/tools/swift_build_index.py's
// _detect_xcode_scheme, reimplemented over plain `-list` text instead
// of `-list -json` since Go's toolchain offers no structured xcodebuild
// output parser in this pack worth pulling in for one field.
func (b *Builder) detectScheme(ctx context.Context, execCommand execFunc, xcodeProjectPath string, isWorkspace bool) (string, error) {
	flag := "-project"
	if isWorkspace {
		flag = "-workspace"
	}

	listCtx, cancel := context.WithTimeout(ctx, schemeDetectionTimeout)
	defer cancel()

	out, err := execCommand(listCtx, "xcrun", "xcodebuild", flag, xcodeProjectPath, "-list").Output()
	if err != nil {
		return "", swifterr.Wrap(swifterr.Environment, err, "list schemes for %s", xcodeProjectPath)
	}

	scheme := firstScheme(string(out))
	if scheme == "" {
		return "", swifterr.New(swifterr.Validation, "no scheme found in %s; specify one explicitly", filepath.Base(xcodeProjectPath))
	}
	return scheme, nil
}

// firstScheme scans for a "Schemes:" header and returns the first
// indented entry under it that isn't blank or hidden (dotfile-style).
func firstScheme(output string) string {
	inSchemes := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "Schemes:" {
			inSchemes = true
			continue
		}
		if !inSchemes {
			continue
		}
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break // next top-level section started
		}
		if strings.HasPrefix(trimmed, ".") {
			continue
		}
		return trimmed
	}
	return ""
}

// execFunc matches exec.CommandContext's signature; Builder's
// execCommand field and tests share this type.
type execFunc func(ctx context.Context, name string, args ...string) *exec.Cmd
