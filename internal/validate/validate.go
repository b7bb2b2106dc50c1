// Package validate implements §4.J: the input checks shared by every
// public operation — path canonicalization, extension/size rules,
// line/character bounds, and the scheme/index-path hygiene checks used
// by the index builder.
package validate

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"swiftlens/internal/swifterr"
)

// SwiftFile canonicalizes path (resolving it against the process cwd
// if relative), confirms it exists as a regular file with a .swift
// extension, and returns the absolute path.
func SwiftFile(path string) (string, error) {
	abs, err := absolutePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", swifterr.New(swifterr.FileNotFound, "no such file: %s", abs)
		}
		return "", swifterr.Wrap(swifterr.Internal, err, "stat %s", abs)
	}
	if info.IsDir() {
		return "", swifterr.New(swifterr.FileNotFound, "%s is a directory, not a file", abs)
	}
	if strings.ToLower(filepath.Ext(abs)) != ".swift" {
		return "", swifterr.New(swifterr.NotSwiftFile, "%s is not a .swift file", abs)
	}
	return abs, nil
}

// ProjectDir canonicalizes path and confirms it exists as a directory,
// as required before an index build.
func ProjectDir(path string) (string, error) {
	abs, err := absolutePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", swifterr.New(swifterr.FileNotFound, "no such directory: %s", abs)
		}
		return "", swifterr.Wrap(swifterr.Internal, err, "stat %s", abs)
	}
	if !info.IsDir() {
		return "", swifterr.New(swifterr.Validation, "%s is not a directory", abs)
	}
	return abs, nil
}

// MaxFileSize enforces the compiler driver's file-size cap (§4.G).
func MaxFileSize(path string, capBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return swifterr.Wrap(swifterr.FileNotFound, err, "stat %s", path)
	}
	if info.Size() > capBytes {
		return swifterr.New(swifterr.Validation, "%s exceeds size cap of %d bytes (%d)", path, capBytes, info.Size())
	}
	return nil
}

// HoverPosition rejects the one-based line / zero-based character
// inputs §4.E requires E to reject before calling B.
func HoverPosition(line, character int) error {
	if line < 1 {
		return swifterr.New(swifterr.Validation, "line must be >= 1, got %d", line)
	}
	if character < 0 {
		return swifterr.New(swifterr.Validation, "character must be >= 0, got %d", character)
	}
	return nil
}

// schemeNamePattern matches §4.H / §8 property 8's grammar: one or more
// runs of word characters and hyphens, separated by single spaces.
var schemeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+([ ][A-Za-z0-9_-]+)*$`)

// SchemeName enforces §4.H's scheme-name grammar: length <= 100, no
// control characters, and the word-and-single-space grammar above.
func SchemeName(name string) error {
	if len(name) == 0 || len(name) > 100 {
		return swifterr.New(swifterr.Validation, "scheme name length must be 1-100, got %d", len(name))
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return swifterr.New(swifterr.Validation, "scheme name contains control characters")
		}
	}
	if !schemeNamePattern.MatchString(name) {
		return swifterr.New(swifterr.Validation, "scheme name %q fails validation grammar", name)
	}
	return nil
}

// IndexPathWithinRoot enforces §4.H's common-ancestor check: indexPath
// must be inside root after both are made absolute with filepath.Abs.
// Symlinks are not resolved, so a link inside root that points outside
// it passes the check.
func IndexPathWithinRoot(root, indexPath string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return swifterr.Wrap(swifterr.Internal, err, "resolve root")
	}
	absIndex, err := filepath.Abs(indexPath)
	if err != nil {
		return swifterr.Wrap(swifterr.Internal, err, "resolve index path")
	}
	rel, err := filepath.Rel(absRoot, absIndex)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return swifterr.New(swifterr.Validation, "index path %s escapes project root %s", absIndex, absRoot)
	}
	return nil
}

func absolutePath(path string) (string, error) {
	if path == "" {
		return "", swifterr.New(swifterr.Validation, "path must not be empty")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		var err error
		abs, err = filepath.Abs(abs)
		if err != nil {
			return "", swifterr.Wrap(swifterr.Internal, err, "resolve %s against cwd", path)
		}
	}
	return abs, nil
}
