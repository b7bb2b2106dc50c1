package index

import (
	"os"
	"path/filepath"

	"swiftlens/internal/swifterr"
)

const lockFileName = ".index-build.lock"

// buildLock wraps the advisory exclusive lock at
// <root>/.build/.index-build.lock (§4.H concurrency guard). Adapted
// from the teacher's workflow.Store file lock: same flock/LockFileEx
// primitive, generalized from a workflow-state lock to a per-project
// build lock with a distinct "already building" error kind.
type buildLock struct {
	f *os.File
}

// acquireBuildLock opens (creating if needed) and locks root's build
// lock file. Contention returns a swifterr.BuildInProgress error
// without waiting, per spec.md §4.H.
func acquireBuildLock(root string) (*buildLock, error) {
	dir := filepath.Join(root, ".build")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, swifterr.Wrap(swifterr.Internal, err, "create %s", dir)
	}

	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, swifterr.Wrap(swifterr.Internal, err, "open lock file %s", path)
	}

	if err := flockFile(f); err != nil {
		f.Close()
		if lockContended(err) {
			return nil, swifterr.New(swifterr.BuildInProgress, "an index build is already in progress for %s", root)
		}
		return nil, swifterr.Wrap(swifterr.Internal, err, "lock %s", path)
	}

	return &buildLock{f: f}, nil
}

func (l *buildLock) release() {
	_ = unlockFile(l.f)
	_ = l.f.Close()
}
