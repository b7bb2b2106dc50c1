//go:build unix

package index

import (
	"os"
	"syscall"
)

// flockFile applies a non-blocking exclusive lock so a second builder
// racing for the same project root fails fast instead of queueing.
func flockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// lockContended reports whether err is the non-blocking lock's
// "already held" signal rather than some other failure.
func lockContended(err error) bool {
	return err == syscall.EWOULDBLOCK || err == syscall.EAGAIN
}
