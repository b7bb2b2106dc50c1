//go:build windows

package index

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	kernel32     = syscall.NewLazyDLL("kernel32.dll")
	lockFileEx   = kernel32.NewProc("LockFileEx")
	unlockFileEx = kernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock   = 0x00000002
	lockfileFailImmediately = 0x00000001
)

func flockFile(f *os.File) error {
	handle := syscall.Handle(f.Fd())
	overlapped := &syscall.Overlapped{}

	ret, _, err := lockFileEx.Call(
		uintptr(handle),
		uintptr(lockfileExclusiveLock|lockfileFailImmediately),
		uintptr(0),
		uintptr(0xFFFFFFFF),
		uintptr(0xFFFFFFFF),
		uintptr(unsafe.Pointer(overlapped)))

	if ret == 0 {
		return err
	}
	return nil
}

func unlockFile(f *os.File) error {
	handle := syscall.Handle(f.Fd())
	overlapped := &syscall.Overlapped{}

	ret, _, err := unlockFileEx.Call(
		uintptr(handle),
		uintptr(0),
		uintptr(0xFFFFFFFF),
		uintptr(0xFFFFFFFF),
		uintptr(unsafe.Pointer(overlapped)))

	if ret == 0 {
		return err
	}
	return nil
}

// lockContended reports whether err is LockFileEx's "already locked"
// failure (ERROR_LOCK_VIOLATION) rather than some other failure.
func lockContended(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && errno == 0x21 // ERROR_LOCK_VIOLATION
}
