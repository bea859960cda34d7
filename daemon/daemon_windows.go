//go:build windows
// +build windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"
)

var (
	kernel32                = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess         = kernel32.NewProc("OpenProcess")
	procCloseHandle         = kernel32.NewProc("CloseHandle")
	procLockFileEx          = kernel32.NewProc("LockFileEx")
	processQueryLimitedInfo = uint32(0x1000)
)

const (
	lockfileExclusiveLock   = 0x00000002
	lockfileFailImmediately = 0x00000001
)

// IsProcessRunning reports whether a process with the given PID exists.
// OpenProcess with PROCESS_QUERY_LIMITED_INFORMATION succeeds only for a
// live process we can see.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	handle, _, _ := procOpenProcess.Call(
		uintptr(processQueryLimitedInfo),
		uintptr(0),
		uintptr(pid),
	)
	if handle == 0 {
		return false
	}
	procCloseHandle.Call(handle)
	return true
}

// lockFile takes a non-blocking exclusive LockFileEx lock on f. The OS
// releases it when the holding process exits, so a crashed watcher never
// wedges its vault.
func lockFile(f *os.File) error {
	var overlapped syscall.Overlapped

	ret, _, err := procLockFileEx.Call(
		f.Fd(),
		uintptr(lockfileExclusiveLock|lockfileFailImmediately),
		0,
		1, // one byte is enough, any locked range will do
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if ret == 0 {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// sysProcAttr returns nil on Windows; no extra attributes are needed to
// detach the spawned watcher.
func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// exitMonitor polls for watcher exit on Windows, where ExtraFiles is not
// supported. Windows has no zombie state, so IsProcessRunning is reliable.
type exitMonitor struct{}

func newExitMonitor() (*exitMonitor, error) {
	return &exitMonitor{}, nil
}

func (m *exitMonitor) attach(cmd *exec.Cmd) {
	// no-op: ExtraFiles not supported on Windows
}

// watch polls IsProcessRunning and closes the returned channel once the
// child is gone.
func (m *exitMonitor) watch(pid int) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		for {
			time.Sleep(250 * time.Millisecond)
			if !IsProcessRunning(pid) {
				close(ch)
				return
			}
		}
	}()
	return ch
}

func (m *exitMonitor) abort() {
	// no-op
}

const stopPollInterval = 500 * time.Millisecond

// StopProcess asks the vault's watcher to shut down by dropping a stop
// trigger into the vault state dir. A sentinel file replaces os.Interrupt,
// which does not work across consoles on Windows. The file needs no PID in
// its name: each vault runs a single watcher, and that watcher polls its
// own state dir.
func StopProcess(stateDir string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	if !IsProcessRunning(pid) {
		return fmt.Errorf("process %d is not running", pid)
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create vault state directory: %w", err)
	}
	path := filepath.Join(stateDir, stopFileName)
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0600); err != nil {
		return fmt.Errorf("failed to write stop file: %w", err)
	}
	return nil
}

// StopChannel returns a channel that closes when a stop trigger appears in
// the vault state dir. Any trigger left over from a previous run is removed
// before polling starts so it cannot kill the new watcher immediately.
func StopChannel(stateDir string) <-chan struct{} {
	ch := make(chan struct{})
	path := filepath.Join(stateDir, stopFileName)

	_ = os.Remove(path)

	go func() {
		for {
			time.Sleep(stopPollInterval)
			if _, err := os.Stat(path); err == nil {
				_ = os.Remove(path)
				close(ch)
				return
			}
		}
	}()

	return ch
}
