//go:build !windows
// +build !windows

package daemon

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// IsProcessRunning reports whether a process with the given PID exists.
// Signal 0 checks for existence without delivering anything.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// lockFile takes a non-blocking exclusive flock on f. The kernel drops the
// lock when the holding process exits, so a crashed watcher never wedges
// its vault.
func lockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// sysProcAttr detaches the spawned watcher into its own process group so a
// Ctrl+C in the launching terminal does not take it down.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// exitMonitor detects watcher exit through an inherited pipe. The child
// holds the write end; when it dies for any reason the kernel closes the
// descriptor and the parent's read returns EOF. Unlike kill(0) this cannot
// be fooled by a zombie.
type exitMonitor struct {
	r, w *os.File
}

func newExitMonitor() (*exitMonitor, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create liveness pipe: %w", err)
	}
	return &exitMonitor{r: r, w: w}, nil
}

// attach hands the write end to the child being spawned.
func (m *exitMonitor) attach(cmd *exec.Cmd) {
	cmd.ExtraFiles = []*os.File{m.w}
}

// watch drops the parent's copy of the write end and returns a channel that
// closes once the child's copy goes away.
func (m *exitMonitor) watch(_ int) <-chan struct{} {
	m.w.Close()
	ch := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		if _, err := m.r.Read(buf); err != nil && err != io.EOF {
			// Any unblocking counts as exit; the error itself is irrelevant.
			_ = err
		}
		m.r.Close()
		close(ch)
	}()
	return ch
}

// abort releases both pipe ends after a failed spawn.
func (m *exitMonitor) abort() {
	m.r.Close()
	m.w.Close()
}

// StopProcess asks the vault's watcher to shut down by sending SIGINT. The
// state dir is unused on Unix; signals carry the request.
func StopProcess(stateDir string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("failed to send interrupt signal: %w", err)
	}
	return nil
}

// StopChannel returns a channel that never fires on Unix; shutdown arrives
// through os/signal instead.
func StopChannel(stateDir string) <-chan struct{} {
	return make(chan struct{})
}
