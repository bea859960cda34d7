// Package daemon manages the background lifecycle of the vault watcher.
//
// Each vault runs at most one watcher. The watcher's state files (PID file,
// lock file, ready marker, and on Windows the stop trigger) live inside the
// vault's .vaultmind directory, so two vaults can run watchers side by side
// without stepping on each other. Only the log file goes to the OS log
// directory, because logs outlive the vault session and users expect to find
// them in one place.
//
// # Usage
//
// Start a watcher for a vault:
//
//	stateDir := config.GetConfigDir(vaultRoot)
//	pid, exitCh, err := daemon.SpawnBackground(logDir, []string{"watch"})
//
// Check whether the vault already has a watcher:
//
//	pid, err := daemon.GetRunningPID(stateDir)
//	if pid > 0 { ... }
//
// Stop it:
//
//	daemon.StopProcess(stateDir, pid)
//	daemon.RemovePIDFile(stateDir)
//
// # File formats
//
// The PID file holds the process ID as a single decimal line. The ready
// marker is written once initialization (embedder, store, initial scan)
// finishes; the parent polls for it during startup.
//
// # Concurrency
//
// WritePIDFile takes a non-blocking exclusive lock on watch.pid.lock before
// writing, so two watchers racing to claim the same vault resolve to one
// winner. The OS releases the lock when the process exits.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Names of the per-vault state files, relative to the vault state dir.
const (
	pidFileName   = "watch.pid"
	pidLockName   = "watch.pid.lock"
	readyFileName = "watch.ready"
	stopFileName  = "watch.stop"
)

const logFileName = "vaultmind-watch.log"

// GetDefaultLogDir returns the OS-specific directory for watcher logs.
//
//   - Linux:   $XDG_STATE_HOME/vaultmind/logs or ~/.local/state/vaultmind/logs
//   - macOS:   ~/Library/Logs/vaultmind
//   - Windows: %LOCALAPPDATA%\vaultmind\logs
//
// The directory may not exist yet; callers create it when needed.
func GetDefaultLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "vaultmind"), nil
	case "windows":
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, "vaultmind", "logs"), nil
		}
		return filepath.Join(homeDir, "AppData", "Local", "vaultmind", "logs"), nil
	default: // Linux and other Unix-like systems
		if base := os.Getenv("XDG_STATE_HOME"); base != "" {
			return filepath.Join(base, "vaultmind", "logs"), nil
		}
		return filepath.Join(homeDir, ".local", "state", "vaultmind", "logs"), nil
	}
}

// WritePIDFile claims the vault for the current process: it locks
// watch.pid.lock and writes the PID into watch.pid under stateDir. The lock
// stays held until the process exits.
func WritePIDFile(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create vault state directory: %w", err)
	}

	lockFh, err := os.OpenFile(filepath.Join(stateDir, pidLockName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	if err := lockFile(lockFh); err != nil {
		lockFh.Close()
		return fmt.Errorf("another watcher is starting for this vault (lock held)")
	}

	// lockFh is deliberately left open: closing it would drop the lock.
	if err := writeFileAtomic(filepath.Join(stateDir, pidFileName), fmt.Sprintf("%d\n", os.Getpid())); err != nil {
		lockFh.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// writeFileAtomic writes content via a temp file and rename so readers never
// observe a partial PID.
func writeFileAtomic(path, content string) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// ReadPIDFile reads the watcher PID recorded in the vault state dir.
//
// Returns (0, nil) when no PID file exists, the recorded PID when it does,
// and an error only when the file is present but unreadable or corrupt. It
// does not check whether the process is alive; GetRunningPID does.
func ReadPIDFile(stateDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, pidFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// RemovePIDFile removes the PID file and its lock file from the vault state
// dir. Missing files are not an error.
func RemovePIDFile(stateDir string) error {
	_ = os.Remove(filepath.Join(stateDir, pidLockName))

	if err := os.Remove(filepath.Join(stateDir, pidFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// GetRunningPID returns the PID of the vault's running watcher, or 0 when
// none is running. A PID file left behind by a dead process is cleaned up.
func GetRunningPID(stateDir string) (int, error) {
	pid, err := ReadPIDFile(stateDir)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, nil
	}
	if !IsProcessRunning(pid) {
		_ = RemovePIDFile(stateDir)
		return 0, nil
	}
	return pid, nil
}

// WriteReadyFile marks the watcher as fully initialized. The parent process
// polls IsReady after spawning to distinguish a slow startup from a crash.
func WriteReadyFile(stateDir string) error {
	content := fmt.Sprintf("ready\n%d\n", os.Getpid())
	if err := os.WriteFile(filepath.Join(stateDir, readyFileName), []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write ready file: %w", err)
	}
	return nil
}

// RemoveReadyFile removes the ready marker.
func RemoveReadyFile(stateDir string) error {
	if err := os.Remove(filepath.Join(stateDir, readyFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ready file: %w", err)
	}
	return nil
}

// IsReady reports whether the vault's watcher has signalled readiness.
func IsReady(stateDir string) bool {
	_, err := os.Stat(filepath.Join(stateDir, readyFileName))
	return err == nil
}

// SpawnBackground re-executes the current binary as a detached watcher.
//
// The child runs with stdout/stderr appended to the log file in logDir,
// stdin closed, VAULTMIND_BACKGROUND=1 in its environment, and
// platform-specific detachment. The returned channel closes when the child
// exits, which lets the caller detect an early crash without kill(0) (which
// reports zombies as alive).
func SpawnBackground(logDir string, args []string) (int, <-chan struct{}, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return 0, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return spawnBackgroundWithLog(filepath.Join(logDir, logFileName), args)
}

func spawnBackgroundWithLog(logPath string, args []string) (int, <-chan struct{}, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	monitor, err := newExitMonitor()
	if err != nil {
		logFile.Close()
		return 0, nil, err
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), "VAULTMIND_BACKGROUND=1")
	cmd.SysProcAttr = sysProcAttr()
	monitor.attach(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		monitor.abort()
		return 0, nil, fmt.Errorf("failed to start background process: %w", err)
	}

	logFile.Close()
	return cmd.Process.Pid, monitor.watch(cmd.Process.Pid), nil
}
