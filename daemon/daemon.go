// Package daemon runs the bot as a detached background process tracked by a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// EnvFlag marks a child started by StartDaemon.
const EnvFlag = "BREAKOUT_DAEMON"

// DefaultPIDFile is used when no PID file is configured.
const DefaultPIDFile = "breakout.pid"

var ErrNotRunning = errors.New("daemon is not running")

// IsDaemon checks if the process is running as a daemon/background process
func IsDaemon() bool {
	return os.Getenv(EnvFlag) == "true"
}

// StartDaemon re-executes the current binary with args in the background and records its PID.
func StartDaemon(args []string, pidFile string) (int, error) {
	if pid, err := ReadPID(pidFile); err == nil && alive(pid) {
		return 0, fmt.Errorf("daemon already running with PID %d", pid)
	}
	execPath, err := GetExecutablePath()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Env = append(os.Environ(), EnvFlag+"=true")
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return pid, fmt.Errorf("failed to write PID file: %w", err)
	}
	return pid, cmd.Process.Release()
}

// StopDaemon sends SIGTERM so the bot shuts its feed and status server down cleanly,
// waits up to timeout for it to exit and removes the PID file.
func StopDaemon(pidFile string, timeout time.Duration) error {
	pid, err := ReadPID(pidFile)
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal PID %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for alive(pid) && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if alive(pid) {
		return fmt.Errorf("PID %d still running after %s", pid, timeout)
	}
	if err := os.Remove(pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// RestartDaemon restarts the daemon process
func RestartDaemon(args []string, pidFile string, timeout time.Duration) (int, error) {
	if err := StopDaemon(pidFile, timeout); err != nil && !errors.Is(err, ErrNotRunning) {
		return 0, err
	}
	return StartDaemon(args, pidFile)
}

// ReadPID returns the PID recorded in pidFile, or ErrNotRunning when there is none.
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed PID file %s: %q", pidFile, data)
	}
	return pid, nil
}

// StripFlags removes the daemon control flags from args so the child runs in the foreground.
func StripFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch strings.TrimLeft(a, "-") {
		case "start-daemon", "stop-daemon", "restart-daemon":
			continue
		}
		out = append(out, a)
	}
	return out
}

func alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// GetExecutablePath returns the current executable path
func GetExecutablePath() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Abs(execPath)
}
