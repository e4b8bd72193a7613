// Package daemonctl starts, stops and inspects the feels daemon process.
package daemonctl

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrNotRunning is returned when no live daemon is recorded.
	ErrNotRunning = errors.New("daemon not running")
	// ErrAlreadyRunning is returned when the daemon or its port is already up.
	ErrAlreadyRunning = errors.New("daemon already running")
)

const (
	// DialTimeout bounds the port check.
	DialTimeout = 200 * time.Millisecond
	// StopTimeout is how long Stop waits before killing the process.
	StopTimeout = 5 * time.Second
)

// Options describe how to launch the daemon.
type Options struct {
	Binary  string
	Args    []string
	Env     []string
	PIDPath string
	LogPath string
	Host    string
	Port    int
}

// State reports what is known about the daemon.
type State struct {
	Running   bool `json:"running"`
	PID       int  `json:"pid,omitempty"`
	Port      int  `json:"port"`
	PortInUse bool `json:"port_in_use"`
}

// IsPortInUse reports whether something accepts TCP connections on host:port.
func IsPortInUse(host string, port int) bool {
	if host == "" {
		host = "localhost"
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), DialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func lockFor(pidPath string) *flock.Flock {
	return flock.New(pidPath + ".lock")
}

// ReadPID returns the recorded pid, or ErrNotRunning when none is recorded.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", pidPath)
	}
	return pid, nil
}

// WritePID records pid under the pid-file lock.
func WritePID(pidPath string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(pidPath), 0755); err != nil {
		return err
	}
	fl := lockFor(pidPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock pid file: %w", err)
	}
	defer fl.Unlock() //nolint:errcheck
	return os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

// RemovePID deletes the pid file if it still names pid.
func RemovePID(pidPath string, pid int) error {
	fl := lockFor(pidPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock pid file: %w", err)
	}
	defer fl.Unlock() //nolint:errcheck

	recorded, err := ReadPID(pidPath)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			return nil
		}
		return err
	}
	if recorded != pid {
		return nil
	}
	return os.Remove(pidPath)
}

// Start launches the daemon detached from the caller's session and records
// its pid. It refuses when the port is bound or a live pid is recorded.
func Start(opts Options) (int, error) {
	if opts.Port > 0 && IsPortInUse(opts.Host, opts.Port) {
		return 0, fmt.Errorf("%w: port %d in use", ErrAlreadyRunning, opts.Port)
	}
	if pid, err := ReadPID(opts.PIDPath); err == nil && ProcessExists(pid) {
		return pid, fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(filepath.Dir(opts.PIDPath), 0755); err != nil {
		return 0, err
	}

	cmd := exec.Command(opts.Binary, opts.Args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.SysProcAttr = detachedAttr()

	if opts.LogPath != "" {
		logFile, err := os.OpenFile(opts.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return 0, fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	// Reap the child if it exits while we are still around
	go func() { _ = cmd.Wait() }()

	if err := WritePID(opts.PIDPath, pid); err != nil {
		return pid, fmt.Errorf("write pid file: %w", err)
	}
	return pid, nil
}

// Stop terminates the recorded daemon and removes the pid file.
func Stop(pidPath string) error {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return err
	}
	if !ProcessExists(pid) {
		_ = RemovePID(pidPath, pid)
		return ErrNotRunning
	}

	if err := terminate(pid); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(StopTimeout)
	for time.Now().Before(deadline) {
		if !ProcessExists(pid) {
			return RemovePID(pidPath, pid)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
	return RemovePID(pidPath, pid)
}

// Status combines the pid file and a port check.
func Status(pidPath, host string, port int) State {
	st := State{Port: port, PortInUse: IsPortInUse(host, port)}
	if pid, err := ReadPID(pidPath); err == nil && ProcessExists(pid) {
		st.PID = pid
		st.Running = true
	}
	return st
}
