package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFileMode = 0o644
	pidDirMode  = 0o700
)

var (
	errNoDaemon    = errors.New("no running phasesync serve")
	errStaleDaemon = errors.New("phasesync serve exited without removing its PID file")
)

// pidLock is the serve daemon's claim on its PID file. The flock is held for
// the life of the process, so a second serve fails fast instead of sharing
// the store and the listen address.
type pidLock struct {
	path string
	f    *os.File
}

func acquirePIDLock(path string) (*pidLock, error) {
	if path == "" {
		return nil, errors.New("no PID file location: cannot resolve a data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirMode); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFileMode)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another phasesync serve is already running (%s is locked)", path)
	}

	l := &pidLock{path: path, f: f}
	if err := l.record(os.Getpid()); err != nil {
		l.Release()

		return nil, err
	}

	return l, nil
}

// record replaces the file contents with pid and syncs so that status and
// reload in other processes see it at once.
func (l *pidLock) record(pid int) error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := l.f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}

	return l.f.Sync()
}

// Release removes the file, then drops the lock by closing it.
func (l *pidLock) Release() {
	os.Remove(l.path)
	l.f.Close()
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%s does not hold a PID: %q", path, strings.TrimSpace(string(data)))
	}

	return pid, nil
}

// findDaemon resolves the process named by the PID file. It returns
// errNoDaemon when there is no file and errStaleDaemon, with the PID, when
// the process is gone.
func findDaemon(pidPath string) (*os.Process, int, error) {
	if pidPath == "" {
		return nil, 0, errNoDaemon
	}

	pid, err := readPID(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w (no PID file at %s)", errNoDaemon, pidPath)
	}

	if err != nil {
		return nil, 0, err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, pid, fmt.Errorf("%w: PID %d", errStaleDaemon, pid)
	}

	// Signal 0 checks for existence without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, pid, fmt.Errorf("%w: PID %d", errStaleDaemon, pid)
	}

	return proc, pid, nil
}

// signalDaemon delivers sig to the running serve daemon. A stale PID file
// is removed.
func signalDaemon(pidPath string, sig os.Signal) error {
	proc, pid, err := findDaemon(pidPath)
	if errors.Is(err, errStaleDaemon) {
		os.Remove(pidPath)

		return fmt.Errorf("%w; removed %s", err, pidPath)
	}

	if err != nil {
		return err
	}

	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signalling PID %d: %w", pid, err)
	}

	return nil
}

// shutdownContext is canceled by the first SIGINT or SIGTERM. A second one
// exits immediately, for when draining hangs.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()

		if parent.Err() != nil {
			stop()
			return
		}

		force := make(chan os.Signal, 1)
		signal.Notify(force, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(force)

		stop()
		logger.Info("shutdown requested, draining")

		select {
		case sig := <-force:
			logger.Warn("second signal, exiting without drain", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-parent.Done():
		}
	}()

	return ctx
}
