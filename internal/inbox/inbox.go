// Package inbox ingests sync requests dropped as JSON files into a watched
// directory. Each *.json file holds one request in the POST /v1/sync shape.
// Accepted files are removed; rejected files are renamed with a .rejected
// suffix. Writers should create files under another name and rename them
// into place so a half-written file is never read.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bernardzulu23/phasesync/internal/sync"
)

// Watch error backoff bounds.
const (
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2

	requestExt     = ".json"
	rejectedSuffix = ".rejected"
	dirPermissions = 0o700
)

// Submitter queues a decoded request.
type Submitter interface {
	Submit(req sync.Request) (string, error)
}

// Watcher is the subset of *fsnotify.Watcher the inbox uses.
type Watcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f *fsnotifyWatcher) Add(name string) error { return f.w.Add(name) }
func (f *fsnotifyWatcher) Close() error { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error { return f.w.Errors }

func newFsnotifyWatcher() (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

// Inbox watches one directory and submits every request file it sees.
type Inbox struct {
	dir        string
	submitter  Submitter
	logger     *slog.Logger
	newWatcher func() (Watcher, error)
	errBackoff time.Duration
}

// New returns an inbox for dir.
func New(dir string, submitter Submitter, logger *slog.Logger) *Inbox {
	return &Inbox{
		dir:        dir,
		submitter:  submitter,
		logger:     logger,
		newWatcher: newFsnotifyWatcher,
		errBackoff: watchErrInitBackoff,
	}
}

// Run creates the directory if needed, ingests files already present, then
// watches for new ones until ctx ends.
func (in *Inbox) Run(ctx context.Context) error {
	if err := os.MkdirAll(in.dir, dirPermissions); err != nil {
		return fmt.Errorf("inbox: creating %s: %w", in.dir, err)
	}

	watcher, err := in.newWatcher()
	if err != nil {
		return fmt.Errorf("inbox: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("inbox: watching %s: %w", in.dir, err)
	}

	in.logger.Info("inbox watching", slog.String("dir", in.dir))

	if err := in.ingestExisting(); err != nil {
		return err
	}

	return in.watchLoop(ctx, watcher)
}

// watchLoop processes watcher events and errors until ctx ends.
func (in *Inbox) watchLoop(ctx context.Context, watcher Watcher) error {
	errBackoff := in.errBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			in.handleEvent(ev)

			// Successful event resets error backoff.
			errBackoff = in.errBackoff

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			in.logger.Warn("inbox watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := timeSleep(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	if !isRequestFile(ev.Name) {
		return
	}

	in.ingest(ev.Name)
}

// ingestExisting submits files left in the directory while nothing was
// watching, in name order.
func (in *Inbox) ingestExisting() error {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("inbox: reading %s: %w", in.dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.Type().IsRegular() && isRequestFile(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	for _, name := range names {
		in.ingest(filepath.Join(in.dir, name))
	}

	return nil
}

// ingest reads one request file and submits it. Accepted files are
// removed. Malformed or invalid requests are renamed aside. Other failures
// leave the file for the next start.
func (in *Inbox) ingest(path string) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Already handled by a duplicate event.
		return
	}

	if err != nil {
		in.logger.Warn("inbox read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	req, err := sync.DecodeRequest(raw)
	if err == nil {
		var id string

		id, err = in.submitter.Submit(req)
		if err == nil {
			in.logger.Info("inbox request queued",
				slog.String("file", filepath.Base(path)),
				slog.String("id", id),
				slog.String("user_id", req.UserID),
			)
			in.remove(path)

			return
		}
	}

	if errors.Is(err, sync.ErrMalformed) || errors.Is(err, sync.ErrValidation) {
		in.reject(path, err)
		return
	}

	in.logger.Warn("inbox submit failed, leaving file",
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

func (in *Inbox) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		in.logger.Warn("inbox remove failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (in *Inbox) reject(path string, cause error) {
	in.logger.Warn("inbox request rejected",
		slog.String("file", filepath.Base(path)),
		slog.String("error", cause.Error()),
	)

	if err := os.Rename(path, path+rejectedSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		in.logger.Warn("inbox rename failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func isRequestFile(name string) bool {
	base := filepath.Base(name)

	return strings.HasSuffix(base, requestExt) && !strings.HasPrefix(base, ".")
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
