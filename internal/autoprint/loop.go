// Package autoprint implements the watcher loop that prints files as they
// finish downloading.
//
// Each iteration of the loop:
//  1. Deletes the files printed during the previous iteration
//  2. Blocks until the directory reports new entries
//  3. Filters each entry by name and content type
//  4. Waits for matching files to be ready and prints them
//  5. Re-arms the directory watch
//
// Files are processed one at a time on the loop's goroutine.
package autoprint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autoprint/autoprint/internal/cleanup"
	"github.com/autoprint/autoprint/internal/logging"
	"github.com/autoprint/autoprint/internal/printing"
	"github.com/autoprint/autoprint/internal/readiness"
	"github.com/autoprint/autoprint/internal/watch"
)

// EventSource delivers batches of directory events. *watch.Source
// implements it.
type EventSource interface {
	Next(ctx context.Context) (watch.Batch, error)
	Rearm() error
	Close() error
}

// Detector waits for a file to be ready. *readiness.Detector implements it.
type Detector interface {
	Check(ctx context.Context, path string) (readiness.Report, error)
}

// Dispatcher prints a ready file. *printing.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, path string) (printing.Job, error)
}

// Observer is notified of outcomes and state changes. Calls are made on the
// loop's goroutine and must not block.
type Observer interface {
	ObserveOutcome(Outcome)
	ObserveState(State)
}

// Config holds the loop's configuration.
type Config struct {
	Target WatchTarget

	// Dedupe suppresses printing a file again while an identical copy (same
	// path, size and modification time) is waiting for deletion.
	Dedupe bool

	// Logger for loop activity. Nil discards.
	Logger *logging.Logger
}

// Deps are the loop's collaborators.
type Deps struct {
	// Source is required by Run. ProcessFile works without it.
	Source     EventSource
	Detector   Detector
	Dispatcher Dispatcher

	// Typer defaults to readiness.MIMETyper.
	Typer readiness.ContentTyper

	// Cleanup defaults to a new queue.
	Cleanup *cleanup.Queue

	// Observer is optional.
	Observer Observer
}

// identity distinguishes one written file from a later rewrite of the same
// path.
type identity struct {
	size    int64
	modTime time.Time
}

// Loop is the watcher loop.
type Loop struct {
	target   WatchTarget
	dedupe   bool
	log      *logging.Logger
	source   EventSource
	detector Detector
	printer  Dispatcher
	typer    readiness.ContentTyper
	cleanup  *cleanup.Queue
	observer Observer

	state atomic.Int32

	// printed holds the identities of printed files awaiting deletion.
	printedMu sync.Mutex
	printed   map[string]identity
}

// New creates a loop. It starts in Draining and does nothing until Run.
func New(cfg Config, deps Deps) (*Loop, error) {
	if cfg.Target.NamePattern == nil {
		return nil, fmt.Errorf("watch target has no file name pattern")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}

	l := &Loop{
		target:   cfg.Target,
		dedupe:   cfg.Dedupe,
		log:      cfg.Logger,
		source:   deps.Source,
		detector: deps.Detector,
		printer:  deps.Dispatcher,
		typer:    deps.Typer,
		cleanup:  deps.Cleanup,
		observer: deps.Observer,
		printed:  make(map[string]identity),
	}
	if l.log == nil {
		l.log = logging.Discard()
	}
	if l.typer == nil {
		l.typer = readiness.MIMETyper{}
	}
	if l.cleanup == nil {
		l.cleanup = cleanup.New()
	}
	return l, nil
}

// State returns the loop's current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) != s && l.observer != nil {
		l.observer.ObserveState(s)
	}
}

// Run processes directory events until ctx is cancelled, Stop is called or
// the directory can no longer be watched. It returns nil in the first two
// cases and an error wrapping watch.ErrInvalidKey in the last. Run must not
// be called more than once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(Stopped)

	if l.source == nil {
		return fmt.Errorf("loop has no event source")
	}

	l.log.Infof("Watching %s for %s", l.target.Dir, l.describeFilter())

	for {
		l.setState(Draining)
		l.DrainCleanup()

		l.setState(Listening)
		batch, err := l.source.Next(ctx)
		if err != nil {
			if errors.Is(err, watch.ErrClosed) || errors.Is(err, watch.ErrInterrupted) {
				l.log.Infof("Stopping: %v", err)
				return nil
			}
			return fmt.Errorf("failed to read directory events: %w", err)
		}

		for _, ev := range batch {
			if ctx.Err() != nil {
				break
			}
			switch ev.Kind {
			case watch.Created:
				l.ProcessFile(ctx, ev.Path)
			case watch.Overflow:
				l.log.Warnf("Event buffer overflowed, some files may have been missed")
			default:
				l.log.Debugf("Ignoring %s event for %s", ev.Kind, ev.Path)
			}
		}

		if ctx.Err() != nil {
			l.log.Infof("Stopping: %v", ctx.Err())
			return nil
		}

		if err := l.source.Rearm(); err != nil {
			if errors.Is(err, watch.ErrClosed) {
				l.log.Infof("Stopping: %v", err)
				return nil
			}
			l.log.Errorf("Cannot keep watching %s: %v", l.target.Dir, err)
			return fmt.Errorf("failed to re-arm watch on %s: %w", l.target.Dir, err)
		}
	}
}

// Stop closes the event source, which makes a blocked Run return nil.
func (l *Loop) Stop() error {
	if l.source == nil {
		return nil
	}
	return l.source.Close()
}

// ProcessFile filters, checks and prints one file, then logs the outcome and
// passes it to the observer. Printed files are queued for deletion.
func (l *Loop) ProcessFile(ctx context.Context, path string) Outcome {
	out := l.process(ctx, path)
	l.report(out)
	return out
}

func (l *Loop) process(ctx context.Context, path string) Outcome {
	l.setState(Filtering)

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	out := Outcome{Path: path, ContentType: l.contentType(path)}
	l.log.Debugf("New file %s (%s)", filepath.Base(path), out.ContentType)

	if !l.target.MatchesName(path) {
		out.Status = StatusSkipped
		return out
	}
	if l.target.MimeType != "" && !l.target.MatchesType(out.ContentType) {
		out.Status = StatusSkipped
		return out
	}

	l.setState(Dispatching)

	report, err := l.detector.Check(ctx, path)
	out.Pages = report.Pages
	out.LockWaits = report.LockWaits
	out.Attempts = report.Attempts
	if err != nil {
		out.Status = readinessStatus(err)
		if ctx.Err() != nil {
			out.Status = StatusInterrupted
		}
		out.Err = err
		return out
	}

	id, statErr := statIdentity(path)
	if l.dedupe && statErr == nil && l.alreadyPrinted(path, id) {
		out.Status = StatusDuplicate
		return out
	}

	job, err := l.printer.Dispatch(ctx, path)
	out.Copies = job.Copies
	out.Submissions = job.Submissions
	if err != nil {
		out.Status = dispatchStatus(err)
		if ctx.Err() != nil {
			out.Status = StatusInterrupted
		}
		out.Err = err
		return out
	}

	out.Status = StatusPrinted
	if statErr == nil {
		l.remember(path, id)
	}
	l.cleanup.Push(path)
	return out
}

// contentType detects the type of path, or "unknown" if detection fails.
func (l *Loop) contentType(path string) string {
	ct, err := l.typer.ContentType(path)
	if err != nil || ct == "" {
		l.log.Debugf("Could not detect content type of %s: %v", path, err)
		return "unknown"
	}
	return ct
}

// DrainCleanup deletes every printed file queued for deletion.
func (l *Loop) DrainCleanup() []cleanup.Result {
	results := l.cleanup.Drain()
	for _, r := range results {
		switch {
		case r.Err != nil:
			l.log.Warnf("Failed to delete %s: %v", r.Path, r.Err)
		case r.Missing:
			l.log.Debugf("Already gone: %s", r.Path)
		default:
			l.log.Debugf("Deleted %s", r.Path)
		}
		l.forget(r.Path)
	}
	return results
}

// Pending returns the paths waiting for deletion.
func (l *Loop) Pending() []string {
	return l.cleanup.Pending()
}

func (l *Loop) report(out Outcome) {
	name := filepath.Base(out.Path)
	switch out.Status {
	case StatusPrinted:
		l.log.Infof("Printed %s (%d %s, %d %s)", name, out.Copies, plural(out.Copies, "copy", "copies"),
			out.Submissions, plural(out.Submissions, "job", "jobs"))
	case StatusSkipped:
		l.log.Debugf("Skipped %s", name)
	case StatusDuplicate:
		l.log.Infof("Skipped %s: already printed", name)
	case StatusVanished:
		l.log.Warnf("Skipped %s: file disappeared before it could be printed", name)
	case StatusInterrupted:
		l.log.Warnf("Abandoned %s: %v", name, out.Err)
	default:
		l.log.Errorf("Failed to print %s: %v", name, out.Err)
	}

	if l.observer != nil {
		l.observer.ObserveOutcome(out)
	}
}

func (l *Loop) describeFilter() string {
	filter := fmt.Sprintf("names matching %s", l.target.NamePattern)
	if l.target.MimeType != "" {
		filter += fmt.Sprintf(" of type %s", l.target.MimeType)
	}
	return filter
}

func (l *Loop) alreadyPrinted(path string, id identity) bool {
	l.printedMu.Lock()
	defer l.printedMu.Unlock()
	prev, ok := l.printed[path]
	return ok && prev.size == id.size && prev.modTime.Equal(id.modTime)
}

func (l *Loop) remember(path string, id identity) {
	l.printedMu.Lock()
	defer l.printedMu.Unlock()
	l.printed[path] = id
}

func (l *Loop) forget(path string) {
	l.printedMu.Lock()
	defer l.printedMu.Unlock()
	delete(l.printed, path)
}

func statIdentity(path string) (identity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return identity{}, err
	}
	return identity{size: info.Size(), modTime: info.ModTime()}, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
