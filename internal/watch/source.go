// Package watch provides the directory event source for the autoprint loop.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrClosed is returned by Next once Close has been called.
	ErrClosed = errors.New("watcher closed")

	// ErrInterrupted is returned by Next when its context is cancelled.
	ErrInterrupted = errors.New("watcher interrupted")

	// ErrInvalidKey is returned by Rearm when the watched directory can no
	// longer be watched (removed, replaced by a file, permission lost).
	ErrInvalidKey = errors.New("watch key no longer valid")
)

// Kind is the type of a directory event.
type Kind int

const (
	// Created indicates a new entry appeared in the directory.
	Created Kind = iota
	// Overflow indicates the notification buffer overflowed and events
	// were lost. Consumers skip it.
	Overflow
	// Invalidated indicates the directory itself was removed or renamed.
	// The next Rearm reports whether watching can continue.
	Invalidated
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case Created:
		return "create"
	case Overflow:
		return "overflow"
	case Invalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Event is a single directory notification.
type Event struct {
	Kind Kind
	// Path is the absolute path of the created entry, or the watched
	// directory for Invalidated. Empty for Overflow.
	Path string
}

// Batch holds the events delivered for one wake-up of the source.
type Batch []Event

// Option configures a Source.
type Option func(*Source)

// WithErrorHandler sets a callback for watcher errors other than overflow.
// The callback runs on the source's internal goroutine and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Source) {
		s.onError = fn
	}
}

// WithBuffer sets the capacity of the internal event buffer.
func WithBuffer(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.buffer = n
		}
	}
}

const defaultBuffer = 100

// Source watches one directory for created entries.
// It wraps fsnotify and serializes its events into batches.
type Source struct {
	watcher *fsnotify.Watcher
	dir     string
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	onError func(error)
	buffer  int

	// lost is set when the directory itself is removed or renamed away,
	// which drops the underlying watch.
	lost atomic.Bool

	mu     sync.Mutex
	closed bool
}

// Open starts watching dir. The directory must exist.
func Open(dir string, opts ...Option) (*Source, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", abs)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	s := &Source{
		watcher: watcher,
		dir:     abs,
		done:    make(chan struct{}),
		buffer:  defaultBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan Event, s.buffer)

	if err := watcher.Add(abs); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", abs, err)
	}

	s.wg.Add(1)
	go s.processEvents()

	return s, nil
}

// Dir returns the absolute path of the watched directory.
func (s *Source) Dir() string {
	return s.dir
}

// Next blocks until at least one event is available and returns it together
// with every other event already queued.
//
// It returns ErrClosed once Close has been called, including for a call that
// is already blocked, and an error wrapping ErrInterrupted and ctx.Err()
// when ctx is cancelled.
func (s *Source) Next(ctx context.Context) (Batch, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var first Event
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	case <-s.done:
		return nil, ErrClosed
	case first = <-s.events:
	}

	// Both cases may have been ready; Close wins.
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	batch := Batch{first}
	for {
		select {
		case ev := <-s.events:
			batch = append(batch, ev)
		default:
			return batch, nil
		}
	}
}

// Rearm checks that the directory is still watchable after a batch has been
// handled. If the directory was removed and recreated it is registered again.
func (s *Source) Rearm() error {
	if s.isClosed() {
		return ErrClosed
	}

	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidKey, s.dir)
	}

	if !s.lost.Load() && slices.Contains(s.watcher.WatchList(), s.dir) {
		return nil
	}

	_ = s.watcher.Remove(s.dir)
	if err := s.watcher.Add(s.dir); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	s.lost.Store(false)
	return nil
}

// Close stops the source and releases the fsnotify watcher.
// It is safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)

	// Closing the watcher unblocks processEvents.
	err := s.watcher.Close()
	s.wg.Wait()

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// processEvents forwards fsnotify events until the source is closed.
func (s *Source) processEvents() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name == s.dir && event.Has(fsnotify.Remove|fsnotify.Rename) {
				s.lost.Store(true)
				if !s.emit(Event{Kind: Invalidated, Path: s.dir}) {
					return
				}
				continue
			}
			if ev, ok := s.convertEvent(event); ok {
				if !s.emit(ev) {
					return
				}
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				if !s.emit(Event{Kind: Overflow}) {
					return
				}
				continue
			}
			if s.onError != nil {
				s.onError(err)
			}
		}
	}
}

func (s *Source) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// convertEvent keeps only creations of direct children of the directory.
func (s *Source) convertEvent(event fsnotify.Event) (Event, bool) {
	if !event.Has(fsnotify.Create) {
		return Event{}, false
	}

	path := event.Name
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	if filepath.Dir(path) != s.dir {
		return Event{}, false
	}

	return Event{Kind: Created, Path: path}, true
}
