package autoprint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autoprint/autoprint/internal/printing"
	"github.com/autoprint/autoprint/internal/readiness"
	"github.com/autoprint/autoprint/internal/retry"
	"github.com/autoprint/autoprint/internal/watch"
)

// fakeSource hands out queued batches.
type fakeSource struct {
	batches  chan watch.Batch
	done     chan struct{}
	once     sync.Once
	rearmErr error
	rearms   atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		batches: make(chan watch.Batch, 16),
		done:    make(chan struct{}),
	}
}

func (s *fakeSource) Next(ctx context.Context) (watch.Batch, error) {
	select {
	case <-s.done:
		return nil, watch.ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", watch.ErrInterrupted, ctx.Err())
	case <-s.done:
		return nil, watch.ErrClosed
	case b := <-s.batches:
		return b, nil
	}
}

func (s *fakeSource) Rearm() error {
	s.rearms.Add(1)
	return s.rearmErr
}

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSource) send(events ...watch.Event) {
	s.batches <- watch.Batch(events)
}

// fakeSubsystem records submissions to a single printer.
type fakeSubsystem struct {
	mu          sync.Mutex
	submissions []printing.Submission
}

func (f *fakeSubsystem) Name() string { return "fake" }

func (f *fakeSubsystem) Services(context.Context) ([]printing.Service, error) {
	return []printing.Service{{Name: "OfficeJet"}, {Name: "Zebra"}}, nil
}

func (f *fakeSubsystem) Capabilities() printing.Capabilities {
	return printing.Capabilities{Copies: true}
}

func (f *fakeSubsystem) Submit(_ context.Context, s printing.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, s)
	return nil
}

func (f *fakeSubsystem) submitted() []printing.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.submissions)
}

// flakyLoader fails the first failures[name] loads of each file.
type flakyLoader struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func (f *flakyLoader) Load(path string) (readiness.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(path)
	f.calls[name]++
	if f.calls[name] <= f.failures[name] {
		return readiness.Document{}, errors.New("unexpected end of file")
	}
	return readiness.Document{Pages: 1}, nil
}

// recordingObserver collects outcomes and states.
type recordingObserver struct {
	outcomes chan Outcome
	mu       sync.Mutex
	states   []State
}

func (o *recordingObserver) ObserveOutcome(out Outcome) {
	o.outcomes <- out
}

func (o *recordingObserver) ObserveState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

type typerFunc func(string) (string, error)

func (f typerFunc) ContentType(path string) (string, error) { return f(path) }

type harness struct {
	dir      string
	loop     *Loop
	source   *fakeSource
	sub      *fakeSubsystem
	loader   *flakyLoader
	observer *recordingObserver
}

type harnessOptions struct {
	pattern  string
	mimeType string
	printer  string
	dedupe   bool
	typer    readiness.ContentTyper
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	if opts.pattern == "" {
		opts.pattern = `.*\.pdf`
	}
	if opts.printer == "" {
		opts.printer = "OfficeJet"
	}

	dir := t.TempDir()
	target, err := NewWatchTarget(dir, opts.pattern, opts.mimeType)
	if err != nil {
		t.Fatalf("NewWatchTarget() failed: %v", err)
	}

	loader := &flakyLoader{failures: map[string]int{}, calls: map[string]int{}}
	detector, err := readiness.New(readiness.Config{ContentAttempts: 3, Sleep: retry.NoSleep}, nil, loader)
	if err != nil {
		t.Fatalf("readiness.New() failed: %v", err)
	}

	sub := &fakeSubsystem{}
	dispatcher, err := printing.NewDispatcher(sub, opts.printer, false)
	if err != nil {
		t.Fatalf("NewDispatcher() failed: %v", err)
	}

	source := newFakeSource()
	observer := &recordingObserver{outcomes: make(chan Outcome, 64)}
	loop, err := New(Config{Target: target, Dedupe: opts.dedupe}, Deps{
		Source:     source,
		Detector:   detector,
		Dispatcher: dispatcher,
		Typer:      opts.typer,
		Observer:   observer,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	return &harness{dir: target.Dir, loop: loop, source: source, sub: sub, loader: loader, observer: observer}
}

func (h *harness) file(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4\n"), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func (h *harness) run(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()
	return done
}

func (h *harness) nextOutcome(t *testing.T) Outcome {
	t.Helper()
	select {
	case out := <-h.observer.outcomes:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for outcome")
		return Outcome{}
	}
}

func waitForState(t *testing.T, l *Loop, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for state %v, still %v", want, l.State())
}

func waitForRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return")
		return nil
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func created(path string) watch.Event {
	return watch.Event{Kind: watch.Created, Path: path}
}

func TestLoop_PrintScenario(t *testing.T) {
	h := newHarness(t, harnessOptions{mimeType: "application/pdf"})
	invoice := h.file(t, "invoice.pdf")
	label := h.file(t, "label-thermal.pdf")
	text := h.file(t, "invoice.txt")

	done := h.run(context.Background())

	h.source.send(created(invoice))
	h.source.send(created(label))
	h.source.send(created(text))

	want := []struct {
		path   string
		status Status
		copies int
	}{
		{path: invoice, status: StatusPrinted, copies: 1},
		{path: label, status: StatusPrinted, copies: 2},
		{path: text, status: StatusSkipped},
	}
	for _, w := range want {
		out := h.nextOutcome(t)
		if out.Path != w.path || out.Status != w.status || out.Copies != w.copies {
			t.Errorf("Expected %s %s %d copies, got %s %s %d copies",
				filepath.Base(w.path), w.status, w.copies, filepath.Base(out.Path), out.Status, out.Copies)
		}
	}

	// The next iteration starts by draining the label's deletion.
	waitForState(t, h.loop, Listening)
	if err := h.loop.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := waitForRun(t, done); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	subs := h.sub.submitted()
	if len(subs) != 2 {
		t.Fatalf("Expected 2 submissions, got %d", len(subs))
	}
	if subs[0].Path != invoice || subs[0].Copies != 1 || subs[0].Printer != "OfficeJet" {
		t.Errorf("Unexpected first submission %+v", subs[0])
	}
	if subs[1].Path != label || subs[1].Copies != 2 {
		t.Errorf("Unexpected second submission %+v", subs[1])
	}

	if exists(invoice) || exists(label) {
		t.Error("Expected printed files to be deleted")
	}
	if !exists(text) {
		t.Error("Expected skipped file to remain")
	}
	if h.loop.State() != Stopped {
		t.Errorf("Expected Stopped, got %v", h.loop.State())
	}
	if n := h.source.rearms.Load(); n != 3 {
		t.Errorf("Expected 3 re-arms, got %d", n)
	}
}

func TestLoop_ProcessFileFilters(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		mimeType string
		typer    readiness.ContentTyper
		want     Status
		wantType string
	}{
		{
			name:     "name mismatch",
			file:     "invoice.txt",
			mimeType: "application/pdf",
			typer:    typerFunc(func(string) (string, error) { return "text/plain", nil }),
			want:     StatusSkipped,
			wantType: "text/plain",
		},
		{
			name:     "partial download name",
			file:     "invoice.pdf.crdownload",
			typer:    typerFunc(func(string) (string, error) { return "application/pdf", nil }),
			want:     StatusSkipped,
			wantType: "application/pdf",
		},
		{
			name:     "mime mismatch",
			file:     "invoice.pdf",
			mimeType: "application/pdf",
			typer:    typerFunc(func(string) (string, error) { return "text/plain", nil }),
			want:     StatusSkipped,
			wantType: "text/plain",
		},
		{
			name:     "detection failure is unknown",
			file:     "invoice.pdf",
			mimeType: "application/pdf",
			typer:    typerFunc(func(string) (string, error) { return "", errors.New("probe failed") }),
			want:     StatusSkipped,
			wantType: "unknown",
		},
		{
			name:     "mime match",
			file:     "invoice.pdf",
			mimeType: "application/pdf",
			want:     StatusPrinted,
			wantType: "application/pdf",
		},
		{
			name:     "no mime filter still detects type",
			file:     "invoice.pdf",
			typer:    typerFunc(func(string) (string, error) { return "application/octet-stream", nil }),
			want:     StatusPrinted,
			wantType: "application/octet-stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{mimeType: tt.mimeType, typer: tt.typer})
			path := h.file(t, tt.file)

			out := h.loop.ProcessFile(context.Background(), path)
			if out.Status != tt.want {
				t.Fatalf("Expected %s, got %s (%v)", tt.want, out.Status, out.Err)
			}
			if out.ContentType != tt.wantType {
				t.Errorf("Expected content type %q, got %q", tt.wantType, out.ContentType)
			}
			if tt.want == StatusSkipped {
				if calls := h.loader.calls[tt.file]; calls != 0 {
					t.Errorf("Skipped file should not be checked, got %d loads", calls)
				}
				if len(h.sub.submitted()) != 0 {
					t.Error("Skipped file should not be printed")
				}
			}
		})
	}
}

func TestLoop_VanishedFile(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	path := filepath.Join(h.dir, "gone.pdf")

	out := h.loop.ProcessFile(context.Background(), path)
	if out.Status != StatusVanished {
		t.Fatalf("Expected vanished, got %s (%v)", out.Status, out.Err)
	}
	if !errors.Is(out.Err, readiness.ErrFileVanished) {
		t.Errorf("Expected ErrFileVanished, got %v", out.Err)
	}
	if len(h.sub.submitted()) != 0 {
		t.Error("Vanished file should not be printed")
	}
	if len(h.loop.Pending()) != 0 {
		t.Errorf("Vanished file should not be queued, got %v", h.loop.Pending())
	}
}

func TestLoop_ContentRetries(t *testing.T) {
	t.Run("fails twice then succeeds", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})
		path := h.file(t, "slow.pdf")
		h.loader.failures["slow.pdf"] = 2

		out := h.loop.ProcessFile(context.Background(), path)
		if out.Status != StatusPrinted {
			t.Fatalf("Expected printed, got %s (%v)", out.Status, out.Err)
		}
		if out.Attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", out.Attempts)
		}
		if len(h.sub.submitted()) != 1 {
			t.Errorf("Expected exactly 1 submission, got %d", len(h.sub.submitted()))
		}
		if pending := h.loop.Pending(); len(pending) != 1 || pending[0] != path {
			t.Errorf("Expected one cleanup entry for %s, got %v", path, pending)
		}
	})

	t.Run("fails three times", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})
		path := h.file(t, "broken.pdf")
		h.loader.failures["broken.pdf"] = 3

		out := h.loop.ProcessFile(context.Background(), path)
		if out.Status != StatusUnreadable {
			t.Fatalf("Expected unreadable, got %s", out.Status)
		}
		if !errors.Is(out.Err, readiness.ErrContentUnreadable) {
			t.Errorf("Expected ErrContentUnreadable, got %v", out.Err)
		}
		if len(h.sub.submitted()) != 0 {
			t.Error("Unreadable file should not be printed")
		}
		h.loop.DrainCleanup()
		if !exists(path) {
			t.Error("Unreadable file should not be deleted")
		}
	})
}

func TestLoop_DeletesOnNextDrain(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	path := h.file(t, "invoice.pdf")

	if out := h.loop.ProcessFile(context.Background(), path); out.Status != StatusPrinted {
		t.Fatalf("Expected printed, got %s (%v)", out.Status, out.Err)
	}
	if !exists(path) {
		t.Fatal("File should remain until the next drain")
	}

	results := h.loop.DrainCleanup()
	if len(results) != 1 || results[0].Err != nil || results[0].Missing {
		t.Fatalf("Unexpected drain results %+v", results)
	}
	if exists(path) {
		t.Error("File should be deleted after drain")
	}
	if results := h.loop.DrainCleanup(); len(results) != 0 {
		t.Errorf("Second drain should be empty, got %+v", results)
	}
}

func TestLoop_DrainToleratesMissingFile(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	path := h.file(t, "invoice.pdf")

	h.loop.ProcessFile(context.Background(), path)
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}

	results := h.loop.DrainCleanup()
	if len(results) != 1 || results[0].Err != nil || !results[0].Missing {
		t.Errorf("Expected a tolerated missing file, got %+v", results)
	}
}

func TestLoop_PrinterNotFound(t *testing.T) {
	h := newHarness(t, harnessOptions{printer: "LaserWriter"})
	path := h.file(t, "invoice.pdf")

	out := h.loop.ProcessFile(context.Background(), path)
	if out.Status != StatusPrinterNotFound {
		t.Fatalf("Expected printer_not_found, got %s", out.Status)
	}
	if !errors.Is(out.Err, printing.ErrPrinterNotFound) {
		t.Errorf("Expected ErrPrinterNotFound, got %v", out.Err)
	}
	if len(h.loop.Pending()) != 0 {
		t.Error("Unprinted file should not be queued for deletion")
	}
}

func TestLoop_Dedupe(t *testing.T) {
	tests := []struct {
		name            string
		dedupe          bool
		wantSecond      Status
		wantSubmissions int
		wantPending     int
	}{
		{name: "enabled", dedupe: true, wantSecond: StatusDuplicate, wantSubmissions: 1, wantPending: 1},
		{name: "disabled", dedupe: false, wantSecond: StatusPrinted, wantSubmissions: 2, wantPending: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{dedupe: tt.dedupe})
			path := h.file(t, "invoice.pdf")

			if out := h.loop.ProcessFile(context.Background(), path); out.Status != StatusPrinted {
				t.Fatalf("Expected first print, got %s (%v)", out.Status, out.Err)
			}
			if out := h.loop.ProcessFile(context.Background(), path); out.Status != tt.wantSecond {
				t.Errorf("Expected %s, got %s", tt.wantSecond, out.Status)
			}
			if n := len(h.sub.submitted()); n != tt.wantSubmissions {
				t.Errorf("Expected %d submissions, got %d", tt.wantSubmissions, n)
			}
			if n := len(h.loop.Pending()); n != tt.wantPending {
				t.Errorf("Expected %d cleanup entries, got %d", tt.wantPending, n)
			}
		})
	}
}

func TestLoop_DedupeForgetsDeletedFiles(t *testing.T) {
	h := newHarness(t, harnessOptions{dedupe: true})
	path := h.file(t, "invoice.pdf")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	h.loop.ProcessFile(context.Background(), path)
	h.loop.DrainCleanup()

	// Same name, size and modification time as the deleted file.
	h.file(t, "invoice.pdf")
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	if out := h.loop.ProcessFile(context.Background(), path); out.Status != StatusPrinted {
		t.Errorf("Expected reprint after deletion, got %s", out.Status)
	}
}

func TestLoop_StopUnblocksRun(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	done := h.run(context.Background())

	waitForState(t, h.loop, Listening)
	if err := h.loop.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if err := waitForRun(t, done); err != nil {
		t.Errorf("Expected nil from Run after Stop, got %v", err)
	}
	if h.loop.State() != Stopped {
		t.Errorf("Expected Stopped, got %v", h.loop.State())
	}

	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	if len(h.observer.states) == 0 || h.observer.states[len(h.observer.states)-1] != Stopped {
		t.Errorf("Expected observer to see Stopped last, got %v", h.observer.states)
	}
}

func TestLoop_ContextCancelStopsRun(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	done := h.run(ctx)

	waitForState(t, h.loop, Listening)
	cancel()

	if err := waitForRun(t, done); err != nil {
		t.Errorf("Expected nil from Run after cancel, got %v", err)
	}
}

func TestLoop_RearmFailureStopsRun(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.source.rearmErr = fmt.Errorf("%w: directory removed", watch.ErrInvalidKey)
	path := h.file(t, "invoice.pdf")

	done := h.run(context.Background())
	h.source.send(created(path))

	err := waitForRun(t, done)
	if !errors.Is(err, watch.ErrInvalidKey) {
		t.Fatalf("Expected ErrInvalidKey, got %v", err)
	}
	if h.loop.State() != Stopped {
		t.Errorf("Expected Stopped, got %v", h.loop.State())
	}
	// The batch was still handled before the re-arm.
	if len(h.sub.submitted()) != 1 {
		t.Errorf("Expected 1 submission, got %d", len(h.sub.submitted()))
	}
}

func TestLoop_SkipsOverflowAndInvalidated(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	path := h.file(t, "invoice.pdf")

	done := h.run(context.Background())
	h.source.send(watch.Event{Kind: watch.Overflow}, watch.Event{Kind: watch.Invalidated, Path: h.dir}, created(path))

	out := h.nextOutcome(t)
	if out.Path != path || out.Status != StatusPrinted {
		t.Errorf("Expected only %s to be processed, got %+v", path, out)
	}

	waitForState(t, h.loop, Listening)
	h.loop.Stop()
	if err := waitForRun(t, done); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	select {
	case extra := <-h.observer.outcomes:
		t.Errorf("Unexpected outcome %+v", extra)
	default:
	}
}

func TestLoop_WatchedDirectoryRemoved(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "downloads")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	source, err := watch.Open(dir)
	if err != nil {
		t.Fatalf("watch.Open() failed: %v", err)
	}
	defer source.Close()

	target, err := NewWatchTarget(dir, `.*\.pdf`, "")
	if err != nil {
		t.Fatalf("NewWatchTarget() failed: %v", err)
	}
	detector, _ := readiness.New(readiness.Config{ContentAttempts: 1, Sleep: retry.NoSleep}, nil, &flakyLoader{failures: map[string]int{}, calls: map[string]int{}})
	dispatcher, _ := printing.NewDispatcher(&fakeSubsystem{}, "OfficeJet", false)

	loop, err := New(Config{Target: target}, Deps{Source: source, Detector: detector, Dispatcher: dispatcher})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	waitForState(t, loop, Listening)
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("Failed to remove dir: %v", err)
	}

	if err := waitForRun(t, done); !errors.Is(err, watch.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	target, err := NewWatchTarget(t.TempDir(), `.*`, "")
	if err != nil {
		t.Fatalf("NewWatchTarget() failed: %v", err)
	}
	detector, _ := readiness.New(readiness.DefaultConfig(), nil, nil)
	dispatcher, _ := printing.NewDispatcher(&fakeSubsystem{}, "OfficeJet", false)

	tests := []struct {
		name string
		cfg  Config
		deps Deps
	}{
		{name: "no pattern", cfg: Config{}, deps: Deps{Detector: detector, Dispatcher: dispatcher}},
		{name: "no detector", cfg: Config{Target: target}, deps: Deps{Dispatcher: dispatcher}},
		{name: "no dispatcher", cfg: Config{Target: target}, deps: Deps{Detector: detector}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}

	l, err := New(Config{Target: target}, Deps{Detector: detector, Dispatcher: dispatcher})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := l.Run(context.Background()); err == nil {
		t.Error("Run() without a source should fail")
	}
	if l.State() != Stopped {
		t.Errorf("Expected Stopped after Run() returned, got %v", l.State())
	}
	if err := l.Stop(); err != nil {
		t.Errorf("Stop() without a source should be a no-op, got %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		Draining:    "draining",
		Listening:   "listening",
		Filtering:   "filtering",
		Dispatching: "dispatching",
		Stopped:     "stopped",
		State(99):   "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}
