package printing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// Dispatcher sends files to one named printer. It holds no state beyond its
// configuration, so callers serialize submissions themselves.
type Dispatcher struct {
	sub     Subsystem
	printer string
	repeat  bool
}

// NewDispatcher creates a dispatcher for printer. When repeat is true every
// copy is submitted as its own single-copy job even if the subsystem
// supports a copies attribute.
func NewDispatcher(sub Subsystem, printer string, repeat bool) (*Dispatcher, error) {
	if sub == nil {
		return nil, errors.New("print subsystem is required")
	}
	if printer == "" {
		return nil, errors.New("printer name is required")
	}
	return &Dispatcher{sub: sub, printer: printer, repeat: repeat}, nil
}

// Printer returns the configured printer name.
func (d *Dispatcher) Printer() string {
	return d.printer
}

// Resolve finds the configured printer among the subsystem's services by
// exact, case-sensitive name.
func (d *Dispatcher) Resolve(ctx context.Context) (Service, error) {
	services, err := d.sub.Services(ctx)
	if err != nil {
		return Service{}, fmt.Errorf("%w: %s: %w", ErrPrinterNotFound, d.printer, err)
	}
	for _, s := range services {
		if s.Name == d.printer {
			return s, nil
		}
	}
	return Service{}, fmt.Errorf("%w: %s", ErrPrinterNotFound, d.printer)
}

// Dispatch prints path with the number of copies given by CopiesFor.
//
// The returned job is filled in even on failure, with Submissions counting
// the requests that succeeded. Failures wrap ErrPrinterNotFound or
// ErrPrintFailure.
func (d *Dispatcher) Dispatch(ctx context.Context, path string) (Job, error) {
	job := Job{
		Path:    path,
		Printer: d.printer,
		Title:   filepath.Base(path),
		Copies:  CopiesFor(path),
	}

	service, err := d.Resolve(ctx)
	if err != nil {
		return job, err
	}

	if d.sub.Capabilities().Copies && !d.repeat {
		if err := d.submit(ctx, service, job, job.Copies); err != nil {
			return job, err
		}
		job.Submissions = 1
		return job, nil
	}

	for range job.Copies {
		if err := d.submit(ctx, service, job, 1); err != nil {
			return job, err
		}
		job.Submissions++
	}
	return job, nil
}

func (d *Dispatcher) submit(ctx context.Context, service Service, job Job, copies int) error {
	err := d.sub.Submit(ctx, Submission{
		Printer: service.Name,
		Path:    job.Path,
		Title:   job.Title,
		Copies:  copies,
	})
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %w", ErrPrintFailure, job.Title, service.Name, err)
	}
	return nil
}
