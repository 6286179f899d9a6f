// Package printing resolves the configured printer and submits documents to
// the operating system's print subsystem.
package printing

import (
	"context"
	"path/filepath"
	"strings"
)

// Service is one print destination known to the subsystem.
type Service struct {
	Name string
}

// Capabilities describes optional features of a subsystem.
type Capabilities struct {
	// Copies reports whether a single submission can request several copies.
	Copies bool
}

// Submission is one request handed to the subsystem.
type Submission struct {
	Printer string
	Path    string
	Title   string
	Copies  int
}

// Subsystem enumerates print services and accepts submissions.
type Subsystem interface {
	// Name returns the backend name used in configuration.
	Name() string

	// Services lists the available print destinations.
	Services(ctx context.Context) ([]Service, error)

	// Capabilities reports what a single submission can express.
	Capabilities() Capabilities

	// Submit hands one document to the subsystem.
	Submit(ctx context.Context, s Submission) error
}

// Job describes a completed dispatch.
type Job struct {
	Path    string
	Printer string
	Title   string
	Copies  int

	// Submissions is the number of requests issued to the subsystem. It is 1
	// when the copies attribute was used and Copies otherwise.
	Submissions int
}

// CopiesFor returns the number of copies to print for a file name: two for
// names containing "thermal" in any case, one otherwise.
func CopiesFor(name string) int {
	if strings.Contains(strings.ToLower(filepath.Base(name)), "thermal") {
		return 2
	}
	return 1
}
