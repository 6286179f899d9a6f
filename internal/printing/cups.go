package printing

import (
	"context"
	"fmt"
	"strconv"
)

func init() {
	Register("cups", func(opts Options) (Subsystem, error) {
		return &CUPS{runner: opts.runner()}, nil
	})
}

// CUPS submits jobs with the System V commands shipped by CUPS.
type CUPS struct {
	runner Runner
}

// Name implements Subsystem.
func (c *CUPS) Name() string { return "cups" }

// Capabilities implements Subsystem. lp accepts a copy count.
func (c *CUPS) Capabilities() Capabilities {
	return Capabilities{Copies: true}
}

// Services implements Subsystem using "lpstat -e", which prints one
// destination name per line.
func (c *CUPS) Services(ctx context.Context) ([]Service, error) {
	return listDestinations(ctx, c.runner)
}

// Submit implements Subsystem.
func (c *CUPS) Submit(ctx context.Context, s Submission) error {
	args := []string{"-d", s.Printer, "-n", strconv.Itoa(s.Copies)}
	if s.Title != "" {
		args = append(args, "-t", s.Title)
	}
	args = append(args, "--", s.Path)

	_, err := c.runner.Run(ctx, "lp", args...)
	return err
}

func listDestinations(ctx context.Context, runner Runner) ([]Service, error) {
	out, err := runner.Run(ctx, "lpstat", "-e")
	if err != nil {
		return nil, fmt.Errorf("failed to list print services: %w", err)
	}

	lines := parseLines(out)
	services := make([]Service, 0, len(lines))
	for _, name := range lines {
		services = append(services, Service{Name: name})
	}
	return services, nil
}
