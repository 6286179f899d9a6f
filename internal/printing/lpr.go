package printing

import (
	"context"
	"strconv"
)

func init() {
	Register("lpr", func(opts Options) (Subsystem, error) {
		return &LPR{runner: opts.runner()}, nil
	})
}

// LPR submits jobs with the Berkeley lpr command. Destinations are still
// listed with lpstat.
type LPR struct {
	runner Runner
}

// Name implements Subsystem.
func (l *LPR) Name() string { return "lpr" }

// Capabilities implements Subsystem.
func (l *LPR) Capabilities() Capabilities {
	return Capabilities{Copies: true}
}

// Services implements Subsystem.
func (l *LPR) Services(ctx context.Context) ([]Service, error) {
	return listDestinations(ctx, l.runner)
}

// Submit implements Subsystem.
func (l *LPR) Submit(ctx context.Context, s Submission) error {
	args := []string{"-P", s.Printer, "-#", strconv.Itoa(s.Copies)}
	if s.Title != "" {
		args = append(args, "-T", s.Title)
	}
	args = append(args, s.Path)

	_, err := l.runner.Run(ctx, "lpr", args...)
	return err
}
