package printing

import (
	"context"
	"fmt"
	"os/user"
	"slices"

	"github.com/phin1x/go-ipp"
)

func init() {
	Register("ipp", func(opts Options) (Subsystem, error) {
		host, port, username := opts.Host, opts.Port, opts.User
		if host == "" {
			host = "localhost"
		}
		if port == 0 {
			port = 631
		}
		if username == "" {
			if u, err := user.Current(); err == nil {
				username = u.Username
			}
		}
		return &IPP{client: ipp.NewCUPSClient(host, port, username, "", false)}, nil
	})
}

// ippClient is the part of *ipp.CUPSClient the backend uses.
type ippClient interface {
	GetPrinters(attributes []string) (map[string]ipp.Attributes, error)
	PrintFile(filePath, printer string, jobAttributes map[string]interface{}) (int, error)
}

// IPP talks to a CUPS server over the Internet Printing Protocol instead of
// running its command-line tools.
//
// Requests are not cancellable once sent; ctx is only checked before each
// request.
type IPP struct {
	client ippClient
}

// Name implements Subsystem.
func (p *IPP) Name() string { return "ipp" }

// Capabilities implements Subsystem. Jobs carry a copies attribute.
func (p *IPP) Capabilities() Capabilities {
	return Capabilities{Copies: true}
}

// Services implements Subsystem with a CUPS-Get-Printers request.
func (p *IPP) Services(ctx context.Context) ([]Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	printers, err := p.client.GetPrinters([]string{ipp.AttributePrinterName})
	if err != nil {
		return nil, fmt.Errorf("failed to list print services: ipp: %w", err)
	}

	names := make([]string, 0, len(printers))
	for name := range printers {
		names = append(names, name)
	}
	slices.Sort(names)

	services := make([]Service, 0, len(names))
	for _, name := range names {
		services = append(services, Service{Name: name})
	}
	return services, nil
}

// Submit implements Subsystem with a Print-Job request.
func (p *IPP) Submit(ctx context.Context, s Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attrs := map[string]interface{}{
		ipp.AttributeCopies: s.Copies,
	}
	if s.Title != "" {
		attrs[ipp.AttributeJobName] = s.Title
	}

	if _, err := p.client.PrintFile(s.Path, s.Printer, attrs); err != nil {
		return fmt.Errorf("ipp: %w", err)
	}
	return nil
}
