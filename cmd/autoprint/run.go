package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autoprint/autoprint/internal/autoprint"
	"github.com/autoprint/autoprint/internal/config"
	"github.com/autoprint/autoprint/internal/feed"
	"github.com/autoprint/autoprint/internal/ui"
	"github.com/autoprint/autoprint/internal/watch"
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "watch",
	Short:   "Watch the download directory and print new files",
	Long: `Watch the configured directory and print every new file whose name matches
watch.pattern (and whose type matches watch.mime_type, if set).

Each file is printed once it is no longer locked by the program writing it
and can be opened as a document. Printed files are deleted at the start of
the next watch iteration.

Runs in the foreground until interrupted (Ctrl+C or SIGTERM).

Example usage:
  autoprint run
  autoprint run --printer OfficeJet --dir ~/Downloads --pattern '.*\.pdf'
  autoprint run --feed --feed-port 8787`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWatch(cmd); err != nil {
			fatal(err)
		}
	},
}

func init() {
	config.AddFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func runWatch(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	log, closer, err := newLogger(cfg, "[autoprint] ")
	if err != nil {
		return err
	}
	defer closer.Close()

	target, err := cfg.Target()
	if err != nil {
		return err
	}
	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}
	dispatcher, err := newDispatcher(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// A missing printer is reported per file as well, but say so up front.
	if _, err := dispatcher.Resolve(ctx); err != nil {
		log.Warnf("%v", err)
	}

	source, err := watch.Open(target.Dir, watch.WithErrorHandler(func(err error) {
		log.Warnf("Watcher error: %v", err)
	}))
	if err != nil {
		return err
	}
	defer source.Close()

	deps := autoprint.Deps{
		Source:     source,
		Detector:   detector,
		Dispatcher: dispatcher,
	}

	if cfg.FeedEnabled() {
		var handler *feed.Handler
		server := feed.NewServer(&feed.Config{
			Port:    cfg.Feed.Port,
			Logger:  log.With("[feed] "),
			Welcome: func() feed.Message { return handler.Hello() },
		})
		handler = feed.NewHandler(server, target.Dir, cfg.Printer.Name, log.With("[feed] "))
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()
		deps.Observer = handler
	}

	loop, err := autoprint.New(autoprint.Config{
		Target: target,
		Dedupe: cfg.Watch.Dedupe,
		Logger: log,
	}, deps)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Watching %s, printing to %s\n",
		ui.RenderPass(ui.IconPass), ui.RenderAccent(target.Dir), ui.RenderAccent(cfg.Printer.Name))
	fmt.Fprintln(out, ui.RenderMuted("Press Ctrl+C to stop..."))

	if err := loop.Run(ctx); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nStopped")
	return nil
}
