package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autoprint/autoprint/internal/autoprint"
	"github.com/autoprint/autoprint/internal/config"
	"github.com/autoprint/autoprint/internal/printing"
	"github.com/autoprint/autoprint/internal/ui"
)

var printCmd = &cobra.Command{
	Use:     "print FILE...",
	GroupID: "watch",
	Short:   "Print files now, with the same readiness checks as run",
	Long: `Print the given files immediately. Each file goes through the same readiness
checks and copy-count rule as files picked up by run, but the watch pattern
and MIME filter are not applied.

Files are kept unless --delete is given.

Example usage:
  autoprint print invoice.pdf label-thermal.pdf
  autoprint print --dry-run *.pdf`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed, err := runPrint(cmd, args)
		if err != nil {
			fatal(err)
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	addPrintFlags(printCmd)
	rootCmd.AddCommand(printCmd)
}

func addPrintFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("delete", false, "delete files after they are printed")
	cmd.Flags().Bool("dry-run", false, "show how many copies would be printed without printing")
	config.AddFlags(cmd.Flags())
}

// runPrint returns the number of files that were not printed.
func runPrint(cmd *cobra.Command, files []string) (int, error) {
	deleteAfter, _ := cmd.Flags().GetBool("delete")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out := cmd.OutOrStdout()

	if dryRun {
		for _, file := range files {
			copies := printing.CopiesFor(file)
			fmt.Fprintf(out, "%s %s: %d %s\n", ui.RenderMuted(ui.IconSkip), file, copies, pluralize(copies, "copy", "copies"))
		}
		return 0, nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return 0, err
	}
	if err := cfg.ValidatePrinting(); err != nil {
		return 0, fmt.Errorf("invalid configuration:\n%w", err)
	}

	log, closer, err := newLogger(cfg, "[autoprint] ")
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	detector, err := newDetector(cfg)
	if err != nil {
		return 0, err
	}
	dispatcher, err := newDispatcher(cfg)
	if err != nil {
		return 0, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Explicit files bypass the name and type filters.
	target, err := autoprint.NewWatchTarget(".", ".*", "")
	if err != nil {
		return 0, err
	}
	loop, err := autoprint.New(autoprint.Config{Target: target, Logger: log}, autoprint.Deps{
		Detector:   detector,
		Dispatcher: dispatcher,
	})
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, file := range files {
		outcome := loop.ProcessFile(ctx, file)
		printOutcome(out, outcome, cfg.Printer.Name)
		if !outcome.Printed() {
			failed++
			continue
		}
		if deleteAfter {
			for _, r := range loop.DrainCleanup() {
				if r.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to delete %s: %v\n", r.Path, r.Err)
				}
			}
		}
	}
	return failed, nil
}

func printOutcome(w io.Writer, out autoprint.Outcome, printer string) {
	name := filepath.Base(out.Path)
	switch out.Status {
	case autoprint.StatusPrinted:
		fmt.Fprintf(w, "%s %s: %d %s on %s\n", ui.RenderPass(ui.IconPass), name,
			out.Copies, pluralize(out.Copies, "copy", "copies"), ui.RenderAccent(printer))
	case autoprint.StatusVanished, autoprint.StatusInterrupted:
		fmt.Fprintf(w, "%s %s: %s\n", ui.RenderWarn(ui.IconWarn), name, out.Status)
	default:
		fmt.Fprintf(w, "%s %s: %s: %v\n", ui.RenderFail(ui.IconFail), name, out.Status, out.Err)
	}
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
