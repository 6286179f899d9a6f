package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoprint/autoprint/internal/config"
	"github.com/autoprint/autoprint/internal/printing"
	"github.com/autoprint/autoprint/internal/ui"
)

var printersCmd = &cobra.Command{
	Use:     "printers",
	GroupID: "watch",
	Short:   "List the printers known to the print backend",
	Long: `List the print services reported by the configured backend. The printer
selected by printer.name is marked.

Printer names are matched exactly, including case.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPrinters(cmd); err != nil {
			fatal(err)
		}
	},
}

func init() {
	config.AddFlags(printersCmd.Flags())
	rootCmd.AddCommand(printersCmd)
}

func runPrinters(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sub, err := newSubsystem(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	services, err := sub.Services(ctx)
	if err != nil {
		return err
	}

	if len(services) == 0 {
		fmt.Fprintf(out, "No printers found (backend: %s)\n", sub.Name())
		return nil
	}

	fmt.Fprintf(out, "Printers (backend: %s, available: %v):\n", ui.RenderAccent(sub.Name()), printing.Backends())
	found := false
	for _, s := range services {
		if s.Name == cfg.Printer.Name {
			found = true
			fmt.Fprintf(out, "  %s %s\n", ui.RenderPass(ui.IconPass), ui.RenderBold(s.Name))
			continue
		}
		fmt.Fprintf(out, "    %s\n", s.Name)
	}

	if cfg.Printer.Name != "" && !found {
		fmt.Fprintf(out, "\n%s configured printer %q is not available\n", ui.RenderWarn(ui.IconWarn), cfg.Printer.Name)
	}
	return nil
}
