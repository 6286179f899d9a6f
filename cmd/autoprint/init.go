package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/autoprint/autoprint/internal/config"
	"github.com/autoprint/autoprint/internal/printing"
	"github.com/autoprint/autoprint/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create a configuration file interactively",
	Long: `Ask for the printer, directory and file pattern, then write a configuration
file. The format follows the file extension (.yaml or .toml).

Example usage:
  autoprint init
  autoprint init --output ./autoprint.toml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInit(cmd); err != nil {
			fatal(err)
		}
	},
}

func init() {
	initCmd.Flags().StringP("output", "o", defaultConfigFile(), "where to write the configuration")
	initCmd.Flags().String("backend", "cups", "print backend used to list printers")
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func defaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "autoprint.yaml"
	}
	return filepath.Join(dir, "autoprint", "autoprint.yaml")
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Downloads")
}

func runInit(cmd *cobra.Command) error {
	if !ui.IsInteractive() {
		return errors.New("autoprint init needs an interactive terminal; write the config file by hand instead")
	}

	output, _ := cmd.Flags().GetString("output")
	backend, _ := cmd.Flags().GetString("backend")
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", output)
	}

	cfg := config.Default()
	cfg.Printer.Backend = backend
	cfg.Watch.Dir = defaultDownloadDir()
	cfg.Watch.Pattern = `.*\.pdf`
	cfg.Watch.MimeType = "application/pdf"

	printerField := printerInput(backend, &cfg.Printer.Name)

	form := huh.NewForm(
		huh.NewGroup(
			printerField,
			huh.NewInput().
				Title("Directory to watch").
				Value(&cfg.Watch.Dir).
				Validate(func(s string) error {
					info, err := os.Stat(s)
					if err != nil {
						return err
					}
					if !info.IsDir() {
						return fmt.Errorf("%s is not a directory", s)
					}
					return nil
				}),
			huh.NewInput().
				Title("File name pattern").
				Description("Regular expression matched against the whole file name").
				Value(&cfg.Watch.Pattern).
				Validate(func(s string) error {
					_, err := regexp.Compile(s)
					return err
				}),
			huh.NewInput().
				Title("Required MIME type").
				Description("Leave empty to accept any type").
				Value(&cfg.Watch.MimeType),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Skip files that were already printed and not yet deleted?").
				Value(&cfg.Watch.Dedupe),
			huh.NewConfirm().
				Title("Serve the live event feed?").
				Description(fmt.Sprintf("WebSocket on 127.0.0.1:%d", cfg.Feed.Port)).
				Value(&cfg.Feed.Enabled),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
		return err
	}

	if err := config.Write(output, cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Wrote %s\n", ui.RenderPass(ui.IconPass), ui.RenderAccent(output))
	fmt.Fprintf(out, "Start printing with: %s\n", ui.RenderBold("autoprint run --config "+output))
	return nil
}

// printerInput offers the backend's printers as choices, falling back to free
// text when they cannot be listed.
func printerInput(backend string, value *string) huh.Field {
	names := listPrinterNames(backend)
	if len(names) == 0 {
		return huh.NewInput().
			Title("Printer name").
			Description("Exactly as the print system reports it").
			Value(value).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("printer name is required")
				}
				return nil
			})
	}
	return huh.NewSelect[string]().
		Title("Printer").
		Options(huh.NewOptions(names...)...).
		Value(value)
}

func listPrinterNames(backend string) []string {
	sub, err := printing.NewSubsystem(backend, printing.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil
	}
	services, err := sub.Services(context.Background())
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name)
	}
	return names
}
