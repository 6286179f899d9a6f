package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autoprint/autoprint/internal/config"
	"github.com/autoprint/autoprint/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration autoprint would run with: the config file merged with
defaults, AUTOPRINT_* environment variables and flags.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConfigShow(cmd); err != nil {
			fatal(err)
		}
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file that would be loaded",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigPath(cmd)
	},
}

func init() {
	config.AddFlags(configShowCmd.Flags())
	configCmd.AddCommand(configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := cfg.Encode("yaml")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if source := cfg.SourceFile(); source != "" {
		fmt.Fprintf(out, "# source: %s\n", source)
	} else {
		fmt.Fprintln(out, "# source: defaults and environment only")
	}
	fmt.Fprint(out, string(data))

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "\n%s configuration is incomplete:\n%v\n", ui.RenderWarn(ui.IconWarn), err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command) {
	source := config.Source(configPath)
	if source == "" {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("no config file found"))
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), source)
}
