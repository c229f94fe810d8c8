package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/automem/pkg/cliui"
	"github.com/papercomputeco/automem/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays every configuration key with its value from the config.toml
file stored in the .automem/ directory, falling back to defaults.

Examples:
  automem config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir)
		},
	}

	return cmd
}

func runList(out io.Writer, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(out, "%s %s\n\n", cliui.DimStyle.Render("Config file:"), target)
	} else {
		fmt.Fprintf(out, "%s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}

	for _, key := range config.ValidConfigKeys() {
		value, err := config.Value(cfg, key)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cliui.KeyValue(key, value))
	}

	return nil
}
