// Package configcmder provides the config command for managing persistent
// automem configuration stored in the .automem/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/automem/pkg/config"
)

const configLongDesc string = `Manage persistent automem configuration.

Configuration is stored as config.toml in the .automem/ directory and provides
default values for command flags. CLI flags and AUTOMEM_ environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  pipeline.enabled, extraction.model, dedup.related_memories_dist,
  storage.database, rich.provider, kafka.brokers

List keys such as kafka.brokers take comma separated values.

Use subcommands to get, set, or list configuration values:
  automem config set <key> <value>    Set a configuration value
  automem config get <key>            Get a configuration value
  automem config list                 List all configuration values

Examples:
  automem config set extraction.model openai/gpt-4o-mini
  automem config set kafka.brokers localhost:9092,localhost:9093
  automem config get storage.database
  automem config list`

const configShortDesc string = "Manage persistent automem configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validKeyArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}
