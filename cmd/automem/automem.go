// Package automemcmder
package automemcmder

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/automem/cmd/automem/config"
	extractcmder "github.com/papercomputeco/automem/cmd/automem/extract"
	servecmder "github.com/papercomputeco/automem/cmd/automem/serve"
	versioncmder "github.com/papercomputeco/automem/cmd/version"
)

const automemLongDesc string = `automem saves durable facts about users from their chat turns.

Run the service using:
  automem serve                 Run the outlet API, MCP tools and intake
  automem extract <text>        Preview facts extracted from a message
  automem config list           Show the resolved configuration

Environment variables prefixed with AUTOMEM_ override config.toml and may
be kept in a .env file in the working directory.`

const automemShortDesc string = "automem - automatic user memories"

func NewAutomemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "automem",
		Short: automemShortDesc,
		Long:  automemLongDesc,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv()
		},
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.automem or ~/.automem)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(extractcmder.NewExtractCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

// loadDotEnv loads ./.env into the process environment. Variables already
// set win, and a missing file is not an error.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
