// Package extractcmder provides the extract command, a dry run of the fact
// extractor that can optionally save what it finds for a user.
package extractcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/automem/pkg/cliui"
	"github.com/papercomputeco/automem/pkg/config"
	"github.com/papercomputeco/automem/pkg/extractor"
	"github.com/papercomputeco/automem/pkg/facts"
	"github.com/papercomputeco/automem/pkg/logger"
	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/memory/direct"
	"github.com/papercomputeco/automem/pkg/pipeline"
)

type ExtractCommander struct {
	flags     config.FlagSet
	configDir string
	debug     bool
	userID    string

	database        string
	migrate         bool
	extractionURL   string
	extractionModel string

	cfg    *config.Config
	logger *slog.Logger
}

const extractLongDesc string = `Extract facts from a message.

Sends the text through the same extraction prompt the service uses and
prints the facts that pass validation. With --user the facts are saved
for that user id in the configured database.

Examples:
  automem extract "I moved to Lisbon last spring and I'm vegetarian"
  automem extract --user 3f2a... "My daughter's name is Ana"`

const extractShortDesc string = "Extract facts from a message"

var extractFlags = []string{
	config.FlagDatabase,
	config.FlagMigrate,
	config.FlagExtractionURL,
	config.FlagExtractionModel,
}

func NewExtractCmd() *cobra.Command {
	cmder := &ExtractCommander{
		flags: config.Flags,
	}

	cmd := &cobra.Command{
		Use:   "extract <text>",
		Short: extractShortDesc,
		Long:  extractLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("could not initialize config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, cmder.flags, extractFlags)

			cmder.cfg, err = config.FromViper(v)
			if err != nil {
				return fmt.Errorf("could not resolve config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "Save the extracted facts for this user id")
	config.AddStringFlag(cmd, cmder.flags, config.FlagDatabase, &cmder.database)
	config.AddBoolFlag(cmd, cmder.flags, config.FlagMigrate, &cmder.migrate)
	config.AddStringFlag(cmd, cmder.flags, config.FlagExtractionURL, &cmder.extractionURL)
	config.AddStringFlag(cmd, cmder.flags, config.FlagExtractionModel, &cmder.extractionModel)

	return cmd
}

func (c *ExtractCommander) run(ctx context.Context, out io.Writer, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to extract")
	}

	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	cfg := c.cfg

	store := direct.New(direct.Config{
		Location: cfg.Storage.Database,
		Logger:   c.logger,
	})

	p, err := pipeline.New(pipeline.Config{
		Enabled:  true,
		AutoSave: true,
		Extractor: extractor.New(extractor.Config{
			BaseURL: cfg.Extraction.APIURL,
			Model:   cfg.Extraction.Model,
			APIKey:  cfg.Extraction.APIKey,
			Timeout: time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second,
			Logger:  c.logger,
		}),
		Router: memory.NewRouter(memory.RouterConfig{
			Direct: store,
			Logger: c.logger,
		}),
		Logger: c.logger,
	})
	if err != nil {
		return err
	}

	var found []string
	err = cliui.Step(out, "Extracting facts with "+cfg.Extraction.Model, func() error {
		var err error
		found, err = p.Preview(ctx, text)
		if errors.Is(err, facts.ErrEmptyList) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("extracting facts: %w", err)
	}

	md := cliui.FactsMarkdown("Facts", found)
	if cliui.IsTerminal(out) {
		if rendered, err := cliui.RenderMarkdown(md); err == nil {
			md = rendered
		}
	}
	fmt.Fprintln(out, md)

	if c.userID == "" || len(found) == 0 {
		return nil
	}

	return c.save(ctx, out, p, store, found)
}

func (c *ExtractCommander) save(ctx context.Context, out io.Writer, p *pipeline.Pipeline, store *direct.Store, found []string) error {
	if c.cfg.Storage.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}
	}

	raw, err := json.Marshal(found)
	if err != nil {
		return err
	}

	var res memory.Result
	err = cliui.Step(out, fmt.Sprintf("Saving %d facts", len(found)), func() error {
		var err error
		res, err = p.Remember(ctx, string(raw), memory.Owner{UserID: c.userID})
		if err != nil {
			return err
		}
		if res.Saved == 0 {
			return errors.New("no facts saved, see the log for details")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving facts: %w", err)
	}

	fmt.Fprintln(out, cliui.KeyValue("saved", fmt.Sprintf("%d of %d", res.Saved, res.Total())))
	return nil
}
