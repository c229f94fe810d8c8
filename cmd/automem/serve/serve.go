// Package servecmder provides the serve command that runs the outlet API,
// the MCP tools and the completed-chat intakes.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/automem/api"
	"github.com/papercomputeco/automem/api/mcp"
	"github.com/papercomputeco/automem/pkg/config"
	"github.com/papercomputeco/automem/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/automem/pkg/embeddings/utils"
	"github.com/papercomputeco/automem/pkg/eventstream"
	eventkafka "github.com/papercomputeco/automem/pkg/eventstream/kafka"
	"github.com/papercomputeco/automem/pkg/eventstream/nop"
	"github.com/papercomputeco/automem/pkg/extractor"
	intakekafka "github.com/papercomputeco/automem/pkg/intake/kafka"
	"github.com/papercomputeco/automem/pkg/intake/spool"
	"github.com/papercomputeco/automem/pkg/logger"
	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/memory/direct"
	"github.com/papercomputeco/automem/pkg/memory/openwebui"
	"github.com/papercomputeco/automem/pkg/memory/rich"
	"github.com/papercomputeco/automem/pkg/memory/semantic"
	"github.com/papercomputeco/automem/pkg/pipeline"
	"github.com/papercomputeco/automem/pkg/resolver"
	"github.com/papercomputeco/automem/pkg/storage"
	vectorutils "github.com/papercomputeco/automem/pkg/vector/utils"
	"github.com/papercomputeco/automem/pkg/worker"
)

const (
	// backgroundJobTimeout bounds one completed-chat job, delay included.
	backgroundJobTimeout = 2 * time.Minute

	defaultVectorsFile = "vectors.db"
)

type ServeCommander struct {
	flags     config.FlagSet
	configDir string
	debug     bool
	logFile   string

	// Flag targets. The resolved values are read back through viper so
	// config.toml and AUTOMEM_ variables apply when a flag is not given.
	listen              string
	database            string
	migrate             bool
	extractionURL       string
	extractionModel     string
	richProvider        string
	richTarget          string
	vectorStoreProvider string
	vectorStoreTarget   string
	embeddingProvider   string
	embeddingTarget     string
	embeddingModel      string
	embeddingDimensions uint
	workers             uint
	spoolDir            string

	cfg    *config.Config
	logger *slog.Logger
}

const serveLongDesc string = `Run the automem service.

Serves the outlet endpoints hosts call after every assistant turn, the MCP
memory tools on /mcp, and, when configured, consumes completed chats from a
Kafka topic and a spool directory.

Endpoints:
  GET  /ping          Health check
  POST /v1/inlet      Request-side hook (pass-through)
  POST /v1/outlet     Response-side hook, extracts and saves memories
  POST /v1/extract    Dry-run extraction
  ANY  /mcp           MCP tools memory_extract and memory_remember`

const serveShortDesc string = "Run the automem service"

var serveFlags = []string{
	config.FlagListen,
	config.FlagDatabase,
	config.FlagMigrate,
	config.FlagExtractionURL,
	config.FlagExtractionModel,
	config.FlagRichProvider,
	config.FlagRichTarget,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagWorkers,
	config.FlagSpoolDir,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{
		flags: config.Flags,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("could not initialize config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, cmder.flags, serveFlags)

			cmder.cfg, err = config.FromViper(v)
			if err != nil {
				return fmt.Errorf("could not resolve config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")
	config.AddStringFlag(cmd, cmder.flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, cmder.flags, config.FlagDatabase, &cmder.database)
	config.AddBoolFlag(cmd, cmder.flags, config.FlagMigrate, &cmder.migrate)
	config.AddStringFlag(cmd, cmder.flags, config.FlagExtractionURL, &cmder.extractionURL)
	config.AddStringFlag(cmd, cmder.flags, config.FlagExtractionModel, &cmder.extractionModel)
	config.AddStringFlag(cmd, cmder.flags, config.FlagRichProvider, &cmder.richProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagRichTarget, &cmder.richTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagVectorStoreProv, &cmder.vectorStoreProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagVectorStoreTgt, &cmder.vectorStoreTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, cmder.flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, cmder.flags, config.FlagEmbeddingDims, &cmder.embeddingDimensions)
	config.AddUintFlag(cmd, cmder.flags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, cmder.flags, config.FlagSpoolDir, &cmder.spoolDir)

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	if c.logFile != "" {
		fileLogger, closeLog, err := logger.NewFile(c.logFile, logger.WithDebug(c.debug))
		if err != nil {
			return err
		}
		defer closeLog()
		c.logger = logger.Multi(c.logger, fileLogger)
	}
	cfg := c.cfg

	store := direct.New(direct.Config{
		Location: cfg.Storage.Database,
		Logger:   c.logger,
	})
	if err := c.prepareStore(ctx, store); err != nil {
		return err
	}

	adder, querier, closeRich, err := c.createRichAPI(ctx, store)
	if err != nil {
		return err
	}
	defer closeRich()

	caps := memory.DetectCapabilities(adder, querier)
	c.logger.Info("memory capabilities detected",
		"provider", cfg.Rich.Provider,
		"rich", caps.Rich,
		"query", caps.Query,
	)

	var richDriver memory.Driver
	if caps.Rich {
		richDriver = rich.New(rich.Config{
			Adder:           adder,
			Querier:         querier,
			Caps:            caps,
			RelatedN:        cfg.Dedup.RelatedMemoriesN,
			RelatedDistance: cfg.Dedup.RelatedMemoriesDist,
			Logger:          c.logger,
		})
	}

	router := memory.NewRouter(memory.RouterConfig{
		Caps:   caps,
		Rich:   richDriver,
		Direct: store,
		Logger: c.logger,
	})

	publisher, err := c.createPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := worker.NewPool(&worker.Config{
		NumWorkers: cfg.Worker.Workers,
		QueueSize:  cfg.Worker.QueueSize,
		JobTimeout: backgroundJobTimeout,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	// Drain queued completed chats before the publisher goes away.
	defer pool.Close()

	p, err := pipeline.New(pipeline.Config{
		Enabled:         cfg.Pipeline.Enabled,
		AutoSave:        cfg.Pipeline.AutoSaveUser,
		BackgroundDelay: time.Duration(cfg.Pipeline.BackgroundDelayMS) * time.Millisecond,
		Extractor: extractor.New(extractor.Config{
			BaseURL: cfg.Extraction.APIURL,
			Model:   cfg.Extraction.Model,
			APIKey:  cfg.Extraction.APIKey,
			Timeout: time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second,
			Logger:  c.logger,
		}),
		Router:    router,
		Resolver:  resolver.New(cfg.Storage.Database),
		Spawner:   pool,
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Pipeline: p,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		MCPHandler: mcpServer.Handler(),
	}, p, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 3)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	if err := c.startIntakes(ctx, p, errChan); err != nil {
		return err
	}

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("shutting down")
	}

	if err := apiServer.Shutdown(); err != nil {
		c.logger.Warn("api server shutdown", "error", err)
	}
	return nil
}

// prepareStore migrates the direct store when asked and probes it. A probe
// failure is logged, not fatal: every direct write reconnects.
func (c *ServeCommander) prepareStore(ctx context.Context, store *direct.Store) error {
	if c.cfg.Storage.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}
		c.logger.Info("memory tables ready", "database", c.cfg.Storage.Database)
	}

	res, err := store.Probe(ctx)
	if err != nil {
		msg := "memory store unreachable, direct saves will fail"
		if errors.Is(err, storage.ErrNotFound) {
			msg = "database not found, direct saves will fail"
		}
		c.logger.Error(msg,
			"database", c.cfg.Storage.Database,
			"hint", storage.HintFor(err),
			"error", err,
		)
		return nil
	}

	c.logger.Info("memory store probed",
		"dialect", res.Dialect,
		"memory_table", res.MemoryTable,
	)
	return nil
}

// createRichAPI builds the memory API behind the rich driver. Both handles
// are nil when no provider is configured.
func (c *ServeCommander) createRichAPI(ctx context.Context, store *direct.Store) (memory.Adder, memory.Querier, func(), error) {
	noop := func() {}
	cfg := c.cfg

	switch cfg.Rich.Provider {
	case "":
		return nil, nil, noop, nil

	case "openwebui":
		client, err := openwebui.New(openwebui.Config{
			BaseURL: cfg.Rich.Target,
			Logger:  c.logger,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("creating openwebui client: %w", err)
		}
		return client, client, noop, nil

	case "semantic":
		embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: cfg.Embedding.Provider,
			TargetURL:    cfg.Embedding.Target,
			Model:        cfg.Embedding.Model,
			Dimensions:   int(cfg.Embedding.Dimensions),
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("creating embedder: %w", err)
		}

		target := cfg.VectorStore.Target
		if target == "" && cfg.VectorStore.Provider != "qdrant" {
			target, err = dotdir.NewManager().Path(c.configDir, defaultVectorsFile)
			if err != nil {
				embedder.Close()
				return nil, nil, noop, fmt.Errorf("resolving vector store path: %w", err)
			}
		}

		vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
			ProviderType: cfg.VectorStore.Provider,
			Target:       target,
			Dimensions:   cfg.Embedding.Dimensions,
			Logger:       c.logger,
		})
		if err != nil {
			embedder.Close()
			return nil, nil, noop, fmt.Errorf("creating vector store: %w", err)
		}

		mem, err := semantic.New(semantic.Config{
			Embedder: embedder,
			Vectors:  vectors,
			Recorder: store,
			Logger:   c.logger,
		})
		if err != nil {
			vectors.Close()
			embedder.Close()
			return nil, nil, noop, fmt.Errorf("creating semantic memory store: %w", err)
		}

		c.logger.Info("using semantic memory",
			"vector_store", cfg.VectorStore.Provider,
			"target", target,
			"embedding_model", cfg.Embedding.Model,
		)
		return mem, mem, func() {
			vectors.Close()
			embedder.Close()
		}, nil

	default:
		return nil, nil, noop, fmt.Errorf("unsupported rich memory provider: %q", cfg.Rich.Provider)
	}
}

func (c *ServeCommander) createPublisher() (eventstream.Publisher, error) {
	k := c.cfg.Kafka
	if len(k.Brokers) == 0 || k.EventsTopic == "" {
		return nop.NewPublisher(), nil
	}

	publisher, err := eventkafka.NewPublisher(eventkafka.Config{
		Brokers: k.Brokers,
		Topic:   k.EventsTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	c.logger.Info("publishing memory events", "topic", k.EventsTopic)
	return publisher, nil
}

// startIntakes runs the configured completed-chat sources until ctx is done.
func (c *ServeCommander) startIntakes(ctx context.Context, p *pipeline.Pipeline, errChan chan<- error) error {
	k := c.cfg.Kafka
	if len(k.Brokers) > 0 && k.IntakeTopic != "" {
		consumer, err := intakekafka.NewConsumer(intakekafka.Config{
			Brokers: k.Brokers,
			Topic:   k.IntakeTopic,
			GroupID: k.GroupID,
			Logger:  c.logger,
		}, p)
		if err != nil {
			return fmt.Errorf("creating kafka consumer: %w", err)
		}

		go func() {
			defer consumer.Close()
			c.logger.Info("consuming completed chats", "topic", k.IntakeTopic)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("kafka intake error: %w", err)
			}
		}()
	}

	if dir := c.cfg.Spool.Dir; dir != "" {
		watcher, err := spool.New(spool.Config{
			Dir:    dir,
			Logger: c.logger,
		}, p)
		if err != nil {
			return fmt.Errorf("creating spool watcher: %w", err)
		}

		go func() {
			c.logger.Info("watching spool directory", "dir", dir)
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("spool intake error: %w", err)
			}
		}()
	}

	return nil
}
