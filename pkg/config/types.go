package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent automem configuration stored as
// config.toml in the .automem/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Extraction  ExtractionConfig  `toml:"extraction"`
	Dedup       DedupConfig       `toml:"dedup"`
	Storage     StorageConfig     `toml:"storage"`
	Rich        RichConfig        `toml:"rich"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	API         APIConfig         `toml:"api"`
	Worker      WorkerConfig      `toml:"worker"`
	Kafka       KafkaConfig       `toml:"kafka"`
	Spool       SpoolConfig       `toml:"spool"`
}

// PipelineConfig holds the global switches.
type PipelineConfig struct {
	Enabled           bool `toml:"enabled"`
	AutoSaveUser      bool `toml:"auto_save_user"`
	BackgroundDelayMS int  `toml:"background_delay_ms"`
}

// ExtractionConfig points at the OpenAI-compatible extraction endpoint.
type ExtractionConfig struct {
	APIURL         string `toml:"api_url,omitempty"`
	Model          string `toml:"model,omitempty"`
	APIKey         string `toml:"api_key,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// DedupConfig tunes the related-memory check on the rich path.
type DedupConfig struct {
	RelatedMemoriesN    int     `toml:"related_memories_n,omitempty"`
	RelatedMemoriesDist float64 `toml:"related_memories_dist,omitempty"`
}

// StorageConfig locates the relational store shared with the host.
type StorageConfig struct {
	Database string `toml:"database,omitempty"`
	Migrate  bool   `toml:"migrate"`
}

// RichConfig selects the memory API used by the rich driver.
type RichConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// WorkerConfig sizes the background pool.
type WorkerConfig struct {
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// KafkaConfig enables completed-chat intake and memory events on Kafka.
type KafkaConfig struct {
	Brokers     []string `toml:"brokers,omitempty"`
	IntakeTopic string   `toml:"intake_topic,omitempty"`
	EventsTopic string   `toml:"events_topic,omitempty"`
	GroupID     string   `toml:"group_id,omitempty"`
}

// SpoolConfig enables the completed-chat spool directory.
type SpoolConfig struct {
	Dir string `toml:"dir,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error

	// list keys are comma separated on the command line and in env vars.
	list bool
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			if v == "" {
				*field(c) = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				*field(c) = 0
				return nil
			}
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func listKey(field func(c *Config) *[]string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, v string) error {
			var out []string
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
			}
			*field(c) = out
			return nil
		},
		list: true,
	}
}

// orderedKeys lists every supported key in TOML section order.
var orderedKeys = []string{
	"pipeline.enabled",
	"pipeline.auto_save_user",
	"pipeline.background_delay_ms",
	"extraction.api_url",
	"extraction.model",
	"extraction.api_key",
	"extraction.timeout_seconds",
	"dedup.related_memories_n",
	"dedup.related_memories_dist",
	"storage.database",
	"storage.migrate",
	"rich.provider",
	"rich.target",
	"vector_store.provider",
	"vector_store.target",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"api.listen",
	"worker.workers",
	"worker.queue_size",
	"kafka.brokers",
	"kafka.intake_topic",
	"kafka.events_topic",
	"kafka.group_id",
	"spool.dir",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"pipeline.enabled":             boolKey("pipeline.enabled", func(c *Config) *bool { return &c.Pipeline.Enabled }),
	"pipeline.auto_save_user":      boolKey("pipeline.auto_save_user", func(c *Config) *bool { return &c.Pipeline.AutoSaveUser }),
	"pipeline.background_delay_ms": intKey("pipeline.background_delay_ms", func(c *Config) *int { return &c.Pipeline.BackgroundDelayMS }),

	"extraction.api_url":         stringKey(func(c *Config) *string { return &c.Extraction.APIURL }),
	"extraction.model":           stringKey(func(c *Config) *string { return &c.Extraction.Model }),
	"extraction.api_key":         stringKey(func(c *Config) *string { return &c.Extraction.APIKey }),
	"extraction.timeout_seconds": intKey("extraction.timeout_seconds", func(c *Config) *int { return &c.Extraction.TimeoutSeconds }),

	"dedup.related_memories_n":    intKey("dedup.related_memories_n", func(c *Config) *int { return &c.Dedup.RelatedMemoriesN }),
	"dedup.related_memories_dist": floatKey("dedup.related_memories_dist", func(c *Config) *float64 { return &c.Dedup.RelatedMemoriesDist }),

	"storage.database": stringKey(func(c *Config) *string { return &c.Storage.Database }),
	"storage.migrate":  boolKey("storage.migrate", func(c *Config) *bool { return &c.Storage.Migrate }),

	"rich.provider": stringKey(func(c *Config) *string { return &c.Rich.Provider }),
	"rich.target":   stringKey(func(c *Config) *string { return &c.Rich.Target }),

	"vector_store.provider": stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":   stringKey(func(c *Config) *string { return &c.VectorStore.Target }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"worker.workers":    uintKey("worker.workers", func(c *Config) *uint { return &c.Worker.Workers }),
	"worker.queue_size": uintKey("worker.queue_size", func(c *Config) *uint { return &c.Worker.QueueSize }),

	"kafka.brokers":      listKey(func(c *Config) *[]string { return &c.Kafka.Brokers }),
	"kafka.intake_topic": stringKey(func(c *Config) *string { return &c.Kafka.IntakeTopic }),
	"kafka.events_topic": stringKey(func(c *Config) *string { return &c.Kafka.EventsTopic }),
	"kafka.group_id":     stringKey(func(c *Config) *string { return &c.Kafka.GroupID }),

	"spool.dir": stringKey(func(c *Config) *string { return &c.Spool.Dir }),
}
