package config

const (
	defaultBackgroundDelayMS = 1000

	defaultExtractionURL     = "https://openrouter.ai/api/v1"
	defaultExtractionModel   = "openai/gpt-4o-mini"
	defaultExtractionTimeout = 30

	defaultRelatedMemoriesN    = 5
	defaultRelatedMemoriesDist = 0.75

	defaultDatabase = "/var/lib/open-webui/data/webui.db"

	defaultVectorProvider = "sqlite"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	// Loopback only: the write endpoints trust the user ids they are given.
	defaultAPIListen = "127.0.0.1:8090"

	defaultWorkers   = 3
	defaultQueueSize = 256

	defaultKafkaGroupID = "automem"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Pipeline: PipelineConfig{
			Enabled:           true,
			AutoSaveUser:      true,
			BackgroundDelayMS: defaultBackgroundDelayMS,
		},
		Extraction: ExtractionConfig{
			APIURL:         defaultExtractionURL,
			Model:          defaultExtractionModel,
			TimeoutSeconds: defaultExtractionTimeout,
		},
		Dedup: DedupConfig{
			RelatedMemoriesN:    defaultRelatedMemoriesN,
			RelatedMemoriesDist: defaultRelatedMemoriesDist,
		},
		Storage: StorageConfig{
			Database: defaultDatabase,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Worker: WorkerConfig{
			Workers:   defaultWorkers,
			QueueSize: defaultQueueSize,
		},
		Kafka: KafkaConfig{
			GroupID: defaultKafkaGroupID,
		},
	}
}
