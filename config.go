package mealwise

import "time"

type ModelConfig struct {
	ModelID       string  `env:"MODEL_ID,default=us.anthropic.claude-3-7-sonnet-20250219-v1:0"`
	VisionModelID string  `env:"VISION_MODEL_ID"`
	MaxTokens     int32   `env:"MAX_TOKENS,default=1024"`
	Temperature   float32 `env:"TEMPERATURE,default=0.2"`
	TopP          float32 `env:"TOP_P,default=0.9"`
}

// VisionModel returns the model used for image interpretation, falling back to ModelID.
func (m ModelConfig) VisionModel() string {
	if m.VisionModelID != "" {
		return m.VisionModelID
	}
	return m.ModelID
}

type PipelineConfig struct {
	Provider           string        `env:"PROVIDER,default=bedrock"`
	BaseOllamaEndpoint string        `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	VisionTimeout      time.Duration `env:"VISION_TIMEOUT,default=30s"`
	TextTimeout        time.Duration `env:"TEXT_TIMEOUT,default=20s"`
	LookupTimeout      time.Duration `env:"LOOKUP_TIMEOUT,default=8s"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT,default=5s"`
	SecondaryTimeout   time.Duration `env:"SECONDARY_TIMEOUT,default=10s"`
	CacheTTL           time.Duration `env:"NUTRITION_CACHE_TTL,default=168h"`
	Workers            int           `env:"SECONDARY_WORKERS,default=4"`
	QueueSize          int           `env:"SECONDARY_QUEUE_SIZE,default=64"`
	HistoryDays        int           `env:"HISTORY_DAYS,default=14"`
}

type FoodDataConfig struct {
	FDCAPIKey   string        `env:"FDC_API_KEY,default=DEMO_KEY"`
	FDCBaseURL  string        `env:"FDC_BASE_URL,default=https://api.nal.usda.gov/fdc/v1"`
	OFFBaseURL  string        `env:"OFF_BASE_URL,default=https://world.openfoodfacts.org"`
	HTTPTimeout time.Duration `env:"FOOD_DATA_HTTP_TIMEOUT,default=10s"`
}

type StorageConfig struct {
	SQLitePath     string `env:"SQLITE_PATH,default=data/mealwise.db"`
	ArchiveBackend string `env:"ARCHIVE_BACKEND,default=file"`
	ArchiveDir     string `env:"ARCHIVE_DIR,default=data/archive"`
	S3Bucket       string `env:"ARCHIVE_S3_BUCKET"`
	AzureAccount   string `env:"ARCHIVE_AZURE_ACCOUNT"`
	AzureKey       string `env:"ARCHIVE_AZURE_KEY"`
	AzureContainer string `env:"ARCHIVE_AZURE_CONTAINER,default=mealwise"`
}

type ServerConfig struct {
	Address        string        `env:"SERVER_ADDRESS,default=:8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=90s"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES,default=10485760"`
}

type NotifyConfig struct {
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	SlackChannel    string `env:"SLACK_CHANNEL,default=#mealwise"`
}
