package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// OpenAI settings
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	ChatModel        string `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`
	VisionModel      string `envconfig:"OPENAI_VISION_MODEL" default:"gpt-4o"`
	AnalysisModel    string `envconfig:"OPENAI_ANALYSIS_MODEL" default:"gpt-4o-mini"`
	OpenAITimeoutSec int    `envconfig:"OPENAI_TIMEOUT_SEC" default:"90"`

	// Report ingestion settings
	MaxReportSizeMB    int `envconfig:"MAX_REPORT_SIZE_MB" default:"10"`
	ReportTextMaxChars int `envconfig:"REPORT_TEXT_MAX_CHARS" default:"4000"`
	ChatHistoryLimit   int `envconfig:"CHAT_HISTORY_LIMIT" default:"20"`

	// S3 settings for original report files
	S3URL       string `envconfig:"S3_URL" required:"true"`
	S3Bucket    string `envconfig:"S3_BUCKET" required:"true"`
	S3Region    string `envconfig:"S3_REGION" required:"true"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" required:"true"`

	// GCP settings. Pub/Sub events and Secret Manager token storage are
	// disabled when the project ID is empty.
	GCPProjectID      string `envconfig:"GCP_PROJECT_ID"`
	ReportEventsTopic string `envconfig:"REPORT_EVENTS_TOPIC" default:"report_events"`

	// Google Calendar OAuth app credentials. Calendar sync is disabled when
	// the client ID is empty.
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
