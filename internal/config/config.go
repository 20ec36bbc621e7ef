// internal/config/config.go
package config

import (
	"log"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// WebhookConfig は提出通知を受け取る自動化エンドポイントの設定
type WebhookConfig struct {
	URL            string `mapstructure:"url"`
	MaxRetries     int    `mapstructure:"max_retries"`
	WaitSeconds    int    `mapstructure:"wait_seconds"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type SESConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Region          string `mapstructure:"region"`
	From            string `mapstructure:"from"`
	AuthType        string `mapstructure:"auth_type"` // "static_credentials" or "iam_role"
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type AppConfig struct {
	CompletionPercent     int     `mapstructure:"completion_percent"`
	ProgressDeltaPercent  int     `mapstructure:"progress_delta_percent"`
	ProgressDeltaSeconds  float64 `mapstructure:"progress_delta_seconds"`
	EssayDebounceMs       int     `mapstructure:"essay_debounce_ms"`
	DefaultPassingPercent int     `mapstructure:"default_passing_percent"`
}

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	CORS     CORSConfig     `mapstructure:"cors"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	SES      SESConfig      `mapstructure:"ses"`
	App      AppConfig      `mapstructure:"app"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AddConfigPath(".")

	// 環境変数での上書き (例: APP_DATABASE_URL, APP_JWT_SECRET_KEY)
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()
	viper.BindEnv("database.url", "APP_DATABASE_URL")
	viper.BindEnv("jwt.secret_key", "APP_JWT_SECRET_KEY")
	viper.BindEnv("webhook.url", "APP_WEBHOOK_URL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Warning: Config file not found. Using defaults and environment variables.")
		} else {
			log.Printf("Error reading config file: %s\n", err)
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Printf("Error unmarshalling config: %s\n", err)
		return nil, err
	}

	// --- デフォルト値の設定 ---
	if cfg.Server.Port == "" {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.App.CompletionPercent <= 0 {
		cfg.App.CompletionPercent = DefaultCompletionPercent
	}
	if cfg.App.ProgressDeltaPercent <= 0 {
		cfg.App.ProgressDeltaPercent = DefaultProgressDeltaPercent
	}
	if cfg.App.ProgressDeltaSeconds <= 0 {
		cfg.App.ProgressDeltaSeconds = DefaultProgressDeltaSeconds
	}
	if cfg.App.EssayDebounceMs <= 0 {
		cfg.App.EssayDebounceMs = DefaultEssayDebounceMs
	}
	if cfg.App.DefaultPassingPercent <= 0 {
		cfg.App.DefaultPassingPercent = DefaultPassingPercent
	}
	if cfg.Webhook.MaxRetries <= 0 {
		cfg.Webhook.MaxRetries = DefaultWebhookMaxRetries
	}
	if cfg.Webhook.WaitSeconds <= 0 {
		cfg.Webhook.WaitSeconds = DefaultWebhookWaitSeconds
	}
	if cfg.Webhook.TimeoutSeconds <= 0 {
		cfg.Webhook.TimeoutSeconds = DefaultWebhookTimeoutSec
	}
	if cfg.Database.URL == "" {
		log.Println("Warning: Database URL is not set in config.")
	}

	log.Println("Config loaded successfully")
	return &cfg, nil
}
