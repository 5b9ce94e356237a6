package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT" validate:"gte=0,lte=65535"`

	// Database Configuration (postgres://... or sqlite://path)
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	StorageConfig  `mapstructure:",squash"`
	PipelineConfig `mapstructure:",squash"`
}

type StorageConfig struct {
	ScratchDir string `mapstructure:"SCRATCH_DIR" validate:"required"`
	BlobDir    string `mapstructure:"BLOB_DIR" validate:"required"`
	VariantDir string `mapstructure:"VARIANT_DIR" validate:"required"`

	// Backend is the storage channel: "fs" or "telegram".
	Backend          string `mapstructure:"STORAGE_BACKEND" validate:"oneof=fs telegram"`
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN" validate:"required_if=Backend telegram"`
	TelegramChatID   string `mapstructure:"TELEGRAM_CHAT_ID" validate:"required_if=Backend telegram"`
	TelegramAPIURL   string `mapstructure:"TELEGRAM_API_URL" validate:"omitempty,url"`
}

type PipelineConfig struct {
	YtdlpPath       string `mapstructure:"YTDLP_PATH"`
	DownloadWorkers int    `mapstructure:"DOWNLOAD_WORKERS" validate:"gte=1"`
	MaxAttempts     int    `mapstructure:"MAX_ATTEMPTS" validate:"gte=1"`
	OwnerDailyQuota int    `mapstructure:"OWNER_DAILY_QUOTA" validate:"gte=0"`
	// Limit for owners on the premium tier; 0 means unlimited.
	PremiumDailyQuota int `mapstructure:"OWNER_PREMIUM_DAILY_QUOTA" validate:"gte=0"`

	// Human-readable sizes ("2GB", "1.5GiB"); see MaxChunkBytes and DiskCeilingBytes.
	MaxChunkSize string `mapstructure:"MAX_CHUNK_SIZE" validate:"required"`
	DiskCeiling  string `mapstructure:"DISK_CEILING" validate:"required"`

	ExtractTimeout      time.Duration `mapstructure:"EXTRACT_TIMEOUT" validate:"gt=0"`
	DownloadTimeout     time.Duration `mapstructure:"DOWNLOAD_TIMEOUT" validate:"gt=0"`
	TranscodeTimeout    time.Duration `mapstructure:"TRANSCODE_TIMEOUT" validate:"gt=0"`
	VariantTTL          time.Duration `mapstructure:"VARIANT_TTL" validate:"gt=0"`
	VariantReapInterval time.Duration `mapstructure:"VARIANT_REAP_INTERVAL" validate:"gt=0"`

	MaxChunkBytes    int64 `mapstructure:"-"`
	DiskCeilingBytes int64 `mapstructure:"-"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")

		if tag != "" && tag != "-" {
			viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" && nestedTag != "-" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
	slog.Info("Environment variables bound", "config", c)
}

func setDefaults() {
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)

	viper.SetDefault("SCRATCH_DIR", "/spool/scratch")
	viper.SetDefault("BLOB_DIR", "/spool/blobs")
	viper.SetDefault("VARIANT_DIR", "/spool/encoded_cache")
	viper.SetDefault("STORAGE_BACKEND", "fs")

	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("DOWNLOAD_WORKERS", 2)
	viper.SetDefault("MAX_ATTEMPTS", 3)
	viper.SetDefault("OWNER_DAILY_QUOTA", 10)
	viper.SetDefault("OWNER_PREMIUM_DAILY_QUOTA", 0)
	viper.SetDefault("MAX_CHUNK_SIZE", "2GB")
	viper.SetDefault("DISK_CEILING", "20GB")

	viper.SetDefault("EXTRACT_TIMEOUT", 60*time.Second)
	viper.SetDefault("DOWNLOAD_TIMEOUT", 2*time.Hour)
	viper.SetDefault("TRANSCODE_TIMEOUT", 2*time.Hour)
	viper.SetDefault("VARIANT_TTL", 7*24*time.Hour)
	viper.SetDefault("VARIANT_REAP_INTERVAL", time.Hour)
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	setDefaults()

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration", "config", cfg.redacted())

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	var err error
	if cfg.MaxChunkBytes, err = parseSize("MAX_CHUNK_SIZE", cfg.MaxChunkSize); err != nil {
		return nil, err
	}
	if cfg.DiskCeilingBytes, err = parseSize("DISK_CEILING", cfg.DiskCeiling); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func parseSize(key, raw string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("validate config: %s: %w", key, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("validate config: %s must be positive", key)
	}
	return int64(n), nil
}

func (c Config) redacted() Config {
	if c.TelegramBotToken != "" {
		c.TelegramBotToken = "***"
	}
	return c
}
