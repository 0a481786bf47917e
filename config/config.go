package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	Source    SourceConfig    `json:"source" yaml:"source" toml:"source"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger" toml:"ledger"`
	Catalog   CatalogConfig   `json:"catalog,omitempty" yaml:"catalog,omitempty" toml:"catalog,omitempty"`
	Uploader  UploaderConfig  `json:"uploader" yaml:"uploader" toml:"uploader"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery" toml:"discovery"`
	Transfer  TransferConfig  `json:"transfer" yaml:"transfer" toml:"transfer"`
	Logger    LoggerConfig    `json:"logger" yaml:"logger" toml:"logger"`
	DryRun    bool            `json:"dry_run" yaml:"dry_run" toml:"dry_run"` // If true, walk and report only; nothing is transferred
}

// Validate validates the entire configuration
func (ac *AppConfig) Validate() error {
	if err := ac.Source.Validate(); err != nil {
		return fmt.Errorf("source config error: %w", err)
	}
	if err := ac.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger config error: %w", err)
	}
	if err := ac.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog config error: %w", err)
	}
	if err := ac.Uploader.Validate(); err != nil {
		return fmt.Errorf("uploader config error: %w", err)
	}
	if err := ac.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config error: %w", err)
	}
	if err := ac.Transfer.Validate(); err != nil {
		return fmt.Errorf("transfer config error: %w", err)
	}
	if err := ac.Logger.Validate(); err != nil {
		return fmt.Errorf("logger config error: %w", err)
	}
	return nil
}

// ApplyDefaults applies default values to all components
func (ac *AppConfig) ApplyDefaults() {
	ac.Source.Common.ApplyDefaults()
	ac.Ledger.ApplyDefaults()
	ac.Catalog.ApplyDefaults()
	ac.Uploader.Common.ApplyDefaults()
	ac.Discovery.ApplyDefaults()
	ac.Transfer.ApplyDefaults()
	ac.Logger.ApplyDefaults()

	if ac.Source.FTP != nil {
		ac.Source.FTP.ApplyDefaults()
	}
	if ac.Uploader.S3 != nil {
		ac.Uploader.S3.ApplyDefaults()
	}
}

// LoadFromEnv loads configuration from environment variables. A .env file
// in the working directory is read first when present.
func LoadFromEnv() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DryRun = getEnvBool("DRY_RUN", false)

	cfg.Logger.Level = LogLevel(getEnv("LOG_LEVEL", string(LogLevelInfo)))

	cfg.Source.SourceType = SourceType(getEnv("SOURCE_TYPE", string(SourceTypeFTP)))
	cfg.Source.Common.PoolSize = getEnvInt("SOURCE_POOL_SIZE", 2)
	cfg.Source.Common.TimeoutSeconds = getEnvInt("SOURCE_TIMEOUT_SECONDS", 30)
	cfg.Source.Common.MaxRetries = getEnvInt("SOURCE_MAX_RETRIES", 3)
	cfg.Source.Common.MaxRPS = getEnvInt("SOURCE_MAX_RPS", 10)

	cfg.Source.FTP = &FTPConfig{
		Host:     getEnv("FTP_HOST", ""),
		Port:     getEnvInt("FTP_PORT", 21),
		Username: getEnv("FTP_USERNAME", ""),
		Password: getEnv("FTP_PASSWORD", ""),
		Root:     getEnv("FTP_ROOT", "/"),
		UseTLS:   getEnvBool("FTP_USE_TLS", false),
	}

	cfg.Ledger.Path = getEnv("LEDGER_PATH", "./upload_state.json")

	cfg.Catalog.Path = getEnv("CATALOG_PATH", "")
	cfg.Catalog.Bucket = getEnv("CATALOG_BUCKET", "remote_files")
	cfg.Catalog.Mode = 0600
	cfg.Catalog.NoSync = getEnvBool("CATALOG_NO_SYNC", false)

	cfg.Uploader.UploaderType = UploaderType(getEnv("UPLOADER_TYPE", string(UploaderTypePhotos)))
	cfg.Uploader.Common.TimeoutSeconds = getEnvInt("UPLOADER_TIMEOUT_SECONDS", 60)
	cfg.Uploader.Photos = &PhotosConfig{
		BaseURL:   getEnv("PHOTOS_API_URL", ""),
		AuthToken: getEnv("PHOTOS_AUTH_TOKEN", ""),
	}
	cfg.Uploader.S3 = &S3Config{
		Region:          getEnv("S3_REGION", ""),
		Bucket:          getEnv("S3_BUCKET", ""),
		AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		Prefix:          getEnv("S3_PREFIX", ""),
		PartSizeBytes:   getEnvInt64("S3_PART_SIZE_BYTES", 0),
	}

	cfg.Discovery.MinFileSize = getEnvInt64("MIN_FILE_SIZE", 0)
	cfg.Discovery.MaxFileSize = getEnvInt64("MAX_FILE_SIZE", 0)
	if raw := getEnv("EXTENSIONS", ""); raw != "" {
		cfg.Discovery.Extensions = strings.Split(raw, ",")
	}

	cfg.Transfer.WorkDir = getEnv("WORK_DIR", "./downloads")
	cfg.Transfer.MaxAttempts = getEnvInt("MAX_ATTEMPTS", 5)
	cfg.Transfer.AttemptCap = getEnvInt("ATTEMPT_CAP", 3)
	cfg.Transfer.BackoffInitialSeconds = getEnvInt("BACKOFF_INITIAL_SECONDS", 30)
	cfg.Transfer.BackoffMaxSeconds = getEnvInt("BACKOFF_MAX_SECONDS", 600)
	cfg.Transfer.StallTimeoutSeconds = getEnvInt("STALL_TIMEOUT_SECONDS", 300)
	cfg.Transfer.ProgressIntervalSeconds = getEnvInt("PROGRESS_INTERVAL_SECONDS", 5)
	cfg.Transfer.MaxRuntimeSeconds = getEnvInt("MAX_RUNTIME_SECONDS", 0)
	cfg.Transfer.SafetyMarginBytes = getEnvInt64("SAFETY_MARGIN_BYTES", 0)
	cfg.Transfer.Resume = getEnvBool("RESUME", true)

	cfg.ApplyDefaults()

	return cfg, nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
