package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Security SecurityConfig `mapstructure:"security"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig holds the local backend configuration
type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	DocumentFile string `mapstructure:"document_file"`
	BackupDir    string `mapstructure:"backup_dir"`
	BackupPrefix string `mapstructure:"backup_prefix"`
	MaxBackups   int    `mapstructure:"max_backups"`
}

// RemoteConfig holds the GitHub contents API backend configuration.
// The remote backend is only used when a token is present.
type RemoteConfig struct {
	Token       string        `mapstructure:"token"`
	Owner       string        `mapstructure:"owner"`
	Repo        string        `mapstructure:"repo"`
	Path        string        `mapstructure:"path"`
	Branch      string        `mapstructure:"branch"`
	APIURL      string        `mapstructure:"api_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	MirrorLocal bool          `mapstructure:"mirror_local"`
}

// AuthConfig holds API token configuration
type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Secret    string        `mapstructure:"secret"`
	Issuer    string        `mapstructure:"issuer"`
	ExpiresIn time.Duration `mapstructure:"expires_in"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.applyDefaults()

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "TripBoard")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Storage defaults
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.document_file", "trip_data.json")
	v.SetDefault("storage.backup_dir", "")
	v.SetDefault("storage.backup_prefix", "trip_data_backup_")
	v.SetDefault("storage.max_backups", 20)

	// Remote defaults
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.owner", "")
	v.SetDefault("remote.repo", "")
	v.SetDefault("remote.path", "data/trip_data.json")
	v.SetDefault("remote.branch", "main")
	v.SetDefault("remote.api_url", "https://api.github.com")
	v.SetDefault("remote.timeout", "15s")
	v.SetDefault("remote.max_retries", 3)
	v.SetDefault("remote.mirror_local", true)

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "tripboard")
	v.SetDefault("auth.expires_in", "720h") // 30 days

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.filename", "")

	// Security defaults
	v.SetDefault("security.cors_allowed_origins", "*")
	v.SetDefault("security.rate_limit_requests", 20)
	v.SetDefault("security.rate_limit_window", "1m")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.version", "APP_VERSION")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")
	v.BindEnv("app.debug", "APP_DEBUG")

	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")
	v.BindEnv("server.request_timeout", "SERVER_REQUEST_TIMEOUT")
	v.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")

	// Storage
	v.BindEnv("storage.data_dir", "DATA_DIR")
	v.BindEnv("storage.document_file", "DOCUMENT_FILE")
	v.BindEnv("storage.backup_dir", "BACKUP_DIR")
	v.BindEnv("storage.backup_prefix", "BACKUP_PREFIX")
	v.BindEnv("storage.max_backups", "MAX_BACKUPS")

	// Remote
	v.BindEnv("remote.token", "GITHUB_TOKEN")
	v.BindEnv("remote.owner", "GITHUB_OWNER")
	v.BindEnv("remote.repo", "GITHUB_REPO")
	v.BindEnv("remote.path", "GITHUB_PATH")
	v.BindEnv("remote.branch", "GITHUB_BRANCH")
	v.BindEnv("remote.api_url", "GITHUB_API_URL")
	v.BindEnv("remote.timeout", "GITHUB_TIMEOUT")
	v.BindEnv("remote.max_retries", "GITHUB_MAX_RETRIES")
	v.BindEnv("remote.mirror_local", "GITHUB_MIRROR_LOCAL")

	// Auth
	v.BindEnv("auth.enabled", "AUTH_ENABLED")
	v.BindEnv("auth.secret", "JWT_SECRET")
	v.BindEnv("auth.issuer", "JWT_ISSUER")
	v.BindEnv("auth.expires_in", "JWT_EXPIRES_IN")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("logger.output", "LOG_OUTPUT")
	v.BindEnv("logger.filename", "LOG_FILENAME")

	// Security
	v.BindEnv("security.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("security.rate_limit_requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("security.rate_limit_window", "RATE_LIMIT_WINDOW")

	// Metrics
	v.BindEnv("metrics.enabled", "ENABLE_METRICS")
}

func validateConfig(cfg *Config) error {
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage data directory is required")
	}

	if cfg.Storage.DocumentFile == "" || cfg.Storage.DocumentFile != filepath.Base(cfg.Storage.DocumentFile) {
		return fmt.Errorf("storage document file must be a plain file name")
	}

	if cfg.Storage.BackupPrefix == "" {
		return fmt.Errorf("storage backup prefix is required")
	}

	if cfg.Storage.MaxBackups < 1 {
		return fmt.Errorf("storage max backups must be at least 1")
	}

	if cfg.Remote.Token != "" {
		if cfg.Remote.Owner == "" || cfg.Remote.Repo == "" {
			return fmt.Errorf("remote owner and repo are required when a GitHub token is set")
		}
		if cfg.Remote.Path == "" {
			return fmt.Errorf("remote path is required when a GitHub token is set")
		}
		if cfg.Remote.Timeout <= 0 {
			return fmt.Errorf("remote timeout must be positive")
		}
		if cfg.Remote.MaxRetries < 0 {
			return fmt.Errorf("remote max retries must not be negative")
		}
	}

	if cfg.Auth.Enabled && len(cfg.Auth.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters when auth is enabled")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	return nil
}

func (cfg *StorageConfig) applyDefaults() {
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(cfg.DataDir, "backups")
	}
}

// DocumentPath returns the local document file path
func (cfg *StorageConfig) DocumentPath() string {
	return filepath.Join(cfg.DataDir, cfg.DocumentFile)
}

// Enabled returns true if the remote backend should be used.
// A missing token is a normal local-only deployment, not an error.
func (cfg *RemoteConfig) Enabled() bool {
	return cfg.Token != ""
}

// Target returns owner/repo:path@branch for logs and status output
func (cfg *RemoteConfig) Target() string {
	return fmt.Sprintf("%s/%s:%s@%s", cfg.Owner, cfg.Repo, cfg.Path, cfg.Branch)
}

// Address returns the HTTP listen address
func (cfg *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// IsDevelopment returns true if the environment is development
func (cfg *AppConfig) IsDevelopment() bool {
	return cfg.Environment == "development"
}

// IsProduction returns true if the environment is production
func (cfg *AppConfig) IsProduction() bool {
	return cfg.Environment == "production"
}
