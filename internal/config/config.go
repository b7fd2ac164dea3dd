package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mailbox   MailboxConfig   `mapstructure:"mailbox"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// MailboxConfig holds mailbox transport configuration. Per-student
// credentials come from the student store; only shared transport settings
// live here.
type MailboxConfig struct {
	UseIMAP      bool          `mapstructure:"use_imap"`
	IMAPHost     string        `mapstructure:"imap_host"`
	IMAPPort     int           `mapstructure:"imap_port"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// ExtractorConfig holds extraction service configuration
type ExtractorConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	MaxConcurrency int64         `mapstructure:"max_concurrency"`
	CallsPerMinute int           `mapstructure:"calls_per_minute"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// PipelineConfig holds pipeline run configuration
type PipelineConfig struct {
	Workers         int           `mapstructure:"workers"`
	BatchSize       int           `mapstructure:"batch_size"`
	FetchRetries    int           `mapstructure:"fetch_retries"`
	DedupRetention  time.Duration `mapstructure:"dedup_retention"`
	DedupMaxPerUser int           `mapstructure:"dedup_max_per_user"`
	SlotCapacity    int           `mapstructure:"slot_capacity"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("mailbox.use_imap", true)
	viper.SetDefault("mailbox.imap_host", "imap.gmail.com")
	viper.SetDefault("mailbox.imap_port", 993)
	viper.SetDefault("mailbox.fetch_timeout", "60s")

	viper.SetDefault("extractor.model", "gemini-1.5-flash")
	viper.SetDefault("extractor.max_concurrency", 10)
	viper.SetDefault("extractor.calls_per_minute", 60)
	viper.SetDefault("extractor.call_timeout", "30s")
	viper.SetDefault("extractor.max_retries", 3)

	viper.SetDefault("pipeline.workers", 10)
	viper.SetDefault("pipeline.batch_size", 5)
	viper.SetDefault("pipeline.fetch_retries", 3)
	viper.SetDefault("pipeline.dedup_retention", "168h")
	viper.SetDefault("pipeline.dedup_max_per_user", 512)
	viper.SetDefault("pipeline.slot_capacity", 60)

	viper.SetDefault("scheduler.interval_minutes", 5)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.sslmode", "DB_SSLMODE")

	// Mailbox
	viper.BindEnv("mailbox.use_imap", "MAILBOX_USE_IMAP")
	viper.BindEnv("mailbox.imap_host", "MAILBOX_IMAP_HOST")
	viper.BindEnv("mailbox.imap_port", "MAILBOX_IMAP_PORT")
	viper.BindEnv("mailbox.client_id", "MAILBOX_CLIENT_ID")
	viper.BindEnv("mailbox.client_secret", "MAILBOX_CLIENT_SECRET")
	viper.BindEnv("mailbox.fetch_timeout", "MAILBOX_FETCH_TIMEOUT")

	// Extractor
	viper.BindEnv("extractor.api_key", "GEMINI_API_KEY")
	viper.BindEnv("extractor.model", "GEMINI_MODEL")
	viper.BindEnv("extractor.max_concurrency", "EXTRACTOR_MAX_CONCURRENCY")
	viper.BindEnv("extractor.calls_per_minute", "EXTRACTOR_CALLS_PER_MINUTE")
	viper.BindEnv("extractor.call_timeout", "EXTRACTOR_CALL_TIMEOUT")
	viper.BindEnv("extractor.max_retries", "EXTRACTOR_MAX_RETRIES")

	// Pipeline
	viper.BindEnv("pipeline.workers", "PIPELINE_WORKERS")
	viper.BindEnv("pipeline.batch_size", "PIPELINE_BATCH_SIZE")
	viper.BindEnv("pipeline.fetch_retries", "PIPELINE_FETCH_RETRIES")
	viper.BindEnv("pipeline.dedup_retention", "PIPELINE_DEDUP_RETENTION")
	viper.BindEnv("pipeline.dedup_max_per_user", "PIPELINE_DEDUP_MAX_PER_USER")
	viper.BindEnv("pipeline.slot_capacity", "PIPELINE_SLOT_CAPACITY")

	// Scheduler
	viper.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if !c.Mailbox.UseIMAP {
		if c.Mailbox.ClientID == "" || c.Mailbox.ClientSecret == "" {
			return fmt.Errorf("OAuth2 client credentials are required when not using IMAP")
		}
	}

	if c.Extractor.APIKey == "" {
		return fmt.Errorf("extractor API key is required")
	}
	if c.Extractor.MaxConcurrency <= 0 {
		return fmt.Errorf("extractor max concurrency must be greater than 0")
	}
	if c.Extractor.CallsPerMinute <= 0 {
		return fmt.Errorf("extractor calls per minute must be greater than 0")
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be greater than 0")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline batch size must be greater than 0")
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}
