package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Directory DirectoryConfig `yaml:"directory"`
	Identity  IdentityConfig  `yaml:"identity"`
	State     StateConfig     `yaml:"state"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Sync      SyncConfig      `yaml:"sync"`
	Cache     CacheConfig     `yaml:"cache"`
	Report    ReportConfig    `yaml:"report"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DirectoryConfig holds supporter-directory API configuration
type DirectoryConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// IDNamespace is the identifier namespace the directory uses for
	// its own person IDs (e.g. "action_network").
	IDNamespace string `yaml:"id_namespace"`
	// RetryAttempts/RetryDelaySeconds govern the shared retry policy
	// for every directory call.
	RetryAttempts     int `yaml:"retry_attempts"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c DirectoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay returns the configured retry delay as a duration
func (c DirectoryConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// IdentityConfig holds identity-system admin API configuration
type IdentityConfig struct {
	BaseURL           string `yaml:"base_url"`
	Realm             string `yaml:"realm"`
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	// DefaultFirstName is used in generated usernames when the export
	// row has no first name.
	DefaultFirstName string `yaml:"default_first_name"`
	// UsernameAttempts bounds collision-avoidance retries during
	// username generation.
	UsernameAttempts int `yaml:"username_attempts"`
}

// Timeout returns the configured timeout as a duration
func (c IdentityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay returns the configured retry delay as a duration
func (c IdentityConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// StateConfig holds the DynamoDB state table configuration
type StateConfig struct {
	Table      string `yaml:"table"`
	Region     string `yaml:"region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain
	// Endpoint overrides the DynamoDB endpoint, for localstack runs.
	Endpoint string `yaml:"endpoint"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StateConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// IngestConfig holds export-ingestion configuration
type IngestConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	Region   string `yaml:"region"`
	// SharedKeyHeader / SharedKey authenticate inbound export emails.
	SharedKeyHeader string `yaml:"shared_key_header"`
	SharedKey       string `yaml:"shared_key"`
}

// SyncConfig holds orchestrator configuration
type SyncConfig struct {
	BatchSize int  `yaml:"batch_size"`
	GraceDays int  `yaml:"grace_days"`
	DryRun    bool `yaml:"dry_run"`
}

// CacheConfig holds the optional Redis lookup-cache configuration
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// TTL returns the cache entry lifetime as a duration
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ReportConfig holds the Postgres run-history configuration
type ReportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

// NotifyConfig holds post-run notification configuration. AccessKey
// and SecretKey are optional; when empty the default AWS credential
// chain is used.
type NotifyConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"access_key"`
	SecretKey string   `yaml:"secret_key"`
	FromEmail string   `yaml:"from_email"`
	ToEmails  []string `yaml:"to_emails"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Directory.TimeoutSeconds == 0 {
		cfg.Directory.TimeoutSeconds = 30
	}
	if cfg.Directory.IDNamespace == "" {
		cfg.Directory.IDNamespace = "action_network"
	}
	if cfg.Directory.RetryAttempts == 0 {
		cfg.Directory.RetryAttempts = 3
	}
	if cfg.Directory.RetryDelaySeconds == 0 {
		cfg.Directory.RetryDelaySeconds = 5
	}
	if cfg.Identity.TimeoutSeconds == 0 {
		cfg.Identity.TimeoutSeconds = 30
	}
	if cfg.Identity.RetryAttempts == 0 {
		cfg.Identity.RetryAttempts = 3
	}
	if cfg.Identity.RetryDelaySeconds == 0 {
		cfg.Identity.RetryDelaySeconds = 5
	}
	if cfg.Identity.DefaultFirstName == "" {
		cfg.Identity.DefaultFirstName = "Comrade"
	}
	if cfg.Identity.UsernameAttempts == 0 {
		cfg.Identity.UsernameAttempts = 10
	}
	if cfg.State.Table == "" {
		cfg.State.Table = "roster_sync_state"
	}
	if cfg.State.Region == "" {
		cfg.State.Region = "us-east-1"
	}
	if cfg.Ingest.Region == "" {
		cfg.Ingest.Region = cfg.State.Region
	}
	if cfg.Ingest.SharedKeyHeader == "" {
		cfg.Ingest.SharedKeyHeader = "X-Roster-Key"
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 200
	}
	if cfg.Sync.GraceDays == 0 {
		cfg.Sync.GraceDays = 60
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = 360
	}
	if cfg.Notify.Region == "" {
		cfg.Notify.Region = cfg.State.Region
	}
}

// LoadFromEnv reads configuration from a YAML file, then overrides
// with environment variables (loading .env first if present).
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if apiKey := os.Getenv("DIRECTORY_API_KEY"); apiKey != "" {
		cfg.Directory.APIKey = apiKey
	}
	if baseURL := os.Getenv("DIRECTORY_BASE_URL"); baseURL != "" {
		cfg.Directory.BaseURL = baseURL
	}
	if baseURL := os.Getenv("IDENTITY_BASE_URL"); baseURL != "" {
		cfg.Identity.BaseURL = baseURL
	}
	if clientID := os.Getenv("IDENTITY_CLIENT_ID"); clientID != "" {
		cfg.Identity.ClientID = clientID
	}
	if secret := os.Getenv("IDENTITY_CLIENT_SECRET"); secret != "" {
		cfg.Identity.ClientSecret = secret
	}
	if realm := os.Getenv("IDENTITY_REALM"); realm != "" {
		cfg.Identity.Realm = realm
	}
	if table := os.Getenv("STATE_TABLE"); table != "" {
		cfg.State.Table = table
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.State.Region = region
	}
	if endpoint := os.Getenv("STATE_ENDPOINT"); endpoint != "" {
		cfg.State.Endpoint = endpoint
	}
	if bucket := os.Getenv("INGEST_S3_BUCKET"); bucket != "" {
		cfg.Ingest.S3Bucket = bucket
	}
	if key := os.Getenv("INGEST_SHARED_KEY"); key != "" {
		cfg.Ingest.SharedKey = key
	}
	if os.Getenv("DRY_RUN") == "1" {
		cfg.Sync.DryRun = true
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.Addr = addr
		cfg.Cache.Enabled = true
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Report.DatabaseURL = dbURL
		cfg.Report.Enabled = true
	}

	return cfg, nil
}
