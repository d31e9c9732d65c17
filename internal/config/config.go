// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Trigger  TriggerConfig
	Cache    CacheConfig
	Database DatabaseConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
	MaxUploadBytes int64
}

type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig describes how bearer tokens presented to the upload endpoint
// are validated.
type AuthConfig struct {
	Audience        string
	Issuer          string
	RequiredScopes  []string
	VerifySignature bool
	JWKSURL         string
	HMACSecret      string
	JWKSRefresh     time.Duration
}

// StorageConfig selects the object storage backend and the fixed object keys.
type StorageConfig struct {
	Backend   string
	Container string
	InputKey  string
	OutputKey string
	LocalRoot string
	MinIO     MinIOConfig
	S3        S3Config
	Azure     AzureConfig
	GCS       GCSConfig
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type AzureConfig struct {
	Account   string
	AccessKey string
}

type GCSConfig struct {
	CredentialsJSON string
}

// TriggerConfig controls how object-created events reach the transform.
type TriggerConfig struct {
	Enabled      bool
	Source       string
	PollInterval time.Duration
}

type CacheConfig struct {
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	Channel       string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendMinIO  = "minio"
	BackendS3     = "s3"
	BackendAzure  = "azure"
	BackendGCS    = "gcs"

	SourceNative = "native"
	SourcePoll   = "poll"
	SourceRedis  = "redis"
)

// Load reads configuration from the environment (and a .env file when one
// exists) and validates it.
func Load() (*Config, error) {
	cfg := Read()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read returns the configuration without validating it, for tools that only
// need some sections.
func Read() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: splitList(v.GetStringSlice("SERVER_ALLOWED_ORIGINS")),
			MaxUploadBytes: v.GetInt64("SERVER_MAX_UPLOAD_BYTES"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Auth: AuthConfig{
			Audience:        v.GetString("AUTH_AUDIENCE"),
			Issuer:          v.GetString("AUTH_ISSUER"),
			RequiredScopes:  splitScopes(v.GetStringSlice("AUTH_REQUIRED_SCOPES")),
			VerifySignature: v.GetBool("AUTH_VERIFY_SIGNATURE"),
			JWKSURL:         v.GetString("AUTH_JWKS_URL"),
			HMACSecret:      v.GetString("AUTH_HMAC_SECRET"),
			JWKSRefresh:     time.Duration(v.GetInt("AUTH_JWKS_REFRESH_SECONDS")) * time.Second,
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(v.GetString("STORAGE_BACKEND")),
			Container: v.GetString("STORAGE_CONTAINER"),
			InputKey:  v.GetString("STORAGE_INPUT_KEY"),
			OutputKey: v.GetString("STORAGE_OUTPUT_KEY"),
			LocalRoot: v.GetString("STORAGE_LOCAL_ROOT"),
			MinIO: MinIOConfig{
				Endpoint:  v.GetString("MINIO_ENDPOINT"),
				AccessKey: v.GetString("MINIO_ACCESS_KEY"),
				SecretKey: v.GetString("MINIO_SECRET_KEY"),
				Region:    v.GetString("MINIO_REGION"),
				UseSSL:    v.GetBool("MINIO_USE_SSL"),
			},
			S3: S3Config{
				Endpoint:  v.GetString("S3_ENDPOINT"),
				AccessKey: v.GetString("S3_ACCESS_KEY"),
				SecretKey: v.GetString("S3_SECRET_KEY"),
				Region:    v.GetString("S3_REGION"),
				UseSSL:    v.GetBool("S3_USE_SSL"),
			},
			Azure: AzureConfig{
				Account:   v.GetString("AZURE_STORAGE_ACCOUNT"),
				AccessKey: v.GetString("AZURE_STORAGE_ACCESS_KEY"),
			},
			GCS: GCSConfig{
				CredentialsJSON: v.GetString("GCS_CREDENTIALS_JSON"),
			},
		},
		Trigger: TriggerConfig{
			Enabled:      v.GetBool("TRIGGER_ENABLED"),
			Source:       strings.ToLower(v.GetString("TRIGGER_SOURCE")),
			PollInterval: time.Duration(v.GetInt("TRIGGER_POLL_INTERVAL_SECONDS")) * time.Second,
		},
		Cache: CacheConfig{
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			Channel:       v.GetString("REDIS_CHANNEL"),
		},
		Database: DatabaseConfig{
			Enabled:  v.GetBool("DB_ENABLED"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "7071")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SERVER_MAX_UPLOAD_BYTES", 32<<20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("AUTH_AUDIENCE", "")
	v.SetDefault("AUTH_ISSUER", "")
	v.SetDefault("AUTH_REQUIRED_SCOPES", []string{"Csv.Writer"})
	v.SetDefault("AUTH_VERIFY_SIGNATURE", true)
	v.SetDefault("AUTH_JWKS_URL", "")
	v.SetDefault("AUTH_HMAC_SECRET", "")
	v.SetDefault("AUTH_JWKS_REFRESH_SECONDS", 3600)

	v.SetDefault("STORAGE_BACKEND", BackendLocal)
	v.SetDefault("STORAGE_CONTAINER", "hvalfangstcontainer")
	v.SetDefault("STORAGE_INPUT_KEY", "in/input.csv")
	v.SetDefault("STORAGE_OUTPUT_KEY", "out/statistics.json")
	v.SetDefault("STORAGE_LOCAL_ROOT", "./data/blobs")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_REGION", "us-east-1")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("AZURE_STORAGE_ACCOUNT", "")
	v.SetDefault("AZURE_STORAGE_ACCESS_KEY", "")
	v.SetDefault("GCS_CREDENTIALS_JSON", "")

	v.SetDefault("TRIGGER_ENABLED", true)
	v.SetDefault("TRIGGER_SOURCE", SourceNative)
	v.SetDefault("TRIGGER_POLL_INTERVAL_SECONDS", 5)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CHANNEL", "csvstats:object-created")

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "csvstats")
	v.SetDefault("DB_SSLMODE", "disable")
}

// Validate reports the first configuration problem that would prevent the
// server from starting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendLocal, BackendMinIO, BackendS3, BackendAzure, BackendGCS:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.InputKey == "" || c.Storage.OutputKey == "" {
		return fmt.Errorf("storage input and output keys must be provided")
	}
	if c.Storage.InputKey == c.Storage.OutputKey {
		return fmt.Errorf("storage input and output keys must differ")
	}

	switch c.Trigger.Source {
	case SourceNative, SourcePoll, SourceRedis:
	default:
		return fmt.Errorf("unknown trigger source %q", c.Trigger.Source)
	}
	if c.Trigger.Source == SourcePoll && c.Trigger.PollInterval <= 0 {
		return fmt.Errorf("trigger poll interval must be positive")
	}

	if c.Auth.Audience == "" {
		return fmt.Errorf("auth audience must be provided")
	}
	if c.Auth.VerifySignature && c.Auth.JWKSURL == "" && c.Auth.HMACSecret == "" {
		return fmt.Errorf("signature verification requires AUTH_JWKS_URL or AUTH_HMAC_SECRET")
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max upload bytes must be positive")
	}
	return nil
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// splitScopes accepts both space and comma separated scope lists, matching
// how scp claims are written.
func splitScopes(values []string) []string {
	var scopes []string
	for _, value := range values {
		for _, field := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
			scopes = append(scopes, field)
		}
	}
	return scopes
}

func splitList(values []string) []string {
	var parsed []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
	}
	return parsed
}
