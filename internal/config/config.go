// Package config loads and validates medkb configuration.
//
// Sources, highest priority first:
//  1. Environment variables (MEDKB_* plus DATABASE_URL and GEMINI_API_KEY)
//  2. Config file (~/.medkb/config.yaml or ./config.yaml)
//  3. Defaults
//
// Validation is fail-fast: Load returns sentinel errors checkable with
// errors.Is(), wrapped with context via fmt.Errorf("%w: ...", ErrXxx).
// Sensitive values (passwords, API keys) are masked in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates chunk size/overlap is invalid.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidContextBudget indicates the prompt context budget is invalid.
	ErrInvalidContextBudget = errors.New("invalid max_context_chars")

	// ErrInvalidNoContextPolicy indicates an unknown no-context policy.
	ErrInvalidNoContextPolicy = errors.New("invalid no_context_policy")

	// ErrInvalidStore indicates an unknown index store backend.
	ErrInvalidStore = errors.New("invalid store backend")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultEmbedderModel truncates to DefaultDimension via
	// OutputDimensionality (Matryoshka representations); the pgvector
	// schema column width must match DefaultDimension.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultDimension is the embedding width used by the index schema.
	DefaultDimension = 768

	// DefaultChunkSize and DefaultChunkOverlap are measured in characters.
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	// DefaultTopK is the retrieval depth for answering.
	DefaultTopK = 3
)

// Index store backends selectable via Config.Store.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// No-context policies: what the answer pipeline does when retrieval
// returns nothing usable.
const (
	// PolicyGeneral answers from the model's general knowledge, with an
	// instruction to say the answer is not from the knowledge base.
	PolicyGeneral = "general"

	// PolicyRefuse completes immediately with the configured refusal
	// message and never calls the model.
	PolicyRefuse = "refuse"

	// PolicyNotFound is PolicyRefuse with an explicit "not found in the
	// knowledge base" message.
	PolicyNotFound = "notfound"
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON; when adding a new
// secret field, update that method.
type Config struct {
	// Generation model
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`

	// Embedding
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	Dimension     int    `mapstructure:"dimension" json:"dimension"`

	// Chunking (characters)
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval and prompt assembly
	TopK            int `mapstructure:"top_k" json:"top_k"`
	MaxContextChars int `mapstructure:"max_context_chars" json:"max_context_chars"`

	// Answering behavior when retrieval comes back empty
	NoContextPolicy string `mapstructure:"no_context_policy" json:"no_context_policy"`
	RefusalMessage  string `mapstructure:"refusal_message" json:"refusal_message"`

	// Corpus location for ingestion (flat directory of *.txt files)
	CorpusDir string `mapstructure:"corpus_dir" json:"corpus_dir"`

	// Index store backend: "postgres" (durable) or "memory" (dev/test)
	Store string `mapstructure:"store" json:"store"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Tracing (see internal/observability); empty endpoint disables export
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
}

// GeminiAPIKey reads the API key from the environment. It is never stored
// in the struct so it cannot leak through marshaling.
func (c *Config) GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".medkb")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* values.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.7)

	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("dimension", DefaultDimension)

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)

	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("max_context_chars", 6000)

	v.SetDefault("no_context_policy", PolicyGeneral)
	v.SetDefault("refusal_message",
		"I can only answer questions covered by the medical knowledge base.")

	v.SetDefault("corpus_dir", "./data")
	v.SetDefault("store", StorePostgres)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "medkb")
	v.SetDefault("postgres_password", "medkb_dev_password")
	v.SetDefault("postgres_db_name", "medkb")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("service_name", "medkb")
}

// bindEnvVariables binds environment overrides explicitly. GEMINI_API_KEY
// is read directly by the Gemini client, not through viper; Validate only
// checks its presence.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "MEDKB_MODEL_NAME")
	mustBind("embedder_model", "MEDKB_EMBEDDER_MODEL")
	mustBind("dimension", "MEDKB_DIMENSION")
	mustBind("chunk_size", "MEDKB_CHUNK_SIZE")
	mustBind("chunk_overlap", "MEDKB_CHUNK_OVERLAP")
	mustBind("top_k", "MEDKB_TOP_K")
	mustBind("max_context_chars", "MEDKB_MAX_CONTEXT_CHARS")
	mustBind("no_context_policy", "MEDKB_NO_CONTEXT_POLICY")
	mustBind("corpus_dir", "MEDKB_CORPUS_DIR")
	mustBind("store", "MEDKB_STORE")
	mustBind("otlp_endpoint", "MEDKB_OTLP_ENDPOINT")
	mustBind("service_name", "MEDKB_SERVICE_NAME")
}

// maskedValue uses full-width blocks so a masked string can never be a
// substring of the secret it replaces.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility. This defends against accidental logging, nothing stronger.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields. Currently: PostgresPassword.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer so printing a Config never leaks secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
