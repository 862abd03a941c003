package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// valid returns a configuration that passes Validate, for tests to break
// one field at a time.
func valid() *Config {
	return &Config{
		ModelName:        "gemini-2.5-flash",
		Temperature:      0.7,
		EmbedderModel:    DefaultEmbedderModel,
		Dimension:        DefaultDimension,
		ChunkSize:        DefaultChunkSize,
		ChunkOverlap:     DefaultChunkOverlap,
		TopK:             DefaultTopK,
		MaxContextChars:  6000,
		NoContextPolicy:  PolicyGeneral,
		CorpusDir:        "./data",
		Store:            StorePostgres,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "medkb",
		PostgresPassword: "medkb_test_password",
		PostgresDBName:   "medkb",
		PostgresSSLMode:  "disable",
	}
}

func TestValidate_OK(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	err := valid().Validate()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidate_Fields(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"empty embedder model", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"dimension too small", func(c *Config) { c.Dimension = 64 }, ErrInvalidDimension},
		{"dimension too large", func(c *Config) { c.Dimension = 4096 }, ErrInvalidDimension},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, ErrInvalidChunking},
		{"overlap equals size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, ErrInvalidChunking},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, ErrInvalidChunking},
		{"zero top_k", func(c *Config) { c.TopK = 0 }, ErrInvalidTopK},
		{"zero context budget", func(c *Config) { c.MaxContextChars = 0 }, ErrInvalidContextBudget},
		{"unknown policy", func(c *Config) { c.NoContextPolicy = "shrug" }, ErrInvalidNoContextPolicy},
		{"unknown store", func(c *Config) { c.Store = "redis" }, ErrInvalidStore},
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"short password", func(c *Config) { c.PostgresPassword = "short" }, ErrInvalidPostgresPassword},
		{"bad sslmode", func(c *Config) { c.PostgresSSLMode = "prefer" }, ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MemoryStoreSkipsPostgres(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg := valid()
	cfg.Store = StoreMemory
	cfg.PostgresHost = ""
	cfg.PostgresPassword = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() with memory store = %v, want nil", err)
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("Validate() on nil = %v, want ErrConfigNil", err)
	}
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	if got := v.GetInt("chunk_size"); got != DefaultChunkSize {
		t.Errorf("chunk_size default = %d, want %d", got, DefaultChunkSize)
	}
	if got := v.GetInt("chunk_overlap"); got != DefaultChunkOverlap {
		t.Errorf("chunk_overlap default = %d, want %d", got, DefaultChunkOverlap)
	}
	if got := v.GetInt("top_k"); got != DefaultTopK {
		t.Errorf("top_k default = %d, want %d", got, DefaultTopK)
	}
	if got := v.GetString("no_context_policy"); got != PolicyGeneral {
		t.Errorf("no_context_policy default = %q, want %q", got, PolicyGeneral)
	}
	if got := v.GetString("store"); got != StorePostgres {
		t.Errorf("store default = %q, want %q", got, StorePostgres)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MEDKB_TOP_K", "7")

	v := viper.New()
	setDefaults(v)
	bindEnvVariables(v)

	if got := v.GetInt("top_k"); got != 7 {
		t.Errorf("top_k with MEDKB_TOP_K=7 = %d, want 7", got)
	}
}

func TestMarshalJSON_MasksPassword(t *testing.T) {
	cfg := valid()
	cfg.PostgresPassword = "super_secret_password"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if strings.Contains(string(data), "super_secret_password") {
		t.Error("marshaled config leaked the postgres password")
	}
}

func TestString_MasksPassword(t *testing.T) {
	cfg := valid()
	cfg.PostgresPassword = "another_secret_value"

	if strings.Contains(cfg.String(), "another_secret_value") {
		t.Error("String() leaked the postgres password")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", maskedValue},
		{"12345678", maskedValue},
		{"my_long_secret_key", "my<" + maskedValue + ">ey"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
