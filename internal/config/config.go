package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Determinism holds the evaluation settings that must stay fixed for
// reproducible grading. It is constructed once at startup and passed
// explicitly into the gateway, consensus evaluator, and orchestrators.
type Determinism struct {
	Model              string
	Temperature        float32
	ConsensusEnabled   bool
	ConsensusCalls     int
	ConsensusQuorum    float64
	CacheEnabled       bool
	CacheTTL           time.Duration
	ScorePrecision     int
	AllowedVariancePct float64
}

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	OpenAIAPIKey string
	GitHubToken  string

	UploadDir        string
	UploadMaxSizeMB  int
	RepoFileCeiling  int
	RepoPerFileChars int
	RepoTotalChars   int
	CallTimeout      time.Duration

	Eval Determinism
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ACADEX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Acadex API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("repo.file_ceiling", 100)
	v.SetDefault("repo.per_file_chars", 15000)
	v.SetDefault("repo.total_chars", 100000)
	v.SetDefault("call.timeout", "60s")
	v.SetDefault("eval.model", "gpt-4o-2024-08-06")
	v.SetDefault("eval.temperature", 0.0)
	v.SetDefault("eval.consensus_enabled", true)
	v.SetDefault("eval.consensus_calls", 3)
	v.SetDefault("eval.consensus_quorum", 0.67)
	v.SetDefault("eval.cache_enabled", true)
	v.SetDefault("eval.cache_ttl_days", 365)
	v.SetDefault("eval.score_precision", 2)
	v.SetDefault("eval.allowed_variance", 2.0)

	callTimeout, err := time.ParseDuration(v.GetString("call.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid call timeout: %w", err)
	}

	eval := Determinism{
		Model:              v.GetString("eval.model"),
		Temperature:        float32(v.GetFloat64("eval.temperature")),
		ConsensusEnabled:   v.GetBool("eval.consensus_enabled"),
		ConsensusCalls:     v.GetInt("eval.consensus_calls"),
		ConsensusQuorum:    v.GetFloat64("eval.consensus_quorum"),
		CacheEnabled:       v.GetBool("eval.cache_enabled"),
		CacheTTL:           time.Duration(v.GetInt("eval.cache_ttl_days")) * 24 * time.Hour,
		ScorePrecision:     v.GetInt("eval.score_precision"),
		AllowedVariancePct: v.GetFloat64("eval.allowed_variance"),
	}

	if err := eval.Validate(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		GitHubToken:      v.GetString("github_token"),
		UploadDir:        v.GetString("upload.dir"),
		UploadMaxSizeMB:  v.GetInt("upload.max_size_mb"),
		RepoFileCeiling:  v.GetInt("repo.file_ceiling"),
		RepoPerFileChars: v.GetInt("repo.per_file_chars"),
		RepoTotalChars:   v.GetInt("repo.total_chars"),
		CallTimeout:      callTimeout,
		Eval:             eval,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}

// Validate rejects settings that would break the reproducibility contract.
func (d Determinism) Validate() error {
	if d.Model == "" {
		return fmt.Errorf("evaluation model must be set")
	}

	if d.Temperature != 0 {
		return fmt.Errorf("evaluation temperature must be 0, got %v", d.Temperature)
	}

	if d.ConsensusEnabled && d.ConsensusCalls < 2 {
		return fmt.Errorf("consensus requires at least 2 calls, got %d", d.ConsensusCalls)
	}

	if d.ScorePrecision < 0 {
		return fmt.Errorf("score precision must not be negative")
	}

	return nil
}
