package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	ProjectsDir string
	DBPath      string
	APIPort     string

	LLMBaseURL           string
	LLMAPIKey            string
	LLMModelName         string
	LLMTemperature       float64
	LLMRequestsPerSecond float64

	RouterClassifier        bool
	RouterClassifierTimeout time.Duration

	RetrievalTopK          int
	FusionLexicalWeight    float64
	MinRelevance           float64
	HybridCorpusCap        int
	SingleCorpusCap        int
	AlignmentMinConfidence float64
	AlignmentRatio         float64

	WatchProjects bool

	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	p := &envParser{}
	cfg := &Config{
		ProjectsDir: getEnv("PROJECTS_DIR", ""),
		DBPath:      getEnv("DB_PATH", "./data/paperqa.db"),
		APIPort:     getEnv("API_PORT", "9000"),

		LLMBaseURL:           getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:            getEnv("LLM_API_KEY", ""),
		LLMModelName:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature:       p.getFloat("LLM_TEMPERATURE", 0.2),
		LLMRequestsPerSecond: p.getFloat("LLM_REQUESTS_PER_SECOND", 2),

		RouterClassifier:        p.getBool("ROUTER_CLASSIFIER", true),
		RouterClassifierTimeout: p.getDuration("ROUTER_CLASSIFIER_TIMEOUT", 5*time.Second),

		RetrievalTopK:          p.getInt("RETRIEVAL_TOP_K", 10),
		FusionLexicalWeight:    p.getFloat("FUSION_LEXICAL_WEIGHT", 0.5),
		MinRelevance:           p.getFloat("MIN_RELEVANCE", 0.15),
		HybridCorpusCap:        p.getInt("HYBRID_CORPUS_CAP", 5),
		SingleCorpusCap:        p.getInt("SINGLE_CORPUS_CAP", 8),
		AlignmentMinConfidence: p.getFloat("ALIGNMENT_MIN_CONFIDENCE", 0.5),
		AlignmentRatio:         p.getFloat("ALIGNMENT_RATIO", 0.2),

		WatchProjects: p.getBool("WATCH_PROJECTS", true),

		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	if p.err != nil {
		return nil, p.err
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ProjectsDir == "" {
		return errors.New("PROJECTS_DIR is required")
	}
	info, err := os.Stat(c.ProjectsDir)
	if err != nil {
		return fmt.Errorf("PROJECTS_DIR is not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("PROJECTS_DIR %s is not a directory", c.ProjectsDir)
	}

	for name, v := range map[string]float64{
		"FUSION_LEXICAL_WEIGHT":    c.FusionLexicalWeight,
		"MIN_RELEVANCE":            c.MinRelevance,
		"ALIGNMENT_MIN_CONFIDENCE": c.AlignmentMinConfidence,
		"ALIGNMENT_RATIO":          c.AlignmentRatio,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}
	for name, v := range map[string]int{
		"RETRIEVAL_TOP_K":   c.RetrievalTopK,
		"HYBRID_CORPUS_CAP": c.HybridCorpusCap,
		"SINGLE_CORPUS_CAP": c.SingleCorpusCap,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be greater than 0", name)
		}
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", c.LLMTemperature)
	}
	if c.LLMRequestsPerSecond < 0 {
		return errors.New("LLM_REQUESTS_PER_SECOND must not be negative")
	}
	if c.RouterClassifierTimeout <= 0 {
		return errors.New("ROUTER_CLASSIFIER_TIMEOUT must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// LLMConfigured reports whether answers can be generated by a language model.
func (c *Config) LLMConfigured() bool {
	return c.LLMBaseURL != ""
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser parses typed variables and keeps the first failure.
type envParser struct {
	err error
}

func (p *envParser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s must be a valid value, got %q: %w", key, raw, err)
	}
}

func (p *envParser) getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *envParser) getFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *envParser) getBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *envParser) getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", raw)
	}
	return level, nil
}
