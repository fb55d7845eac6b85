package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the engine.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Data is the data directory
	Data string
	// DSN points to where loom stores its graph data (sqlite file or postgres URL)
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// VectorDSN points to the pgvector database backing the memory index.
	// Empty means the in-memory reference index is used.
	VectorDSN string
	// Version is the current version of the engine
	Version string

	// AI Configuration
	AIEnabled            bool    // LOOM_AI_ENABLED
	AIEmbeddingProvider  string  // LOOM_AI_EMBEDDING_PROVIDER (default: openai)
	AILLMProvider        string  // LOOM_AI_LLM_PROVIDER (default: openai)
	AIOpenAIAPIKey       string  // LOOM_AI_OPENAI_API_KEY
	AIOpenAIBaseURL      string  // LOOM_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AISiliconFlowAPIKey  string  // LOOM_AI_SILICONFLOW_API_KEY
	AISiliconFlowBaseURL string  // LOOM_AI_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	AIEmbeddingModel     string  // LOOM_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIEmbeddingDims      int     // LOOM_AI_EMBEDDING_DIMS (default: 1024)
	AILLMModel           string  // LOOM_AI_LLM_MODEL (default: gpt-4o-mini)
	AILLMMaxTokens       int     // LOOM_AI_LLM_MAX_TOKENS (default: 2048)
	AILLMTemperature     float32 // LOOM_AI_LLM_TEMPERATURE (default: 0.7)
	AIRequestsPerSecond  float64 // LOOM_AI_REQUESTS_PER_SECOND (default: 2)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and at least one API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIOpenAIAPIKey != "" || p.AISiliconFlowAPIKey != "")
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FromEnv loads configuration from LOOM_* environment variables.
func (p *Profile) FromEnv() {
	p.AIEnabled = os.Getenv("LOOM_AI_ENABLED") == "true"
	p.AIEmbeddingProvider = getEnvOrDefault("LOOM_AI_EMBEDDING_PROVIDER", "openai")
	p.AILLMProvider = getEnvOrDefault("LOOM_AI_LLM_PROVIDER", "openai")
	p.AIOpenAIAPIKey = os.Getenv("LOOM_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("LOOM_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AISiliconFlowAPIKey = os.Getenv("LOOM_AI_SILICONFLOW_API_KEY")
	p.AISiliconFlowBaseURL = getEnvOrDefault("LOOM_AI_SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1")
	p.AIEmbeddingModel = getEnvOrDefault("LOOM_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.AIEmbeddingDims = getIntEnvOrDefault("LOOM_AI_EMBEDDING_DIMS", 1024)
	p.AILLMModel = getEnvOrDefault("LOOM_AI_LLM_MODEL", "gpt-4o-mini")
	p.AILLMMaxTokens = getIntEnvOrDefault("LOOM_AI_LLM_MAX_TOKENS", 2048)
	p.AILLMTemperature = float32(getFloatEnvOrDefault("LOOM_AI_LLM_TEMPERATURE", 0.7))
	p.AIRequestsPerSecond = getFloatEnvOrDefault("LOOM_AI_REQUESTS_PER_SECOND", 2)

	if p.VectorDSN == "" {
		p.VectorDSN = os.Getenv("LOOM_VECTOR_DSN")
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		p.Driver = "sqlite"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "loom")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/loom"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("loom_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
