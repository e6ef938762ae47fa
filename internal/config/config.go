package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"script-rag/internal/models"
)

// Config is the root configuration, loaded from configs/config.yaml.
// Secrets are referenced as ${VAR} and resolved against the environment,
// so the file itself never has to carry credentials.
type Config struct {
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	RAG       RAGConfig       `yaml:"rag"`
	Script    ScriptConfig    `yaml:"script"`
}

// QdrantConfig holds the hosted vector database connection settings.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

func (q *QdrantConfig) Timeout() time.Duration {
	return time.Duration(q.TimeoutSecs) * time.Second
}

// EmbeddingConfig selects and configures the embedding backend.
// Backend "ollama" serves the local sentence-embedding model through an
// Ollama daemon; "openai" talks to any OpenAI-compatible endpoint.
type EmbeddingConfig struct {
	Backend   string `yaml:"backend"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	VectorDim int    `yaml:"vector_dim"`
}

// ChatConfig holds the chat completion API settings (DeepSeek by default).
type ChatConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// RAGConfig holds chunking and retrieval parameters.
type RAGConfig struct {
	ChunkSize       int     `yaml:"chunk_size"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
	Splitter        string  `yaml:"splitter"`
	TopK            int     `yaml:"top_k"`
	ScoreThreshold  float64 `yaml:"score_threshold"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	VectorWeight    float64 `yaml:"vector_weight"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

// ScriptConfig points at the default document to upload.
type ScriptConfig struct {
	Path string `yaml:"path"`
}

// LoadConfig reads a YAML config file, expands ${VAR} references against
// the environment and applies defaults. Call Validate before using the
// result for anything that talks to the network.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %v: %w", path, err, models.ErrConfig)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %v: %w", path, err, models.ErrConfig)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "script_collection"
	}
	if c.Qdrant.TimeoutSecs <= 0 {
		c.Qdrant.TimeoutSecs = 60
	}
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = "ollama"
	}
	if c.Embedding.BaseURL == "" {
		switch c.Embedding.Backend {
		case "ollama":
			c.Embedding.BaseURL = "http://localhost:11434"
		case "openai":
			c.Embedding.BaseURL = "https://api.openai.com/v1"
		}
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "all-minilm"
	}
	if c.Embedding.VectorDim <= 0 {
		c.Embedding.VectorDim = 384
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = "https://api.deepseek.com/v1"
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "deepseek-chat"
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = 1000
	}
	if c.Chat.Temperature <= 0 {
		c.Chat.Temperature = 0.7
	}
	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = 800
	}
	if c.RAG.ChunkOverlap <= 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		c.RAG.ChunkOverlap = 100
	}
	if c.RAG.Splitter == "" {
		c.RAG.Splitter = "sentence"
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.ScoreThreshold == 0 {
		c.RAG.ScoreThreshold = 0.1
	}
	if c.RAG.KeywordWeight == 0 && c.RAG.VectorWeight == 0 {
		c.RAG.KeywordWeight = 0.3
		c.RAG.VectorWeight = 0.7
	}
	if c.RAG.MaxContextChars <= 0 {
		c.RAG.MaxContextChars = 2000
	}
	if c.Script.Path == "" {
		c.Script.Path = "script.docx"
	}
}

// Validate checks that every field needed before the first remote call is
// present. Failures wrap models.ErrConfig and are fatal at startup.
func (c *Config) Validate() error {
	var missing []string
	if c.Qdrant.URL == "" {
		missing = append(missing, "QDRANT_URL")
	}
	if c.Qdrant.APIKey == "" {
		missing = append(missing, "QDRANT_API_KEY")
	}
	if c.Chat.APIKey == "" {
		missing = append(missing, "DEEPSEEK_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s: %w",
			strings.Join(missing, ", "), models.ErrConfig)
	}
	switch c.Embedding.Backend {
	case "ollama":
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for the openai backend: %w", models.ErrConfig)
		}
	default:
		return fmt.Errorf("unknown embedding backend %q: %w", c.Embedding.Backend, models.ErrConfig)
	}
	switch c.RAG.Splitter {
	case "sentence", "recursive":
	default:
		return fmt.Errorf("unknown splitter %q: %w", c.RAG.Splitter, models.ErrConfig)
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDef := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDef {
			val = def
		}
		return []byte(val)
	})
}
