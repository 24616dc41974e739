package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultUploadDir    = "uploads"
	defaultUploadGlob   = "*.pdf"
	defaultVectorDBDir  = "vectordb"
	defaultSummaryInput = "folder/file.pdf"
	defaultCollection   = "pdf_collection"
	defaultChunkSize    = 500
	defaultChunkOverlap = 20
	defaultTopK         = 4
	defaultQAAddr       = ":8501"
	defaultSummaryAddr  = ":8502"
	defaultVectorSize   = 1536

	// APIKeyEnv overrides the configured model keys when set.
	APIKeyEnv = "OPENAI_API_KEY"
)

type PathsConfig struct {
	Uploads      string `yaml:"uploads"`
	UploadGlob   string `yaml:"upload_glob"`
	VectorDB     string `yaml:"vectordb"`
	SummaryInput string `yaml:"summary_input"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	TopK          int    `yaml:"top_k"`
	Collection    string `yaml:"collection"`
	EncryptionKey string `yaml:"encryption_key"`
}

// LLMConfig describes one model endpoint. Provider is "openai" or "ollama".
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Key         string  `yaml:"key"`
	Temperature float64 `yaml:"temperature"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	Password   string `yaml:"password"`
	Debug      bool   `yaml:"debug"`
	VectorSize int    `yaml:"vector_size"`
}

// VectorStoreConfig selects the backend: "chromem" (default) or "pgvector".
type VectorStoreConfig struct {
	Type     string         `yaml:"type"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	QAAddr        string `yaml:"qa_addr"`
	SummarizeAddr string `yaml:"summarize_addr"`
}

type Config struct {
	Paths       PathsConfig       `yaml:"paths"`
	RAG         RAGConfig         `yaml:"rag"`
	LLM         LLMConfig         `yaml:"llm"`
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Server      ServerConfig      `yaml:"server"`
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
// Values from a .env file in the working directory and OPENAI_API_KEY are
// applied on top.
func LoadConfig(path string) (*Config, error) {
	cfg := seed()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()
	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.LLM.Key = key
		cfg.EmbedLLM.Key = key
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := seed()
	applyDefaults(&cfg)
	return &cfg
}

// seed holds the defaults for fields where zero is a valid setting, so an
// explicit 0 in the file survives applyDefaults.
func seed() Config {
	return Config{RAG: RAGConfig{ChunkOverlap: defaultChunkOverlap}}
}

func applyDefaults(cfg *Config) {
	if cfg.Paths.Uploads == "" {
		cfg.Paths.Uploads = defaultUploadDir
	}
	if cfg.Paths.UploadGlob == "" {
		cfg.Paths.UploadGlob = defaultUploadGlob
	}
	if cfg.Paths.VectorDB == "" {
		cfg.Paths.VectorDB = defaultVectorDBDir
	}
	if cfg.Paths.SummaryInput == "" {
		cfg.Paths.SummaryInput = defaultSummaryInput
	}

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap < 0 {
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.Collection == "" {
		cfg.RAG.Collection = defaultCollection
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.Model = "gpt-3.5-turbo-1106"
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = cfg.LLM.Provider
	}
	if cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.EmbedLLM.Key == "" {
		cfg.EmbedLLM.Key = cfg.LLM.Key
	}
	if cfg.EmbedLLM.Model == "" && cfg.EmbedLLM.Provider == "openai" {
		cfg.EmbedLLM.Model = "text-embedding-ada-002"
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.Database.Driver == "" {
		cfg.VectorStore.Database.Driver = "pgdriver"
	}
	if cfg.VectorStore.Database.VectorSize <= 0 {
		cfg.VectorStore.Database.VectorSize = defaultVectorSize
	}

	if cfg.Server.QAAddr == "" {
		cfg.Server.QAAddr = defaultQAAddr
	}
	if cfg.Server.SummarizeAddr == "" {
		cfg.Server.SummarizeAddr = defaultSummaryAddr
	}
}

// Masked returns a copy safe for debug logging.
func (c *Config) Masked() Config {
	out := *c
	out.LLM = c.LLM.Masked()
	out.EmbedLLM = c.EmbedLLM.Masked()
	out.RAG.EncryptionKey = mask(out.RAG.EncryptionKey)
	out.VectorStore.Database.Password = mask(out.VectorStore.Database.Password)
	return out
}

func (c LLMConfig) Masked() LLMConfig {
	c.Key = mask(c.Key)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
