// Package config loads Plexi configuration from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Vector store backends.
const (
	StoreBundle = "bundle"
	StoreQdrant = "qdrant"
)

// GeminiOpenAIBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DriveConfig holds service-account credentials and crawl tuning for Google Drive.
type DriveConfig struct {
	ProjectID         string        `yaml:"project_id"`
	ClientEmail       string        `yaml:"client_email"`
	PrivateKeyID      string        `yaml:"private_key_id"`
	PrivateKey        string        `yaml:"-"`
	RootFolderID      string        `yaml:"root_folder_id"`
	PageSize          int64         `yaml:"page_size"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	ListMaxAttempts   int           `yaml:"list_max_attempts"` // 0 = retry forever
	DownloadAttempts  int           `yaml:"download_attempts"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Concurrency       int           `yaml:"concurrency"`
}

// EmbeddingConfig selects the embedding model used for both indexing and querying.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"-"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// IndexConfig describes where the vector index lives and how documents are fragmented.
type IndexConfig struct {
	Dir              string `yaml:"dir"`
	Store            string `yaml:"store"`
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port"`
	QdrantCollection string `yaml:"qdrant_collection"`
	ChunkSentences   int    `yaml:"chunk_sentences"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
}

// ChatConfig configures the language-model backend. The API key is per session and never lives here.
type ChatConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	TokenLimit  int           `yaml:"token_limit"`
	TopK        int           `yaml:"top_k"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port       string `yaml:"port"`
	ServerMode bool   `yaml:"server_mode"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Drive     DriveConfig     `yaml:"drive"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Chat      ChatConfig      `yaml:"chat"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Drive: DriveConfig{
			PageSize:          100,
			RetryDelay:        5 * time.Second,
			DownloadAttempts:  3,
			RequestsPerSecond: 8,
			Concurrency:       1,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			BatchSize: 100,
		},
		Index: IndexConfig{
			Dir:              "index",
			Store:            StoreBundle,
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			QdrantCollection: "materials",
			ChunkSentences:   8,
			ChunkOverlap:     1,
		},
		Chat: ChatConfig{
			BaseURL:     GeminiOpenAIBaseURL,
			Model:       "gemini-1.5-flash",
			TokenLimit:  1500,
			TopK:        2,
			IdleTimeout: 30 * time.Minute,
		},
		Server:  ServerConfig{Port: "8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (if it exists) over the defaults and then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail far from their source.
func (c *Config) Validate() error {
	switch c.Index.Store {
	case StoreBundle, StoreQdrant:
	default:
		return fmt.Errorf("unknown vector store %q (want %q or %q)", c.Index.Store, StoreBundle, StoreQdrant)
	}
	if c.Drive.DownloadAttempts < 1 {
		return fmt.Errorf("download attempts must be at least 1, got %d", c.Drive.DownloadAttempts)
	}
	if c.Chat.TokenLimit <= 0 {
		return fmt.Errorf("chat token limit must be positive, got %d", c.Chat.TokenLimit)
	}
	if c.Chat.TopK <= 0 {
		return fmt.Errorf("chat top_k must be positive, got %d", c.Chat.TopK)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error

	setString(&cfg.Drive.ProjectID, "PROJECT_ID")
	setString(&cfg.Drive.ClientEmail, "CLIENT_EMAIL")
	setString(&cfg.Drive.PrivateKeyID, "PRIVATE_KEY_ID")
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		// Keys pasted into .env files carry literal "\n" sequences.
		cfg.Drive.PrivateKey = strings.ReplaceAll(v, `\n`, "\n")
	}
	setString(&cfg.Drive.RootFolderID, "DRIVE_ROOT_FOLDER_ID")
	errs = append(errs,
		setInt64(&cfg.Drive.PageSize, "DRIVE_PAGE_SIZE"),
		setDuration(&cfg.Drive.RetryDelay, "DRIVE_RETRY_DELAY"),
		setInt(&cfg.Drive.ListMaxAttempts, "DRIVE_LIST_MAX_ATTEMPTS"),
		setInt(&cfg.Drive.DownloadAttempts, "DOWNLOAD_MAX_ATTEMPTS"),
		setFloat(&cfg.Drive.RequestsPerSecond, "DRIVE_REQUESTS_PER_SECOND"),
		setInt(&cfg.Drive.Concurrency, "INGEST_CONCURRENCY"),
	)

	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	errs = append(errs, setInt(&cfg.Embedding.BatchSize, "EMBEDDING_BATCH_SIZE"))

	setString(&cfg.Index.Dir, "INDEX_DIR")
	setString(&cfg.Index.Store, "VECTOR_STORE")
	setString(&cfg.Index.QdrantHost, "QDRANT_HOST")
	setString(&cfg.Index.QdrantCollection, "QDRANT_COLLECTION")
	errs = append(errs,
		setInt(&cfg.Index.QdrantPort, "QDRANT_PORT"),
		setInt(&cfg.Index.ChunkSentences, "CHUNK_SIZE"),
		setInt(&cfg.Index.ChunkOverlap, "CHUNK_OVERLAP"),
	)

	setString(&cfg.Chat.BaseURL, "LLM_BASE_URL")
	setString(&cfg.Chat.Model, "LLM_MODEL")
	errs = append(errs,
		setInt(&cfg.Chat.TokenLimit, "CHAT_TOKEN_LIMIT"),
		setInt(&cfg.Chat.TopK, "CHAT_TOP_K"),
		setDuration(&cfg.Chat.IdleTimeout, "CHAT_IDLE_TIMEOUT"),
	)

	setString(&cfg.Server.Port, "PORT")
	if v := os.Getenv("SERVER_MODE"); v != "" {
		cfg.Server.ServerMode = v == "true"
	}
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
