package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"ragpipe/internal/domain"
)

// DataDirName is the per-project directory holding index files.
const DataDirName = ".ragpipe"

// Config holds all configuration for the ragpipe tool.
type Config struct {
	Loader    LoaderConfig    `yaml:"loader"`
	Splitter  SplitterConfig  `yaml:"splitter"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoaderBinding routes files matching Pattern to the named loader.
// Splitter, when set, overrides splitter.kind for those files.
type LoaderBinding struct {
	Pattern  string `yaml:"pattern"`
	Loader   string `yaml:"loader"`             // "text", "markdown"
	Splitter string `yaml:"splitter,omitempty"` // "text", "markdown", "diff"
}

// LoaderConfig holds source loading configuration.
type LoaderConfig struct {
	Bindings    []LoaderBinding `yaml:"bindings"`
	Excludes    []string        `yaml:"excludes"`
	Concurrency int             `yaml:"concurrency"`
}

// SplitterConfig holds chunking configuration.
type SplitterConfig struct {
	Kind         string   `yaml:"kind"` // "text", "markdown", "diff"
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators,omitempty"` // text splitter only
	DiffSkips    []string `yaml:"diff_skips,omitempty"` // diff splitter only
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // "openai", "langchain", "mock"
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"` // Environment variable for API key
	Dimension         int           `yaml:"dimension"`
	BatchSize         int           `yaml:"batch_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	MaxRetries        int           `yaml:"max_retries"`         // 0 = no retries
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "bolt", "sqlite", "chromem", "memory"
	Path       string `yaml:"path"`    // empty = inside the data directory
	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"` // "cosine", "inner_product"
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK      int           `yaml:"top_k"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	MinScore  float64       `yaml:"min_score"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console", "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Loader: LoaderConfig{
			Bindings: []LoaderBinding{
				{Pattern: "**/*.md", Loader: "markdown"},
				{Pattern: "**/*.txt", Loader: "text"},
				{Pattern: "**/*.diff", Loader: "text", Splitter: "diff"},
				{Pattern: "**/*.patch", Loader: "text", Splitter: "diff"},
			},
			Excludes:    []string{"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/dist/**", "**/build/**", "**/" + DataDirName + "/**"},
			Concurrency: 8,
		},
		Splitter: SplitterConfig{
			Kind:         "markdown",
			ChunkSize:    1000,
			ChunkOverlap: 100,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			BatchSize: 100,
			Timeout:   60 * time.Second,
		},
		Store: StoreConfig{
			Backend:    "bolt",
			Collection: "documents",
			Metric:     "cosine",
		},
		Retrieve: RetrieveConfig{
			TopK:      4,
			CacheSize: 100,
			CacheTTL:  5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, fmt.Errorf("%w: read config: %v", domain.ErrConfig, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfig, path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for ragpipe.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "ragpipe.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	for _, b := range c.Loader.Bindings {
		switch b.Loader {
		case "text", "markdown":
		default:
			return fmt.Errorf("%w: unknown loader %q for pattern %q", domain.ErrConfig, b.Loader, b.Pattern)
		}
		switch b.Splitter {
		case "", "text", "markdown", "diff":
		default:
			return fmt.Errorf("%w: unknown splitter %q for pattern %q", domain.ErrConfig, b.Splitter, b.Pattern)
		}
	}

	switch c.Splitter.Kind {
	case "text", "markdown", "diff":
	default:
		return fmt.Errorf("%w: unknown splitter kind %q", domain.ErrConfig, c.Splitter.Kind)
	}
	if c.Splitter.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", domain.ErrConfig)
	}
	if c.Splitter.ChunkOverlap < 0 || c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", domain.ErrConfig)
	}

	switch c.Embedding.Provider {
	case "openai", "langchain", "mock":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", domain.ErrConfig)
	}

	switch c.Store.Backend {
	case "bolt", "sqlite", "chromem", "memory":
	default:
		return fmt.Errorf("%w: unknown store backend %q", domain.ErrConfig, c.Store.Backend)
	}
	metric, err := domain.ParseMetric(c.Store.Metric)
	if err != nil {
		return err
	}
	if c.Store.Backend == "chromem" && metric != domain.MetricCosine {
		return fmt.Errorf("%w: chromem backend only supports cosine", domain.ErrConfig)
	}

	return nil
}

// APIKey resolves the embedding API key from the configured environment
// variable. An empty APIKeyEnv means the endpoint needs no key.
func (e EmbeddingConfig) APIKey() (string, error) {
	if e.APIKeyEnv == "" {
		return "", nil
	}
	key, ok := os.LookupEnv(e.APIKeyEnv)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: API key not found in environment variable %s", domain.ErrConfig, e.APIKeyEnv)
	}
	return key, nil
}

// StorePath returns where the configured backend keeps its data for the
// project rooted at dir.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	switch c.Store.Backend {
	case "sqlite":
		return filepath.Join(dir, DataDirName, "index.sqlite")
	case "chromem":
		return filepath.Join(dir, DataDirName, "chromem")
	default:
		return IndexDBPath(dir)
	}
}

// IndexDBPath returns the path to the bolt index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, DataDirName, "index.db")
}

// EnsureDataDir ensures the data directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDirName), 0755)
}
