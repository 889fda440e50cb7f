// Package models defines configuration and shared data structures.
package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "500ms" parse.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("failed to parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Config holds runtime configuration. Values load from an optional YAML
// file, with environment variables overriding the connection settings.
type Config struct {
	DBPath string `yaml:"db_path"`

	Ollama struct {
		URL   string `yaml:"url"`
		Model string `yaml:"model"`
	} `yaml:"ollama"`

	Collect struct {
		UseBrowser  bool     `yaml:"use_browser"`
		SourceDelay Duration `yaml:"source_delay"`
	} `yaml:"collect"`

	Pipeline struct {
		MaxURLs    int      `yaml:"max_urls"`
		MaxRetries int      `yaml:"max_retries"`
		ItemDelay  Duration `yaml:"item_delay"`
		Retention  Duration `yaml:"artifact_retention"`
	} `yaml:"pipeline"`

	Artifacts struct {
		HTMLDir string `yaml:"html_dir"`
		TextDir string `yaml:"text_dir"`
	} `yaml:"artifacts"`

	Sources []SeedSource `yaml:"sources"`
}

// SeedSource is a source seeded into the registry on first run.
type SeedSource struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Active      bool   `yaml:"active"`
}

// DefaultSources is the stock catalog of investment news sources. Seeding
// is idempotent, so user edits to the registry survive restarts.
var DefaultSources = []SeedSource{
	{Name: "CoinDesk", URL: "https://www.coindesk.com/", Category: "Cryptocurrency",
		Description: "Leading cryptocurrency and blockchain news", Active: true},
	{Name: "MarketWatch Investing", URL: "https://www.marketwatch.com/investing", Category: "Stock Market",
		Description: "MarketWatch investing section", Active: true},
	{Name: "Yahoo Finance News", URL: "https://finance.yahoo.com/news", Category: "General Finance",
		Description: "Yahoo Finance news section", Active: true},
	{Name: "CNBC Investing", URL: "https://www.cnbc.com/investing/", Category: "Business News",
		Description: "CNBC investing section", Active: true},
	{Name: "Reuters Business & Finance", URL: "https://www.reuters.com/business/finance/", Category: "Business News",
		Description: "Reuters business and finance section", Active: true},
	{Name: "Bloomberg Markets", URL: "https://www.bloomberg.com/markets", Category: "Markets",
		Description: "Bloomberg markets section", Active: true},
	{Name: "Seeking Alpha", URL: "https://seekingalpha.com/", Category: "Investment Analysis",
		Description: "Investment research and analysis", Active: false},
	{Name: "The Motley Fool", URL: "https://www.fool.com/investing/", Category: "Investment Advice",
		Description: "Investment advice and stock analysis", Active: false},
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	cfg := &Config{DBPath: "news_pipeline.db"}
	cfg.Ollama.URL = "http://localhost:11434"
	cfg.Ollama.Model = "llama3.1:8b"
	cfg.Collect.SourceDelay = Duration{2 * time.Second}
	cfg.Pipeline.MaxURLs = 50
	cfg.Pipeline.MaxRetries = 3
	cfg.Pipeline.ItemDelay = Duration{1 * time.Second}
	cfg.Pipeline.Retention = Duration{7 * 24 * time.Hour}
	cfg.Artifacts.HTMLDir = "scraped_html"
	cfg.Artifacts.TextDir = "cleaned_text"
	cfg.Sources = DefaultSources
	return cfg
}

// LoadConfig reads configuration from path, falling back to defaults when
// path is empty and no NEWSPIPE_CONFIG is set. A missing explicit file is
// an error; a missing default file is not.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("NEWSPIPE_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = "newspipe.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NEWSPIPE_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
}
