package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources  []Source `yaml:"sources"`
	Fetch    Fetch    `yaml:"fetch"`
	Dedup    Dedup    `yaml:"dedup"`
	Enrich   Enrich   `yaml:"enrich"`
	Classify Classify `yaml:"classify"`
	Output   Output   `yaml:"output"`
	Logging  Logging  `yaml:"logging"`
}

// Source is a source descriptor: one external feed or API endpoint.
type Source struct {
	ID          string `yaml:"id"`
	Kind        string `yaml:"kind"` // "feed" or "api"
	Endpoint    string `yaml:"endpoint"`
	Name        string `yaml:"name"`
	Credentials string `yaml:"credentials_env"`
	Limit       int    `yaml:"limit"`
}

type Fetch struct {
	Concurrency       int     `yaml:"concurrency"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	Retries           int     `yaml:"retries"`
	BackoffSeconds    float64 `yaml:"backoff_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type Dedup struct {
	TitleSimilarity float64 `yaml:"title_similarity"`
}

type Enrich struct {
	Enabled        bool `yaml:"enabled"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

// Classify holds the keyword-to-tag tables and scoring lexicons.
// Loaded once per run; never mutated mid-run.
type Classify struct {
	Categories         map[string][]string `yaml:"categories"`
	Companies          []string            `yaml:"companies"`
	Technologies       []string            `yaml:"technologies"`
	PositiveWords      []string            `yaml:"positive_words"`
	NegativeWords      []string            `yaml:"negative_words"`
	HighImpactWords    []string            `yaml:"high_impact_words"`
	Credibility        map[string]float64  `yaml:"credibility"`
	DefaultCredibility float64             `yaml:"default_credibility"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for techradar.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "techradar")
}

// DataDir returns the XDG data directory for techradar.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "techradar")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/techradar/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'techradar init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Fetch: Fetch{
			Concurrency:       4,
			TimeoutSeconds:    20,
			Retries:           3,
			BackoffSeconds:    2,
			RequestsPerSecond: 4,
		},
		Dedup: Dedup{
			TitleSimilarity: 0.8,
		},
		Enrich: Enrich{
			TimeoutSeconds: 15,
		},
		Classify: Classify{
			DefaultCredibility: 0.5,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Dedup.TitleSimilarity <= 0 || cfg.Dedup.TitleSimilarity > 1 {
		return nil, fmt.Errorf("dedup.title_similarity must be in (0, 1], got %v", cfg.Dedup.TitleSimilarity)
	}
	for i, s := range cfg.Sources {
		if s.ID == "" {
			return nil, fmt.Errorf("sources[%d]: id is required", i)
		}
		if s.Kind != "feed" && s.Kind != "api" {
			return nil, fmt.Errorf("source %q: kind must be \"feed\" or \"api\", got %q", s.ID, s.Kind)
		}
		if s.Endpoint == "" {
			return nil, fmt.Errorf("source %q: endpoint is required", s.ID)
		}
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
