package source

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lysyi3m/ae-comb/app/period"
	"gopkg.in/yaml.v3"
)

//go:embed default.yml
var defaultConfig []byte

type Config struct {
	IndexURL     string `yaml:"index_url"` // {year} and {next_short} are substituted per fiscal year
	LinkMarker   string `yaml:"link_marker"`
	FormatMarker string `yaml:"format_marker"`

	FeedURL   string `yaml:"feed_url"`
	FeedMatch string `yaml:"feed_match"`

	ParentColumn       string            `yaml:"parent_column"`
	TotalPattern       string            `yaml:"total_pattern"`
	ColumnSynonyms     map[string]string `yaml:"column_synonyms"`
	CategoricalColumns []string          `yaml:"categorical_columns"`
	KeepColumns        []string          `yaml:"keep_columns"`

	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Timeout           int     `yaml:"timeout"` // seconds
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

func (s ConfigSettings) GetTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// LoadConfig reads a source definition. An empty path selects the built-in
// NHS England definition.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		slog.Debug("Using built-in source configuration")
		return ParseConfig(defaultConfig)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	slog.Debug("Source configuration loaded", "path", path, "synonyms", len(cfg.ColumnSynonyms))
	return cfg, nil
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Settings.Timeout == 0 {
		cfg.Settings.Timeout = 30
	}
	if cfg.Settings.RequestsPerSecond == 0 {
		cfg.Settings.RequestsPerSecond = 2
	}
	if cfg.ColumnSynonyms == nil {
		cfg.ColumnSynonyms = map[string]string{}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IndexURLFor builds the index page address of one reporting year.
func (c *Config) IndexURLFor(fy period.FiscalYear) string {
	return strings.NewReplacer(
		"{year}", fy.StartYear(),
		"{next_short}", fy.NextShort(),
	).Replace(c.IndexURL)
}

func (c *Config) validate() error {
	requiredFields := map[string]string{
		"index_url":     c.IndexURL,
		"link_marker":   c.LinkMarker,
		"format_marker": c.FormatMarker,
		"parent_column": c.ParentColumn,
		"total_pattern": c.TotalPattern,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if !strings.Contains(c.IndexURL, "{year}") {
		return fmt.Errorf("index_url must contain the {year} placeholder")
	}

	if _, err := regexp.Compile(c.TotalPattern); err != nil {
		return fmt.Errorf("invalid total_pattern: %w", err)
	}

	if c.FeedURL != "" && c.FeedMatch == "" {
		return fmt.Errorf("feed_match is required when feed_url is set")
	}

	nonNegativeFields := map[string]float64{
		"timeout":             float64(c.Settings.Timeout),
		"max retries":         float64(c.Settings.MaxRetries),
		"requests per second": c.Settings.RequestsPerSecond,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	for from, to := range c.ColumnSynonyms {
		if from == "" || to == "" {
			return fmt.Errorf("column synonym %q -> %q must name both columns", from, to)
		}
	}

	return nil
}
