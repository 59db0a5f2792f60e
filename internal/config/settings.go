package config

import (
	"fmt"
	"os"
	"time"

	"github.com/benvon/smart-timelog/internal/validation"
	"gopkg.in/yaml.v3"
)

// ParserSettings configure how factoids are read. Empty lists keep the
// parser defaults.
type ParserSettings struct {
	RangeSeparators []string      `yaml:"range_separators" validate:"dive,required"`
	ItemSeparators  []string      `yaml:"item_separators" validate:"dive,required"`
	TagStamps       []string      `yaml:"tag_stamps" validate:"dive,required"`
	Timezone        string        `yaml:"timezone" validate:"omitempty,timezone"`
	FactMinDelta    time.Duration `yaml:"fact_min_delta" validate:"gte=0"`
}

// LoadParserSettings reads parser settings from a YAML file
func LoadParserSettings(path string) (*ParserSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parser settings: %w", err)
	}

	var settings ParserSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse parser settings: %w", err)
	}
	if err := validation.Validate.Struct(settings); err != nil {
		return nil, fmt.Errorf("invalid parser settings: %w", err)
	}
	return &settings, nil
}

// ParserSettings returns the settings file named by PARSER_CONFIG, if any,
// with LOCAL_TIMEZONE and FACT_MIN_DELTA filling what the file leaves unset
func (c *Config) ParserSettings() (*ParserSettings, error) {
	settings := &ParserSettings{}
	if c.ParserConfig != "" {
		loaded, err := LoadParserSettings(c.ParserConfig)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}
	if settings.Timezone == "" {
		settings.Timezone = c.LocalTimezone
	}
	if settings.FactMinDelta == 0 {
		settings.FactMinDelta = c.FactMinDelta
	}
	return settings, nil
}

// Location returns the configured timezone
func (s *ParserSettings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}
