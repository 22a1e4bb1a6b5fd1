package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models rtt.yml.
type Config struct {
	Letters struct {
		TemporalWindow int      `yaml:"temporal_window" json:"temporal_window"`
		PastMarkers    []string `yaml:"past_markers" json:"past_markers"`
		FutureMarkers  []string `yaml:"future_markers" json:"future_markers"`
	} `yaml:"letters" json:"letters"`
	Batch struct {
		Workers int `yaml:"workers" json:"workers"`
	} `yaml:"batch" json:"batch"`
	Comments struct {
		DefaultTeam string            `yaml:"default_team" json:"default_team"`
		Teams       map[string]string `yaml:"teams" json:"teams,omitempty"`
	} `yaml:"comments" json:"comments"`
	Gaps struct {
		FullAudit bool `yaml:"full_audit" json:"full_audit"`
	} `yaml:"gaps" json:"gaps"`
}

const fileName = "rtt.yml"

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rtt config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Letters.TemporalWindow <= 0 {
		return fmt.Errorf("config.letters.temporal_window must be positive")
	}
	if len(c.Letters.PastMarkers) == 0 {
		return fmt.Errorf("config.letters.past_markers is required")
	}
	if len(c.Letters.FutureMarkers) == 0 {
		return fmt.Errorf("config.letters.future_markers is required")
	}
	for _, m := range c.Letters.PastMarkers {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("config.letters.past_markers has empty marker")
		}
	}
	for _, m := range c.Letters.FutureMarkers {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("config.letters.future_markers has empty marker")
		}
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("config.batch.workers must not be negative")
	}
	if strings.TrimSpace(c.Comments.DefaultTeam) == "" {
		return fmt.Errorf("config.comments.default_team is required")
	}
	for specialty, team := range c.Comments.Teams {
		if specialty == "" {
			return fmt.Errorf("config.comments.teams has empty specialty")
		}
		if strings.TrimSpace(team) == "" {
			return fmt.Errorf("team for specialty %s is empty", specialty)
		}
	}
	return nil
}

// TeamFor returns the query team for a specialty.
func (c *Config) TeamFor(specialty string) string {
	key := strings.ToLower(strings.TrimSpace(specialty))
	for k, team := range c.Comments.Teams {
		if strings.ToLower(k) == key {
			return team
		}
	}
	return c.Comments.DefaultTeam
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `letters:
  # characters either side of an action keyword inspected for tense markers
  temporal_window: 150
  past_markers:
    - was performed
    - were performed
    - results
    - showed
    - revealed
    - completed
    - already booked
    - has been booked
    - has had
    - had a
    - was done
    - was carried out
    - underwent
    - confirmed
    - i have written
    - has been added
    - was added
    - was referred
    - has been referred
    - was started
    - was given
  future_markers:
    - please arrange
    - please book
    - please could
    - please add
    - please refer
    - recommend
    - needs to
    - need to
    - plan:
    - i will arrange
    - i have requested
    - i will request
    - we will
    - i will
    - to be arranged
    - should be
    - would benefit from
    - will be listed
    - i would like

batch:
  workers: 4

comments:
  default_team: PATHWAY VALIDATION TEAM
  teams:
    trauma and orthopaedics: T&O BOOKING TEAM
    orthopaedics: T&O BOOKING TEAM
    general surgery: GENERAL SURGERY BOOKING TEAM
    urology: UROLOGY BOOKING TEAM
    ent: ENT BOOKING TEAM
    ophthalmology: OPHTHALMOLOGY BOOKING TEAM
    cardiology: CARDIOLOGY BOOKING TEAM
    gastroenterology: GASTROENTEROLOGY BOOKING TEAM

gaps:
  full_audit: false
`
