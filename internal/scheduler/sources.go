package scheduler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	inventory "compliance-monitor"
)

const (
	MinIntervalSeconds     = 60
	DefaultIntervalSeconds = 3600
)

// Source is one monitoring database the worker refreshes on a fixed interval.
type Source struct {
	Name            string `yaml:"name"`
	Type            string `yaml:"type"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	Schema          string `yaml:"schema"`
	SSLMode         string `yaml:"sslmode"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Disabled        bool   `yaml:"disabled"`
}

func (s Source) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

func (s Source) Connection() inventory.ConnectionConfig {
	return inventory.ConnectionConfig{
		Type:     s.Type,
		Host:     s.Host,
		Port:     s.Port,
		User:     s.User,
		Password: s.Password,
		Database: s.Database,
		Schema:   s.Schema,
		SSLMode:  s.SSLMode,
	}
}

type Config struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the sources file. ${VAR} references in passwords are
// expanded from the environment.
func LoadSources(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseSources(data)
}

func ParseSources(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if len(cfg.Sources) == 0 {
		return Config{}, fmt.Errorf("no sources configured")
	}
	seen := map[string]bool{}
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		src.Type = strings.ToLower(strings.TrimSpace(src.Type))
		src.Password = os.ExpandEnv(src.Password)
		if src.IntervalSeconds == 0 {
			src.IntervalSeconds = DefaultIntervalSeconds
		}
		if src.Name == "" {
			return Config{}, fmt.Errorf("source %d: name required", i)
		}
		if seen[src.Name] {
			return Config{}, fmt.Errorf("source %q: duplicate name", src.Name)
		}
		seen[src.Name] = true
		if !inventory.SupportsType(src.Type) {
			return Config{}, fmt.Errorf("source %q: unsupported type %q", src.Name, src.Type)
		}
		if src.Host == "" {
			return Config{}, fmt.Errorf("source %q: host required", src.Name)
		}
		if src.IntervalSeconds < MinIntervalSeconds {
			return Config{}, fmt.Errorf("source %q: interval_seconds must be at least %d", src.Name, MinIntervalSeconds)
		}
	}
	return cfg, nil
}

// Enabled drops disabled sources.
func (c Config) Enabled() []Source {
	out := make([]Source, 0, len(c.Sources))
	for _, src := range c.Sources {
		if !src.Disabled {
			out = append(out, src)
		}
	}
	return out
}
