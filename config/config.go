package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/dspfactory/connectors/remote"
	"github.com/kilianp07/dspfactory/core/metrics"
	"github.com/kilianp07/dspfactory/core/module"
	"github.com/kilianp07/dspfactory/infra/blob"
	"github.com/kilianp07/dspfactory/infra/cache"
	"github.com/kilianp07/dspfactory/infra/monitoring"
	"github.com/kilianp07/dspfactory/infra/mqtt"
)

type Config struct {
	Logging LoggingConfig           `json:"logging"`
	Store   blob.Config             `json:"store"`
	Readers []module.Config         `json:"readers"`
	Catalog module.Config           `json:"catalog"`
	Cache   cache.Config            `json:"cache"`
	Metrics metrics.Config          `json:"metrics"`
	MQTT    mqtt.Config             `json:"mqtt"`
	HTTP    HTTPConfig              `json:"http"`
	Sentry  monitoring.SentryConfig `json:"sentry"`
	Write   WriteConfig             `json:"write"`
	Remote  remote.Conf             `json:"remote"`
}

// Load reads a yaml or json file, applies K_ prefixed environment overrides
// (K_HTTP__ADDR sets http.addr), then defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every section defaulted, used when
// no file is given.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Store.SetDefaults()
	if c.Catalog.Type == "" {
		c.Catalog.Type = "memory"
	}
	c.Cache.SetDefaults()
	c.MQTT.SetDefaults()
	c.HTTP.SetDefaults()
	c.Remote.SetDefaults()
}

// Validate checks every section and names the failing one.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"logging", c.Logging.Validate},
		{"store", c.Store.Validate},
		{"cache", c.Cache.Validate},
		{"metrics", c.validateMetrics},
		{"mqtt", c.MQTT.Validate},
		{"http", c.HTTP.Validate},
		{"remote", c.Remote.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}

func (c Config) validateMetrics() error {
	for i, s := range c.Metrics.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sink %d: type is required", i)
		}
	}
	return nil
}
