package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads the config file at path (extension .yml, .yaml, or .json),
// layers any RADIUSD_-prefixed environment overrides on top via viper, and
// validates the result. A non-nil error is a read failure, an unsupported
// extension, a parse failure, or a *ValidationError naming every violation
// found — all fatal at startup.
func Load(path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	switch ext {
	case ".yml", ".yaml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q (want .yml, .yaml, or .json)", ext)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers a small, explicit set of RADIUSD_-prefixed
// environment variables over specific scalar fields of an already-decoded
// Config. It deliberately never round-trips the keyed/ordered sections
// (address pools, reply definitions, match rules, AttrMap) through viper:
// viper is case-insensitive and AllSettings() returns an unordered
// map[string]any, so doing that would lowercase pool/reply/attribute names
// (breaking raddict.lookup's case-sensitive dictionary and match
// predicates) and destroy AttrMap's declaration order, which fromPool
// allocation depends on. Only the handful of plain deployment-specific
// scalars below are overridable; everything else is decided by the config
// file alone.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("RADIUSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if addr := v.GetString("redis_storage.addr"); addr != "" {
		cfg.RedisStorage.Addr = addr
	}
	if prefix := v.GetString("redis_storage.prefix"); prefix != "" {
		cfg.RedisStorage.Prefix = prefix
	}
}
