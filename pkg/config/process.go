// Package config loads the process-wide YAML configuration for
// cmd/enginecored (spec.md §6.4): listen addresses, vector-indexing
// flags and the model capability table, grounded on the teacher's
// gopkg.in/yaml.v3-decoded config shape (pkg/config/v3/types.go) but
// without its versioned migration chain — enginecore carries a single
// process config schema, so "latest" names the types package the way
// the teacher does without the version-migration machinery (see
// pkg/config/latest).
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgewright/enginecore/pkg/capabilities"
	"github.com/forgewright/enginecore/pkg/environment"
	"github.com/forgewright/enginecore/pkg/permissions"
)

// ModelConfig is one entry of the process config's models table, decoded
// into a capabilities.Record by ModelSource.
type ModelConfig struct {
	Endpoint               string  `yaml:"endpoint"`
	EndpointStyle          string  `yaml:"endpoint_style"`
	APIKey                 string  `yaml:"api_key"`
	TokenizerURL           string  `yaml:"tokenizer_url"`
	SupportsTools          bool    `yaml:"supports_tools"`
	SupportsMultimodality  bool    `yaml:"supports_multimodality"`
	SupportsReasoning      string  `yaml:"supports_reasoning"` // "none", "openai", "anthropic"
	SupportsBoostReasoning bool    `yaml:"supports_boost_reasoning"`
	DefaultTemperature     float64 `yaml:"default_temperature"`
	NCtx                   int     `yaml:"n_ctx"`
}

// ProcessConfig is the top-level process configuration (spec.md §6.4).
type ProcessConfig struct {
	AddressURL      string      `yaml:"address_url"`
	APIKey          string      `yaml:"api_key"`
	HTTPPort        int         `yaml:"http_port"`
	LSPPort         int         `yaml:"lsp_port"`
	AST             bool        `yaml:"ast"`
	VecDB           bool        `yaml:"vecdb"`
	VecDBMaxFiles   int         `yaml:"vecdb_max_files"`
	VecDBForcePath  string      `yaml:"vecdb_force_path"`
	Experimental    bool        `yaml:"experimental"`
	InsideContainer bool        `yaml:"inside_container"`

	Permissions permissions.Config     `yaml:"permissions"`
	Models      map[string]ModelConfig `yaml:"models"`

	path  string
	mtime time.Time
}

// Load reads and decodes a ProcessConfig from path.
func Load(path string) (*ProcessConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg ProcessConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.path = path
	cfg.mtime = info.ModTime()
	return &cfg, nil
}

// ModelSource adapts a ProcessConfig's models table into a
// capabilities.ConfigSource, resolving "$NAME" secrets against env
// (spec.md §4.1).
type ModelSource struct {
	cfg *ProcessConfig
	env environment.Provider
}

// NewModelSource builds a ModelSource over cfg, resolving secrets
// through env.
func NewModelSource(cfg *ProcessConfig, env environment.Provider) *ModelSource {
	if env == nil {
		env = environment.NewDefaultProvider()
	}
	return &ModelSource{cfg: cfg, env: env}
}

// Records implements capabilities.ConfigSource.
func (s *ModelSource) Records() (map[string]capabilities.Record, error) {
	out := make(map[string]capabilities.Record, len(s.cfg.Models))
	for name, m := range s.cfg.Models {
		out[name] = capabilities.Record{
			ID:                     name,
			Endpoint:               s.resolveSecret(m.Endpoint),
			EndpointStyle:          capabilities.EndpointStyle(m.EndpointStyle),
			APIKey:                 s.resolveSecret(m.APIKey),
			TokenizerURL:           m.TokenizerURL,
			SupportsTools:          m.SupportsTools,
			SupportsMultimodality:  m.SupportsMultimodality,
			SupportsReasoning:      capabilities.ReasoningSupport(m.SupportsReasoning),
			SupportsBoostReasoning: m.SupportsBoostReasoning,
			DefaultTemperature:     m.DefaultTemperature,
			NCtx:                   m.NCtx,
		}
	}
	return out, nil
}

// NewestConfigMTime implements capabilities.ConfigSource.
func (s *ModelSource) NewestConfigMTime() (time.Time, error) {
	info, err := os.Stat(s.cfg.path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// resolveSecret expands a leading "$NAME" into the named environment
// variable's value, leaving literal values untouched (spec.md §4.1).
func (s *ModelSource) resolveSecret(v string) string {
	if len(v) == 0 || v[0] != '$' {
		return v
	}
	if resolved, ok := s.env.Get(context.Background(), v[1:]); ok {
		return resolved
	}
	return v
}
