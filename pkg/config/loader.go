// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "ASSISTANT_"

// legacyEnv maps deployment variables that predate EnvPrefix.
var legacyEnv = map[string]string{
	"MLAB_KNOWLEDGE_API_BASE_URL": "knowledge.base_url",
	"PORT":                        "server.port",
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// File is an optional YAML file. A missing file is not an error.
	File string

	// DotEnvFiles are loaded into the process environment before reading
	// it. Existing variables are never overwritten and missing files are
	// skipped. Nil means ".env".
	DotEnvFiles []string

	// Environ replaces os.Environ. Used by tests.
	Environ func() []string
}

// Load builds the configuration from defaults, File and the environment,
// then validates it.
//
// # Outputs
//
//   - *Config: The validated configuration.
//   - error: Unreadable or malformed YAML, undecodable values, or failed
//     validation.
func Load(opts LoadOptions) (*Config, error) {
	if err := loadDotEnv(opts.DotEnvFiles); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if opts.File != "" {
		data, err := readYAML(opts.File)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawMap(data), nil); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", opts.File, err)
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	if err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc:   environ,
		TransformFunc: transformEnvKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks cfg against its struct tags and cross-field rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration cannot be nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if cfg.LLM.BackoffCap > 0 && cfg.LLM.BackoffStep > cfg.LLM.BackoffCap {
		return fmt.Errorf("configuration validation failed: llm.backoff_step (%s) exceeds llm.backoff_cap (%s)",
			cfg.LLM.BackoffStep, cfg.LLM.BackoffCap)
	}
	return nil
}

// transformEnvKey maps ASSISTANT_LLM_BACKOFF_STEP to llm.backoff_step and
// the legacy variables to their paths. Anything else is ignored.
func transformEnvKey(key, value string) (string, any) {
	if path, ok := legacyEnv[key]; ok {
		return path, value
	}
	if !strings.HasPrefix(key, EnvPrefix) {
		return "", nil
	}
	parts := strings.FieldsFunc(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), func(r rune) bool {
		return r == '_'
	})
	if len(parts) < 2 {
		return "", nil
	}
	return parts[0] + "." + strings.Join(parts[1:], "_"), value
}

func loadDotEnv(files []string) error {
	if files == nil {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return dropNils(m), nil
}

// dropNils removes null YAML values so they do not erase defaults.
func dropNils(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case nil:
		case map[string]any:
			if nested := dropNils(vv); len(nested) > 0 {
				out[k] = nested
			}
		default:
			out[k] = v
		}
	}
	return out
}

// normalize trims list entries that came from comma-separated variables.
func normalize(cfg *Config) {
	cfg.LLM.APIKeyEnv = trimAll(cfg.LLM.APIKeyEnv)
	cfg.LLM.PreferredModels = trimAll(cfg.LLM.PreferredModels)
	cfg.Server.AllowedOrigins = trimAll(cfg.Server.AllowedOrigins)
	cfg.Knowledge.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Knowledge.BaseURL), "/")
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// rawMap adapts a map to koanf.Provider.
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, errors.New("ReadBytes not implemented")
}
