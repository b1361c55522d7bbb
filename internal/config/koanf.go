package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks generic variables: RECOMMENDER_SCORING__TOPIC_WEIGHT maps to
// scoring.topic_weight.
const EnvPrefix = "RECOMMENDER_"

// DefaultConfigFile is read when present and no explicit path is given.
const DefaultConfigFile = "config.yaml"

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// legacyEnv maps the variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"api_host":                 "server.host",
	"api_port":                 "server.port",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"diversity_weight":         "recommend.diversity",
	"openai_api_key":           "embedding.api_key",
	"openai_base_url":          "embedding.base_url",
	"embedding_provider":       "embedding.provider",
	"embedding_model":          "embedding.model",
	"embedding_dimensions":     "embedding.dimensions",
	"database_path":            "database.path",
	"num_clusters":             "cluster.k",
	"refit_interval":           "cluster.refit_interval",
	"freshness_half_life":      "scoring.freshness_half_life",
	"cors_allowed_origins":     "server.cors_origins",
	"recommend_max_candidates": "recommend.max_candidates",
}

// Load builds the configuration. path may be empty, in which case
// config.yaml is used if it exists.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envTransformFunc returns the koanf path for an environment variable, or ""
// to ignore it.
func envTransformFunc(key string) string {
	if strings.HasPrefix(key, EnvPrefix) {
		rest := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if rest == "config" {
			return ""
		}
		return strings.ReplaceAll(rest, "__", ".")
	}
	if path, ok := legacyEnv[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
