package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnvVar names the environment variable that points at the
// optional YAML config file. ConfigFileEnvVar is checked before falling
// back to DefaultConfigFile.
const (
	ConfigFileEnvVar  = "REFLECTOR_CONFIG_FILE"
	DefaultConfigFile = "/etc/reflector/config.yaml"
	envPrefix         = "REFLECTOR_"
)

// Load builds a Config from, in increasing priority: built-in defaults, an
// optional YAML file, and REFLECTOR_-prefixed environment variables.
//
// The file is optional: a missing file at the resolved path is not an
// error, since a cluster may configure the controller purely through
// environment variables (e.g. injected by a Deployment spec).
func Load() (Config, error) {
	k := koanf.New(".")

	path := os.Getenv(ConfigFileEnvVar)
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if loadErr := k.Load(file.Provider(path), yaml.Parser()); loadErr != nil {
			return Config{}, loadErr
		}
	}

	// Nested keys are addressed with a double underscore, e.g.
	// REFLECTOR_WATCHER__TIMEOUT_SECONDS -> watcher.timeout_seconds.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		trimmed := strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(trimmed), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
