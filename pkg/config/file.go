package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultFilePath returns ~/.stickerlab/config.toml, or the path named by
// STICKERLAB_CONFIG_FILE.
func DefaultFilePath() string {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultDataDirName, DefaultConfigFile)
}

// ApplyFile exports the keys of a TOML file as environment variables.
// Keys are environment names (STICKERLAB_REMOVEBG_API_KEY = "..."); variables
// already present in the environment win. A missing file is not an error.
// It returns the keys it applied.
func ApplyFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	var values map[string]any
	if _, err := toml.DecodeFile(path, &values); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	applied := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.ToUpper(strings.TrimSpace(key))
		if !strings.HasPrefix(name, EnvPrefix+"_") && name != "LOG_FORMAT" {
			return nil, fmt.Errorf("config file %s: unknown key %q", path, key)
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		value, err := envValue(values[key])
		if err != nil {
			return nil, fmt.Errorf("config file %s: key %s: %w", path, key, err)
		}
		if err := os.Setenv(name, value); err != nil {
			return nil, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func envValue(v any) (string, error) {
	switch typed := v.(type) {
	case string:
		return typed, nil
	case bool, int64, float64:
		return fmt.Sprint(typed), nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			part, err := envValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
