package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/register/internal/log"
)

// EnvPrefix prefixes every environment override, e.g. REGISTER_STORAGE_DRIVER.
const EnvPrefix = "REGISTER"

// LocalConfigPath is checked before the user config directory.
const LocalConfigPath = ".register/config.yaml"

// NewViper returns a viper instance seeded with Defaults and bound to
// REGISTER_* environment variables. Dots and dashes in keys become
// underscores, so flags.seal-lock is REGISTER_FLAGS_SEAL_LOCK.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	defaults, err := flatten(Defaults())
	if err != nil {
		return nil, err
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// omitted from the marshaled defaults because it is empty
	if err := v.BindEnv("storage.mysql.password"); err != nil {
		return nil, fmt.Errorf("binding password env: %w", err)
	}
	return v, nil
}

// flatten renders cfg as dotted keys so every leaf is known to viper.
func flatten(cfg Config) (map[string]any, error) {
	data, err := Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("flattening defaults: %w", err)
	}
	out := make(map[string]any)
	flattenInto("", tree, out)
	return out, nil
}

func flattenInto(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flattenInto(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// FindConfigFile returns the explicit path if set, else the first existing of
// .register/config.yaml and ~/.config/register/config.yaml. It returns an
// empty string when no file exists.
func FindConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	candidates := []string{LocalConfigPath}
	if dir := DefaultConfigDir(); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads path (if non-empty) over the defaults and environment and
// validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		log.Debug(log.CatConfig, "Loaded config", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
