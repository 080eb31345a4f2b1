package configs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Bindings resolves the named external values a deployment plan refers to,
// e.g. addresses of infrastructure deployed outside of the plan.
//
// Lookup order: the config file's bindings map, the process environment,
// the bindings (dotenv) file.
type Bindings struct {
	explicit  map[string]string
	dotenv    map[string]string
	lookupEnv func(string) (string, bool)
}

// NewBindings creates a binding source. Keys of explicit and dotenv are matched case-insensitively.
func NewBindings(explicit, dotenv map[string]string, lookupEnv func(string) (string, bool)) *Bindings {
	if lookupEnv == nil {
		lookupEnv = func(string) (string, bool) { return "", false }
	}

	return &Bindings{
		explicit:  lowerKeys(explicit),
		dotenv:    lowerKeys(dotenv),
		lookupEnv: lookupEnv,
	}
}

// LoadBindings builds the binding source for cfg, reading cfg.BindingsFile when it exists.
func LoadBindings(cfg Config) (*Bindings, error) {
	dotenv, err := readDotenv(cfg.BindingsFile)
	if err != nil {
		return nil, err
	}

	return NewBindings(cfg.Bindings, dotenv, os.LookupEnv), nil
}

// Lookup returns the value bound to key. Empty values count as absent.
func (b *Bindings) Lookup(key string) (string, bool) {
	if value, ok := b.explicit[strings.ToLower(key)]; ok && value != "" {
		return value, true
	}
	if value, ok := b.lookupEnv(key); ok && value != "" {
		return value, true
	}
	if value, ok := b.dotenv[strings.ToLower(key)]; ok && value != "" {
		return value, true
	}

	return "", false
}

func readDotenv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat bindings file '%s': %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("dotenv")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read bindings file '%s': %w", path, err)
	}

	values := make(map[string]string, len(v.AllKeys()))
	for _, key := range v.AllKeys() {
		values[key] = v.GetString(key)
	}

	return values, nil
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[strings.ToLower(key)] = value
	}
	return out
}
