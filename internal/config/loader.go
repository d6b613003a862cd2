package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "BROKER_"
	configFileVar = "CONFIG_FILE"
)

type loadOptions struct {
	file      string
	skipEnv   bool
	overrides map[string]any
}

// Option customises how configuration is loaded.
type Option func(*loadOptions)

// WithFile loads the given yaml file before environment variables.
func WithFile(path string) Option {
	return func(o *loadOptions) {
		o.file = path
	}
}

// WithValues sets keys (dot delimited, e.g. "oauth.code_ttl") after all other sources.
func WithValues(values map[string]any) Option {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = make(map[string]any)
		}
		for key, v := range values {
			o.overrides[key] = v
		}
	}
}

// WithoutEnv ignores BROKER_ environment variables; used by tests.
func WithoutEnv() Option {
	return func(o *loadOptions) {
		o.skipEnv = true
	}
}

// load layers sources in order: yaml file, BROKER_ env vars, explicit values.
// BROKER_OAUTH__CODE_TTL maps to oauth.code_ttl.
func load(options ...Option) (*koanf.Koanf, error) {
	opts := &loadOptions{file: os.Getenv(configFileVar)}
	for _, opt := range options {
		opt(opts)
	}

	k := koanf.New(".")
	if opts.file != "" {
		if err := k.Load(file.Provider(opts.file), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("[config load] failed loading %s: %w", opts.file, err)
		}
	}

	if !opts.skipEnv {
		err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
			key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
			return strings.ReplaceAll(key, "__", ".")
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("[config load] failed loading environment: %w", err)
		}
	}

	for key, v := range opts.overrides {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("[config load] failed setting %s: %w", key, err)
		}
	}
	return k, nil
}

func stringOr(k *koanf.Koanf, key, defaultValue string) string {
	if v := strings.TrimSpace(k.String(key)); v != "" {
		return v
	}
	return defaultValue
}

func durationOr(k *koanf.Koanf, key string, defaultValue time.Duration) time.Duration {
	if !k.Exists(key) {
		return defaultValue
	}
	if d := k.Duration(key); d > 0 {
		return d
	}
	return defaultValue
}

func intOr(k *koanf.Koanf, key string, defaultValue int) int {
	if !k.Exists(key) {
		return defaultValue
	}
	if v := k.Int(key); v > 0 {
		return v
	}
	return defaultValue
}

// listOr accepts either a yaml list or a comma/space separated string.
func listOr(k *koanf.Koanf, key string, defaultValue []string) []string {
	if !k.Exists(key) {
		return defaultValue
	}
	var values []string
	switch v := k.Get(key).(type) {
	case []any:
		for _, item := range v {
			values = append(values, fmt.Sprint(item))
		}
	case []string:
		values = v
	default:
		values = strings.FieldsFunc(k.String(key), func(r rune) bool {
			return r == ',' || r == ' '
		})
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

func cookieSecret(k *koanf.Koanf) ([]byte, error) {
	if secret := k.String("security.cookie_secret"); secret != "" {
		return []byte(secret), nil
	}
	// Cookies signed with a per-process key do not survive restarts, which matches the
	// lifetime of the in-memory flow state they point at.
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("[config cookieSecret] rand.Read: %w", err)
	}
	return b, nil
}
