package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/caarlos0/env/v11"
)

var (
	// ErrInvalidConfig is returned when the provided config is not a pointer to a struct
	// that embeds EnvConfig.
	ErrInvalidConfig = errors.New("config must be a pointer to a struct embedding EnvConfig")

	// ErrVarNotSet is returned when a required environment variable is not set and has no default.
	ErrVarNotSet = errors.New("env var not set")

	// ErrUnsupportedVarType is returned when trying to parse an environment variable
	// into an unsupported Go type.
	ErrUnsupportedVarType = errors.New("unsupported env var type")
)

const (
	tagName         = "env"
	defaultTagName  = "default"
	prefixTagName   = "envPrefix"
	namespaceJoiner = "_"
)

// EnvConfig is a base type that must be embedded in configuration structs
// to enable environment variable parsing.
type EnvConfig struct {
	namespace string
}

// Namespace returns the prefix the config was parsed with.
func (c EnvConfig) Namespace() string {
	return c.namespace
}

//nolint:varnamelen
func getEnvConfig(cfg any) (*EnvConfig, error) {
	v := reflect.ValueOf(cfg)

	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, ErrInvalidConfig
	}

	v = v.Elem()
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)
		//nolint:exhaustruct,forcetypeassert
		if field.Anonymous && field.Type == reflect.TypeOf(EnvConfig{}) {
			if ev := v.Field(i); ev.CanAddr() {
				return ev.Addr().Interface().(*EnvConfig), nil
			}
		}
	}

	return nil, ErrInvalidConfig
}

// Parse loads configuration values from environment variables into the provided struct.
// The struct must embed EnvConfig and use `env` tags to specify variable names,
// `default` tags for fallback values and `envPrefix` tags on nested structs.
// A non-empty namespace is prepended to every variable name, joined by "_".
// Fields with an `env` tag but no `default` are required.
// Returns an error if parsing fails or required variables are missing.
func Parse(ctx context.Context, cfg any, namespace string) error {
	envConfig, err := getEnvConfig(cfg)
	if err != nil {
		return fmt.Errorf("get env config: %w", err)
	}

	envConfig.namespace = namespace

	prefix := namespace
	if prefix != "" {
		prefix += namespaceJoiner
	}

	//nolint:exhaustruct
	opts := env.Options{
		Prefix:              prefix,
		TagName:             tagName,
		DefaultValueTagName: defaultTagName,
		PrefixTagName:       prefixTagName,
		RequiredIfNoDef:     true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", classify(err))
	}

	return nil
}

// classify joins the package sentinels onto errors reported by the env library
// so callers can match them with errors.Is.
func classify(err error) error {
	switch {
	case errors.Is(err, env.EnvVarIsNotSetError{}):
		return errors.Join(ErrVarNotSet, err)
	case errors.Is(err, env.NoParserError{}):
		return errors.Join(ErrUnsupportedVarType, err)
	default:
		return err
	}
}
