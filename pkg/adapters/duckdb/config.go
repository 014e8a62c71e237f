package duckdb

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific target options, read from target.params.
type Params struct {
	// Extensions to install and load (e.g., "httpfs", "json").
	Extensions []string `mapstructure:"extensions"`

	// Secrets for cloud storage authentication.
	Secrets []SecretConfig `mapstructure:"secrets"`

	// Settings applied with SET at connect time (e.g., memory_limit, threads).
	Settings map[string]string `mapstructure:"settings"`
}

// SecretConfig defines a DuckDB secret for cloud storage.
type SecretConfig struct {
	Type     string `mapstructure:"type"`
	Provider string `mapstructure:"provider"`
	Region   string `mapstructure:"region,omitempty"`
	// Scope limits the secret to paths: a string or a list of strings.
	Scope    any    `mapstructure:"scope,omitempty"`
	KeyID    string `mapstructure:"key_id,omitempty"`
	Secret   string `mapstructure:"secret,omitempty"`
	Endpoint string `mapstructure:"endpoint,omitempty"`
	URLStyle string `mapstructure:"url_style,omitempty"`
	UseSSL   *bool  `mapstructure:"use_ssl,omitempty"`
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}

// buildCreateSecretSQL renders a CREATE SECRET statement, one option per line.
func buildCreateSecretSQL(s SecretConfig) string {
	opts := []string{"TYPE " + s.Type}
	if s.Provider != "" {
		opts = append(opts, "PROVIDER "+s.Provider)
	}
	quoted := func(key, val string) {
		if val != "" {
			opts = append(opts, fmt.Sprintf("%s '%s'", key, escapeLiteral(val)))
		}
	}
	quoted("REGION", s.Region)
	quoted("KEY_ID", s.KeyID)
	quoted("SECRET", s.Secret)
	quoted("ENDPOINT", s.Endpoint)
	quoted("URL_STYLE", s.URLStyle)
	if s.UseSSL != nil {
		opts = append(opts, fmt.Sprintf("USE_SSL %t", *s.UseSSL))
	}
	if scope := scopeList(s.Scope); len(scope) == 1 {
		opts = append(opts, fmt.Sprintf("SCOPE '%s'", escapeLiteral(scope[0])))
	} else if len(scope) > 1 {
		for i := range scope {
			scope[i] = "'" + escapeLiteral(scope[i]) + "'"
		}
		opts = append(opts, "SCOPE ("+strings.Join(scope, ", ")+")")
	}
	return "CREATE SECRET (\n    " + strings.Join(opts, ",\n    ") + "\n)"
}

func scopeList(scope any) []string {
	switch v := scope.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fmt.Sprint(s))
		}
		return out
	default:
		return nil
	}
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
