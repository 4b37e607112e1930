// Package config loads runtime settings from the environment and, when a
// parameter prefix is configured, resolves credentials from SSM.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read once at startup.
type Config struct {
	ZAPIInstanceID  string  `env:"ZAPI_INSTANCE_ID"`
	ZAPIToken       string  `env:"ZAPI_TOKEN"`
	ZAPIClientToken string  `env:"ZAPI_CLIENT_TOKEN"`
	ZAPIBaseURL     string  `env:"ZAPI_BASE_URL"`
	ZAPIRatePerSec  float64 `env:"ZAPI_RATE_PER_SEC" envDefault:"5"`

	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIAssistantID string `env:"OPENAI_ASSISTANT_ID"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL"`

	Debounce        time.Duration `env:"DEBOUNCE" envDefault:"30s"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"120"`
	PollMaxWait     time.Duration `env:"POLL_MAX_WAIT" envDefault:"2m"`
	TurnTimeout     time.Duration `env:"TURN_TIMEOUT" envDefault:"3m"`

	StateTable       string        `env:"STATE_TABLE"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	EventTTL         time.Duration `env:"EVENT_TTL" envDefault:"24h"`
	MemoryMaxEntries int           `env:"MEMORY_MAX_ENTRIES" envDefault:"100000"`

	ParamPrefix string `env:"PARAM_PREFIX"`
	AdminPhone  string `env:"ADMIN_PHONE"`

	HandoffPhrases    []string `env:"HANDOFF_PHRASES" envSeparator:","`
	ContactNameTerms  []string `env:"CONTACT_NAME_TERMS" envSeparator:","`
	ContactPhoneTerms []string `env:"CONTACT_PHONE_TERMS" envSeparator:","`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Debounce <= 0 {
		return Config{}, errors.New("config: DEBOUNCE must be positive")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, errors.New("config: POLL_INTERVAL must be positive")
	}
	if cfg.PollMaxAttempts <= 0 && cfg.PollMaxWait <= 0 {
		return Config{}, errors.New("config: POLL_MAX_ATTEMPTS or POLL_MAX_WAIT must bound polling")
	}
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	return cfg, nil
}

// ParameterGetter is satisfied by *paramstore.Client.
type ParameterGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Parameter names under ParamPrefix.
const (
	ParamZAPIInstanceID    = "/zapi/instance-id"
	ParamZAPIToken         = "/zapi/token"
	ParamZAPIClientToken   = "/zapi/client-token"
	ParamOpenAIAPIKey      = "/openai/api-key"
	ParamOpenAIAssistantID = "/openai/assistant-id"
)

// ResolveCredentials fills credentials missing from the environment with
// values stored under ParamPrefix. Values already set are never fetched.
func (c *Config) ResolveCredentials(ctx context.Context, params ParameterGetter) error {
	if c.ParamPrefix == "" {
		return nil
	}
	if params == nil {
		return errors.New("config: parameter store is required when PARAM_PREFIX is set")
	}

	fields := map[string]*string{
		ParamZAPIInstanceID:    &c.ZAPIInstanceID,
		ParamZAPIToken:         &c.ZAPIToken,
		ParamZAPIClientToken:   &c.ZAPIClientToken,
		ParamOpenAIAPIKey:      &c.OpenAIAPIKey,
		ParamOpenAIAssistantID: &c.OpenAIAssistantID,
	}
	var names []string
	for suffix, dst := range fields {
		if strings.TrimSpace(*dst) == "" {
			names = append(names, c.ParamPrefix+suffix)
		}
	}
	if len(names) == 0 {
		return nil
	}

	values, err := params.GetParameters(ctx, names...)
	if err != nil {
		return fmt.Errorf("config: resolve credentials: %w", err)
	}
	for suffix, dst := range fields {
		if v, ok := values[c.ParamPrefix+suffix]; ok {
			*dst = v
		}
	}
	return nil
}

// Validate reports every credential that is still missing.
func (c Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"ZAPI_INSTANCE_ID":    c.ZAPIInstanceID,
		"ZAPI_TOKEN":          c.ZAPIToken,
		"ZAPI_CLIENT_TOKEN":   c.ZAPIClientToken,
		"OPENAI_API_KEY":      c.OpenAIAPIKey,
		"OPENAI_ASSISTANT_ID": c.OpenAIAssistantID,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("config: missing credentials: %s", strings.Join(missing, ", "))
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
