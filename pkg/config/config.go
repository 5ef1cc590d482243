// Package config loads the relay configuration.
//
// Values are layered by spf13/viper: built-in defaults, then an optional YAML
// file, then environment variables, then command-line flags. The deployment
// variables PORTKEY_API_KEY, OPENROUTER_VIRTUAL_KEY, PORTKEY_SERVICE_NAME, and
// PORT are honoured alongside the CALLRELAY_* names.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/AltairaLabs/callrelay/runtime/logger"
	"github.com/AltairaLabs/callrelay/runtime/providers"
	"github.com/AltairaLabs/callrelay/runtime/session"
	"github.com/AltairaLabs/callrelay/runtime/telemetry"
)

// Config is the full relay configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Decoding DecodingConfig `mapstructure:"decoding"`
	Turn     TurnConfig     `mapstructure:"turn"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// PersonaFile is a YAML persona. Empty selects the built-in persona.
	PersonaFile string `mapstructure:"persona_file"`
}

// ServerConfig configures the WebSocket listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	ReadLimit    int64         `mapstructure:"read_limit"`

	// AllowedOrigins restricts browser upgrades by Origin header. Empty
	// accepts every origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// ShutdownTimeout bounds draining open sessions on exit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ProviderConfig selects and authenticates the chat completions gateway.
type ProviderConfig struct {
	Type       string `mapstructure:"type"`
	ID         string `mapstructure:"id"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	VirtualKey string `mapstructure:"virtual_key"`
	Model      string `mapstructure:"model"`

	// RequestsPerSecond throttles provider calls across all sessions. Zero disables it.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	// ScriptFile feeds the mock provider.
	ScriptFile string `mapstructure:"script_file"`
}

// DecodingConfig holds the sampling parameters sent with every request.
type DecodingConfig struct {
	Temperature      float64 `mapstructure:"temperature"`
	TopP             float64 `mapstructure:"top_p"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty"`
	PresencePenalty  float64 `mapstructure:"presence_penalty"`
	MaxTokens        int     `mapstructure:"max_tokens"`
}

// TurnConfig bounds and orders turns.
type TurnConfig struct {
	// Timeout bounds each turn. Zero disables the bound.
	Timeout time.Duration `mapstructure:"timeout"`

	// Supersede is "interleave" or "cancel".
	Supersede string `mapstructure:"supersede"`
}

// TracingConfig configures OTLP trace export. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Telemetry converts the tracing section for telemetry.Setup, stamping the
// build version on the trace resource.
func (t TracingConfig) Telemetry(version string) telemetry.Config {
	return telemetry.Config{
		Endpoint:       t.Endpoint,
		ServiceName:    t.ServiceName,
		ServiceVersion: version,
		SampleRatio:    t.SampleRatio,
	}
}

// MetricsConfig configures the Prometheus exporter. An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level        string            `mapstructure:"level"`
	Format       string            `mapstructure:"format"`
	CommonFields map[string]string `mapstructure:"common_fields"`
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.PingInterval < 0 {
		errs = append(errs, errors.New("server.ping_interval must not be negative"))
	}
	if c.Server.WriteWait <= 0 {
		errs = append(errs, errors.New("server.write_wait must be positive"))
	}
	if c.Server.ReadLimit <= 0 {
		errs = append(errs, errors.New("server.read_limit must be positive"))
	}

	if c.Provider.Type == "" {
		errs = append(errs, errors.New("provider.type is required"))
	}
	if c.Provider.Model == "" {
		errs = append(errs, errors.New("provider.model is required"))
	}
	if c.Provider.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("provider.requests_per_second must not be negative"))
	}

	errs = append(errs, c.Decoding.validate()...)

	if c.Turn.Timeout < 0 {
		errs = append(errs, errors.New("turn.timeout must not be negative"))
	}
	if _, err := session.ParseSupersedePolicy(c.Turn.Supersede); err != nil {
		errs = append(errs, fmt.Errorf("turn.supersede: %w", err))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %g", c.Tracing.SampleRatio))
	}

	switch c.Logging.Format {
	case "", logger.FormatText, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format must be %q or %q, got %q",
			logger.FormatText, logger.FormatJSON, c.Logging.Format))
	}

	return errors.Join(errs...)
}

func (d DecodingConfig) validate() []error {
	var errs []error
	if d.Temperature < 0 || d.Temperature > 2 {
		errs = append(errs, fmt.Errorf("decoding.temperature must be between 0 and 2, got %g", d.Temperature))
	}
	if d.TopP < 0 || d.TopP > 1 {
		errs = append(errs, fmt.Errorf("decoding.top_p must be between 0 and 1, got %g", d.TopP))
	}
	if d.FrequencyPenalty < -2 || d.FrequencyPenalty > 2 {
		errs = append(errs, fmt.Errorf("decoding.frequency_penalty must be between -2 and 2, got %g", d.FrequencyPenalty))
	}
	if d.PresencePenalty < -2 || d.PresencePenalty > 2 {
		errs = append(errs, fmt.Errorf("decoding.presence_penalty must be between -2 and 2, got %g", d.PresencePenalty))
	}
	if d.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("decoding.max_tokens must be positive, got %d", d.MaxTokens))
	}
	return errs
}

// Defaults returns the decoding parameters as provider request defaults.
func (d DecodingConfig) Defaults() providers.ProviderDefaults {
	return providers.ProviderDefaults{
		Temperature:      d.Temperature,
		TopP:             d.TopP,
		FrequencyPenalty: d.FrequencyPenalty,
		PresencePenalty:  d.PresencePenalty,
		MaxTokens:        d.MaxTokens,
	}
}

// ProviderSpec builds the registry spec for the configured provider.
func (c *Config) ProviderSpec() providers.ProviderSpec {
	spec := providers.ProviderSpec{
		ID:         c.Provider.ID,
		Type:       c.Provider.Type,
		Model:      c.Provider.Model,
		BaseURL:    c.Provider.BaseURL,
		APIKey:     c.Provider.APIKey,
		VirtualKey: c.Provider.VirtualKey,
		Defaults:   c.Decoding.Defaults(),
	}
	if c.Provider.ScriptFile != "" {
		spec.AdditionalConfig = map[string]any{"script_file": c.Provider.ScriptFile}
	}
	return spec
}

// SupersedePolicy returns the parsed turn supersede policy. Call after Validate.
func (c *Config) SupersedePolicy() session.SupersedePolicy {
	p, err := session.ParseSupersedePolicy(c.Turn.Supersede)
	if err != nil {
		return session.SupersedeInterleave
	}
	return p
}

// LoggerSpec converts the logging section for logger.Configure.
func (c *Config) LoggerSpec() *logger.Spec {
	return &logger.Spec{
		Level:        c.Logging.Level,
		Format:       c.Logging.Format,
		CommonFields: c.Logging.CommonFields,
	}
}
