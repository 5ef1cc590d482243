package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	pkgerrors "github.com/AltairaLabs/callrelay/pkg/errors"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "CALLRELAY"

// Built-in defaults.
const (
	DefaultPort             = 8000
	DefaultProviderType     = "portkey"
	DefaultModel            = "mistralai/mixtral-8x7b-instruct"
	DefaultTemperature      = 0.9
	DefaultTopP             = 1.0
	DefaultFrequencyPenalty = 0.7
	DefaultPresencePenalty  = 0.7
	DefaultMaxTokens        = 200
	DefaultTurnTimeout      = 30 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultReadLimit        = 1 << 20
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultServiceName      = "callrelay"
)

// legacyEnv maps keys to the unprefixed variable names used by existing deployments.
var legacyEnv = map[string]string{
	"server.port":          "PORT",
	"provider.api_key":     "PORTKEY_API_KEY",
	"provider.virtual_key": "OPENROUTER_VIRTUAL_KEY",
	"tracing.service_name": "PORTKEY_SERVICE_NAME",
}

// Options controls Load.
type Options struct {
	// ConfigFile is an optional YAML file. A missing file is an error.
	ConfigFile string

	// Flags are bound by name; "server-port" binds server.port.
	Flags *pflag.FlagSet
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.ping_interval", DefaultPingInterval)
	v.SetDefault("server.write_wait", DefaultWriteWait)
	v.SetDefault("server.read_limit", DefaultReadLimit)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("provider.type", DefaultProviderType)
	v.SetDefault("provider.id", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.virtual_key", "")
	v.SetDefault("provider.model", DefaultModel)
	v.SetDefault("provider.requests_per_second", 0)
	v.SetDefault("provider.burst", 1)
	v.SetDefault("provider.script_file", "")

	v.SetDefault("decoding.temperature", DefaultTemperature)
	v.SetDefault("decoding.top_p", DefaultTopP)
	v.SetDefault("decoding.frequency_penalty", DefaultFrequencyPenalty)
	v.SetDefault("decoding.presence_penalty", DefaultPresencePenalty)
	v.SetDefault("decoding.max_tokens", DefaultMaxTokens)

	v.SetDefault("turn.timeout", DefaultTurnTimeout)
	v.SetDefault("turn.supersede", "interleave")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", DefaultServiceName)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("persona_file", "")
}

// Load builds a validated Config from v. Defaults are registered on v
// first, so a fresh viper.New() is enough.
func Load(v *viper.Viper, opts Options) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, pkgerrors.New("config", "Load", err)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, pkgerrors.New("config", "Load", fmt.Errorf("failed to read config file: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pkgerrors.New("config", "Load", fmt.Errorf("failed to decode config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, pkgerrors.New("config", "Validate", err)
	}
	return &cfg, nil
}

// bindFlags binds every flag whose dashed name matches a configuration key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := flagKey(f.Name)
		if !isKnownKey(v, key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = pkgerrors.New("config", "BindFlags", err)
		}
	})
	return bindErr
}

// flagKey converts "provider-api-key" style names: the first dash separates
// the section, the rest become underscores.
func flagKey(name string) string {
	section, rest, ok := strings.Cut(name, "-")
	if !ok {
		return strings.ReplaceAll(name, "-", "_")
	}
	if section == "persona" {
		return "persona_" + strings.ReplaceAll(rest, "-", "_")
	}
	return section + "." + strings.ReplaceAll(rest, "-", "_")
}

func isKnownKey(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// LoadDotEnv loads variables from .env style files into the process
// environment without overriding existing values. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return pkgerrors.New("config", "LoadDotEnv", fmt.Errorf("%s: %w", p, err))
		}
	}
	return nil
}
