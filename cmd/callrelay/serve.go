package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/callrelay/pkg/config"
	"github.com/AltairaLabs/callrelay/runtime/logger"
	metrics "github.com/AltairaLabs/callrelay/runtime/metrics/prometheus"
	"github.com/AltairaLabs/callrelay/runtime/prompt"
	"github.com/AltairaLabs/callrelay/runtime/providers"
	"github.com/AltairaLabs/callrelay/runtime/telemetry"
	"github.com/AltairaLabs/callrelay/server/llmws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LLM WebSocket server",
	Long: `Serve accepts voice front end connections at /llm-websocket/{call_id}.

Configuration is read from defaults, an optional YAML file, the environment
(PORTKEY_API_KEY, OPENROUTER_VIRTUAL_KEY, PORTKEY_SERVICE_NAME, PORT, and
CALLRELAY_* variables), and the flags below, in increasing precedence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cmd.Flags())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringP("config", "c", "", "Configuration file path (YAML)")
	f.String("env-file", ".env", "Environment file loaded before configuration")

	f.String("server-host", "", "Listen host")
	f.Int("server-port", config.DefaultPort, "Listen port")
	f.Duration("server-ping-interval", config.DefaultPingInterval, "WebSocket ping interval (0 disables)")
	f.Duration("server-shutdown-timeout", config.DefaultShutdownTimeout, "Time allowed to drain sessions on exit")
	f.StringSlice("server-allowed-origins", nil, "Origins allowed to upgrade (default: any)")

	f.String("provider-type", config.DefaultProviderType, "Provider type (portkey, openai, mock)")
	f.String("provider-base-url", "", "Override the provider base URL")
	f.String("provider-model", config.DefaultModel, "Model requested from the gateway")
	f.Float64("provider-requests-per-second", 0, "Provider request rate limit (0 disables)")
	f.String("provider-script-file", "", "Mock provider script file")

	f.Duration("turn-timeout", config.DefaultTurnTimeout, "Per-turn budget (0 disables)")
	f.String("turn-supersede", "interleave", "Policy for older turns when a new one arrives (interleave, cancel)")

	f.String("persona-file", "", "Persona YAML file (default: built-in persona)")
	f.String("metrics-addr", "", "Prometheus exporter address, e.g. :9090 (empty disables)")
	f.String("tracing-endpoint", "", "OTLP/HTTP traces endpoint URL (empty disables export)")
	f.Float64("tracing-sample-ratio", 1, "Fraction of new traces sampled (0 to 1)")
	f.String("logging-level", "info", "Log level (debug, info, warn, error)")
	f.String("logging-format", "text", "Log format (text, json)")
}

func runServe(ctx context.Context, flags *pflag.FlagSet) error {
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	configFile, err := flags.GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(viper.New(), config.Options{ConfigFile: configFile, Flags: flags})
	if err != nil {
		return err
	}

	logger.Configure(cfg.LoggerSpec())
	if verbose, _ := flags.GetBool("verbose"); verbose {
		logger.SetVerbose(true)
	}

	persona, err := prompt.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return err
	}

	if err := checkProvider(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing.Telemetry(GetVersion()))
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracer provider shutdown failed", "error", err)
		}
	}()

	r := newRelay(cfg, persona, telemetry.Tracer(nil))
	srv := llmws.NewServer(r.open, serverOptions(cfg)...)

	var exporter *metrics.Exporter
	if cfg.Metrics.Addr != "" {
		exporter = metrics.NewExporter(cfg.Metrics.Addr)
	}

	logger.Info("Starting callrelay",
		"version", GetVersion(),
		"addr", cfg.Server.Addr(),
		"provider", cfg.Provider.Type,
		"model", cfg.Provider.Model,
		"supersede", string(cfg.SupersedePolicy()),
		"turn_timeout", cfg.Turn.Timeout.String(),
		"persona", persona.Name,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	if exporter != nil {
		g.Go(exporter.Serve)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("llm websocket server: %w", err))
		}
		if exporter != nil {
			if err := exporter.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics exporter: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// checkProvider fails fast on an unusable provider configuration instead of
// on the first call.
func checkProvider(cfg *config.Config) error {
	p, err := providers.CreateProviderFromSpec(cfg.ProviderSpec())
	if err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}
	if cfg.Provider.APIKey == "" && cfg.Provider.Type != "mock" {
		logger.Warn("No provider API key configured; requests will be rejected by the gateway",
			"provider", cfg.Provider.Type)
	}
	return p.Close()
}

func serverOptions(cfg *config.Config) []llmws.Option {
	opts := []llmws.Option{
		llmws.WithAddr(cfg.Server.Addr()),
		llmws.WithPingInterval(cfg.Server.PingInterval),
		llmws.WithWriteWait(cfg.Server.WriteWait),
		llmws.WithReadLimit(cfg.Server.ReadLimit),
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		opts = append(opts, llmws.WithCheckOrigin(llmws.AllowOrigins(cfg.Server.AllowedOrigins...)))
	}
	return opts
}
