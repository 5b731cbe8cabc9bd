// Command fieldwire-proxy serves aggregated Fieldwire project lists over HTTP
// using one shared token provider, rate budget and request gateway.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the root command around its own viper instance.
func newRootCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "fieldwire-proxy",
		Short:         "Fieldwire API proxy",
		Long:          "Serve aggregated Fieldwire project lists with shared authentication and rate limiting",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Configuration file path (yaml, json or toml)")
	flags.StringP("port", "p", "8080", "Port to listen on")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "Human-readable console logs")
	flags.String("rate-limit-strategy", "interval", "Rate budget strategy (interval, bucket, window)")
	flags.Int("max-concurrency", 10, "Parallel list fetches per batch")

	bindings := map[string]string{
		keyConfig:            "config",
		keyPort:              "port",
		keyLogLevel:          "log-level",
		keyLogPretty:         "log-pretty",
		keyRateLimitStrategy: "rate-limit-strategy",
		keyMaxConcurrency:    "max-concurrency",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	s, err := loadSettings(v)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(s.LogLevel)
	logCfg.Pretty = s.LogPretty
	logCfg.Service = "fieldwire-proxy"
	logger := logging.Setup(logCfg)

	a, err := newApp(s, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build application")
		return err
	}
	defer a.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, response cache disabled for failing calls")
		}
	}

	// Warm the credential; failures are retried on first use.
	if _, err := a.tokens.Token(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial token refresh failed")
	}

	srv := &http.Server{
		Addr:              ":" + s.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("base_url", s.ProjectBaseURL).
			Str("rate_limit_strategy", string(s.RateLimit.Strategy)).
			Bool("cache", a.redis != nil).
			Msg("Starting fieldwire-proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutdown signal received, shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}
