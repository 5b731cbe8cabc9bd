package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/auth"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/executor"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/pagination"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/ratelimit"
	"github.com/spf13/viper"
)

// Configuration keys. Each is also read from FIELDWIRE_<KEY>.
const (
	keyConfig               = "config"
	keyAPIToken             = "api_token"
	keyProjectBaseURL       = "project_base_url"
	keyTokenURL             = "token_url"
	keyAPIVersion           = "api_version"
	keyRateLimitStrategy    = "rate_limit_strategy"
	keyRateLimitInterval    = "rate_limit_interval"
	keyRateLimitBurst       = "rate_limit_burst"
	keyRateLimitMaxRequests = "rate_limit_max_requests"
	keyRateLimitWindow      = "rate_limit_window"
	keyMaxConcurrency       = "max_concurrency"
	keyMaxPages             = "max_pages"
	keyPageSize             = "page_size"
	keyRefreshRetryInterval = "refresh_retry_interval"
	keyTokenSkew            = "token_skew"
	keyRedisURL             = "redis_url"
	keyCacheTTL             = "cache_ttl"
	keyLogLevel             = "log_level"
	keyLogPretty            = "log_pretty"
	keyPort                 = "port"
)

// DefaultProjectBaseURL is the US region project API.
const DefaultProjectBaseURL = "https://client-api.us.fieldwire.com/api/v3"

// settings is the resolved proxy configuration.
type settings struct {
	APIToken       string
	ProjectBaseURL string
	TokenURL       string
	APIVersion     string

	RateLimit      ratelimit.Config
	MaxConcurrency int
	MaxPages       int
	PageSize       int

	RefreshRetryInterval time.Duration
	TokenSkew            time.Duration

	RedisURL string
	CacheTTL time.Duration

	LogLevel  string
	LogPretty bool
	Port      string
}

// newViper returns a viper instance with defaults and FIELDWIRE_ env binding.
func newViper() *viper.Viper {
	v := viper.New()

	rl := ratelimit.DefaultConfig()
	tp := auth.DefaultConfig()
	pg := pagination.DefaultConfig()

	v.SetDefault(keyAPIToken, "")
	v.SetDefault(keyProjectBaseURL, DefaultProjectBaseURL)
	v.SetDefault(keyTokenURL, auth.DefaultTokenURL)
	v.SetDefault(keyAPIVersion, auth.DefaultAPIVersion)
	v.SetDefault(keyRateLimitStrategy, string(rl.Strategy))
	v.SetDefault(keyRateLimitInterval, rl.Interval)
	v.SetDefault(keyRateLimitBurst, rl.Burst)
	v.SetDefault(keyRateLimitMaxRequests, rl.MaxRequests)
	v.SetDefault(keyRateLimitWindow, rl.Window)
	v.SetDefault(keyMaxConcurrency, executor.DefaultConfig().MaxConcurrency)
	v.SetDefault(keyMaxPages, pg.MaxPages)
	v.SetDefault(keyPageSize, pg.PageSize)
	v.SetDefault(keyRefreshRetryInterval, tp.RetryInterval)
	v.SetDefault(keyTokenSkew, tp.Skew)
	v.SetDefault(keyRedisURL, "")
	v.SetDefault(keyCacheTTL, 30*time.Second)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogPretty, false)
	v.SetDefault(keyPort, "8080")

	v.SetEnvPrefix("FIELDWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return v
}

// loadSettings reads the optional config file and resolves every key.
func loadSettings(v *viper.Viper) (settings, error) {
	if file := v.GetString(keyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	s := settings{
		APIToken:       strings.TrimSpace(v.GetString(keyAPIToken)),
		ProjectBaseURL: v.GetString(keyProjectBaseURL),
		TokenURL:       v.GetString(keyTokenURL),
		APIVersion:     v.GetString(keyAPIVersion),
		RateLimit: ratelimit.Config{
			Strategy:    ratelimit.Strategy(strings.ToLower(v.GetString(keyRateLimitStrategy))),
			Interval:    v.GetDuration(keyRateLimitInterval),
			Burst:       v.GetInt(keyRateLimitBurst),
			MaxRequests: v.GetInt(keyRateLimitMaxRequests),
			Window:      v.GetDuration(keyRateLimitWindow),
		},
		MaxConcurrency:       v.GetInt(keyMaxConcurrency),
		MaxPages:             v.GetInt(keyMaxPages),
		PageSize:             v.GetInt(keyPageSize),
		RefreshRetryInterval: v.GetDuration(keyRefreshRetryInterval),
		TokenSkew:            v.GetDuration(keyTokenSkew),
		RedisURL:             v.GetString(keyRedisURL),
		CacheTTL:             v.GetDuration(keyCacheTTL),
		LogLevel:             v.GetString(keyLogLevel),
		LogPretty:            v.GetBool(keyLogPretty),
		Port:                 v.GetString(keyPort),
	}

	if s.APIToken == "" {
		return settings{}, fmt.Errorf("api token is required (set FIELDWIRE_API_TOKEN)")
	}
	if s.ProjectBaseURL == "" {
		return settings{}, fmt.Errorf("project base url is required")
	}
	if s.TokenSkew < 0 || s.TokenSkew >= auth.DefaultTokenLifetime {
		return settings{}, fmt.Errorf("token_skew must be >= 0 and < token lifetime %s (got %s)", auth.DefaultTokenLifetime, s.TokenSkew)
	}
	if s.PageSize < 1 {
		return settings{}, fmt.Errorf("page_size must be >= 1 (got %d)", s.PageSize)
	}
	if s.MaxPages < 1 {
		return settings{}, fmt.Errorf("max_pages must be >= 1 (got %d)", s.MaxPages)
	}
	return s, nil
}
