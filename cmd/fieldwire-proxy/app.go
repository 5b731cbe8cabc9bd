package main

import (
	"fmt"

	"github.com/Xilous/fieldwire-client-ucsh/pkg/auth"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/client"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/executor"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/pagination"
	"github.com/Xilous/fieldwire-client-ucsh/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the shared objects: one token provider, one budget, one gateway,
// one aggregator and one executor per process.
type app struct {
	tokens     *auth.TokenProvider
	budget     ratelimit.Budget
	gateway    *client.Client
	aggregator *pagination.Aggregator
	fetcher    *pagination.HTTPFetcher
	batch      *pagination.BatchFetcher
	redis      *redis.Client
	logger     zerolog.Logger
}

// newApp wires every component from s.
func newApp(s settings, logger zerolog.Logger) (*app, error) {
	budget, err := ratelimit.New(s.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate budget: %w", err)
	}

	rcfg := auth.DefaultRefresherConfig(s.APIToken)
	rcfg.TokenURL = s.TokenURL
	rcfg.APIVersion = s.APIVersion
	rcfg.Budget = budget
	if s.TokenSkew >= rcfg.Lifetime {
		return nil, fmt.Errorf("token skew %s must be shorter than token lifetime %s", s.TokenSkew, rcfg.Lifetime)
	}
	refresher, err := auth.NewJWTRefresher(rcfg)
	if err != nil {
		return nil, fmt.Errorf("token refresher: %w", err)
	}

	pcfg := auth.DefaultConfig()
	pcfg.RetryInterval = s.RefreshRetryInterval
	pcfg.Skew = s.TokenSkew
	tokens, err := auth.NewTokenProvider(pcfg, refresher, logger)
	if err != nil {
		return nil, fmt.Errorf("token provider: %w", err)
	}

	var redisClient *redis.Client
	if s.RedisURL != "" {
		opts, err := redis.ParseURL(s.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
	}

	ccfg := client.DefaultConfig(tokens, s.ProjectBaseURL)
	ccfg.APIVersion = s.APIVersion
	ccfg.Budget = budget
	ccfg.Redis = redisClient
	ccfg.CacheTTL = s.CacheTTL
	ccfg.Logger = &logger
	gateway, err := client.New(ccfg)
	if err != nil {
		return nil, fmt.Errorf("request gateway: %w", err)
	}

	// The gateway already consumes the budget per call; gating dispatch as
	// well would count every request twice.
	exec, err := executor.New(executor.Config{MaxConcurrency: s.MaxConcurrency}, logger)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	aggregator := pagination.NewAggregator(pagination.Config{MaxPages: s.MaxPages, PageSize: s.PageSize}, logger)
	fetcher := pagination.NewHTTPFetcher(gateway, s.PageSize)

	return &app{
		tokens:     tokens,
		budget:     budget,
		gateway:    gateway,
		aggregator: aggregator,
		fetcher:    fetcher,
		batch:      pagination.NewBatchFetcher(aggregator, fetcher, exec),
		redis:      redisClient,
		logger:     logger.With().Str("component", "proxy").Logger(),
	}, nil
}

// Close releases the Redis connection pool, if any.
func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
