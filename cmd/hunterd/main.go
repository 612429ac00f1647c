package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/brilliox/hunterpro/internal/config"
	"github.com/brilliox/hunterpro/internal/engine"
	"github.com/brilliox/hunterpro/internal/funnel"
	"github.com/brilliox/hunterpro/internal/httpserver"
	"github.com/brilliox/hunterpro/internal/learning"
	"github.com/brilliox/hunterpro/internal/logging"
	"github.com/brilliox/hunterpro/internal/provider"
	"github.com/brilliox/hunterpro/internal/provider/duckduckgo"
	"github.com/brilliox/hunterpro/internal/provider/gemini"
	"github.com/brilliox/hunterpro/internal/provider/openaichat"
	"github.com/brilliox/hunterpro/internal/provider/serper"
	"github.com/brilliox/hunterpro/internal/ratelimit"
	"github.com/brilliox/hunterpro/internal/store"
	storepg "github.com/brilliox/hunterpro/internal/store/postgres"
	storesqlite "github.com/brilliox/hunterpro/internal/store/sqlite"
	"github.com/brilliox/hunterpro/internal/version"
	"github.com/brilliox/hunterpro/internal/wallet"
	walletpg "github.com/brilliox/hunterpro/internal/wallet/postgres"
	walletsqlite "github.com/brilliox/hunterpro/internal/wallet/sqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("hunterd failed")
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}

	repo, walletStore, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	defer walletStore.Close()

	limiter, err := buildLimiter(cfg, rules)
	if err != nil {
		return err
	}
	defer limiter.Close()

	chatChain, searchChain, err := buildChains(cfg, rules)
	if err != nil {
		return err
	}

	ctx := context.Background()
	learner, err := learning.NewLearner(ctx, learning.Config{
		SuccessThreshold: rules.Learner.SuccessThreshold,
		Decay:            rules.Learner.Decay,
		MaxPerStage:      rules.Learner.MaxPerStage,
		SuggestLimit:     rules.Learner.SuggestLimit,
	}, repo)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Config{
		Limiter:      limiter,
		Wallet:       wallet.NewManager(walletStore, rules.DefaultBalance),
		ChatChain:    chatChain,
		SearchChain:  searchChain,
		Tracker:      funnel.NewTracker(repo),
		Learner:      learner,
		Repo:         repo,
		Costs:        rules.Costs,
		CacheTTL:     rules.CacheTTL(),
		CacheEntries: rules.Cache.MaxEntries,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpserver.New(eng).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("store", cfg.StoreBackend).
			Str("version", version.Info()).
			Msg("hunterd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStores(cfg *config.Config) (store.Repository, wallet.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		repo, err := storepg.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		ws, err := walletpg.New(cfg.PostgresDSN, 10, 5)
		if err != nil {
			_ = repo.Close()
			return nil, nil, err
		}
		return repo, ws, nil
	default:
		repo, err := storesqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		ws, err := walletsqlite.New(cfg.SQLitePath)
		if err != nil {
			_ = repo.Close()
			return nil, nil, err
		}
		return repo, ws, nil
	}
}

func buildLimiter(cfg *config.Config, rules config.Rules) (*ratelimit.Limiter, error) {
	limitCfg := ratelimit.Config{
		Limit:  rules.RateLimit.Limit,
		Window: rules.RateWindow(),
		Block:  rules.RateBlock(),
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		limitCfg.Store = ratelimit.NewRedisStore(client)
	}
	return ratelimit.NewLimiter(limitCfg), nil
}

func buildChains(cfg *config.Config, rules config.Rules) (*provider.Chain, *provider.Chain, error) {
	keyring := provider.NewKeyring()
	for _, class := range []string{"openai", "gemini", "groq", "serper"} {
		if keys := cfg.Keys(class); len(keys) > 0 {
			keyring.Register(class, keys)
		}
	}

	var chatAdapters []provider.Adapter
	for _, name := range rules.Provider.ChatOrder {
		switch name {
		case "openai":
			ad, err := openaichat.New(openaichat.Config{
				Name:    "openai",
				BaseURL: cfg.OpenAIBaseURL,
				Model:   cfg.OpenAIModel,
			})
			if err != nil {
				return nil, nil, err
			}
			chatAdapters = append(chatAdapters, ad)
		case "groq":
			ad, err := openaichat.New(openaichat.Config{
				Name:    "groq",
				BaseURL: cfg.GroqBaseURL,
				Model:   cfg.GroqModel,
			})
			if err != nil {
				return nil, nil, err
			}
			chatAdapters = append(chatAdapters, ad)
		case "gemini":
			chatAdapters = append(chatAdapters, gemini.New(gemini.Config{Model: cfg.GeminiModel}))
		default:
			return nil, nil, fmt.Errorf("unknown chat provider %q", name)
		}
	}

	var searchAdapters []provider.Adapter
	for _, name := range rules.Provider.SearchOrder {
		switch name {
		case "serper":
			searchAdapters = append(searchAdapters, serper.New(serper.Config{}))
		case "duckduckgo":
			searchAdapters = append(searchAdapters, duckduckgo.New(duckduckgo.Config{}))
		default:
			return nil, nil, fmt.Errorf("unknown search provider %q", name)
		}
	}

	chatChain, err := provider.NewChain(provider.ChainConfig{
		Capability: provider.CapabilityChat,
		Adapters:   chatAdapters,
		Keyring:    keyring,
		Timeout:    rules.ProviderTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	searchChain, err := provider.NewChain(provider.ChainConfig{
		Capability: provider.CapabilitySearch,
		Adapters:   searchAdapters,
		Keyring:    keyring,
		Timeout:    rules.SearchTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	return chatChain, searchChain, nil
}
