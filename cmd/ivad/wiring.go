package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"IVA-Bank/internal/agent"
	"IVA-Bank/internal/bank"
	"IVA-Bank/internal/config"
	"IVA-Bank/internal/embedding"
	"IVA-Bank/internal/events"
	"IVA-Bank/internal/fraud"
	"IVA-Bank/internal/llm"
	"IVA-Bank/internal/llm/anthropic"
	"IVA-Bank/internal/llm/ollama"
	"IVA-Bank/internal/llm/openai"
	"IVA-Bank/internal/notify"
	"IVA-Bank/internal/observability/metrics"
	"IVA-Bank/internal/policy"
	"IVA-Bank/internal/storage/mysql"
	"IVA-Bank/internal/storage/redis"
	"IVA-Bank/internal/storage/sqlite"
	"IVA-Bank/internal/tools"
	loggerpkg "IVA-Bank/pkg/logger"
)

// closers 按注册的逆序释放资源。
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			loggerpkg.L().Warn("释放资源失败", "error", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (bank.Store, error) {
	switch cfg.Storage.Driver {
	case "memory", "":
		return bank.NewMemoryStore(), nil
	case "mysql":
		return mysql.NewBankStore(ctx, mysqlConfig(cfg))
	case "sqlite":
		return sqlite.Open(ctx, cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("%w: %s", mysql.ErrUnsupportedDriver, cfg.Storage.Driver)
	}
}

func mysqlConfig(cfg *config.Config) mysql.Config {
	return mysql.Config{
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Storage.ConnMaxIdleTimeSeconds) * time.Second,
	}
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "ollama":
		return ollama.NewClient(ollama.Config{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout(),
		}), nil
	case "openai":
		apiKey := strings.TrimSpace(cfg.LLM.ResolveAPIKey())
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout(),
		})
	case "anthropic":
		apiKey := strings.TrimSpace(cfg.LLM.ResolveAPIKey())
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		}
		return anthropic.NewClient(anthropic.Config{
			APIKey:     apiKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			MaxTokens:  cfg.LLM.MaxTokens,
			MaxRetries: 2,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

// createEmbedder 返回 nil 表示政策检索退化为关键词匹配。
func createEmbedder(ctx context.Context, cfg *config.Config, cl *closers) (embedding.Embedder, error) {
	var engine embedding.Embedder
	switch cfg.Embedding.Provider {
	case "", "none":
		return nil, nil
	case "ollama":
		engine = embedding.NewOllamaEngine(cfg.Embedding.BaseURL, cfg.Embedding.Model)
	case "genai":
		apiKey := ""
		if cfg.Embedding.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Embedding.APIKeyEnv)
		}
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		genaiEngine, err := embedding.NewGenAIEngine(ctx, apiKey, cfg.Embedding.Model, "")
		if err != nil {
			return nil, err
		}
		engine = genaiEngine
	default:
		return nil, fmt.Errorf("未知的向量 provider: %s", cfg.Embedding.Provider)
	}

	cacheCfg := cfg.Embedding.Cache
	if !cacheCfg.Enabled {
		return engine, nil
	}
	cache, err := redis.NewEmbeddingCache(ctx, redis.CacheConfig{
		Address:  cacheCfg.Address,
		Password: cacheCfg.Password,
		DB:       cacheCfg.DB,
		Prefix:   cacheCfg.Prefix,
		TTL:      time.Duration(cacheCfg.TTLMinutes) * time.Minute,
	})
	if err != nil {
		// 缓存不可用时继续使用无缓存的引擎。
		loggerpkg.L().Warn("向量缓存不可用", "address", cacheCfg.Address, "error", err)
		return engine, nil
	}
	cl.add(cache.Close)
	return embedding.WithCache(engine, cache), nil
}

func createPolicyService(ctx context.Context, cfg *config.Config, store bank.Store, cl *closers) (*policy.Service, error) {
	embedder, err := createEmbedder(ctx, cfg, cl)
	if err != nil {
		return nil, err
	}
	opts := []policy.Option{policy.WithTopK(cfg.Embedding.TopK)}
	if embedder != nil {
		opts = append(opts, policy.WithEmbedder(embedder))
	}
	return policy.NewService(store, opts...), nil
}

// seedPolicies 写入内置政策与可选的政策文件，已有数据时不做任何事。
// 内存存储每次启动都是空的，serve 与 mcp 会自动调用。
func seedPolicies(ctx context.Context, cfg *config.Config, policies *policy.Service) (int, error) {
	docs := policy.Defaults()
	if cfg.Runtime.PolicyFile != "" {
		extra, err := policy.LoadFile(cfg.Runtime.PolicyFile)
		if err != nil {
			return 0, err
		}
		docs = append(docs, extra...)
	}
	return policies.Seed(ctx, docs...)
}

func createBus(ctx context.Context, cfg *config.Config) (events.Bus, error) {
	switch cfg.Events.Driver {
	case "", "memory":
		return events.NewMemoryBus(cfg.Events.Buffer), nil
	case "redis":
		return events.NewRedisBus(ctx, events.RedisConfig{
			Address:   cfg.Events.Redis.Address,
			Password:  cfg.Events.Redis.Password,
			DB:        cfg.Events.Redis.DB,
			Queue:     cfg.Events.Redis.Queue,
			BlockWait: time.Duration(cfg.Events.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return events.NewRabbitMQBus(events.RabbitMQConfig{
			URL:        cfg.Events.RabbitMQ.URL,
			Queue:      cfg.Events.RabbitMQ.Queue,
			Prefetch:   cfg.Events.RabbitMQ.Prefetch,
			Durable:    cfg.Events.RabbitMQ.Durable,
			AutoDelete: cfg.Events.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}
}

// createDispatcher 组合客户邮件与可选的运营 webhook。
func createDispatcher(cfg *config.Config) notify.Dispatcher {
	notifiers := []notify.Notifier{
		&notify.EmailNotifier{Sender: &notify.MockSender{}, SubjectPrefix: "[IVA Bank] "},
	}
	if url := strings.TrimSpace(cfg.Events.OpsWebhookURL); url != "" {
		notifiers = append(notifiers, &notify.WebhookNotifier{
			URL:   url,
			Kinds: []string{string(events.TypeFraudFlagged)},
		})
	}
	return notify.NewFanout(notifiers...)
}

func createRegistry(store bank.Store, policies *policy.Service, cfg *config.Config, publisher events.Publisher) (*tools.Registry, error) {
	registry := tools.NewRegistry(tools.WithObserver(metrics.ObserveToolInvocation))
	banking := tools.NewBanking(store, policies, fraud.NewChecker(cfg.Fraud.Threshold), publisher)
	if err := banking.Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func createAssistant(cfg *config.Config, client llm.Client, registry *tools.Registry) *agent.Assistant {
	return agent.New(client, registry,
		agent.WithLLMTimeout(cfg.LLM.Timeout()),
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithTemperature(cfg.LLM.Temperature),
		agent.WithMaxTokens(cfg.LLM.MaxTokens),
		agent.WithProfiles(agent.DefaultProfiles(bank.FromDollars(cfg.Fraud.Threshold))),
		agent.WithRouteObserver(func(route agent.Route) {
			metrics.ObserveRoute(string(route))
		}),
	)
}
