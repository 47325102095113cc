package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"IVA-Bank/internal/api"
	"IVA-Bank/internal/auth"
	"IVA-Bank/internal/events"
	"IVA-Bank/internal/observability/metrics"
	"IVA-Bank/internal/speech"
	loggerpkg "IVA-Bank/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the notification processor",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	log := loggerpkg.Named("ivad")

	var cl closers
	defer cl.close()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	cl.add(store.Close)

	policies, err := createPolicyService(ctx, cfg, store, &cl)
	if err != nil {
		return err
	}
	if cfg.Runtime.SeedPolicies || cfg.Storage.Driver == "memory" {
		n, err := seedPolicies(ctx, cfg, policies)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("已写入政策", "count", n)
		}
	}

	bus, err := createBus(ctx, cfg)
	if err != nil {
		return err
	}
	cl.add(bus.Close)

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}
	registry, err := createRegistry(store, policies, cfg, bus)
	if err != nil {
		return err
	}
	assistant := createAssistant(cfg, llmClient, registry)

	authSvc, err := auth.NewService(auth.Config{
		Secret: cfg.Auth.SecretKey,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL(),
	}, store, auth.WithPublisher(bus))
	if err != nil {
		return err
	}

	opts := []api.Option{
		api.WithAccounts(store),
		api.WithApplications(store),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout()),
		api.WithMaxUploadBytes(int64(cfg.Speech.MaxUploadM) << 20),
	}
	if cfg.Speech.Enabled {
		audio, err := speech.NewAudioStore(cfg.Speech.UploadDir)
		if err != nil {
			return err
		}
		apiKey := ""
		if cfg.Speech.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Speech.APIKeyEnv)
		}
		engine := speech.NewClient(speech.Config{
			APIKey:   apiKey,
			BaseURL:  cfg.Speech.BaseURL,
			STTModel: cfg.Speech.STTModel,
			TTSModel: cfg.Speech.TTSModel,
			Voice:    cfg.Speech.Voice,
			Timeout:  cfg.LLM.Timeout(),
		})
		opts = append(opts, api.WithSpeech(engine, engine, audio, cfg.Speech.Voice))
	}
	server := api.NewServer(cfg.Server.Address, assistant, authSvc, opts...)

	processor := events.NewProcessor(bus, createDispatcher(cfg),
		events.WithWorkerCount(cfg.Events.Workers),
		events.WithProcessorLogger(loggerpkg.Named("events")),
		events.WithObserver(func(t events.Type, err error) {
			metrics.ObserveEvent(string(t), err)
		}),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ignoreCanceled(processor.Start(groupCtx))
	})
	group.Go(func() error {
		return ignoreCanceled(server.Start(groupCtx))
	})
	if cfg.Server.MetricsAddress != "" {
		group.Go(func() error {
			return metrics.StartServer(groupCtx, cfg.Server.MetricsAddress)
		})
	}
	log.Info("ivad 已启动",
		"addr", cfg.Server.Address,
		"storage", cfg.Storage.Driver,
		"llm", cfg.LLM.Provider,
		"events", cfg.Events.Driver,
	)
	return group.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
