package main

import (
	"github.com/spf13/cobra"

	"IVA-Bank/internal/events"
	"IVA-Bank/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the banking tools over the Model Context Protocol (stdio)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
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
			if _, err := seedPolicies(ctx, cfg, policies); err != nil {
				return err
			}
		}

		// stdio 模式没有通知处理器，事件只在配置了外部队列时保留。
		var publisher events.Publisher = events.Discard{}
		if cfg.Events.Driver == "redis" || cfg.Events.Driver == "rabbitmq" {
			bus, err := createBus(ctx, cfg)
			if err != nil {
				return err
			}
			cl.add(bus.Close)
			publisher = bus
		}

		registry, err := createRegistry(store, policies, cfg, publisher)
		if err != nil {
			return err
		}
		return ignoreCanceled(mcpserver.New(registry, version).RunStdio(ctx))
	},
}
