package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"IVA-Bank/internal/config"
	loggerpkg "IVA-Bank/pkg/logger"
)

// version 在构建时通过 -ldflags 注入。
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ivad",
	Short:         "IVA-Bank multi-agent banking assistant",
	Long:          "ivad runs the IVA-Bank HTTP API, applies database migrations, seeds bank policies and serves the banking tools over MCP.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (JSON or YAML); defaults to $IVA_CONFIG or configs/iva.yaml")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, mcpCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ivad version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

// main 是 IVA-Bank 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = loggerpkg.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ivad 运行失败: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 按 --config、IVA_CONFIG、configs/iva.yaml 的顺序查找配置，
// 都不存在时使用仅含环境变量的默认配置。stdio 模式下日志只能写 stderr。
func loadConfig(stderrOnly bool) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("IVA_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = filepath.Join("configs", "iva.yaml")
	}

	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(path); statErr != nil && !explicit && errors.Is(statErr, os.ErrNotExist) {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	outputs := cfg.Logging.OutputPaths
	if stderrOnly {
		outputs = []string{"stderr"}
	}
	if err := loggerpkg.Init(loggerpkg.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Audit: loggerpkg.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
