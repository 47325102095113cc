package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"IVA-Bank/internal/storage/mysql"
	"IVA-Bank/internal/storage/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations for the configured storage driver",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch cfg.Storage.Driver {
		case "mysql":
			versions, err := mysql.Migrate(cmd.Context(), mysqlConfig(cfg))
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Fprintln(out, "数据库已是最新版本")
				return nil
			}
			for _, v := range versions {
				fmt.Fprintf(out, "已应用迁移 %s\n", v)
			}
			return nil
		case "sqlite":
			// SQLite 在打开时自动建表。
			store, err := sqlite.Open(cmd.Context(), cfg.Storage.DSN)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "SQLite 表结构已同步")
			return store.Close()
		default:
			fmt.Fprintf(out, "存储驱动 %s 无需迁移\n", cfg.Storage.Driver)
			return nil
		}
	},
}
