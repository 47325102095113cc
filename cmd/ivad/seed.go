package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load bank policies (and their embeddings) into the policy store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(false)
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
		n, err := seedPolicies(ctx, cfg, policies)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "政策已存在，跳过写入")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已写入 %d 条政策\n", n)
		return nil
	},
}
