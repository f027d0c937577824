package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/docpipe/pkg/configs"
	kv "github.com/yeisme/docpipe/pkg/internal/storage/kv"
)

// withKV 按当前配置打开 KV，执行 fn 后关闭.
func withKV(cmd *cobra.Command, fn func(c *kv.Client) error) error {
	c, err := kv.NewKVClient(cmd.Context(), configs.GetConfig().KV)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

var (
	kvCmd = &cobra.Command{
		Use:   "kv",
		Short: "inspect the key-value store holding leases and cached analyses",
	}

	kvTypesCmd = &cobra.Command{
		Use:     "types",
		Short:   "list compiled-in kv backends",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range kv.GetRegisteredKVTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}

	kvKeysCmd = &cobra.Command{
		Use:   "keys [pattern]",
		Short: "list keys matching a glob pattern (default *)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}

			return withKV(cmd, func(c *kv.Client) error {
				keys, err := c.Keys(cmd.Context(), pattern)
				if err != nil {
					return err
				}

				return printJSON(cmd, keys)
			})
		},
	}

	kvDelCmd = &cobra.Command{
		Use:   "del <key>",
		Short: "delete one key, e.g. a stuck resync lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(cmd, func(c *kv.Client) error {
				return c.Delete(cmd.Context(), args[0])
			})
		},
	}
)

func registerKVCommands() {
	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(kvTypesCmd, kvKeysCmd, kvDelCmd)
}
