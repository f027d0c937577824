package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/docpipe/pkg/configs"
)

var showSecrets bool

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "inspect the effective configuration",
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the config file in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			file := ""
			if v := configs.GetViper(); v != nil {
				file = v.ConfigFileUsed()
			}

			if file == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(defaults and DOCPIPE_* environment only)")
				return
			}

			fmt.Fprintln(cmd.OutOrStdout(), file)
		},
	}

	// configShowCmd 默认隐去密码与令牌.
	configShowCmd = &cobra.Command{
		Use:     "show",
		Short:   "print the merged configuration as JSON",
		Aliases: []string{"debug"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *configs.GetConfig()
			if !showSecrets {
				cfg = cfg.Redacted()
			}

			return printJSON(cmd, cfg)
		},
	}
)

func registerConfigsCommands() {
	configShowCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print passwords and tokens verbatim")
	configCmd.AddCommand(configPathCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
