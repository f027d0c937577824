// Package cmd 定义 docpipe 命令行：serve 运行完整服务，其余子命令执行一次性运维操作.
package cmd

import (
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/log"
)

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:           "docpipe",
		Short:         "Document ingestion pipeline: trigger, reconcile and resync",
		Version:       configs.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := configs.InitConfig(configPath); err != nil {
				return err
			}

			// 子命令通过 GetConfig 读取，覆盖要写回全局实例
			cfg := configs.GetConfig()
			if debug {
				cfg.Server.Debug = true
				cfg.Log.Level = "debug"
			}

			log.Init(cfg.Log, debug)

			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "config file or directory")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	registerServeCommand()
	registerPipelineCommands()
	registerDeleteCommands()
	registerDBCommands()
	registerMQCommands()
	registerKVCommands()
	registerConfigsCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// printJSON 以缩进 JSON 输出结果.
func printJSON(cmd *cobra.Command, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(append(b, '\n'))

	return err
}
