package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/docpipe/pkg/configs"
	mq "github.com/yeisme/docpipe/pkg/internal/storage/mq"
	"github.com/yeisme/docpipe/pkg/queue"
)

var emitETag string

var (
	mqCmd = &cobra.Command{
		Use:   "mq",
		Short: "message bus commands",
	}

	mqTypesCmd = &cobra.Command{
		Use:     "types",
		Short:   "list compiled-in bus backends",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range mq.RegisteredTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	}

	mqTopicsCmd = &cobra.Command{
		Use:   "topics",
		Short: "print the configured pipeline topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, configs.GetConfig().Events)
		},
	}

	// mqEmitCmd 重放一条丢失的桶通知.
	mqEmitCmd = &cobra.Command{
		Use:   "emit <bucket> <key>",
		Short: "publish an object-created event for an existing object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.GetConfig()

			client, err := mq.New(cmd.Context(), cfg.MQ, false)
			if err != nil {
				return err
			}
			defer client.Close()

			msg, err := queue.NewWatermillMessage(cfg.Events.ObjectCreatedTopic, queue.ObjectCreatedPayload{
				Bucket: args[0],
				Key:    args[1],
				ETag:   emitETag,
			}, queue.WithProducer(queue.Producer+"-cli"))
			if err != nil {
				return err
			}

			if err := client.Publish(cmd.Context(), cfg.Events.ObjectCreatedTopic, msg); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), msg.UUID)

			return nil
		},
	}
)

func registerMQCommands() {
	mqEmitCmd.Flags().StringVar(&emitETag, "etag", "", "object version to report, empty means unknown")
	rootCmd.AddCommand(mqCmd)
	mqCmd.AddCommand(mqTypesCmd, mqTopicsCmd, mqEmitCmd)
}
