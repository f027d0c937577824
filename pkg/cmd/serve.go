package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/docpipe/pkg/app"
	"github.com/yeisme/docpipe/pkg/configs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP API, bus consumers and scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.NewApp(configs.GetConfig())
		if err != nil {
			return err
		}

		return a.Run(ctx)
	},
}

func registerServeCommand() {
	rootCmd.AddCommand(serveCmd)
}
