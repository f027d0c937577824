package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/docpipe/pkg/app"
	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/storage"
)

// withPipeline 构建流水线，执行 fn 后释放资源.
func withPipeline(cmd *cobra.Command, opts storage.Options, fn func(p *app.Pipeline) error) error {
	p, err := app.NewPipeline(cmd.Context(), configs.GetConfig(), opts)
	if err != nil {
		return err
	}
	defer p.Close()

	return fn(p)
}

var (
	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "run one reconciliation tick and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, storage.Options{}, func(p *app.Pipeline) error {
				report, err := p.Reconciler.Tick(cmd.Context())
				if err != nil {
					return err
				}

				return printJSON(cmd, report)
			})
		},
	}

	resyncCmd = &cobra.Command{
		Use:   "resync",
		Short: "request one corpus resync from the ingestion engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, storage.Options{SkipS3: true, SkipMQ: true}, func(p *app.Pipeline) error {
				res, err := p.Resyncer.Run(cmd.Context())
				if err != nil {
					return err
				}

				return printJSON(cmd, map[string]string{"result": string(res)})
			})
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status <owner> <document>",
		Short: "print the status view of one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, storage.Options{SkipS3: true, SkipMQ: true, SkipKV: true}, func(p *app.Pipeline) error {
				view, err := p.Status.GetStatus(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}

				return printJSON(cmd, view)
			})
		},
	}
)

func registerPipelineCommands() {
	rootCmd.AddCommand(reconcileCmd, resyncCmd, statusCmd)
}
