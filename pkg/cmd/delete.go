package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/docpipe/pkg/app"
	"github.com/yeisme/docpipe/pkg/internal/jobs"
	"github.com/yeisme/docpipe/pkg/internal/storage"
)

var deleteOpts = storage.Options{SkipMQ: true, SkipKV: true}

var (
	deleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "cascading deletion of owners and documents",
	}

	deleteOwnerCmd = &cobra.Command{
		Use:   "owner <owner>",
		Short: "delete every object, sidecar and record of an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, deleteOpts, func(p *app.Pipeline) error {
				report, err := p.Deletions.DeleteOwner(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return printJSON(cmd, report)
			})
		},
	}

	deleteDocCmd = &cobra.Command{
		Use:   "doc <owner> <document>",
		Short: "delete one document with its sidecars and record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, deleteOpts, func(p *app.Pipeline) error {
				report, err := p.Deletions.DeleteDocument(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}

				return printJSON(cmd, report)
			})
		},
	}

	deleteRetryCmd = &cobra.Command{
		Use:   "retry",
		Short: "resume unfinished deletions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, deleteOpts, func(p *app.Pipeline) error {
				n, err := p.Deletions.RetryPending(cmd.Context(), jobs.DeletionRetryBatch)
				if err != nil {
					return err
				}

				return printJSON(cmd, map[string]int{"completed": n})
			})
		},
	}
)

func registerDeleteCommands() {
	deleteCmd.AddCommand(deleteOwnerCmd, deleteDocCmd, deleteRetryCmd)
	rootCmd.AddCommand(deleteCmd)
}
