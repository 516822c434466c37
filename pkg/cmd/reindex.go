package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/storyvault/pkg/app"
	"github.com/yeisme/storyvault/pkg/internal/index"
	"github.com/yeisme/storyvault/pkg/internal/service"
)

var (
	reindexTemplate string

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "rebuild search indexes from the document store",
		Long:  "rebuild one template's index with --template, or every template when omitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ctx = rt.Context(ctx)
				svc := service.NewTemplateService(ctx)

				var (
					reports []index.ReindexReport
					err     error
				)

				if reindexTemplate != "" {
					var r *index.ReindexReport
					if r, err = svc.ReindexTemplate(ctx, reindexTemplate); err == nil {
						reports = append(reports, *r)
					}
				} else {
					reports, err = svc.ReindexAll(ctx)
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				for _, r := range reports {
					if eerr := enc.Encode(r); eerr != nil {
						return eerr
					}
				}

				if err != nil {
					return fmt.Errorf("reindex: %w", err)
				}

				return nil
			})
		},
	}
)

func registerReindexCommands() {
	reindexCmd.Flags().StringVarP(&reindexTemplate, "template", "t", "", "template id")
	rootCmd.AddCommand(reindexCmd)
}
