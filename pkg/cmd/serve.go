package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/storyvault/pkg/app"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP API and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := app.NewApp(ctx, rt)
				if err != nil {
					return err
				}

				return a.Run(ctx)
			})
		},
	}

	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "consume enrichment tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), app.RunWorker)
		},
	}
)

// withRuntime 初始化运行时，收到 SIGINT/SIGTERM 后取消 ctx 并释放资源.
func withRuntime(parent context.Context, fn func(ctx context.Context, rt *app.Runtime) error) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		return err
	}

	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

	return fn(ctx, rt)
}

func registerServeCommands() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}
