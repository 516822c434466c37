package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/storyvault/pkg/app"
	"github.com/yeisme/storyvault/pkg/internal/lock"
	"github.com/yeisme/storyvault/pkg/internal/storage/db"
	"github.com/yeisme/storyvault/pkg/internal/storage/kv"
	"github.com/yeisme/storyvault/pkg/internal/storage/mq"
)

// backend 一类可插拔存储，ls 列出编译进二进制的实现.
type backend struct {
	use     string
	short   string
	aliases []string
	types   func() []string
	extra   []*cobra.Command
}

var backends = []backend{
	{use: "db", short: "document store backends", types: func() []string { return names(db.Dialects()) }},
	{use: "kv", short: "lock and cache store backends", aliases: []string{"keyvalue"}, types: func() []string { return names(kv.Types()) }, extra: []*cobra.Command{kvLocksCmd, kvLockCmd, kvUnlockCmd}},
	{use: "mq", short: "task queue backends", aliases: []string{"messagequeue"}, types: func() []string { return names(mq.Types()) }},
}

func names[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = string(t)
	}

	return out
}

func (b backend) command() *cobra.Command {
	parent := &cobra.Command{Use: b.use, Short: b.short, Aliases: b.aliases}

	parent.AddCommand(&cobra.Command{
		Use:     "ls",
		Short:   "list registered " + b.use + " types",
		Aliases: []string{"list", "l"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, t := range b.types() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
		},
	})

	parent.AddCommand(b.extra...)

	return parent
}

// lockerCmd 打开运行时并取出 Locker.
func lockerCmd(cmd *cobra.Command, fn func(ctx context.Context, rt *app.Runtime, l *lock.Locker) error) error {
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
		if rt.Deps.Locker == nil {
			return errors.New("no lock store configured")
		}

		return fn(ctx, rt, rt.Deps.Locker)
	})
}

// kvLocksCmd 列出当前持有的锁.
var kvLocksCmd = &cobra.Command{
	Use:   "locks",
	Short: "list record, mailbox and job locks currently held",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return lockerCmd(cmd, func(ctx context.Context, _ *app.Runtime, l *lock.Locker) error {
			held, err := l.Held(ctx)
			if err != nil {
				return err
			}

			for _, name := range held {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		})
	},
}

var lockTTL time.Duration

// kvLockCmd 手动占用一把锁，例如在维护期间挡住某个邮箱的轮询.
var kvLockCmd = &cobra.Command{
	Use:   "lock <name>",
	Short: "acquire a lock such as mailbox:{id}; ttl defaults by prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockerCmd(cmd, func(ctx context.Context, rt *app.Runtime, l *lock.Locker) error {
			ttl := lockTTL
			if ttl <= 0 {
				e := rt.Config.Enrichment
				ttl = lock.TTLs{Record: e.LockTTL(), Mailbox: e.MailboxLockTTL(), Job: e.JobLockTTL()}.For(args[0])
			}

			ok, err := l.Acquire(ctx, args[0], ttl)
			if err != nil {
				return err
			}

			if !ok {
				return fmt.Errorf("%s is already held", args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s held for %s\n", args[0], ttl)

			return nil
		})
	},
}

// kvUnlockCmd 释放卡住的锁.
var kvUnlockCmd = &cobra.Command{
	Use:   "unlock <name>",
	Short: "release a lock regardless of holder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lockerCmd(cmd, func(ctx context.Context, _ *app.Runtime, l *lock.Locker) error {
			return l.Release(ctx, args[0])
		})
	},
}

func registerBackendCommands() {
	kvLockCmd.Flags().DurationVar(&lockTTL, "ttl", 0, "lock ttl (default by name prefix from enrichment config)")

	for _, b := range backends {
		rootCmd.AddCommand(b.command())
	}
}
