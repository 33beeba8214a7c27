// cmd/historian/main.go pops entity events from the Redis queue and persists
// them to the configured database.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/explorers/internal/cache"
	"github.com/jason-s-yu/explorers/internal/config"
	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/history"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:           "explorers-historian",
		Short:         "Persist entity command outcomes from Redis to the database.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if batch > 0 {
				cfg.HistorianBatchSize = batch
			}
			if cfg.RedisAddr == "" {
				return errors.New("REDIS_ADDR is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "events per database write (overrides HISTORIAN_BATCH_SIZE)")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	logger := cfg.NewLogger()

	store, err := database.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer store.Close()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.EventQueue)
	if err != nil {
		return err
	}
	defer rdb.Close()

	history.NewHistorian(rdb, store, history.Options{
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlushDelay,
	}, logger).Run(ctx)
	return nil
}
