// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/explorers/internal/auth"
	"github.com/jason-s-yu/explorers/internal/cache"
	"github.com/jason-s-yu/explorers/internal/catalog"
	"github.com/jason-s-yu/explorers/internal/config"
	"github.com/jason-s-yu/explorers/internal/database"
	"github.com/jason-s-yu/explorers/internal/entities"
	"github.com/jason-s-yu/explorers/internal/handlers"
	"github.com/jason-s-yu/explorers/internal/history"
	"github.com/jason-s-yu/explorers/internal/models"
	"github.com/jason-s-yu/explorers/internal/services"
	"github.com/jason-s-yu/explorers/internal/telemetry"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const releaseVersion = "0.1.0"

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	var addr, driver string

	cmd := &cobra.Command{
		Use:           "explorers",
		Short:         "Room and entity server for the explorers party games.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if driver != "" {
				cfg.DBDriver = driver
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides EXPLORERS_ADDR)")
	cmd.Flags().StringVar(&driver, "db-driver", "", "memory, sqlite or postgres (overrides EXPLORERS_DB_DRIVER)")
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return cmd
}

// eventPipe is the queue between the recorder and the historian.
type eventPipe interface {
	history.Publisher
	history.Queue
}

func run(ctx context.Context, cfg config.Config) error {
	logger := cfg.NewLogger()
	instanceID := models.NewSnowflakeID()

	shutdownTracing, err := telemetry.Setup(ctx, "explorers", instanceID, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.WithError(err).Warn("tracing shutdown")
		}
	}()

	store, err := database.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer store.Close()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			return err
		}
	}

	seed, err := cfg.Seed()
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(seed, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return err
	}
	provider := auth.NewProvider(store, issuer, auth.DefaultParams, logger)

	var (
		chat services.ChatStore
		pipe eventPipe
	)
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.EventQueue)
		if err != nil {
			return err
		}
		defer rdb.Close()
		chat, pipe = rdb, rdb
	} else {
		logger.Warn("REDIS_ADDR not set, chat history and entity events stay in memory")
		chat, pipe = cache.NewMemoryChat(), cache.NewMemoryQueue(4096)
	}

	group, gctx := errgroup.WithContext(ctx)

	// The in-process historian outlives the recorder so the recorder's final
	// drain still reaches the store.
	histCtx, stopHistorian := context.WithCancel(context.Background())
	defer stopHistorian()

	recorder := history.NewRecorder(pipe, 4096, logger)
	group.Go(func() error {
		recorder.Run(gctx)
		stopHistorian()
		return nil
	})
	if cfg.RedisAddr == "" {
		// Nothing else drains an in-memory queue.
		hist := history.NewHistorian(pipe, store, history.Options{
			BatchSize:  cfg.HistorianBatchSize,
			FlushDelay: cfg.HistorianFlushDelay,
		}, logger)
		group.Go(func() error {
			hist.Run(histCtx)
			return nil
		})
	}

	mgr := entities.NewManager(entities.Config{
		Auth:        provider,
		Rooms:       store,
		Chat:        chat,
		Catalog:     cat,
		Events:      recorder,
		Logger:      logger,
		InstanceID:  instanceID,
		ChatHistory: cfg.ChatHistory,
	})
	defer mgr.Close()

	srv := &handlers.Server{
		Manager:        mgr,
		Rooms:          store,
		Chat:           chat,
		Accounts:       provider,
		Catalog:        cat,
		Logger:         logger,
		PublicURL:      cfg.PublicURL,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":       cfg.Addr,
			"db":         cfg.DBDriver,
			"instanceId": instanceID,
		}).Info("explorers server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return group.Wait()
}
