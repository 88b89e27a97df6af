package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gorm.io/gorm"

	server "github.com/prism/prism/internal"
	"github.com/prism/prism/internal/config"
	"github.com/prism/prism/internal/database"
	"github.com/prism/prism/pkg/clog"
	"github.com/prism/prism/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, env); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, env *config.Env) error {
	store, err := newStorage(ctx, &env.StorageEnv)
	if err != nil {
		return err
	}

	var stores *server.Stores
	switch env.TaskStore {
	case config.TaskStorePostgres:
		var db *gorm.DB
		db, err = database.Open(ctx, env.DatabaseDSN)
		if err != nil {
			return err
		}
		defer func() {
			if err := database.Close(db); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}()
		stores = server.NewGormStores(db, store)
	default:
		stores = server.NewYAMLStores(store)
	}
	slog.Info("stores ready", "storage", env.StorageEnv.Type, "task_store", env.TaskStore)

	app := server.NewApp(env, stores)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		app.Dispatcher.Start(ctx)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		if err := app.Server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return app.Server.Shutdown(shutdownCtx)
	})
	return p.Wait()
}

func newStorage(ctx context.Context, env *config.StorageEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region, env.S3Endpoint)
	default:
		return storage.NewLocalStorage(env.BaseDir)
	}
}
