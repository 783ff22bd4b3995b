package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MsgVault/config"
	"MsgVault/internal/bootstrap"
	"MsgVault/internal/handler"
	"MsgVault/internal/mq"
	"MsgVault/internal/repo"
	"MsgVault/internal/service"
	"MsgVault/internal/task"
	"MsgVault/internal/transfer"
	"MsgVault/router"
	"MsgVault/utils"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()
	utils.InitLogger(config.AppConfig.LogLevel, config.AppConfig.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.WithError(err).Fatal("msgvault stopped")
	}
}

func run(ctx context.Context) error {
	db, err := repo.InitDatabase()
	if err != nil {
		return err
	}

	staging, err := bootstrap.Staging(ctx)
	if err != nil {
		return err
	}
	b, err := bootstrap.Backend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	files := repo.NewFileRepo(db)
	logs := repo.NewTransferLogRepo(db)
	tracker := transfer.NewTracker(logs)
	hub := transfer.NewHub(64)

	var rdb *redis.Client
	if config.AppConfig.RedisEnabled {
		rdb, err = repo.InitRedis(ctx)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	var cache utils.Cache = utils.NewMemoryCache()
	deps := service.Deps{
		Backend:         b,
		Files:           files,
		Chunks:          repo.NewChunkRepo(db),
		Folders:         repo.NewFolderRepo(db),
		Pending:         repo.NewPendingRepo(db),
		Telemetry:       tracker,
		Config:          config.TransferConfigInstance,
		RootContainerID: config.AppConfig.BackendRootID,
		Staging:         staging,
		StagingBucket:   config.AppConfig.StagingBucket,
	}
	if rdb != nil {
		cache = utils.NewRedisCache(rdb)
		deps.Locker = repo.NewRedisLocker(rdb, 30*time.Second)
		deps.ShareExpiry = repo.NewShareExpiry(rdb)
	}
	deps.Settings = service.NewSettingsProvider(repo.NewSettingsRepo(db), cache, config.TransferConfigInstance)

	if config.AppConfig.RabbitMQEnabled {
		publisher := mq.NewPublisher(config.AppConfig.RabbitMQURL)
		defer publisher.Close()
		deps.Orphans = task.NewQueueOrphanReporter(publisher)
	}

	h := &handler.Handler{
		Uploader:   service.NewUploader(deps),
		Downloader: service.NewDownloader(deps),
		Deleter:    service.NewDeleter(deps),
		Sharer:     service.NewSharer(deps),
		Folders:    service.NewFolders(deps),
		Settings:   deps.Settings,
		Logs:       logs,
		Active:     tracker,
		Hub:        hub,
	}
	srv := &http.Server{
		Addr:    config.AppConfig.HTTPAddr,
		Handler: router.InitRouter(h),
	}

	g, gctx := errgroup.WithContext(ctx)

	// With Redis, events fan out through pub/sub so every instance's hub sees them.
	var pub transfer.Publisher = hub
	if rdb != nil {
		pub = transfer.NewRedisPublisher(rdb)
		g.Go(func() error { return transfer.NewRedisRelay(rdb, hub).Run(gctx) })

		if err := repo.EnableKeyspaceNotifications(ctx, rdb); err != nil {
			logrus.WithError(err).Warn("enable redis keyspace notifications failed")
		} else {
			ready := make(chan struct{})
			g.Go(func() error { return repo.ListenRedisExpired(gctx, rdb, files, ready) })
			select {
			case <-ready:
			case <-gctx.Done():
			}
		}
	}
	g.Go(func() error { return transfer.NewBroadcaster(tracker.Events(), pub).Run(gctx) })

	g.Go(func() error {
		logrus.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
