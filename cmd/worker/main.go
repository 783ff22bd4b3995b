package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"MsgVault/config"
	"MsgVault/internal/bootstrap"
	"MsgVault/internal/mq"
	"MsgVault/internal/repo"
	"MsgVault/internal/service"
	"MsgVault/internal/worker"
	"MsgVault/utils"

	"github.com/sirupsen/logrus"
)

func main() {
	config.InitConfig()
	utils.InitLogger(config.AppConfig.LogLevel, config.AppConfig.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.InitDatabase()
	if err != nil {
		logrus.WithError(err).Fatal("init database failed")
	}
	b, err := bootstrap.Backend(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("init backend failed")
	}
	defer b.Close()

	client, err := mq.Dial(config.AppConfig.RabbitMQURL)
	if err != nil {
		logrus.WithError(err).Fatal("dial rabbitmq failed")
	}
	defer client.Close()

	rec := service.NewReconciler(b, repo.NewFileRepo(db))
	logrus.Info("reconcile worker started")
	if err := worker.RunReconcileWorker(ctx, client, rec, worker.OptionsFromConfig(), config.AppConfig.RabbitMQPrefetch); err != nil {
		logrus.WithError(err).Error("reconcile worker stopped")
	}
}
