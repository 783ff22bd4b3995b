// Package bootstrap builds the storage backend and staging store from AppConfig.
package bootstrap

import (
	"context"
	"fmt"

	"MsgVault/config"
	"MsgVault/internal/backend"
	"MsgVault/internal/storage"

	"github.com/sirupsen/logrus"
)

func minioStore() (*storage.MinioStore, error) {
	client, err := storage.NewMinioClient(storage.MinioConfig{
		Host:     config.AppConfig.MinioHost,
		Port:     config.AppConfig.MinioPort,
		Username: config.AppConfig.MinioUsername,
		Password: config.AppConfig.MinioPassword,
		UseSSL:   config.AppConfig.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewMinioStore(client), nil
}

// Staging returns the store that holds uploads suspended on a conflict.
func Staging(ctx context.Context) (storage.Store, error) {
	var store storage.Store
	switch config.AppConfig.StagingDriver {
	case "memory":
		store = storage.NewMemoryStore()
	case "minio", "":
		s, err := minioStore()
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown STAGING_DRIVER %q", config.AppConfig.StagingDriver)
	}
	if err := store.EnsureBucket(ctx, config.AppConfig.StagingBucket); err != nil {
		return nil, fmt.Errorf("staging bucket: %w", err)
	}
	logrus.WithField("driver", config.AppConfig.StagingDriver).Info("init staging store success")
	return store, nil
}

// Backend builds and connects the configured storage backend.
func Backend(ctx context.Context) (backend.Backend, error) {
	var b backend.Backend
	switch config.AppConfig.BackendDriver {
	case "rest", "":
		b = backend.NewRESTBackend(backend.RESTConfig{
			BaseURL: config.AppConfig.BackendBaseURL,
			Token:   config.AppConfig.BackendToken,
			Rate:    config.AppConfig.BackendRate,
			Burst:   config.AppConfig.BackendBurst,
			Timeout: config.AppConfig.BackendHTTPWait,
		})
	case "minio":
		s, err := minioStore()
		if err != nil {
			return nil, err
		}
		b = backend.NewObjectBackend(s, config.AppConfig.BackendBucket)
	case "memory":
		b = backend.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown BACKEND_DRIVER %q", config.AppConfig.BackendDriver)
	}
	if err := b.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect backend: %w", err)
	}
	logrus.WithField("driver", config.AppConfig.BackendDriver).Info("backend connected")
	return b, nil
}
