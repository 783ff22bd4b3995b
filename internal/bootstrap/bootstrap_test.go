package bootstrap

import (
	"context"
	"testing"

	"MsgVault/config"
	"MsgVault/internal/backend"
	"MsgVault/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDrivers(t *testing.T) {
	config.AppConfig.StagingDriver = "memory"
	config.AppConfig.StagingBucket = "staging"
	config.AppConfig.BackendDriver = "memory"

	s, err := Staging(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, s)

	b, err := Backend(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &backend.MemoryBackend{}, b)
	assert.True(t, b.Ready())
}

func TestUnknownDriver(t *testing.T) {
	config.AppConfig.BackendDriver = "carrier-pigeon"
	_, err := Backend(context.Background())
	assert.Error(t, err)
}
