package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinIOConfigEnabled(t *testing.T) {
	var nilCfg *MinIOConfig
	require.False(t, nilCfg.Enabled())
	require.False(t, (&MinIOConfig{}).Enabled())
	require.True(t, (&MinIOConfig{Endpoint: "localhost:9000"}).Enabled())
}

func TestNewMinIOStorageRequiresEndpoint(t *testing.T) {
	_, err := NewMinIOStorage(context.Background(), &MinIOConfig{Bucket: "b"})
	require.Error(t, err)
}
