//go:build integration

package progress

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisTrackerAgainstContainer(t *testing.T) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	tr, err := NewRedisTracker(ctx, RedisConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port()), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	require.NoError(t, tr.Update(ctx, Progress{BatchID: "b1", Index: 1, Total: 3, FileName: "a.pdf", Running: true}))
	p, ok, err := tr.Get(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a.pdf", p.FileName)

	require.NoError(t, tr.Clear(ctx, "b1"))
	_, ok, err = tr.Get(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, ok)
}
