package intake

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/testutil"
)

func redisQueueConfig(addr, consumer string) config.QueueConfig {
	return config.QueueConfig{
		Driver:         "redis",
		RedisAddr:      addr,
		Stream:         "oppgjor.test",
		Group:          "oppgjorsrapporter",
		Consumer:       consumer,
		Source:         "refusjon",
		ReceiveTimeout: 50 * time.Millisecond,
		ClaimIdle:      100 * time.Millisecond,
	}
}

func TestRedisConsumer(t *testing.T) {
	addr := testutil.StartRedis(t)
	ctx := context.Background()

	c := NewRedisConsumer(redisQueueConfig(addr, "worker-1"), slog.Default())
	t.Cleanup(func() { _ = c.Close() })

	t.Run("empty stream times out", func(t *testing.T) {
		msg, err := c.Receive(ctx)
		require.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("rollback redelivers to the same consumer", func(t *testing.T) {
		id, err := c.Publish(ctx, "", []byte(`{"n":1}`))
		require.NoError(t, err)

		msg, err := c.Receive(ctx)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, "refusjon", msg.Source)
		assert.JSONEq(t, `{"n":1}`, string(msg.Body))
		require.NoError(t, c.Rollback(ctx))

		again, err := c.Receive(ctx)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, id, again.ID)
		require.NoError(t, c.Commit(ctx))

		msg, err = c.Receive(ctx)
		require.NoError(t, err)
		assert.Nil(t, msg, "committed entries are gone")
	})

	t.Run("idle entries of a dead consumer are claimed", func(t *testing.T) {
		id, err := c.Publish(ctx, "other", []byte(`{"n":2}`))
		require.NoError(t, err)
		msg, err := c.Receive(ctx)
		require.NoError(t, err)
		require.NotNil(t, msg)
		// worker-1 dies without committing.

		c2 := NewRedisConsumer(redisQueueConfig(addr, "worker-2"), slog.Default())
		t.Cleanup(func() { _ = c2.Close() })

		require.Eventually(t, func() bool {
			got, err := c2.Receive(ctx)
			if err != nil || got == nil {
				_ = c2.Rollback(ctx)
				return false
			}
			return got.ID == id && got.Source == "other"
		}, 5*time.Second, 50*time.Millisecond)
		require.NoError(t, c2.Commit(ctx))

		require.NoError(t, c.Rollback(ctx))
		msg, err = c.Receive(ctx)
		require.NoError(t, err)
		assert.Nil(t, msg)
	})
}

func TestRedisConsumer_ReconnectsAfterFailure(t *testing.T) {
	c := NewRedisConsumer(redisQueueConfig("127.0.0.1:1", "worker-1"), slog.Default())

	_, err := c.Receive(context.Background())
	require.Error(t, err)
	require.NoError(t, c.Rollback(context.Background()))
	assert.Nil(t, c.client, "client is dropped and recreated on the next receive")
}
