package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	id := ID(common.HexToHash("0x01"), 7)
	assert.Equal(t, common.HexToHash("0x01").Hex()+":7", id)
}

func TestNopNeverSeen(t *testing.T) {
	var d Nop
	for i := 0; i < 3; i++ {
		seen, err := d.Seen(context.Background(), "a")
		require.NoError(t, err)
		assert.False(t, seen)
	}
}

func TestMemoryDedupe_FirstSeenThenDuplicate(t *testing.T) {
	m := NewMemoryDedupe(16, time.Hour)
	ctx := context.Background()

	seen, err := m.Seen(ctx, "tx:1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = m.Seen(ctx, "tx:1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryDedupe_Bounded(t *testing.T) {
	m := NewMemoryDedupe(2, 0)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		seen, err := m.Seen(ctx, id)
		require.NoError(t, err)
		assert.False(t, seen)
	}
	assert.Equal(t, 2, m.Len())

	// "a" was evicted.
	seen, err := m.Seen(ctx, "a")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryDedupe_Concurrent(t *testing.T) {
	m := NewMemoryDedupe(16, time.Hour)
	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen, err := m.Seen(context.Background(), "same")
			if err == nil && !seen {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisDedupe_FirstSeenThenDuplicate(t *testing.T) {
	mr, client := setupRedis(t)
	d, err := NewRedisDedupe(client, "test:", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "tx:1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.Seen(ctx, "tx:1")
	require.NoError(t, err)
	assert.True(t, seen)

	assert.True(t, mr.Exists("test:tx:1"))
	assert.Equal(t, time.Minute, mr.TTL("test:tx:1"))
}

func TestRedisDedupe_Expires(t *testing.T) {
	mr, client := setupRedis(t)
	d, err := NewRedisDedupe(client, "", time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.Seen(ctx, "tx:2")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	seen, err := d.Seen(ctx, "tx:2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDedupe_Error(t *testing.T) {
	mr, client := setupRedis(t)
	d, err := NewRedisDedupe(client, "", time.Minute)
	require.NoError(t, err)
	mr.Close()

	_, err = d.Seen(context.Background(), "tx:3")
	assert.Error(t, err)
}

func TestNewRedisDedupe_RequiresClient(t *testing.T) {
	_, err := NewRedisDedupe(nil, "", time.Minute)
	assert.Error(t, err)
}
