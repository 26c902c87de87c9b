package util

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestDeduper(t *testing.T) (*Deduper, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDeduper(rdb, time.Hour, nil), mr
}

func TestDeduper_SeenAfterMark(t *testing.T) {
	d, mr := newTestDeduper(t)
	ctx := context.Background()

	assert.False(t, d.Seen(ctx, "ingest", "1:<a@b>"))
	assert.False(t, d.Seen(ctx, "ingest", "1:<a@b>"), "checking alone must not mark")

	d.Mark(ctx, "ingest", "1:<a@b>")
	assert.True(t, d.Seen(ctx, "ingest", "1:<a@b>"))
	assert.False(t, d.Seen(ctx, "ingest", "2:<a@b>"))

	assert.True(t, mr.Exists("dedup:ingest:1:<a@b>"))
	assert.Equal(t, time.Hour, mr.TTL("dedup:ingest:1:<a@b>"))
}

func TestDeduper_MarkExpires(t *testing.T) {
	d, mr := newTestDeduper(t)
	ctx := context.Background()

	d.Mark(ctx, "ingest", "k")
	mr.FastForward(time.Hour + time.Second)
	assert.False(t, d.Seen(ctx, "ingest", "k"))
}

func TestDeduper_RedisDownAllowsProcessing(t *testing.T) {
	d, mr := newTestDeduper(t)
	mr.Close()

	d.Mark(context.Background(), "ingest", "k")
	assert.False(t, d.Seen(context.Background(), "ingest", "k"))
}
