package broadcast

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/redis"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// newRedisBroadcaster 需要 DELEGATE_TEST_REDIS 指向可用的 redis，否则跳过
func newRedisBroadcaster(t *testing.T) *RedisBroadcaster {
	t.Helper()
	addr := os.Getenv("DELEGATE_TEST_REDIS")
	if addr == "" {
		t.Skip("DELEGATE_TEST_REDIS not set")
	}
	cli := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = cli.Close() })
	require.NoError(t, cli.Ping(context.Background()).Err())

	b := NewRedisBroadcaster()
	b.Redis = redis.NewWithClient(cli, "delegate-test-"+uuid.NewString())
	return b
}

func TestRedisBroadcastIsPerAccount(t *testing.T) {
	b := newRedisBroadcaster(t)
	ctx := context.Background()

	a1, err := b.Subscribe(ctx, "acc1")
	require.NoError(t, err)
	defer a1.Close()
	a2, err := b.Subscribe(ctx, "acc1")
	require.NoError(t, err)
	defer a2.Close()
	other, err := b.Subscribe(ctx, "acc2")
	require.NoError(t, err)
	defer other.Close()

	// Subscribe 返回时订阅已确认，立即发布不会丢
	require.NoError(t, b.Publish(ctx, "acc1", model.NewAbortEvent("acc1", "t1")))

	for _, s := range []Subscription{a1, a2} {
		ev := recv(t, s)
		assert.Equal(t, model.EVENT_ABORT, ev.Kind)
		require.NotNil(t, ev.Abort)
		assert.Equal(t, "t1", ev.Abort.DelegateTaskID)
	}
	select {
	case ev := <-other.C():
		t.Fatalf("other account received %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisBroadcastCloseEndsChannel(t *testing.T) {
	b := newRedisBroadcaster(t)
	s, err := b.Subscribe(context.Background(), "acc")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_ = s.Close()

	select {
	case _, ok := <-s.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after Close")
	}
}

func TestRedisBroadcastContextCancelEndsChannel(t *testing.T) {
	b := newRedisBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := b.Subscribe(ctx, "acc")
	require.NoError(t, err)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.C():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel not closed after cancel")
		}
	}
}

func TestRedisPumpRecoversAndCloses(t *testing.T) {
	s := &redisSub{ch: make(chan model.BroadcastEvent, 1), done: make(chan struct{})}
	msgs := make(chan *goredis.Message, 1)
	msgs <- nil
	go s.pump(context.Background(), "acc", msgs)

	select {
	case _, ok := <-s.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatalf("receive loop did not stop after panic")
	}
	select {
	case <-s.done:
	default:
		t.Fatalf("subscription not closed after panic")
	}
}
