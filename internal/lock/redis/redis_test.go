package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-reconciler/internal/lock"
)

// fakeClient keeps keys in a map and emulates the release script.
type fakeClient struct {
	mu     sync.Mutex
	keys   map[string]string
	setErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{keys: make(map[string]string)}
}

func (f *fakeClient) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeClient) release(keys []string, args []any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeClient) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeClient) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeClient) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeClient) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeClient) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeClient) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func counterToken() func() (string, error) {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return strings.Repeat("t", n), nil
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeClient()
	locker := New(client, counterToken())

	lease, err := locker.Acquire(ctx, "catalog.example.com", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "catalog.example.com", time.Minute)
	require.ErrorIs(t, err, lock.ErrHeld)

	require.NoError(t, lease.Release(ctx))
	require.Empty(t, client.keys)

	again, err := locker.Acquire(ctx, "catalog.example.com", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestReleaseLeavesForeignLease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeClient()
	locker := New(client, counterToken())

	lease, err := locker.Acquire(ctx, "src", time.Minute)
	require.NoError(t, err)

	// Simulate expiry followed by another owner taking the key.
	client.keys[keyPrefix+"src"] = "someone-else"
	require.NoError(t, lease.Release(ctx))
	require.Equal(t, "someone-else", client.keys[keyPrefix+"src"])
}

func TestAcquireErrors(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.setErr = errors.New("connection refused")
	_, err := New(client, counterToken()).Acquire(context.Background(), "src", time.Minute)
	require.ErrorContains(t, err, "connection refused")
	require.False(t, errors.Is(err, lock.ErrHeld))

	failing := func() (string, error) { return "", errors.New("no entropy") }
	_, err = New(newFakeClient(), failing).Acquire(context.Background(), "src", time.Minute)
	require.ErrorContains(t, err, "lock token")
}

func TestNoopLocker(t *testing.T) {
	t.Parallel()

	lease, err := lock.Noop{}.Acquire(context.Background(), "src", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}
