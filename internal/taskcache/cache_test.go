package taskcache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/maauso/seedance-studio/internal/ark"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockArkClient implements ark.Client for testing.
type mockArkClient struct {
	mock.Mock
}

func (m *mockArkClient) Submit(ctx context.Context, req ark.GenerationRequest) (ark.Submission, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ark.Submission), args.Error(1)
}

func (m *mockArkClient) Poll(ctx context.Context, taskID string) (ark.TaskStatus, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(ark.TaskStatus), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustStatus(t *testing.T, raw string) ark.TaskStatus {
	t.Helper()
	s, err := ark.ParseTaskStatus([]byte(raw))
	require.NoError(t, err)
	return s
}

func TestClient_TerminalStatusIsCached(t *testing.T) {
	ctx := context.Background()
	next := &mockArkClient{}
	succeeded := mustStatus(t, `{"id":"t1","status":"succeeded","content":{"video_url":"v"}}`)
	next.On("Poll", ctx, "t1").Return(succeeded, nil).Once()

	cache := NewMemoryCache()
	client := NewClient(next, cache, time.Minute, testLogger())

	first, err := client.Poll(ctx, "t1")
	require.NoError(t, err)
	second, err := client.Poll(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, ark.StatusSucceeded, second.Status)
	assert.Equal(t, string(first.Raw), string(second.Raw))
	url, err := second.Content.VideoURL()
	require.NoError(t, err)
	assert.Equal(t, "v", url)
	next.AssertNumberOfCalls(t, "Poll", 1)
}

func TestClient_NonTerminalStatusIsNotCached(t *testing.T) {
	ctx := context.Background()
	next := &mockArkClient{}
	running := mustStatus(t, `{"id":"t2","status":"running"}`)
	next.On("Poll", ctx, "t2").Return(running, nil).Twice()

	cache := NewMemoryCache()
	client := NewClient(next, cache, time.Minute, testLogger())

	_, _ = client.Poll(ctx, "t2")
	_, _ = client.Poll(ctx, "t2")

	assert.Equal(t, 0, cache.Len())
	next.AssertNumberOfCalls(t, "Poll", 2)
}

func TestClient_PollErrorPassesThrough(t *testing.T) {
	ctx := context.Background()
	next := &mockArkClient{}
	remoteErr := &ark.RemoteError{StatusCode: 404, Message: "task not found"}
	next.On("Poll", ctx, "missing").Return(ark.TaskStatus{}, remoteErr)

	client := NewClient(next, NewMemoryCache(), 0, testLogger())

	_, err := client.Poll(ctx, "missing")
	var re *ark.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "task not found", err.Error())
}

func TestClient_SubmitPassesThrough(t *testing.T) {
	ctx := context.Background()
	next := &mockArkClient{}
	req := ark.GenerationRequest{Prompt: "hello"}
	next.On("Submit", ctx, req).Return(ark.Submission{ID: "t3"}, nil)

	client := NewClient(next, NewMemoryCache(), 0, nil)

	sub, err := client.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "t3", sub.ID)
	assert.Equal(t, DefaultTTL, client.ttl)
}

// failingCache always errors, to prove cache trouble never fails a poll.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestClient_CacheFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	next := &mockArkClient{}
	failed := mustStatus(t, `{"id":"t4","status":"failed","error":{"message":"boom"}}`)
	next.On("Poll", ctx, "t4").Return(failed, nil)

	client := NewClient(next, failingCache{}, time.Minute, testLogger())

	status, err := client.Poll(ctx, "t4")
	require.NoError(t, err)
	assert.Equal(t, "boom", status.Error)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "t", []byte("payload"), time.Second))

	got, err := cache.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	now = now.Add(2 * time.Second)
	_, err = cache.Get(ctx, "t")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	raw := []byte("abc")
	require.NoError(t, cache.Set(ctx, "t", raw, time.Minute))
	raw[0] = 'x'

	got, err := cache.Get(ctx, "t")
	require.NoError(t, err)
	got[1] = 'y'

	again, _ := cache.Get(ctx, "t")
	assert.Equal(t, "abc", string(again))
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisCache_CloseReleasesClient(t *testing.T) {
	cache := &RedisCache{rdb: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})}

	require.NoError(t, cache.Close())

	_, err := cache.Get(context.Background(), "cgt-1")
	assert.ErrorIs(t, err, redis.ErrClosed)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "ark:task:cgt-1", key("cgt-1"))
}
