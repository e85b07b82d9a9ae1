package stitch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/seedance-studio/internal/media"
	"github.com/maauso/seedance-studio/internal/storage"
)

// MockConcatenator is a mock implementation of media.Concatenator.
type MockConcatenator struct {
	mock.Mock
}

func (m *MockConcatenator) Concatenate(ctx context.Context, orderedPaths []string, output string) error {
	args := m.Called(ctx, orderedPaths, output)
	return args.Error(0)
}

// joinFiles writes the inputs back to back, standing in for ffmpeg.
func joinFiles(args mock.Arguments) {
	paths := args.Get(1).([]string)
	output := args.Get(2).(string)

	var sb strings.Builder
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			panic(err)
		}
		sb.Write(data)
	}
	if err := os.WriteFile(output, []byte(sb.String()), 0600); err != nil {
		panic(err)
	}
}

type fixedProber float64

func (p fixedProber) Duration(context.Context, string) (float64, error) {
	return float64(p), nil
}

func newVideoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.mp4":
			w.WriteHeader(http.StatusNotFound)
		case "/slow.mp4":
			time.Sleep(50 * time.Millisecond)
			_, _ = io.WriteString(w, "[slow]")
		default:
			_, _ = io.WriteString(w, "["+strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".mp4")+"]")
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestService(t *testing.T, concat media.Concatenator, opts ...Option) (*Service, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	clock := func() time.Time { return time.UnixMilli(1700000000000) }
	opts = append([]Option{
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewService(store, concat, opts...), store
}

func TestStitch_RequiresTwoURLs(t *testing.T) {
	concat := new(MockConcatenator)
	svc, _ := newTestService(t, concat)

	for _, urls := range [][]string{nil, {"http://example.com/a.mp4"}} {
		_, err := svc.Stitch(context.Background(), urls)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "At least 2 video URLs are required", vErr.Message)
	}
	concat.AssertNotCalled(t, "Concatenate", mock.Anything, mock.Anything, mock.Anything)
}

func TestStitch_JoinsInOrder(t *testing.T) {
	server := newVideoServer(t)
	concat := new(MockConcatenator)
	concat.On("Concatenate", mock.Anything, mock.Anything, mock.Anything).Run(joinFiles).Return(nil)

	svc, store := newTestService(t, concat, WithProber(fixedProber(10)))

	urls := []string{server.URL + "/slow.mp4", server.URL + "/b.mp4", server.URL + "/c.mp4"}
	result, err := svc.Stitch(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, "/temp/stitched_1700000000000.mp4", result.URL)
	assert.Equal(t, filepath.Join(store.TempDir(), "stitched_1700000000000.mp4"), result.Path)
	assert.Equal(t, 3, result.Segments)
	assert.Equal(t, 10.0, result.DurationSec)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, "[slow][b][c]", string(data))

	// Only the output remains; the workspace is gone.
	entries, err := os.ReadDir(store.TempDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "stitched_1700000000000.mp4", entries[0].Name())
}

func TestStitch_FetchFailure(t *testing.T) {
	server := newVideoServer(t)
	concat := new(MockConcatenator)
	svc, store := newTestService(t, concat)

	_, err := svc.Stitch(context.Background(), []string{server.URL + "/a.mp4", server.URL + "/missing.mp4"})

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, 1, ioErr.Index)
	assert.Contains(t, ioErr.Error(), "status 404")
	concat.AssertNotCalled(t, "Concatenate", mock.Anything, mock.Anything, mock.Anything)

	entries, err := os.ReadDir(store.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStitch_ConcatFailureRemovesPartialOutput(t *testing.T) {
	server := newVideoServer(t)
	procErr := &media.ProcessError{Stderr: "Non-monotonous DTS", Err: errors.New("exit status 1")}

	concat := new(MockConcatenator)
	concat.On("Concatenate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_ = os.WriteFile(args.Get(2).(string), []byte("partial"), 0600)
		}).
		Return(procErr)

	svc, store := newTestService(t, concat)

	_, err := svc.Stitch(context.Background(), []string{server.URL + "/a.mp4", server.URL + "/b.mp4"})

	var got *media.ProcessError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "Non-monotonous DTS", got.Stderr)

	entries, err := os.ReadDir(store.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStitch_Cancelled(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "x")
	}))
	defer server.Close()

	concat := new(MockConcatenator)
	svc, _ := newTestService(t, concat)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Stitch(ctx, []string{server.URL + "/a.mp4", server.URL + "/b.mp4"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	concat.AssertNotCalled(t, "Concatenate", mock.Anything, mock.Anything, mock.Anything)
}

func TestStitch_PublishesToS3(t *testing.T) {
	var uploaded atomic.Bool
	s3Server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/stitched_1700000000000.mp4") {
			uploaded.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer s3Server.Close()

	store, err := storage.NewS3Storage(t.TempDir(), storage.S3Config{
		Bucket:          "videos",
		Region:          "us-east-1",
		Endpoint:        s3Server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	require.NoError(t, err)

	server := newVideoServer(t)
	concat := new(MockConcatenator)
	concat.On("Concatenate", mock.Anything, mock.Anything, mock.Anything).Run(joinFiles).Return(nil)

	svc := NewService(store, concat,
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	result, err := svc.Stitch(context.Background(), []string{server.URL + "/a.mp4", server.URL + "/b.mp4"})
	require.NoError(t, err)
	assert.True(t, uploaded.Load())
	assert.Equal(t, "https://videos.s3.us-east-1.amazonaws.com/stitched_1700000000000.mp4", result.URL)
}

func TestHTTPFetcher_EmptyURL(t *testing.T) {
	_, err := NewHTTPFetcher(nil).Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

// mapFetcher serves segment bodies from memory.
type mapFetcher map[string]string

func (f mapFetcher) Fetch(_ context.Context, url string) (io.ReadCloser, error) {
	body, ok := f[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestStitch_UsesConfiguredFetcher(t *testing.T) {
	concat := new(MockConcatenator)
	concat.On("Concatenate", mock.Anything, mock.Anything, mock.Anything).Run(joinFiles).Return(nil)

	fetcher := mapFetcher{"mem://a": "[a]", "mem://b": "[b]"}
	svc, _ := newTestService(t, concat, WithFetcher(fetcher))

	result, err := svc.Stitch(context.Background(), []string{"mem://a", "mem://b"})
	require.NoError(t, err)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, "[a][b]", string(data))
}
