package acquire

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recorte/internal/strategy"
)

// fakeExtractor writes size bytes per attempt, or fails with errs[attempt].
type fakeExtractor struct {
	sizes  map[int]int
	errs   map[int]error
	title  string
	calls  []strategy.Config
	urls   []string
	header []string
}

func (f *fakeExtractor) Extract(ctx context.Context, url string, cfg strategy.Config, destPrefix string) (string, string, error) {
	f.calls = append(f.calls, cfg)
	f.urls = append(f.urls, url)
	f.header = append(f.header, cfg.Headers.Get("User-Agent"))

	if err := f.errs[cfg.Attempt]; err != nil {
		// A failing extractor may still leave a partial file behind.
		_ = os.WriteFile(destPrefix+".part", []byte("partial"), 0644)
		return "", "", err
	}
	path := destPrefix + ".m4a"
	if err := os.WriteFile(path, make([]byte, f.sizes[cfg.Attempt]), 0644); err != nil {
		return "", "", err
	}
	return path, f.title, nil
}

type fakeResolver struct {
	alt string
	ok  bool
}

func (r fakeResolver) Resolve(ctx context.Context, url string) (string, bool) {
	return r.alt, r.ok
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestPipeline(t *testing.T, ext Extractor, opts Options) (*Pipeline, *sleepRecorder) {
	t.Helper()
	gen, err := strategy.NewGenerator(nil, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)

	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	p := NewPipeline(ext, gen, opts)
	rec := &sleepRecorder{}
	p.sleep = rec.sleep
	return p, rec
}

func tempFiles(t *testing.T, dir, jobID string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "temp_"+jobID) {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestAcquire_FirstAttemptSucceeds(t *testing.T) {
	ext := &fakeExtractor{sizes: map[int]int{0: 2048}, title: "Some Song"}
	p, rec := newTestPipeline(t, ext, Options{Attempts: 4, MinBytes: 1024, BaseDelay: time.Second})

	res, err := p.Acquire(context.Background(), "job1", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, "Some Song", res.Title)
	assert.EqualValues(t, 2048, res.Size)
	assert.Equal(t, 0, res.Attempt)
	assert.Equal(t, "temp_job1_0.m4a", filepath.Base(res.Path))
	assert.Empty(t, rec.waits, "no delay before the first attempt")
	assert.Len(t, ext.calls, 1)
}

func TestAcquire_RejectsUndersizedAndRetries(t *testing.T) {
	ext := &fakeExtractor{sizes: map[int]int{0: 10, 1: 5000}}
	p, rec := newTestPipeline(t, ext, Options{Attempts: 3, MinBytes: 1024, BaseDelay: 2 * time.Second})

	res, err := p.Acquire(context.Background(), "job2", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Attempt)
	assert.Equal(t, DefaultTitle, res.Title)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.waits)
	assert.Equal(t, []string{"temp_job2_1.m4a"}, tempFiles(t, p.opts.TempDir, "job2"),
		"undersized attempt file deleted")
}

func TestAcquire_ExhaustedLeavesNoTempFiles(t *testing.T) {
	failure := errors.New("video unavailable")
	ext := &fakeExtractor{errs: map[int]error{0: failure, 1: failure, 2: failure, 3: failure}}
	p, rec := newTestPipeline(t, ext, Options{Attempts: 4, MinBytes: 1, BaseDelay: time.Second})

	_, err := p.Acquire(context.Background(), "job3", "https://youtu.be/dQw4w9WgXcQ")
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "all 4 download attempts failed")

	assert.Len(t, ext.calls, 4)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}, rec.waits)
	assert.Empty(t, tempFiles(t, p.opts.TempDir, "job3"))
}

func TestAcquire_StrategiesRotate(t *testing.T) {
	failure := errors.New("boom")
	ext := &fakeExtractor{errs: map[int]error{0: failure, 1: failure, 2: failure, 3: failure}}
	p, _ := newTestPipeline(t, ext, Options{Attempts: 4})

	_, err := p.Acquire(context.Background(), "job4", "https://youtu.be/dQw4w9WgXcQ")
	require.Error(t, err)

	seen := map[string]bool{}
	for _, cfg := range ext.calls {
		seen[cfg.Strategy] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, "permissive", ext.calls[3].Strategy)
}

func TestAcquire_BlockedAddsExtendedDelay(t *testing.T) {
	ext := &fakeExtractor{
		errs:  map[int]error{0: fmt.Errorf("unexpected status code: 429")},
		sizes: map[int]int{1: 4096},
	}
	p, rec := newTestPipeline(t, ext, Options{
		Attempts:     3,
		MinBytes:     1,
		BaseDelay:    time.Second,
		BlockedDelay: 30 * time.Second,
	})

	_, err := p.Acquire(context.Background(), "job5", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{31 * time.Second}, rec.waits)
}

func TestAcquire_UsesAlternateEndpoint(t *testing.T) {
	ext := &fakeExtractor{sizes: map[int]int{0: 100}}
	p, _ := newTestPipeline(t, ext, Options{
		Attempts: 2,
		Resolver: fakeResolver{alt: "https://mirror.example/watch?v=dQw4w9WgXcQ", ok: true},
	})

	res, err := p.Acquire(context.Background(), "job6", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example/watch?v=dQw4w9WgXcQ", res.URL)
	assert.Equal(t, []string{"https://mirror.example/watch?v=dQw4w9WgXcQ"}, ext.urls)
}

func TestAcquire_ResolverMissKeepsOriginal(t *testing.T) {
	ext := &fakeExtractor{sizes: map[int]int{0: 100}}
	p, _ := newTestPipeline(t, ext, Options{Attempts: 1, Resolver: fakeResolver{}})

	res, err := p.Acquire(context.Background(), "job7", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", res.URL)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	ext := &fakeExtractor{errs: map[int]error{0: errors.New("fail")}}
	p, _ := newTestPipeline(t, ext, Options{Attempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Acquire(ctx, "job8", "https://youtu.be/dQw4w9WgXcQ")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tempFiles(t, p.opts.TempDir, "job8"))
}

func TestIsBlocked(t *testing.T) {
	assert.True(t, IsBlocked(errors.New("unexpected status code: 403")))
	assert.True(t, IsBlocked(errors.New("Sign in to confirm you're not a bot")))
	assert.True(t, IsBlocked(errors.New("HTTP Error 429: Too Many Requests")))
	assert.False(t, IsBlocked(errors.New("video unavailable")))
	assert.False(t, IsBlocked(errors.New("read 4030 bytes")))
	assert.False(t, IsBlocked(nil))
}

func TestDelay_Jitter(t *testing.T) {
	p := NewPipeline(&fakeExtractor{}, nil, Options{BaseDelay: time.Second, Jitter: 500 * time.Millisecond})
	for i := 0; i < 20; i++ {
		d := p.delay(2)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 2500*time.Millisecond)
	}
}
