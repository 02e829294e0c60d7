package trim

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records ffmpeg invocations. onRun decides what each call does.
type fakeRunner struct {
	calls  [][]string
	onRun  func(args []string) ([]byte, error)
	stdout []byte
	outErr error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	if f.onRun == nil {
		return nil, nil
	}
	return f.onRun(args)
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	return f.stdout, f.outErr
}

func writeOutput(args []string) error {
	return os.WriteFile(args[len(args)-1], []byte("ID3 fake mp3"), 0644)
}

func isCopy(args []string) bool {
	return strings.Contains(strings.Join(args, " "), "-c:a copy")
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func newRequest(t *testing.T) Request {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "temp_abc_0.m4a")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0644))
	return Request{Source: src, Output: filepath.Join(dir, "out_abc.mp3"), Start: 10, End: 40}
}

func TestTrim_StreamCopySucceeds(t *testing.T) {
	runner := &fakeRunner{onRun: func(args []string) ([]byte, error) {
		return nil, writeOutput(args)
	}}
	tr := NewTrimmer(WithCommandRunner(runner))
	req := newRequest(t)

	res, err := tr.Trim(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ModeCopy, res.Mode)
	assert.Equal(t, 30, res.Duration)
	assert.Greater(t, res.Size, int64(0))
	require.Len(t, runner.calls, 1)

	args := runner.calls[0]
	assert.Equal(t, "10", argValue(args, "-ss"))
	assert.Equal(t, "30", argValue(args, "-t"))
	assert.Equal(t, "make_zero", argValue(args, "-avoid_negative_ts"))
	assert.NotContains(t, args, "-to")

	// -ss precedes -i so the seek applies to the input.
	assert.Less(t, indexOf(args, "-ss"), indexOf(args, "-i"))
}

func TestTrim_FallsBackToReencode(t *testing.T) {
	runner := &fakeRunner{onRun: func(args []string) ([]byte, error) {
		if isCopy(args) {
			// Partial output must not survive into the second run.
			_ = os.WriteFile(args[len(args)-1], []byte("x"), 0644)
			return []byte("Could not find tag for codec aac"), errors.New("exit status 1")
		}
		return nil, writeOutput(args)
	}}
	tr := NewTrimmer(WithCommandRunner(runner), WithBitrate("192k"), WithFade(0.5))

	res, err := tr.Trim(context.Background(), newRequest(t))
	require.NoError(t, err)

	assert.Equal(t, ModeReencode, res.Mode)
	require.Len(t, runner.calls, 2)

	args := runner.calls[1]
	assert.Equal(t, "libmp3lame", argValue(args, "-c:a"))
	assert.Equal(t, "192k", argValue(args, "-b:a"))
	assert.Equal(t, "afade=t=in:st=0:d=0.5,afade=t=out:st=29.5:d=0.5", argValue(args, "-af"))
}

func TestTrim_CopySucceedsWithoutOutput(t *testing.T) {
	runner := &fakeRunner{onRun: func(args []string) ([]byte, error) {
		if isCopy(args) {
			return nil, nil
		}
		return nil, writeOutput(args)
	}}
	tr := NewTrimmer(WithCommandRunner(runner))

	res, err := tr.Trim(context.Background(), newRequest(t))
	require.NoError(t, err)
	assert.Equal(t, ModeReencode, res.Mode)
}

func TestTrim_BothModesFail(t *testing.T) {
	runner := &fakeRunner{onRun: func(args []string) ([]byte, error) {
		return []byte("Invalid data found when processing input\n"), errors.New("exit status 1")
	}}
	tr := NewTrimmer(WithCommandRunner(runner))
	req := newRequest(t)

	_, err := tr.Trim(context.Background(), req)
	require.Error(t, err)

	var trimErr *Error
	require.ErrorAs(t, err, &trimErr)
	assert.Contains(t, trimErr.Stderr, "Invalid data found")
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.NoFileExists(t, req.Output)
}

func TestTrim_Timeout(t *testing.T) {
	runner := &fakeRunner{onRun: func(args []string) ([]byte, error) {
		time.Sleep(30 * time.Millisecond)
		return nil, errors.New("signal: killed")
	}}
	tr := NewTrimmer(WithCommandRunner(runner), WithTimeouts(10*time.Millisecond, 10*time.Millisecond))

	_, err := tr.Trim(context.Background(), newRequest(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, runner.calls, 2, "re-encode is attempted after a copy timeout")
}

func TestTrim_InvalidRequest(t *testing.T) {
	tr := NewTrimmer(WithCommandRunner(&fakeRunner{}))
	req := newRequest(t)

	bad := req
	bad.End = bad.Start
	_, err := tr.Trim(context.Background(), bad)
	assert.Error(t, err)

	bad = req
	bad.Source = filepath.Join(t.TempDir(), "missing.m4a")
	_, err = tr.Trim(context.Background(), bad)
	assert.ErrorContains(t, err, "input file not found")
}

func TestFadeFilter(t *testing.T) {
	assert.Equal(t, "", fadeFilter(30, 0))
	assert.Equal(t, "", fadeFilter(1, 0.5), "clip not longer than two fades")
	assert.Equal(t, "afade=t=in:st=0:d=1,afade=t=out:st=9:d=1", fadeFilter(10, 1))
}

func TestProbe(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("212.345000\n")}
	tr := NewTrimmer(WithCommandRunner(runner), WithFFprobePath("/opt/ffprobe"))

	d, err := tr.Probe(context.Background(), "file.m4a")
	require.NoError(t, err)
	assert.InDelta(t, 212.345, d, 0.0001)

	runner.stdout = []byte("N/A")
	_, err = tr.Probe(context.Background(), "file.m4a")
	assert.ErrorContains(t, err, "failed to parse duration")
}

func TestVerifyInstalled(t *testing.T) {
	tr := NewTrimmer(WithCommandRunner(&fakeRunner{outErr: errors.New("not found")}))
	assert.Error(t, tr.VerifyInstalled(context.Background()))
}

// TestTrim_RealFFmpeg cuts a generated tone with the real binary.
func TestTrim_RealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "temp_real_0.m4a")
	gen := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=60",
		"-c:a", "aac", "-y", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate source: %v: %s", err, out)
	}

	tr := NewTrimmer()
	res, err := tr.Trim(context.Background(), Request{
		Source: src,
		Output: filepath.Join(dir, "clip_real.mp3"),
		Start:  10,
		End:    40,
	})
	require.NoError(t, err)

	d, err := tr.Probe(context.Background(), res.Path)
	require.NoError(t, err)
	assert.InDelta(t, 30, d, 1)
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}
