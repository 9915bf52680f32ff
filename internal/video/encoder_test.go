package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

type fakeRunner struct {
	name  string
	args  []string
	stdin []byte
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, stdin io.Reader) ([]byte, error) {
	f.name, f.args = name, args
	if f.err != nil {
		return []byte("boom"), f.err
	}
	data, err := io.ReadAll(stdin)
	f.stdin = data
	if err != nil {
		return nil, err
	}
	return nil, os.WriteFile(args[len(args)-1], []byte("mp4"), 0644)
}

func TestWriteFramesScalesToCanvas(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "0.png")
	b := filepath.Join(dir, "1.png")
	writePNG(t, a, 4, 2, color.RGBA{255, 0, 0, 255})
	writePNG(t, b, 8, 4, color.RGBA{0, 0, 255, 255})

	var buf bytes.Buffer
	require.NoError(t, WriteFrames(&buf, []string{a, b}, annotation.Size{Height: 2, Width: 4}))

	frame := 4 * 2 * 4
	require.Equal(t, 2*frame, buf.Len())
	assert.Equal(t, []byte{255, 0, 0, 255}, buf.Bytes()[:4], "first frame is red")
	assert.Equal(t, []byte{0, 0, 255, 255}, buf.Bytes()[frame:frame+4], "second frame is blue")
}

func TestFramePathFallsBackToPNG(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "frame_000001")
	writePNG(t, base+".png", 1, 1, color.White)

	assert.Equal(t, base+".png", FramePath(base))
	assert.Equal(t, base+".png", FramePath(base+".png"))

	missing := filepath.Join(dir, "nope.jpg")
	assert.Equal(t, missing, FramePath(missing))
}

func TestEncode(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	frames := []string{filepath.Join(dir, "0.png"), filepath.Join(dir, "1.png")}
	for _, p := range frames {
		writePNG(t, p, 6, 4, color.Black)
	}
	out := filepath.Join(dir, "clip.mp4")

	runner := &fakeRunner{}
	enc := NewEncoder("/usr/bin/ffmpeg").WithRunner(runner)
	require.NoError(t, enc.Encode(context.Background(), out, frames, annotation.Size{Height: 4, Width: 6}))

	assert.Equal(t, "/usr/bin/ffmpeg", runner.name)
	args := strings.Join(runner.args, " ")
	assert.Contains(t, args, "-s 6x4")
	assert.Contains(t, args, "-r 30")
	assert.Contains(t, args, "-c:v mpeg4")
	assert.Len(t, runner.stdin, 2*6*4*4)
	assert.FileExists(t, out)
}

func TestEncodeRunnerFailureDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	frames := make([]string, 20)
	for i := range frames {
		frames[i] = filepath.Join(dir, string(rune('a'+i))+".png")
		writePNG(t, frames[i], 64, 64, color.White)
	}

	enc := NewEncoder("").WithRunner(&fakeRunner{err: errors.New("exit status 1")})
	err := enc.Encode(context.Background(), filepath.Join(dir, "x.mp4"), frames, annotation.Size{Height: 64, Width: 64})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg failed")
}

func TestEncodeMissingFrame(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	enc := NewEncoder("").WithRunner(&fakeRunner{})
	err := enc.Encode(context.Background(), filepath.Join(dir, "x.mp4"), []string{filepath.Join(dir, "missing.jpg")}, annotation.Size{Height: 2, Width: 2})
	require.Error(t, err)
}

func TestEncodeValidatesInput(t *testing.T) {
	enc := NewEncoder("")
	assert.Error(t, enc.Encode(context.Background(), "x.mp4", nil, annotation.Size{Height: 2, Width: 2}))
	assert.Error(t, enc.Encode(context.Background(), "x.mp4", []string{"a.png"}, annotation.Size{}))
}
