// Package video composes ordered frame images into an MP4 file through ffmpeg.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/images"
)

const (
	// DefaultFPS is used because task exports do not carry the source frame rate
	DefaultFPS = 30
	// DefaultCodec is the ffmpeg name of the MPEG-4 Part 2 (mp4v) encoder
	DefaultCodec = "mpeg4"
)

// Runner runs an external command with stdin attached and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	return cmd.CombinedOutput()
}

// Encoder writes frames as raw RGBA into ffmpeg
type Encoder struct {
	FFmpegPath string
	FPS        int
	Codec      string
	runner     Runner
}

// NewEncoder creates an encoder using the given ffmpeg binary
func NewEncoder(ffmpegPath string) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Encoder{
		FFmpegPath: ffmpegPath,
		FPS:        DefaultFPS,
		Codec:      DefaultCodec,
		runner:     ExecRunner{},
	}
}

// WithRunner replaces the command runner
func (e *Encoder) WithRunner(r Runner) *Encoder {
	e.runner = r
	return e
}

// Args returns the ffmpeg arguments for a canvas of the given size
func (e *Encoder) Args(outPath string, size annotation.Size) []string {
	return []string{
		"-y", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		// encoders take width x height
		"-s", fmt.Sprintf("%dx%d", size.Width, size.Height),
		"-r", strconv.Itoa(e.FPS),
		"-i", "-",
		"-c:v", e.Codec,
		"-pix_fmt", "yuv420p",
		"-an",
		outPath,
	}
}

// Encode writes framePaths, in the given order, as a video at outPath.
// Frames whose size differs from the canvas are scaled to it.
func (e *Encoder) Encode(ctx context.Context, outPath string, framePaths []string, size annotation.Size) error {
	if len(framePaths) == 0 {
		return errors.New("no frames to encode")
	}
	if size.Height <= 0 || size.Width <= 0 {
		return fmt.Errorf("invalid video size %dx%d", size.Height, size.Width)
	}
	slog.Debug("Encoding video", "path", outPath, "frames", len(framePaths), "height", size.Height, "width", size.Width, "fps", e.FPS)

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := WriteFrames(pw, framePaths, size)
		pw.CloseWithError(err)
		return err
	})

	g.Go(func() error {
		out, err := e.runner.Run(gctx, e.FFmpegPath, e.Args(outPath, size), pr)
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("ffmpeg failed: %w: %s", err, string(out))
		}
		// drain anything ffmpeg left unread so the writer can finish
		_, _ = io.Copy(io.Discard, pr)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to encode %s: %w", outPath, err)
	}

	info, err := os.Stat(outPath)
	if err == nil && info.Size() == 0 {
		slog.Warn("Video has size 0, it may be corrupted", "path", outPath)
	}
	return nil
}

// FramePath returns path, or path with a .png suffix when only that exists
func FramePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		if _, err := os.Stat(path + ".png"); err == nil {
			return path + ".png"
		}
	}
	return path
}

// WriteFrames writes each frame as width*height*4 bytes of RGBA
func WriteFrames(w io.Writer, framePaths []string, size annotation.Size) error {
	canvas := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for i, p := range framePaths {
		img, err := images.Decode(FramePath(p))
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if img.Bounds().Dx() == size.Width && img.Bounds().Dy() == size.Height {
			draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
		} else {
			draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), img, img.Bounds(), draw.Src, nil)
		}
		if _, err := w.Write(canvas.Pix); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}
	return nil
}
