// Package video turns an uploaded video into a sequence of JPEG frames.
package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/sync/errgroup"
)

const maxFrameSize = 32 << 20

var (
	startOfImage = []byte{0xFF, 0xD8}
	endOfImage   = []byte{0xFF, 0xD9}
)

// FrameFunc receives every selected frame. Returning an error stops extraction.
type FrameFunc func(index int, frame []byte) error

type Extractor interface {
	Frames(ctx context.Context, path string, fn FrameFunc) error
}

// FFmpegExtractor runs the ffmpeg binary and reads an MJPEG stream from its stdout
type FFmpegExtractor struct {
	// Stride keeps every n-th frame, values below 1 keep all frames
	Stride int
	// Quality is the mjpeg qscale (2 best, 31 worst)
	Quality int
}

func NewFFmpegExtractor(stride, quality int) *FFmpegExtractor {
	if stride < 1 {
		stride = 1
	}
	if quality < 2 || quality > 31 {
		quality = 2
	}
	return &FFmpegExtractor{Stride: stride, Quality: quality}
}

func (e *FFmpegExtractor) Frames(ctx context.Context, path string, fn FrameFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader, writer := io.Pipe()
	var stderr bytes.Buffer

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stream := ffmpeg.Input(path).
			Output("pipe:", ffmpeg.KwArgs{"format": "image2pipe", "vcodec": "mjpeg", "q:v": e.Quality})
		stream.Context = gctx
		err := stream.WithOutput(writer).WithErrorOutput(&stderr).Run()
		if err != nil {
			err = fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
		}
		_ = writer.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := scanFrames(gctx, reader, e.Stride, fn)
		// unblock ffmpeg if we stopped early
		_ = reader.CloseWithError(io.ErrClosedPipe)
		if err != nil {
			cancel()
		}
		return err
	})

	err := g.Wait()
	if err != nil {
		slog.Debug("frame extraction stopped", "path", path, "error", err)
	}
	return err
}

// scanFrames splits r into JPEG images and calls fn on every stride-th one
func scanFrames(ctx context.Context, r io.Reader, stride int, fn FrameFunc) error {
	if stride < 1 {
		stride = 1
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), maxFrameSize)
	scanner.Split(splitJPEG)

	index := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if index%stride == 0 {
			frame := bytes.Clone(scanner.Bytes())
			if err := fn(index, frame); err != nil {
				return err
			}
		}
		index++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read frames: %w", err)
	}
	return nil
}

// splitJPEG is a bufio.SplitFunc yielding one SOI..EOI image per token.
// Bytes before a start marker and a truncated trailing image are dropped.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, startOfImage)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep a trailing 0xFF that may begin a marker
		return max(len(data)-1, 0), nil, nil
	}

	end := bytes.Index(data[start+len(startOfImage):], endOfImage)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(startOfImage) + end + len(endOfImage)
	return stop, data[start:stop], nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
