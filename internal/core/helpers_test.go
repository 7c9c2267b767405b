package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jo-hoe/roadwatch/internal/backend/detection"
	"github.com/jo-hoe/roadwatch/internal/backend/events"
	"github.com/jo-hoe/roadwatch/internal/backend/video"
)

// fakeDetector reports one pothole and one crack for every frame
type fakeDetector struct {
	calls atomic.Int32
	err   error
}

func (d *fakeDetector) Detect(_ context.Context, _ []byte) ([]detection.Detection, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return []detection.Detection{
		{Box: detection.Box{X1: 2, Y1: 2, X2: 12, Y2: 12}, ClassID: 0, ClassName: "pothole", Confidence: 0.91},
		{Box: detection.Box{X1: 14, Y1: 4, X2: 20, Y2: 10}, ClassID: 1, ClassName: "crack", Confidence: 0.55},
	}, nil
}

type fakeReverser struct {
	address string
	err     error
}

func (r fakeReverser) Reverse(context.Context, float64, float64) (string, error) {
	return r.address, r.err
}

// slowReverser answers after delay unless the context ends first
type slowReverser struct {
	address string
	delay   time.Duration
}

func (r slowReverser) Reverse(ctx context.Context, _, _ float64) (string, error) {
	select {
	case <-time.After(r.delay):
		return r.address, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fakeRecorder struct {
	mu        sync.Mutex
	addresses []string
	err       error
}

func (r *fakeRecorder) Record(_ context.Context, address string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.addresses = append(r.addresses, address)
	return "0x00000000000000000000000000000000000000000000000000000000000000aa", nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.ReportCreated
	err    error
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, event events.ReportCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

// fakeExtractor hands out a fixed list of frames
type fakeExtractor struct {
	frames [][]byte
	err    error
}

func (e fakeExtractor) Frames(_ context.Context, _ string, fn video.FrameFunc) error {
	if e.err != nil {
		return e.err
	}
	for i, frame := range e.frames {
		if err := fn(i, frame); err != nil {
			return err
		}
	}
	return nil
}

var errDetector = errors.New("model server unavailable")

func testConfig(t *testing.T) *ServiceConfig {
	t.Helper()
	config, err := ParseConfig([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	dir := t.TempDir()
	config.SightingLog.Path = filepath.Join(dir, "pothole_locations.txt")
	config.Storage.Directory = filepath.Join(dir, "processed")
	return config
}

func newTestService(t *testing.T, config *ServiceConfig, opts ...Option) *CoreService {
	t.Helper()
	defaults := []Option{
		WithDetector(&fakeDetector{}),
		WithReverser(fakeReverser{address: "Main Street 1, Berlin"}),
		WithPublisher(&fakePublisher{}),
		WithExtractor(fakeExtractor{}),
	}
	service, err := NewCoreService(context.Background(), config, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("NewCoreService failed: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })
	return service
}

// createTestPNG returns a solid PNG; shade makes otherwise equal frames distinct
func createTestPNG(t *testing.T, width, height int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{shade, 80, 80, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}
