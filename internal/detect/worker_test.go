package detect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crazymi/TizenFaceFilter/internal/camera"
	"github.com/crazymi/TizenFaceFilter/internal/types"
)

func grayFrame(seq uint64, w, h int) *types.Frame {
	data := make([]byte, w*h*3/2)
	for i := range data {
		data[i] = 0x80
	}
	return &types.Frame{Seq: seq, Width: w, Height: h, Format: types.FormatI420, Data: data}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestWorker_DeliversDetections(t *testing.T) {
	want := []types.Rect{{X: 4, Y: 4, Width: 8, Height: 8}}
	det := DetectorFunc(func(lum []byte, w, h int) ([]types.Rect, error) {
		if len(lum) != w*h {
			t.Errorf("worker passed %d luma bytes for %dx%d", len(lum), w, h)
		}
		return want, nil
	})

	w := NewWorker(det, WorkerConfig{SampleEvery: 1})
	var got atomic.Pointer[[]types.Rect]
	if err := w.Start(func(rects []types.Rect) {
		cp := append([]types.Rect(nil), rects...)
		got.Store(&cp)
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	w.Offer(grayFrame(0, 32, 24))

	if !waitFor(t, time.Second, func() bool { return got.Load() != nil }) {
		t.Fatal("no detection callback within deadline")
	}
	if rects := *got.Load(); len(rects) != 1 || rects[0] != want[0] {
		t.Errorf("callback rects = %+v, want %+v", rects, want)
	}
}

func TestWorker_SamplesEveryNth(t *testing.T) {
	var passes atomic.Uint64
	det := DetectorFunc(func([]byte, int, int) ([]types.Rect, error) {
		passes.Add(1)
		return nil, nil
	})

	w := NewWorker(det, WorkerConfig{SampleEvery: 4})
	if err := w.Start(func([]types.Rect) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := uint64(0); i < 12; i++ {
		w.Offer(grayFrame(i, 16, 16))
		// Give the loop time to drain so samples are not overwritten.
		waitFor(t, 100*time.Millisecond, func() bool {
			m := w.Metrics()
			return m.Passes+m.Errors == m.FramesSampled
		})
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	m := w.Metrics()
	if m.FramesOffered != 12 {
		t.Errorf("offered = %d, want 12", m.FramesOffered)
	}
	if m.FramesSampled != 3 {
		t.Errorf("sampled = %d with SampleEvery=4, want 3", m.FramesSampled)
	}
	if passes.Load() != 3 {
		t.Errorf("detector ran %d times, want 3", passes.Load())
	}
}

// A slow detector must cost overwrites, not queue growth: offering
// faster than the detector drains drops the stale frame.
func TestWorker_MailboxDropsOld(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 16)
	det := DetectorFunc(func(lum []byte, w, h int) ([]types.Rect, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	})

	w := NewWorker(det, WorkerConfig{SampleEvery: 1})
	if err := w.Start(func([]types.Rect) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	w.Offer(grayFrame(1, 16, 16))
	<-started // detector now blocked holding frame 1

	// These pile into the single slot; each overwrite is a drop.
	w.Offer(grayFrame(2, 16, 16))
	w.Offer(grayFrame(3, 16, 16))
	w.Offer(grayFrame(4, 16, 16))

	close(release)
	if !waitFor(t, time.Second, func() bool { return w.Metrics().Passes == 2 }) {
		t.Fatalf("passes = %d, want 2 (blocked frame + latest survivor)", w.Metrics().Passes)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	m := w.Metrics()
	if m.FramesDropped != 2 {
		t.Errorf("dropped = %d, want 2 (frames 2 and 3 overwritten)", m.FramesDropped)
	}
	if m.FramesSampled != 4 {
		t.Errorf("sampled = %d, want 4", m.FramesSampled)
	}
}

func TestWorker_Lifecycle(t *testing.T) {
	w := NewWorker(DetectorFunc(func([]byte, int, int) ([]types.Rect, error) {
		return nil, nil
	}), WorkerConfig{})

	if err := w.Stop(); !errors.Is(err, camera.ErrDetectionNotRunning) {
		t.Errorf("Stop before start = %v, want ErrDetectionNotRunning", err)
	}
	if err := w.Start(func([]types.Rect) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Start(func([]types.Rect) {}); !errors.Is(err, camera.ErrDetectionRunning) {
		t.Errorf("second Start = %v, want ErrDetectionRunning", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The worker restarts cleanly after a stop (toggle off → on).
	if err := w.Start(func([]types.Rect) {}); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	w.Offer(grayFrame(9, 16, 16))
	if !waitFor(t, time.Second, func() bool { return w.Metrics().Passes >= 1 }) {
		t.Error("restarted worker processed nothing")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop after restart failed: %v", err)
	}

	// Offers after stop are ignored, not queued.
	before := w.Metrics().FramesSampled
	w.Offer(grayFrame(10, 16, 16))
	if got := w.Metrics().FramesSampled; got != before {
		t.Errorf("stopped worker sampled a frame: %d -> %d", before, got)
	}
}

func TestWorker_DetectorErrorsAreCounted(t *testing.T) {
	det := DetectorFunc(func([]byte, int, int) ([]types.Rect, error) {
		return nil, errors.New("cascade exploded")
	})
	w := NewWorker(det, WorkerConfig{SampleEvery: 1})

	var callbacks atomic.Uint64
	if err := w.Start(func([]types.Rect) { callbacks.Add(1) }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Offer(grayFrame(0, 16, 16))

	if !waitFor(t, time.Second, func() bool { return w.Metrics().Errors == 1 }) {
		t.Fatal("detector error not counted")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if callbacks.Load() != 0 {
		t.Error("failed pass still fired the detection callback")
	}
}

func TestCamera_AddsDetectionCapability(t *testing.T) {
	dev := camera.NewMock(camera.MockConfig{
		Width: 64, Height: 48, FPS: 200, NoFaceDetection: true,
	})
	defer dev.Close()

	want := []types.Rect{{X: 10, Y: 5, Width: 4, Height: 3}}
	w := NewWorker(DetectorFunc(func([]byte, int, int) ([]types.Rect, error) {
		return want, nil
	}), WorkerConfig{SampleEvery: 1, MaxFaces: 8})

	cam := Wrap(dev, w)
	if !cam.SupportsFaceDetection() {
		t.Fatal("wrapped camera reports no detection support")
	}
	if cam.MaxDetectedFaces() != 8 {
		t.Errorf("MaxDetectedFaces = %d, want 8", cam.MaxDetectedFaces())
	}

	// The capability still requires a running preview.
	if err := cam.StartFaceDetection(func([]types.Rect) {}); !errors.Is(err, camera.ErrPreviewNotRunning) {
		t.Fatalf("StartFaceDetection without preview = %v, want ErrPreviewNotRunning", err)
	}

	cam.SetPreviewFunc(func(*types.Frame) {})
	if err := cam.StartPreview(context.Background()); err != nil {
		t.Fatalf("StartPreview failed: %v", err)
	}

	var got atomic.Pointer[[]types.Rect]
	if err := cam.StartFaceDetection(func(rects []types.Rect) {
		cp := append([]types.Rect(nil), rects...)
		got.Store(&cp)
	}); err != nil {
		t.Fatalf("StartFaceDetection failed: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return got.Load() != nil }) {
		t.Fatal("no detection callback through the wrapper")
	}
	if rects := *got.Load(); len(rects) != 1 || rects[0] != want[0] {
		t.Errorf("rects = %+v, want %+v", rects, want)
	}

	// Stopping preview stops the worker with it.
	if err := cam.StopPreview(); err != nil {
		t.Fatalf("StopPreview failed: %v", err)
	}
	if err := cam.StopFaceDetection(); !errors.Is(err, camera.ErrDetectionNotRunning) {
		t.Errorf("StopFaceDetection after preview stop = %v, want ErrDetectionNotRunning", err)
	}
}

func TestNewPigo_FailFast(t *testing.T) {
	if _, err := NewPigo(PigoConfig{}); err == nil {
		t.Error("NewPigo accepted empty cascade path")
	}
	if _, err := NewPigo(PigoConfig{CascadePath: "testdata/does-not-exist"}); err == nil {
		t.Error("NewPigo accepted missing cascade file")
	}
}
