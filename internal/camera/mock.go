package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// MockConfig configures the synthetic device.
type MockConfig struct {
	// Width and Height set the preview size (default 640x480)
	Width  int
	Height int
	// FPS is the preview rate (default 15)
	FPS float64
	// MaxFaces is the native detection limit (default 10)
	MaxFaces int
	// DetectionHz is the detection callback rate (default 5)
	DetectionHz float64
	// NoFaceDetection disables the native detection capability
	NoFaceDetection bool
	// Faces fixes the reported rectangles; nil keeps the default
	// orbiting face (SetFaces overrides either at runtime)
	Faces []types.Rect
	// SourceName labels emitted frames (default "mock")
	SourceName string
}

func (c *MockConfig) applyDefaults() {
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = 640, 480
	}
	if c.FPS <= 0 {
		c.FPS = 15
	}
	if c.MaxFaces <= 0 {
		c.MaxFaces = 10
	}
	if c.DetectionHz <= 0 {
		c.DetectionHz = 5
	}
	if c.SourceName == "" {
		c.SourceName = "mock"
	}
}

// Mock is a deterministic in-process Device. The preview goroutine emits
// uniform mid-gray I420 frames at the configured rate; an independent
// detection goroutine reports the configured synthetic faces, so the two
// callback paths genuinely interleave the way hardware threads do.
type Mock struct {
	cfg MockConfig

	mu        sync.Mutex
	state     State
	previewFn PreviewFunc
	detectFn  DetectFunc
	stopPrev  chan struct{}
	stopDet   chan struct{}
	startTime time.Time

	facesMu   sync.Mutex
	faces     []types.Rect
	facesSet  bool
	failStart error
	failStop  error

	prevWG sync.WaitGroup
	detWG  sync.WaitGroup

	seq        atomic.Uint64
	frames     atomic.Uint64
	detections atomic.Uint64
	closed     atomic.Bool
}

// NewMock creates a mock device in StateCreated.
func NewMock(cfg MockConfig) *Mock {
	cfg.applyDefaults()
	m := &Mock{cfg: cfg, state: StateCreated}
	if cfg.Faces != nil {
		m.faces = append([]types.Rect(nil), cfg.Faces...)
		m.facesSet = true
	}
	return m
}

// SetPreviewFunc implements Device.
func (m *Mock) SetPreviewFunc(fn PreviewFunc) {
	m.mu.Lock()
	m.previewFn = fn
	m.mu.Unlock()
}

// StartPreview implements Device. The context bounds startup only.
func (m *Mock) StartPreview(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if m.stopPrev != nil {
		return ErrPreviewRunning
	}

	m.stopPrev = make(chan struct{})
	m.state = StatePreview
	m.startTime = time.Now()
	m.prevWG.Add(1)
	go m.previewLoop(m.stopPrev)

	slog.Debug("mock camera preview started",
		"width", m.cfg.Width, "height", m.cfg.Height, "fps", m.cfg.FPS)
	return nil
}

// StopPreview implements Device. A running face detection is stopped
// first, as on real camera stacks where detection rides the preview
// stream.
func (m *Mock) StopPreview() error {
	if !m.haltPreview() {
		return ErrPreviewNotRunning
	}
	m.mu.Lock()
	m.state = StateCreated
	m.mu.Unlock()

	slog.Debug("mock camera preview stopped", "frames", m.frames.Load())
	return nil
}

// haltPreview shuts down the detection and preview goroutines. The nil
// check on stopPrev makes concurrent StopPreview/Close calls race-free:
// only one caller gets to close the channel.
func (m *Mock) haltPreview() bool {
	m.mu.Lock()
	if m.stopPrev == nil {
		m.mu.Unlock()
		return false
	}
	prev := m.stopPrev
	m.stopPrev = nil
	det := m.stopDetectionLocked()
	close(prev)
	m.mu.Unlock()

	if det != nil {
		m.detWG.Wait()
	}
	m.prevWG.Wait()
	return true
}

// PreviewSize implements Device.
func (m *Mock) PreviewSize() (int, int) {
	return m.cfg.Width, m.cfg.Height
}

// SupportsFaceDetection implements Device.
func (m *Mock) SupportsFaceDetection() bool {
	return !m.cfg.NoFaceDetection
}

// MaxDetectedFaces implements Device.
func (m *Mock) MaxDetectedFaces() int {
	return m.cfg.MaxFaces
}

// StartFaceDetection implements Device.
func (m *Mock) StartFaceDetection(fn DetectFunc) error {
	m.facesMu.Lock()
	if err := m.failStart; err != nil {
		m.failStart = nil
		m.facesMu.Unlock()
		return err
	}
	m.facesMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if m.cfg.NoFaceDetection {
		return ErrDetectionUnsupported
	}
	if m.state != StatePreview {
		return ErrPreviewNotRunning
	}
	if m.detectFn != nil {
		return ErrDetectionRunning
	}

	m.detectFn = fn
	m.stopDet = make(chan struct{})
	m.detWG.Add(1)
	go m.detectLoop(m.stopDet)

	slog.Debug("mock camera face detection started", "hz", m.cfg.DetectionHz)
	return nil
}

// StopFaceDetection implements Device.
func (m *Mock) StopFaceDetection() error {
	m.facesMu.Lock()
	if err := m.failStop; err != nil {
		m.failStop = nil
		m.facesMu.Unlock()
		return err
	}
	m.facesMu.Unlock()

	m.mu.Lock()
	det := m.stopDetectionLocked()
	m.mu.Unlock()

	if det == nil {
		return ErrDetectionNotRunning
	}
	m.detWG.Wait()
	return nil
}

// stopDetectionLocked closes the detection loop if one is running and
// returns its stop channel, or nil. Caller holds m.mu and must wait on
// detWG after releasing it.
func (m *Mock) stopDetectionLocked() chan struct{} {
	if m.detectFn == nil {
		return nil
	}
	ch := m.stopDet
	close(ch)
	m.detectFn = nil
	m.stopDet = nil
	return ch
}

// Capture implements Device: renders the current synthetic frame to
// JPEG. The state walks Capturing → Captured → Preview the way the
// hardware state machine does around a still shot.
func (m *Mock) Capture(ctx context.Context) (*types.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.state != StatePreview {
		m.mu.Unlock()
		return nil, ErrPreviewNotRunning
	}
	m.state = StateCapturing
	m.mu.Unlock()

	img := image.NewGray(image.Rect(0, 0, m.cfg.Width, m.cfg.Height))
	copy(img.Pix, m.i420Buffer()[:m.cfg.Width*m.cfg.Height])

	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})

	m.mu.Lock()
	m.state = StateCaptured
	m.mu.Unlock()
	slog.Debug("mock camera captured still, resuming preview")
	m.mu.Lock()
	if m.state == StateCaptured {
		m.state = StatePreview
	}
	m.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("mock capture encode: %w", err)
	}
	return &types.Photo{
		Data:    buf.Bytes(),
		Format:  "jpeg",
		Width:   m.cfg.Width,
		Height:  m.cfg.Height,
		TakenAt: time.Now(),
	}, nil
}

// State implements Device.
func (m *Mock) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return StateNone
	}
	return m.state
}

// Stats implements Device.
func (m *Mock) Stats() types.CameraStats {
	m.mu.Lock()
	running := m.state == StatePreview || m.state == StateCapturing
	started := m.startTime
	m.mu.Unlock()

	frames := m.frames.Load()
	var fpsReal float64
	if running && frames > 0 {
		if elapsed := time.Since(started).Seconds(); elapsed > 0 {
			fpsReal = float64(frames) / elapsed
		}
	}
	return types.CameraStats{
		FramesDelivered:     frames,
		DetectionsDelivered: m.detections.Load(),
		FPSTarget:           m.cfg.FPS,
		FPSReal:             fpsReal,
		Resolution:          fmt.Sprintf("%dx%d", m.cfg.Width, m.cfg.Height),
		StartedAt:           started,
		IsRunning:           running,
	}
}

// Close implements Device. Idempotent.
func (m *Mock) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.haltPreview()
	m.mu.Lock()
	m.state = StateNone
	m.mu.Unlock()
	return nil
}

// SetFaces replaces the synthetic faces the detection loop reports.
// An empty (non-nil) slice means "no faces in view".
func (m *Mock) SetFaces(rects []types.Rect) {
	m.facesMu.Lock()
	m.faces = append([]types.Rect(nil), rects...)
	m.facesSet = true
	m.facesMu.Unlock()
}

// FailNextDetectionStart makes the next StartFaceDetection return err.
func (m *Mock) FailNextDetectionStart(err error) {
	m.facesMu.Lock()
	m.failStart = err
	m.facesMu.Unlock()
}

// FailNextDetectionStop makes the next StopFaceDetection return err
// while detection keeps running.
func (m *Mock) FailNextDetectionStop(err error) {
	m.facesMu.Lock()
	m.failStop = err
	m.facesMu.Unlock()
}

func (m *Mock) previewLoop(stop <-chan struct{}) {
	defer m.prevWG.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / m.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := m.createFrame()
			m.mu.Lock()
			fn := m.previewFn
			m.mu.Unlock()
			if fn != nil {
				fn(frame)
			}
			m.frames.Add(1)
		}
	}
}

func (m *Mock) detectLoop(stop <-chan struct{}) {
	defer m.detWG.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / m.cfg.DetectionHz))
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rects := m.currentFaces(tick)
			tick++
			m.mu.Lock()
			fn := m.detectFn
			m.mu.Unlock()
			if fn != nil {
				fn(rects)
			}
			m.detections.Add(1)
		}
	}
}

// currentFaces returns the rects to report on this detection tick:
// either the explicitly configured set or the default orbiting face.
func (m *Mock) currentFaces(tick uint64) []types.Rect {
	m.facesMu.Lock()
	if m.facesSet {
		out := append([]types.Rect(nil), m.faces...)
		m.facesMu.Unlock()
		return out
	}
	m.facesMu.Unlock()

	// One quarter-width face orbiting the frame center, a full lap
	// every 40 detection ticks.
	side := m.cfg.Width / 4
	angle := float64(tick) * 2 * math.Pi / 40
	cx := m.cfg.Width/2 + int(float64(m.cfg.Width)/5*math.Cos(angle))
	cy := m.cfg.Height/2 + int(float64(m.cfg.Height)/5*math.Sin(angle))
	return []types.Rect{{X: cx - side/2, Y: cy - side/2, Width: side, Height: side}}
}

func (m *Mock) createFrame() *types.Frame {
	return &types.Frame{
		Seq:        m.seq.Add(1) - 1,
		Timestamp:  time.Now(),
		Width:      m.cfg.Width,
		Height:     m.cfg.Height,
		Format:     types.FormatI420,
		Data:       m.i420Buffer(),
		SourceName: m.cfg.SourceName,
		TraceID:    uuid.New().String(),
	}
}

// i420Buffer allocates a fresh mid-gray I420 buffer. Every frame gets
// its own buffer so downstream redaction never bleeds between frames.
func (m *Mock) i420Buffer() []byte {
	data := make([]byte, m.cfg.Width*m.cfg.Height*3/2)
	for i := range data {
		data[i] = 0x80
	}
	return data
}
