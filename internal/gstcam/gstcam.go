// Package gstcam implements camera.Device on a GStreamer capture
// pipeline, for V4L2 webcams and RTSP network cameras. The pipeline is
// locked to planar I420 so the preview callback can redact the luma
// plane in place. No native face detection here; wrap the device in
// detect.Camera for the software engine.
package gstcam

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/crazymi/TizenFaceFilter/internal/camera"
	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// Config describes the capture source.
type Config struct {
	// Source selects "v4l2" (default) or "rtsp"
	Source string
	// Device is the v4l2 node (default /dev/video0)
	Device string
	// RTSPURL is the stream URL, required for the rtsp source
	RTSPURL string
	// Width and Height are the negotiated frame size (default 640x480)
	Width  int
	Height int
	// FPS is the target preview rate (default 15)
	FPS int
	// SourceName labels frames (default: the source kind)
	SourceName string
}

func (c *Config) applyDefaults() {
	if c.Source == "" {
		c.Source = "v4l2"
	}
	if c.Device == "" {
		c.Device = "/dev/video0"
	}
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	if c.FPS <= 0 {
		c.FPS = 15
	}
	if c.SourceName == "" {
		c.SourceName = c.Source
	}
}

// Camera is a GStreamer-backed camera.Device.
type Camera struct {
	cfg Config

	mu        sync.Mutex
	elements  *pipelineElements
	cancelMon context.CancelFunc
	stopFlow  chan struct{}
	state     camera.State
	startedAt time.Time
	wg        sync.WaitGroup

	fnMu      sync.RWMutex
	previewFn camera.PreviewFunc

	lastMu    sync.Mutex
	lastFrame *types.Frame

	stopping atomic.Bool
	closed   atomic.Bool

	seq       atomic.Uint64
	bytesRead atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	transportErrs atomic.Uint64
	codecErrs     atomic.Uint64
	authErrs      atomic.Uint64
	unknownErrs   atomic.Uint64
}

// New validates the config. The pipeline is built on StartPreview, not
// here; the device node may not even exist yet.
func New(cfg Config) (*Camera, error) {
	cfg.applyDefaults()
	switch cfg.Source {
	case "v4l2", "rtsp":
	default:
		return nil, fmt.Errorf("gstcam: unknown source %q (must be 'v4l2' or 'rtsp')", cfg.Source)
	}
	if cfg.Source == "rtsp" && cfg.RTSPURL == "" {
		return nil, fmt.Errorf("gstcam: rtsp source requires a url")
	}
	if cfg.FPS > 60 {
		return nil, fmt.Errorf("gstcam: fps %d out of range (max 60)", cfg.FPS)
	}
	return &Camera{cfg: cfg, state: camera.StateCreated}, nil
}

// SetPreviewFunc implements camera.Device.
func (c *Camera) SetPreviewFunc(fn camera.PreviewFunc) {
	c.fnMu.Lock()
	defer c.fnMu.Unlock()
	c.previewFn = fn
}

func (c *Camera) previewFunc() camera.PreviewFunc {
	c.fnMu.RLock()
	defer c.fnMu.RUnlock()
	return c.previewFn
}

// StartPreview builds the pipeline and sets it PLAYING. Startup is
// asynchronous: negotiation failures surface on the bus monitor, not
// here.
func (c *Camera) StartPreview(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return camera.ErrClosed
	}
	if c.elements != nil {
		return camera.ErrPreviewRunning
	}

	el, err := buildPipeline(pipelineConfig{
		Source:  c.cfg.Source,
		Device:  c.cfg.Device,
		RTSPURL: c.cfg.RTSPURL,
		Width:   c.cfg.Width,
		Height:  c.cfg.Height,
		FPS:     c.cfg.FPS,
	})
	if err != nil {
		return fmt.Errorf("gstcam: building pipeline: %w", err)
	}

	frames := make(chan *types.Frame, 1)
	el.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return c.onNewSample(sink, frames)
		},
	})

	if err := el.pipeline.SetState(gst.StatePlaying); err != nil {
		destroyPipeline(el)
		return fmt.Errorf("gstcam: starting pipeline: %w", err)
	}

	monCtx, cancel := context.WithCancel(context.Background())
	c.elements = el
	c.cancelMon = cancel
	c.stopFlow = make(chan struct{})
	c.state = camera.StatePreview
	c.startedAt = time.Now()
	c.stopping.Store(false)

	c.wg.Add(2)
	go c.deliverLoop(frames, c.stopFlow)
	go c.monitorBus(monCtx, el.pipeline)

	slog.Info("gstcam preview started",
		"source", c.cfg.Source,
		"width", c.cfg.Width,
		"height", c.cfg.Height,
		"fps", c.cfg.FPS,
	)
	return nil
}

// StopPreview implements camera.Device. Returns once the delivery and
// monitor goroutines have drained.
func (c *Camera) StopPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopPreviewLocked()
}

func (c *Camera) stopPreviewLocked() error {
	if c.elements == nil {
		return camera.ErrPreviewNotRunning
	}
	c.stopping.Store(true)
	c.cancelMon()
	close(c.stopFlow)
	err := destroyPipeline(c.elements)
	c.wg.Wait()
	c.elements = nil
	c.state = camera.StateCreated

	slog.Info("gstcam preview stopped",
		"frames", c.seq.Load(),
		"delivered", c.delivered.Load(),
		"dropped", c.dropped.Load(),
		"bytes_read", c.bytesRead.Load(),
	)
	if err != nil {
		return fmt.Errorf("gstcam: stopping pipeline: %w", err)
	}
	return nil
}

// PreviewSize implements camera.Device.
func (c *Camera) PreviewSize() (int, int) { return c.cfg.Width, c.cfg.Height }

// SupportsFaceDetection implements camera.Device. GStreamer sources
// have no detection engine.
func (c *Camera) SupportsFaceDetection() bool { return false }

// MaxDetectedFaces implements camera.Device.
func (c *Camera) MaxDetectedFaces() int { return 0 }

// StartFaceDetection implements camera.Device.
func (c *Camera) StartFaceDetection(camera.DetectFunc) error {
	return camera.ErrDetectionUnsupported
}

// StopFaceDetection implements camera.Device.
func (c *Camera) StopFaceDetection() error {
	return camera.ErrDetectionNotRunning
}

// Capture encodes the most recent preview frame as JPEG. The still
// reflects the on-screen preview, redaction included, so nothing a
// viewer was shielded from ends up in a file.
func (c *Camera) Capture(ctx context.Context) (*types.Photo, error) {
	c.mu.Lock()
	if c.elements == nil {
		c.mu.Unlock()
		return nil, camera.ErrPreviewNotRunning
	}
	c.state = camera.StateCapturing
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.elements != nil {
			c.state = camera.StatePreview
		}
		c.mu.Unlock()
	}()

	frame, err := c.waitForFrame(ctx)
	if err != nil {
		return nil, err
	}

	img, err := i420ToYCbCr(frame)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("gstcam: encoding capture: %w", err)
	}

	slog.Debug("gstcam captured still", "seq", frame.Seq, "bytes", buf.Len())
	return &types.Photo{
		Data:    buf.Bytes(),
		Format:  "jpeg",
		Width:   frame.Width,
		Height:  frame.Height,
		TakenAt: time.Now(),
	}, nil
}

// waitForFrame polls for the first delivered frame; a capture right
// after StartPreview may beat the pipeline's preroll.
func (c *Camera) waitForFrame(ctx context.Context) (*types.Frame, error) {
	for {
		c.lastMu.Lock()
		f := c.lastFrame
		c.lastMu.Unlock()
		if f != nil {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gstcam: no frame before capture deadline: %w", ctx.Err())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// State implements camera.Device.
func (c *Camera) State() camera.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats implements camera.Device.
func (c *Camera) Stats() types.CameraStats {
	c.mu.Lock()
	startedAt := c.startedAt
	running := c.elements != nil
	c.mu.Unlock()

	st := types.CameraStats{
		FramesDelivered: c.delivered.Load(),
		FPSTarget:       float64(c.cfg.FPS),
		Resolution:      fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height),
	}
	if running {
		st.StartedAt = startedAt
		if up := time.Since(startedAt).Seconds(); up > 0 {
			st.FPSReal = float64(c.delivered.Load()) / up
		}
	}
	return st
}

// Close implements camera.Device.
func (c *Camera) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.elements != nil {
		if err := c.stopPreviewLocked(); err != nil {
			slog.Warn("gstcam: stopping preview during close", "error", err)
		}
	}
	return nil
}

// onNewSample runs on the GStreamer streaming thread: copy the buffer
// out, stamp it, hand it to the delivery goroutine. A busy delivery
// slot drops the frame; the appsink already keeps only the latest.
func (c *Camera) onNewSample(sink *app.Sink, frames chan<- *types.Frame) gst.FlowReturn {
	if c.stopping.Load() {
		return gst.FlowEOS
	}
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstcam: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstcam: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstcam: empty buffer received")
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	seq := c.seq.Add(1)
	c.bytesRead.Add(uint64(len(frameData)))
	f := &types.Frame{
		Seq:        seq,
		Timestamp:  time.Now(),
		Width:      c.cfg.Width,
		Height:     c.cfg.Height,
		Format:     types.FormatI420,
		Data:       frameData,
		SourceName: c.cfg.SourceName,
		TraceID:    uuid.New().String(),
	}

	select {
	case frames <- f:
	default:
		c.dropped.Add(1)
		slog.Debug("gstcam: dropping frame, delivery busy",
			"seq", seq,
			"trace_id", f.TraceID,
		)
	}
	return gst.FlowOK
}

// deliverLoop serializes preview callbacks on one goroutine and keeps
// the latest frame around for Capture.
func (c *Camera) deliverLoop(frames <-chan *types.Frame, stop <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-stop:
			return
		case f := <-frames:
			if fn := c.previewFunc(); fn != nil {
				fn(f)
			}
			c.lastMu.Lock()
			c.lastFrame = f
			c.lastMu.Unlock()
			c.delivered.Add(1)
		}
	}
}

// monitorBus watches for EOS, errors and state changes until the
// context is cancelled or the pipeline dies.
func (c *Camera) monitorBus(ctx context.Context, pipeline *gst.Pipeline) {
	defer c.wg.Done()
	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("gstcam: end of stream",
					"source", c.cfg.SourceName,
					"uptime", time.Since(c.startedAt),
					"frames", c.seq.Load(),
				)
				return

			case gst.MessageError:
				gerr := msg.ParseError()
				cat := classifyGstError(gerr)
				c.countError(cat)
				slog.Error("gstcam: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", cat.String(),
					"source", c.cfg.SourceName,
					"uptime", time.Since(c.startedAt),
					"frames", c.seq.Load(),
				)
				return

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					old, new := msg.ParseStateChanged()
					slog.Debug("gstcam: pipeline state changed", "from", old, "to", new)
				}
			}
		}
	}
}

func (c *Camera) countError(cat errorCategory) {
	switch cat {
	case catTransport:
		c.transportErrs.Add(1)
	case catCodec:
		c.codecErrs.Add(1)
	case catAuth:
		c.authErrs.Add(1)
	default:
		c.unknownErrs.Add(1)
	}
}

// i420ToYCbCr views a planar I420 frame as an image without copying.
func i420ToYCbCr(f *types.Frame) (*image.YCbCr, error) {
	ySize := f.Width * f.Height
	cSize := ySize / 4
	if len(f.Data) < ySize+2*cSize {
		return nil, fmt.Errorf("gstcam: short frame buffer: %d bytes for %dx%d", len(f.Data), f.Width, f.Height)
	}
	return &image.YCbCr{
		Y:              f.Data[:ySize],
		Cb:             f.Data[ySize : ySize+cSize],
		Cr:             f.Data[ySize+cSize : ySize+2*cSize],
		YStride:        f.Width,
		CStride:        f.Width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}, nil
}
