package detect

import (
	"github.com/crazymi/TizenFaceFilter/internal/camera"
	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// Camera wraps a device without native face detection and presents the
// capability backed by a software Worker. Preview frames tee into the
// worker before reaching the registered preview callback, so detection
// sees pre-redaction pixels.
type Camera struct {
	camera.Device
	worker *Worker
}

// Wrap attaches the worker-backed capability to dev. The inner device's
// own detection support, if any, is shadowed; callers wrap only devices
// that report none.
func Wrap(dev camera.Device, w *Worker) *Camera {
	return &Camera{Device: dev, worker: w}
}

// SupportsFaceDetection implements camera.Device.
func (c *Camera) SupportsFaceDetection() bool {
	return true
}

// MaxDetectedFaces implements camera.Device.
func (c *Camera) MaxDetectedFaces() int {
	return c.worker.MaxFaces()
}

// SetPreviewFunc implements camera.Device, inserting the worker tee.
func (c *Camera) SetPreviewFunc(fn camera.PreviewFunc) {
	if fn == nil {
		c.Device.SetPreviewFunc(nil)
		return
	}
	c.Device.SetPreviewFunc(func(f *types.Frame) {
		c.worker.Offer(f)
		fn(f)
	})
}

// StartFaceDetection implements camera.Device.
func (c *Camera) StartFaceDetection(fn camera.DetectFunc) error {
	if c.Device.State() != camera.StatePreview {
		return camera.ErrPreviewNotRunning
	}
	return c.worker.Start(fn)
}

// StopFaceDetection implements camera.Device.
func (c *Camera) StopFaceDetection() error {
	return c.worker.Stop()
}

// StopPreview implements camera.Device. Like hardware detection, the
// software worker does not outlive the preview stream.
func (c *Camera) StopPreview() error {
	if c.worker.running.Load() {
		_ = c.worker.Stop()
	}
	return c.Device.StopPreview()
}

// Close implements camera.Device.
func (c *Camera) Close() error {
	if c.worker.running.Load() {
		_ = c.worker.Stop()
	}
	return c.Device.Close()
}
