// Package camera defines the device surface the session controller
// drives, and provides a deterministic in-process mock device.
//
// A Device hides whether frames come from GStreamer, from hardware with
// native face detection, or from a synthetic generator. The session only
// sees callbacks and capability queries.
package camera

import (
	"context"
	"errors"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// Sentinel errors shared by all device implementations.
var (
	// ErrPreviewRunning is returned when starting an already-running preview
	ErrPreviewRunning = errors.New("camera: preview already running")
	// ErrPreviewNotRunning is returned by operations that need a live preview
	ErrPreviewNotRunning = errors.New("camera: preview not running")
	// ErrDetectionRunning is returned when starting detection twice
	ErrDetectionRunning = errors.New("camera: face detection already running")
	// ErrDetectionNotRunning is returned when stopping idle detection
	ErrDetectionNotRunning = errors.New("camera: face detection not running")
	// ErrDetectionUnsupported is returned by devices without the capability
	ErrDetectionUnsupported = errors.New("camera: face detection not supported")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("camera: device closed")
)

// PreviewFunc receives each preview frame. Invocations are serialized on
// the device's frame goroutine; the callback must return quickly and may
// mutate the frame in place (the device hands over ownership until the
// callback returns, then publishes the possibly-redacted frame onward).
type PreviewFunc func(*types.Frame)

// DetectFunc receives the rectangles of a face detection pass. It runs
// on the device's detection goroutine, concurrently with PreviewFunc.
// An empty slice means "no faces in view". The slice is only valid for
// the duration of the call.
type DetectFunc func([]types.Rect)

// Device is a camera able to run a preview session, optionally detect
// faces, and capture stills.
//
// Lifecycle contract: StopPreview implicitly stops a running face
// detection (hardware detection does not outlive the preview stream).
// Close stops everything and releases the device.
type Device interface {
	// SetPreviewFunc registers the per-frame callback. Passing nil
	// unregisters it. Must be called before StartPreview.
	SetPreviewFunc(fn PreviewFunc)

	// StartPreview begins frame delivery. The context bounds startup
	// only, not the preview lifetime.
	StartPreview(ctx context.Context) error

	// StopPreview halts frame delivery and waits for in-flight
	// callbacks to return, so no PreviewFunc or DetectFunc invocation
	// survives it. Idempotent errors use ErrPreviewNotRunning.
	StopPreview() error

	// PreviewSize returns the negotiated frame dimensions.
	PreviewSize() (width, height int)

	// SupportsFaceDetection reports whether StartFaceDetection can work.
	SupportsFaceDetection() bool

	// MaxDetectedFaces returns the device limit on simultaneous
	// detections; it sizes the face registry.
	MaxDetectedFaces() int

	// StartFaceDetection begins detection callbacks. Requires a running
	// preview on every known implementation.
	StartFaceDetection(fn DetectFunc) error

	// StopFaceDetection halts detection callbacks.
	StopFaceDetection() error

	// Capture takes a still. Preview delivery may pause while the shot
	// is taken; the device restores it before returning.
	Capture(ctx context.Context) (*types.Photo, error)

	// State returns the current device state.
	State() State

	// Stats returns device counters.
	Stats() types.CameraStats

	// Close releases the device after stopping everything. Like
	// StopPreview it returns only once callbacks have drained.
	// Idempotent.
	Close() error
}
