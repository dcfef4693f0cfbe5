// Package session is the camera-screen controller: it wires a camera
// device's preview stream to the face registry, blanks detected faces
// out of the luma plane before any frame leaves the process, and runs
// the detection toggle state machine.
//
// Two callbacks meet here on different goroutines. The detection
// callback produces face rectangles into the shared registry; the
// preview callback consumes them to redact the frame in hand. Neither
// side ever waits on the other: both go through the registry's trylock
// operations and treat contention as a dropped round. A preview frame
// is worth more on screen slightly stale than late.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crazymi/TizenFaceFilter/internal/camera"
	"github.com/crazymi/TizenFaceFilter/internal/faces"
	"github.com/crazymi/TizenFaceFilter/internal/redactor"
	"github.com/crazymi/TizenFaceFilter/internal/storage"
	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// ErrNoStore is returned by CapturePhoto when no photo store was
// configured.
var ErrNoStore = errors.New("session: no photo store configured")

// FrameSink receives every preview frame after redaction. Publish must
// not block and must not retain the frame.
type FrameSink interface {
	Publish(*types.Frame)
}

// Config carries the session collaborators and knobs.
type Config struct {
	// RedactMode selects first-face-only or all-faces blanking.
	RedactMode redactor.Mode
	// EventBuffer sizes the events channel (default 16). A full
	// channel drops events rather than stalling a callback.
	EventBuffer int
	// Sink receives post-redaction frames. Optional.
	Sink FrameSink
	// Store persists captured photos. Optional; CapturePhoto fails
	// without one.
	Store *storage.Store
}

// Session owns one camera device and its face-redaction state.
//
// The lifecycle mutex serializes Start/Stop/Toggle/Capture/Close. The
// frame and detection callbacks never take it: they touch only the
// registry, the atomic flags and the counters.
type Session struct {
	dev      camera.Device
	registry *faces.Registry // nil when the device lacks detection
	redact   *redactor.Processor
	store    *storage.Store
	sink     FrameSink

	// detecting is the flag the preview callback gates redaction on.
	// It flips true only after a successful detection start and is
	// forced false whenever the preview stops.
	detecting  atomic.Bool
	previewing atomic.Bool
	closed     atomic.Bool

	mu sync.Mutex

	// scratch receives registry snapshots on the preview path. Preview
	// callbacks are serialized by the device contract, so one buffer
	// serves every frame without allocation.
	scratch []types.Rect

	events chan types.Event

	framesSeen        atomic.Uint64
	framesRedacted    atomic.Uint64
	redactionsSkipped atomic.Uint64
	detections        atomic.Uint64
	photosTaken       atomic.Uint64
	eventsDropped     atomic.Uint64
}

// New builds a session around dev. The face registry is allocated only
// when the device reports detection support, sized to its capability
// limit.
func New(dev camera.Device, cfg Config) *Session {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}
	s := &Session{
		dev:    dev,
		redact: redactor.New(cfg.RedactMode),
		store:  cfg.Store,
		sink:   cfg.Sink,
		events: make(chan types.Event, cfg.EventBuffer),
	}
	if dev.SupportsFaceDetection() {
		s.registry = faces.NewRegistry(dev.MaxDetectedFaces())
		s.scratch = make([]types.Rect, s.registry.Capacity())
	}
	return s
}

// StartPreview registers the redacting frame callback and starts the
// device. The context bounds startup only.
func (s *Session) StartPreview(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return camera.ErrClosed
	}
	if s.previewing.Load() {
		return camera.ErrPreviewRunning
	}
	s.dev.SetPreviewFunc(s.onPreviewFrame)
	if err := s.dev.StartPreview(ctx); err != nil {
		return fmt.Errorf("session: starting preview: %w", err)
	}
	s.previewing.Store(true)
	w, h := s.dev.PreviewSize()
	slog.Info("preview started", "width", w, "height", h)
	s.emit(types.LifecycleEvent{Stage: "preview_started", At: time.Now()})
	return nil
}

// StopPreview stops the device stream. The detection flag is forced
// off no matter how the stop goes: redaction state must never outlive
// the stream it belongs to.
func (s *Session) StopPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopPreviewLocked()
}

func (s *Session) stopPreviewLocked() error {
	if !s.previewing.Load() {
		return camera.ErrPreviewNotRunning
	}
	err := s.dev.StopPreview()
	s.previewing.Store(false)
	wasDetecting := s.detecting.Swap(false)
	if err != nil {
		return fmt.Errorf("session: stopping preview: %w", err)
	}
	slog.Info("preview stopped", "detection_was_on", wasDetecting)
	s.emit(types.LifecycleEvent{Stage: "preview_stopped", At: time.Now()})
	return nil
}

// ToggleFaceDetection flips detection and returns the resulting state.
// The flag changes only on a successful device transition; a failed
// start leaves it off, a failed stop leaves it on, and the error is
// returned for surfacing.
func (s *Session) ToggleFaceDetection() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false, camera.ErrClosed
	}

	if s.detecting.Load() {
		if err := s.dev.StopFaceDetection(); err != nil {
			return true, fmt.Errorf("session: stopping face detection: %w", err)
		}
		s.detecting.Store(false)
		slog.Info("face detection off")
		s.emit(types.LifecycleEvent{Stage: "detection_off", At: time.Now()})
		return false, nil
	}

	if s.registry == nil {
		return false, camera.ErrDetectionUnsupported
	}
	if !s.previewing.Load() {
		return false, camera.ErrPreviewNotRunning
	}
	if err := s.dev.StartFaceDetection(s.onFacesDetected); err != nil {
		return false, fmt.Errorf("session: starting face detection: %w", err)
	}
	s.detecting.Store(true)
	slog.Info("face detection on", "capacity", s.registry.Capacity(), "mode", s.redact.CurrentMode())
	s.emit(types.LifecycleEvent{Stage: "detection_on", At: time.Now()})
	return true, nil
}

// CapturePhoto takes a still through the device and writes it to the
// store, returning the saved path.
func (s *Session) CapturePhoto(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return "", camera.ErrClosed
	}
	if !s.previewing.Load() {
		return "", camera.ErrPreviewNotRunning
	}
	if s.store == nil {
		return "", ErrNoStore
	}
	photo, err := s.dev.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("session: capture: %w", err)
	}
	path, err := s.store.SavePhoto(photo)
	if err != nil {
		return "", fmt.Errorf("session: saving photo: %w", err)
	}
	s.photosTaken.Add(1)
	slog.Info("photo saved", "path", path, "bytes", len(photo.Data))
	s.emit(types.PhotoEvent{Path: path, Bytes: len(photo.Data), At: photo.TakenAt})
	return path, nil
}

// Detecting reports the detection flag.
func (s *Session) Detecting() bool { return s.detecting.Load() }

// Previewing reports whether the preview stream is running.
func (s *Session) Previewing() bool { return s.previewing.Load() }

// FaceCount returns the registry count without taking any lock. Zero
// when the device has no detection capability.
func (s *Session) FaceCount() int {
	if s.registry == nil {
		return 0
	}
	return s.registry.Count()
}

// RedactMode returns the active blanking mode.
func (s *Session) RedactMode() redactor.Mode { return s.redact.CurrentMode() }

// SetRedactMode switches between first-face and all-faces blanking.
// Takes effect on the next preview frame.
func (s *Session) SetRedactMode(mode redactor.Mode) {
	s.redact.SetMode(mode)
	slog.Info("redact mode set", "mode", mode)
}

// Device exposes the underlying camera for status queries.
func (s *Session) Device() camera.Device { return s.dev }

// Events returns the session event stream. The channel closes on
// Close; events are dropped, never blocked on, when it is full.
func (s *Session) Events() <-chan types.Event { return s.events }

// Stats assembles the session counters.
func (s *Session) Stats() types.SessionStats {
	st := types.SessionStats{
		FramesSeen:        s.framesSeen.Load(),
		FramesRedacted:    s.framesRedacted.Load(),
		RedactionsSkipped: s.redactionsSkipped.Load(),
		Detections:        s.detections.Load(),
		PhotosTaken:       s.photosTaken.Load(),
		EventsDropped:     s.eventsDropped.Load(),
	}
	if s.registry != nil {
		st.Registry = s.registry.Stats()
		st.DetectionsDropped = st.Registry.DroppedUpdates
	}
	return st
}

// Close stops the preview if needed, releases the device and closes
// the events channel. Idempotent.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	if s.previewing.Load() {
		if err := s.stopPreviewLocked(); err != nil {
			slog.Warn("stopping preview during close", "error", err)
		}
	}
	err := s.dev.Close()
	s.mu.Unlock()
	// The device contract drains callbacks before Close returns, so
	// nothing can emit past this point.
	close(s.events)
	if err != nil {
		return fmt.Errorf("session: closing device: %w", err)
	}
	return nil
}

// onFacesDetected is the producer side of the registry. It runs on the
// device's detection goroutine and must never block: a zero-face pass
// clears the count without the lock, a contended update is simply the
// detector's loss (the next pass overwrites anyway).
//
// Late invocations after toggle-off or preview-stop are tolerated;
// they only refresh the registry, and the cleared flag keeps the
// preview path from acting on it.
func (s *Session) onFacesDetected(rects []types.Rect) {
	s.detections.Add(1)
	if len(rects) == 0 {
		s.registry.Clear()
		return
	}
	if !s.registry.TryUpdate(rects) {
		return
	}
	slog.Debug("faces detected", "count", len(rects), "first", rects[0])
	s.emit(types.FaceEvent{
		Count:    min(len(rects), s.registry.Capacity()),
		First:    rects[0],
		FrameSeq: s.framesSeen.Load(),
		At:       time.Now(),
	})
}

// onPreviewFrame is the consumer side. It runs serialized on the
// device's frame goroutine, owns the frame until it returns, and hands
// it to the sink afterwards.
//
// A frame is redacted exactly when the snapshot trylock succeeded, the
// detection flag is set and the snapshot holds at least one rect. On
// contention the frame passes through untouched; one clean frame is
// the price of never stalling the stream.
func (s *Session) onPreviewFrame(f *types.Frame) {
	s.framesSeen.Add(1)
	if s.registry != nil {
		n, ok := s.registry.TrySnapshot(s.scratch)
		switch {
		case !ok:
			if s.detecting.Load() {
				s.redactionsSkipped.Add(1)
			}
		case s.detecting.Load() && n > 0:
			if s.redact.Apply(f, s.scratch[:n]) > 0 {
				s.framesRedacted.Add(1)
			}
		}
	}
	if s.sink != nil {
		s.sink.Publish(f)
	}
}

// emit delivers ev without blocking; a full channel drops it.
func (s *Session) emit(ev types.Event) {
	select {
	case s.events <- ev:
	default:
		s.eventsDropped.Add(1)
	}
}
