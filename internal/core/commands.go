package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crazymi/TizenFaceFilter/internal/redactor"
)

// getStatus returns the current service status
func (a *App) getStatus() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sessionStats := a.session.Stats()
	deviceStats := a.session.Device().Stats()
	busStats := a.bus.Stats()
	emitterStats := a.emitter.Stats()

	return map[string]interface{}{
		"instance_id": a.cfg.InstanceID,
		"uptime_s":    time.Since(a.started).Seconds(),
		"running":     a.isRunning,
		"preview": map[string]interface{}{
			"active":     a.session.Previewing(),
			"resolution": deviceStats.Resolution,
			"fps_target": deviceStats.FPSTarget,
			"fps_real":   deviceStats.FPSReal,
			"frames":     deviceStats.FramesDelivered,
		},
		"face_detection": map[string]interface{}{
			"enabled":       a.session.Detecting(),
			"supported":     a.session.Device().SupportsFaceDetection(),
			"redact_mode":   a.session.RedactMode().String(),
			"faces_in_view": a.session.FaceCount(),
			"detections":    sessionStats.Detections,
		},
		"redaction": map[string]interface{}{
			"frames_seen":     sessionStats.FramesSeen,
			"frames_redacted": sessionStats.FramesRedacted,
			"skipped":         sessionStats.RedactionsSkipped,
			"registry": map[string]interface{}{
				"updates":           sessionStats.Registry.Updates,
				"dropped_updates":   sessionStats.Registry.DroppedUpdates,
				"snapshots":         sessionStats.Registry.Snapshots,
				"dropped_snapshots": sessionStats.Registry.DroppedSnapshots,
			},
		},
		"photos_taken": sessionStats.PhotosTaken,
		"framebus": map[string]interface{}{
			"subscribers": busStats.Subscribers,
			"published":   busStats.Published,
			"delivered":   busStats.Delivered,
			"dropped":     busStats.Dropped,
		},
		"emitter": map[string]interface{}{
			"connected": emitterStats.Connected,
			"published": emitterStats.Published,
			"errors":    emitterStats.Errors,
		},
		"config": map[string]interface{}{
			"camera": map[string]interface{}{
				"backend":    a.cfg.Camera.Backend,
				"resolution": a.cfg.Camera.Resolution,
				"fps":        a.cfg.Camera.FPS,
			},
			"mqtt": map[string]interface{}{
				"broker":        a.cfg.MQTT.Broker,
				"control_topic": a.cfg.MQTT.Topics.Control,
				"events_topic":  a.cfg.MQTT.Topics.Events,
			},
		},
	}
}

// startPreview starts the preview via control command
func (a *App) startPreview() error {
	a.mu.RLock()
	ctx := a.runCtx
	a.mu.RUnlock()

	if ctx == nil {
		return fmt.Errorf("service not running")
	}
	return a.session.StartPreview(ctx)
}

// stopPreview stops the preview via control command. Detection is
// forced off with it, whatever the device says.
func (a *App) stopPreview() error {
	return a.session.StopPreview()
}

// toggleFaceDetection flips the detection flag via control command
func (a *App) toggleFaceDetection() (bool, error) {
	return a.session.ToggleFaceDetection()
}

// capturePhoto takes a still, bounded by a capture timeout
func (a *App) capturePhoto() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.session.CapturePhoto(ctx)
}

// setRedactMode switches between first-face and all-faces blanking
func (a *App) setRedactMode(mode string) error {
	m, err := redactor.ParseMode(mode)
	if err != nil {
		return err
	}
	a.session.SetRedactMode(m)
	slog.Info("redact mode updated via control plane", "mode", m)
	return nil
}

// shutdownViaControl initiates graceful shutdown via MQTT control command
func (a *App) shutdownViaControl() error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.isRunning {
		return fmt.Errorf("service not running")
	}

	if a.cancelCtx == nil {
		return fmt.Errorf("shutdown not available (no cancel context)")
	}

	// Cancelling the run context makes Run() return; main owns the
	// graceful shutdown sequence from there.
	a.cancelCtx()
	return nil
}
