// Package core wires the camera session, the frame bus, the MQTT
// surfaces and the photo store into one service with a single lifecycle.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crazymi/TizenFaceFilter/internal/camera"
	"github.com/crazymi/TizenFaceFilter/internal/config"
	"github.com/crazymi/TizenFaceFilter/internal/control"
	"github.com/crazymi/TizenFaceFilter/internal/detect"
	"github.com/crazymi/TizenFaceFilter/internal/emitter"
	"github.com/crazymi/TizenFaceFilter/internal/framebus"
	"github.com/crazymi/TizenFaceFilter/internal/gstcam"
	"github.com/crazymi/TizenFaceFilter/internal/redactor"
	"github.com/crazymi/TizenFaceFilter/internal/session"
	"github.com/crazymi/TizenFaceFilter/internal/storage"
	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// App is the main service orchestrator
type App struct {
	cfg *config.Config

	// Core components
	session        *session.Session
	bus            *framebus.Bus
	store          *storage.Store
	emitter        *emitter.MQTTEmitter
	controlHandler *control.Handler

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	runCtx    context.Context    // Run context for preview restarts via control plane
	cancelCtx context.CancelFunc // For MQTT shutdown command
}

// New creates a facefilter service instance from a config file
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"camera_backend", cfg.Camera.Backend,
	)

	store, err := storage.New(cfg.Storage.PhotoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo store: %w", err)
	}

	dev, err := buildDevice(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build camera device: %w", err)
	}

	mode, err := redactor.ParseMode(cfg.FaceDetection.Redact)
	if err != nil {
		return nil, fmt.Errorf("invalid redact mode: %w", err)
	}

	a := &App{
		cfg:     cfg,
		bus:     framebus.New(),
		store:   store,
		emitter: emitter.NewMQTTEmitter(cfg),
	}
	a.session = session.New(dev, session.Config{
		RedactMode: mode,
		Sink:       a.bus,
		Store:      store,
	})

	slog.Info("camera device ready",
		"backend", cfg.Camera.Backend,
		"face_detection", dev.SupportsFaceDetection(),
		"max_faces", dev.MaxDetectedFaces(),
	)

	return a, nil
}

// buildDevice constructs the camera device from config. Devices without
// native face detection get the software engine attached when a cascade
// is configured.
func buildDevice(cfg *config.Config) (camera.Device, error) {
	res, err := types.ParseResolution(cfg.Camera.Resolution)
	if err != nil {
		return nil, err
	}
	width, height := res.Dimensions()

	var dev camera.Device
	switch cfg.Camera.Backend {
	case "gstreamer":
		cam, err := gstcam.New(gstcam.Config{
			Source:  cfg.Camera.Source,
			Device:  cfg.Camera.Device,
			RTSPURL: cfg.Camera.RTSPURL,
			Width:   width,
			Height:  height,
			FPS:     cfg.Camera.FPS,
		})
		if err != nil {
			return nil, err
		}
		dev = cam
		slog.Info("using gstreamer camera",
			"source", cfg.Camera.Source,
			"resolution", res.String(),
		)

	default: // mock
		dev = camera.NewMock(camera.MockConfig{
			Width:       width,
			Height:      height,
			FPS:         float64(cfg.Camera.FPS),
			MaxFaces:    cfg.Camera.MaxFaces,
			DetectionHz: float64(cfg.Camera.DetectionHz),
		})
		slog.Info("using mock camera (no hardware required)",
			"resolution", res.String(),
		)
	}

	if !dev.SupportsFaceDetection() && cfg.FaceDetection.Cascade.Path != "" {
		det, err := detect.NewPigo(detect.PigoConfig{
			CascadePath: cfg.FaceDetection.Cascade.Path,
			MinSize:     cfg.FaceDetection.Cascade.MinSize,
			MaxSize:     cfg.FaceDetection.Cascade.MaxSize,
			ShiftFactor: cfg.FaceDetection.Cascade.ShiftFactor,
			ScaleFactor: cfg.FaceDetection.Cascade.ScaleFactor,
			IoU:         cfg.FaceDetection.Cascade.IoU,
			MinQuality:  float32(cfg.FaceDetection.Cascade.MinQuality),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load face cascade: %w", err)
		}
		worker := detect.NewWorker(det, detect.WorkerConfig{
			SampleEvery: cfg.FaceDetection.IntervalFrames,
			MaxFaces:    cfg.FaceDetection.MaxFaces,
		})
		dev = detect.Wrap(dev, worker)
		slog.Info("software face detection attached",
			"cascade", cfg.FaceDetection.Cascade.Path,
			"sample_every", cfg.FaceDetection.IntervalFrames,
		)
	}

	return dev, nil
}

// Run starts the facefilter service and blocks until context is cancelled
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.isRunning {
		a.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	a.isRunning = true
	a.started = time.Now()
	a.mu.Unlock()

	// Create cancellable context for MQTT shutdown command
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.runCtx = ctx
	a.cancelCtx = cancel
	a.mu.Unlock()

	slog.Info("facefilter service starting",
		"instance_id", a.cfg.InstanceID,
	)

	// Connect MQTT emitter
	if err := a.emitter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	// Setup control plane handler
	a.controlHandler = control.NewHandler(a.cfg, a.emitter.Client, control.CommandCallbacks{
		OnGetStatus:           a.getStatus,
		OnStartPreview:        a.startPreview,
		OnStopPreview:         a.stopPreview,
		OnToggleFaceDetection: a.toggleFaceDetection,
		OnCapturePhoto:        a.capturePhoto,
		OnSetRedactMode:       a.setRedactMode,
		OnShutdown:            a.shutdownViaControl,
	})

	if err := a.controlHandler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	// The display sink stands in for the screen: it drains the bus so
	// delivery stats reflect a live consumer.
	displayFrames, err := a.bus.Subscribe("display", a.cfg.Preview.SinkBuffer)
	if err != nil {
		return fmt.Errorf("failed to subscribe display sink: %w", err)
	}

	a.wg.Add(1)
	go a.watchDisplay(ctx, displayFrames)

	// Event consumer (session events -> MQTT)
	a.wg.Add(1)
	go a.consumeEvents(ctx)

	// Periodic stats logging
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.bus.StartStatsLogger(ctx, 10*time.Second)
	}()

	// Periodic retained health publishing
	a.wg.Add(1)
	go a.publishHealthLoop(ctx)

	// Auto-start preview and detection per config
	if a.cfg.Preview.ShouldAutoStart() {
		if err := a.session.StartPreview(ctx); err != nil {
			return fmt.Errorf("failed to start preview: %w", err)
		}

		if a.cfg.FaceDetection.AutoStart {
			if _, err := a.session.ToggleFaceDetection(); err != nil {
				slog.Warn("auto-start face detection failed",
					"error", err,
					"action", "preview continues without redaction")
			}
		}
	}

	slog.Info("facefilter service running",
		"previewing", a.session.Previewing(),
		"detecting", a.session.Detecting(),
	)

	// Wait for context cancellation
	<-ctx.Done()

	slog.Info("facefilter service run loop exiting")
	return nil
}

// Shutdown performs graceful shutdown of all components
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if !a.isRunning {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	slog.Info("shutting down facefilter service")

	// Shutdown sequence (order is important!):
	// 1. Close the session FIRST: stops preview and detection, releases
	//    the device and closes the event channel.
	if a.session != nil {
		slog.Info("closing camera session")
		if err := a.session.Close(); err != nil {
			slog.Error("failed to close session", "error", err)
		}
	}

	// 2. Close the bus (no more frames once the session is gone)
	if a.bus != nil {
		slog.Info("closing frame bus")
		a.bus.Close()
	}

	// 3. Stop control plane
	if a.controlHandler != nil {
		slog.Info("stopping control handler")
		if err := a.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 4. Wait for goroutines to finish, bounded by the shutdown context
	slog.Info("waiting for goroutines to finish")
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("all goroutines finished")
	case <-ctx.Done():
		slog.Warn("shutdown timeout reached, abandoning goroutines")
	}

	// 5. Disconnect MQTT
	if a.emitter != nil {
		if err := a.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	a.mu.Lock()
	uptime := time.Since(a.started)
	a.isRunning = false
	a.mu.Unlock()

	slog.Info("facefilter service shutdown complete",
		"uptime", uptime,
	)

	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (a *App) ShutdownTimeout() time.Duration {
	return a.cfg.ShutdownTimeout()
}
