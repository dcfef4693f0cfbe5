package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus represents the health state of the facefilter service
type HealthStatus struct {
	Status           string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds    int64  `json:"uptime_seconds"`
	PreviewActive    bool   `json:"preview_active"`
	DetectionEnabled bool   `json:"detection_enabled"`
	MQTTConnected    bool   `json:"mqtt_connected"`
	FramesSeen       uint64 `json:"frames_seen"`
	FramesRedacted   uint64 `json:"frames_redacted"`
	FacesInView      int    `json:"faces_in_view"`
	PhotosTaken      uint64 `json:"photos_taken"`
}

// HealthCheck returns the current health status of the service
func (a *App) HealthCheck() HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sessionStats := a.session.Stats()

	status := HealthStatus{
		Status:           "healthy",
		UptimeSeconds:    int64(time.Since(a.started).Seconds()),
		PreviewActive:    a.session.Previewing(),
		DetectionEnabled: a.session.Detecting(),
		FramesSeen:       sessionStats.FramesSeen,
		FramesRedacted:   sessionStats.FramesRedacted,
		FacesInView:      a.session.FaceCount(),
		PhotosTaken:      sessionStats.PhotosTaken,
	}

	// Check MQTT connection
	if a.emitter != nil && a.emitter.Client != nil && a.emitter.Client.IsConnected() {
		status.MQTTConnected = true
	}

	// Determine overall health status
	if !a.isRunning {
		status.Status = "unhealthy"
	} else if !status.MQTTConnected {
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health endpoint (simple liveness check)
// Returns 200 if the service process is alive
func (a *App) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	a.mu.RLock()
	started := a.started
	a.mu.RUnlock()

	response := map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(started).Seconds()),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles /ready endpoint (detailed readiness check)
// Returns 200 only if the service is ready to handle requests
func (a *App) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := a.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// MetricsHandler handles /metrics endpoint in Prometheus text format
func (a *App) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	a.mu.RLock()
	started := a.started
	a.mu.RUnlock()

	sessionStats := a.session.Stats()
	busStats := a.bus.Stats()
	instance := a.cfg.InstanceID

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "facefilter_uptime_seconds{instance=%q} %d\n", instance, int64(time.Since(started).Seconds()))
	fmt.Fprintf(w, "facefilter_frames_seen_total{instance=%q} %d\n", instance, sessionStats.FramesSeen)
	fmt.Fprintf(w, "facefilter_frames_redacted_total{instance=%q} %d\n", instance, sessionStats.FramesRedacted)
	fmt.Fprintf(w, "facefilter_redactions_skipped_total{instance=%q} %d\n", instance, sessionStats.RedactionsSkipped)
	fmt.Fprintf(w, "facefilter_detections_total{instance=%q} %d\n", instance, sessionStats.Detections)
	fmt.Fprintf(w, "facefilter_photos_taken_total{instance=%q} %d\n", instance, sessionStats.PhotosTaken)
	fmt.Fprintf(w, "facefilter_events_dropped_total{instance=%q} %d\n", instance, sessionStats.EventsDropped)
	fmt.Fprintf(w, "facefilter_bus_published_total{instance=%q} %d\n", instance, busStats.Published)
	fmt.Fprintf(w, "facefilter_bus_dropped_total{instance=%q} %d\n", instance, busStats.Dropped)
}

// StartHealthServer starts the HTTP health check server on the given port
// This runs in a separate goroutine and does not block
func (a *App) StartHealthServer(port string) error {
	mux := http.NewServeMux()

	// Register health check endpoints
	mux.HandleFunc("/health", a.LivenessHandler)
	mux.HandleFunc("/ready", a.ReadinessHandler)
	mux.HandleFunc("/metrics", a.MetricsHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/ready", "/metrics"},
	)

	// Start server in goroutine (non-blocking)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return nil
}

// publishHealthLoop publishes a retained health document so late MQTT
// subscribers always see the last known state.
func (a *App) publishHealthLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	publish := func() {
		health := a.HealthCheck()
		doc := map[string]interface{}{
			"status":            health.Status,
			"instance_id":       a.cfg.InstanceID,
			"uptime_seconds":    health.UptimeSeconds,
			"preview_active":    health.PreviewActive,
			"detection_enabled": health.DetectionEnabled,
			"mqtt_connected":    health.MQTTConnected,
			"frames_seen":       health.FramesSeen,
			"frames_redacted":   health.FramesRedacted,
			"faces_in_view":     health.FacesInView,
			"photos_taken":      health.PhotosTaken,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
		}
		if err := a.emitter.PublishHealth(doc); err != nil {
			slog.Warn("failed to publish health", "error", err)
		}
	}

	publish()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}
