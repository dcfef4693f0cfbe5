package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facefilter.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_FillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "instance_id: facefilter-01\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ShutdownTimeoutS != 5 {
		t.Errorf("shutdown_timeout_s = %d, want 5", cfg.ShutdownTimeoutS)
	}
	if cfg.Camera.Backend != "mock" || cfg.Camera.Source != "v4l2" {
		t.Errorf("camera backend/source = %s/%s, want mock/v4l2", cfg.Camera.Backend, cfg.Camera.Source)
	}
	if cfg.Camera.Device != "/dev/video0" {
		t.Errorf("camera.device = %q, want /dev/video0", cfg.Camera.Device)
	}
	if cfg.Camera.Resolution != "480p" || cfg.Camera.FPS != 15 {
		t.Errorf("camera res/fps = %s/%d, want 480p/15", cfg.Camera.Resolution, cfg.Camera.FPS)
	}
	if cfg.Camera.MaxFaces != 10 || cfg.Camera.DetectionHz != 5 {
		t.Errorf("camera max_faces/detection_hz = %d/%d, want 10/5",
			cfg.Camera.MaxFaces, cfg.Camera.DetectionHz)
	}
	if !cfg.Preview.ShouldAutoStart() {
		t.Error("preview.auto_start should default to true")
	}
	if cfg.Preview.SinkBuffer != 8 {
		t.Errorf("preview.sink_buffer = %d, want 8", cfg.Preview.SinkBuffer)
	}
	if cfg.FaceDetection.AutoStart {
		t.Error("face_detection.auto_start should default to false")
	}
	if cfg.FaceDetection.Redact != "first" {
		t.Errorf("face_detection.redact = %q, want first", cfg.FaceDetection.Redact)
	}
	if cfg.FaceDetection.IntervalFrames != 3 || cfg.FaceDetection.MaxFaces != 16 {
		t.Errorf("face_detection interval/max = %d/%d, want 3/16",
			cfg.FaceDetection.IntervalFrames, cfg.FaceDetection.MaxFaces)
	}
	c := cfg.FaceDetection.Cascade
	if c.MinSize != 60 || c.ShiftFactor != 0.1 || c.ScaleFactor != 1.1 || c.IoU != 0.2 || c.MinQuality != 5.0 {
		t.Errorf("cascade defaults wrong: %+v", c)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("mqtt.broker = %q, want tcp://localhost:1883", cfg.MQTT.Broker)
	}
	if cfg.MQTT.ClientID != "facefilter-01" {
		t.Errorf("mqtt.client_id = %q, want instance id", cfg.MQTT.ClientID)
	}
	if cfg.MQTT.Topics.Control != "facefilter/control" ||
		cfg.MQTT.Topics.Events != "facefilter/events" ||
		cfg.MQTT.Topics.Health != "facefilter/health" {
		t.Errorf("topic defaults wrong: %+v", cfg.MQTT.Topics)
	}
	if cfg.MQTT.QoS["control"] != 1 || cfg.MQTT.QoS["events"] != 0 {
		t.Errorf("qos defaults wrong: %v", cfg.MQTT.QoS)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	body := `
instance_id: cam-lab-3
shutdown_timeout_s: 10
camera:
  backend: gstreamer
  source: rtsp
  rtsp_url: rtsp://10.0.0.9/stream1
  resolution: 720p
  fps: 30
preview:
  auto_start: false
  sink_buffer: 2
face_detection:
  auto_start: true
  redact: all
  interval_frames: 5
  max_faces: 4
  cascade:
    path: /opt/cascades/facefinder
    min_size: 40
storage:
  photo_dir: /var/lib/facefilter/photos
mqtt:
  broker: tcp://broker.lab:1883
  client_id: cam-lab-3-a
  topics:
    control: lab/control
  qos:
    control: 2
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Camera.Backend != "gstreamer" || cfg.Camera.RTSPURL != "rtsp://10.0.0.9/stream1" {
		t.Errorf("camera not honored: %+v", cfg.Camera)
	}
	if cfg.Preview.ShouldAutoStart() {
		t.Error("explicit auto_start: false was ignored")
	}
	if !cfg.FaceDetection.AutoStart || cfg.FaceDetection.Redact != "all" {
		t.Errorf("face_detection not honored: %+v", cfg.FaceDetection)
	}
	if cfg.FaceDetection.Cascade.Path != "/opt/cascades/facefinder" {
		t.Errorf("cascade.path = %q", cfg.FaceDetection.Cascade.Path)
	}
	if cfg.FaceDetection.Cascade.MinSize != 40 {
		t.Errorf("cascade.min_size = %d, want 40", cfg.FaceDetection.Cascade.MinSize)
	}
	// Unset cascade knobs still default.
	if cfg.FaceDetection.Cascade.ScaleFactor != 1.1 {
		t.Errorf("cascade.scale_factor = %v, want default 1.1", cfg.FaceDetection.Cascade.ScaleFactor)
	}
	if cfg.Storage.PhotoDir != "/var/lib/facefilter/photos" {
		t.Errorf("storage.photo_dir = %q", cfg.Storage.PhotoDir)
	}
	if cfg.MQTT.Topics.Control != "lab/control" {
		t.Errorf("mqtt.topics.control = %q, want lab/control", cfg.MQTT.Topics.Control)
	}
	// Explicit qos map suppresses defaults entirely, like the rest of
	// the map-typed fields.
	if cfg.MQTT.QoS["control"] != 2 {
		t.Errorf("qos.control = %d, want 2", cfg.MQTT.QoS["control"])
	}
	if cfg.ShutdownTimeout().Seconds() != 10 {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout())
	}
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing instance id",
			body:    "camera:\n  fps: 15\n",
			wantErr: "instance_id is required",
		},
		{
			name:    "bad instance id",
			body:    "instance_id: Big_Camera\n",
			wantErr: "instance_id must match",
		},
		{
			name:    "bad backend",
			body:    "instance_id: a\ncamera:\n  backend: v4l\n",
			wantErr: "camera.backend",
		},
		{
			name:    "bad source",
			body:    "instance_id: a\ncamera:\n  backend: gstreamer\n  source: webcam\n",
			wantErr: "camera.source",
		},
		{
			name:    "rtsp without url",
			body:    "instance_id: a\ncamera:\n  backend: gstreamer\n  source: rtsp\n",
			wantErr: "camera.rtsp_url is required",
		},
		{
			name:    "bad resolution",
			body:    "instance_id: a\ncamera:\n  resolution: 4k\n",
			wantErr: "camera.resolution",
		},
		{
			name:    "bad redact mode",
			body:    "instance_id: a\nface_detection:\n  redact: blur\n",
			wantErr: "face_detection.redact",
		},
		{
			name:    "malformed yaml",
			body:    "instance_id: [unterminated\n",
			wantErr: "failed to parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}
