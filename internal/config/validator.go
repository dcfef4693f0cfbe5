package config

import (
	"fmt"
	"regexp"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return err
	}

	if cfg.Preview.SinkBuffer <= 0 {
		cfg.Preview.SinkBuffer = 8
	}

	if err := validateFaceDetection(&cfg.FaceDetection); err != nil {
		return err
	}

	// MQTT defaults; the broker itself is optional for offline use
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = cfg.InstanceID
	}
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = "facefilter/control"
	}
	if cfg.MQTT.Topics.Events == "" {
		cfg.MQTT.Topics.Events = "facefilter/events"
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = "facefilter/health"
	}
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control": 1,
			"events":  0,
			"health":  0,
		}
	}

	return nil
}

func validateCamera(cam *CameraConfig) error {
	switch cam.Backend {
	case "":
		cam.Backend = "mock"
	case "mock", "gstreamer":
	default:
		return fmt.Errorf("camera.backend must be 'mock' or 'gstreamer', got '%s'", cam.Backend)
	}

	switch cam.Source {
	case "":
		cam.Source = "v4l2"
	case "v4l2", "rtsp":
	default:
		return fmt.Errorf("camera.source must be 'v4l2' or 'rtsp', got '%s'", cam.Source)
	}
	if cam.Backend == "gstreamer" && cam.Source == "rtsp" && cam.RTSPURL == "" {
		return fmt.Errorf("camera.rtsp_url is required for the rtsp source")
	}
	if cam.Source == "v4l2" && cam.Device == "" {
		cam.Device = "/dev/video0"
	}

	if cam.Resolution == "" {
		cam.Resolution = "480p"
	}
	if _, err := types.ParseResolution(cam.Resolution); err != nil {
		return fmt.Errorf("camera.resolution: %w", err)
	}

	if cam.FPS <= 0 {
		cam.FPS = 15
	}
	if cam.MaxFaces <= 0 {
		cam.MaxFaces = 10
	}
	if cam.DetectionHz <= 0 {
		cam.DetectionHz = 5
	}
	return nil
}

func validateFaceDetection(fd *FaceDetectionConfig) error {
	switch fd.Redact {
	case "":
		fd.Redact = "first"
	case "first", "all":
	default:
		return fmt.Errorf("face_detection.redact must be 'first' or 'all', got '%s'", fd.Redact)
	}
	if fd.IntervalFrames <= 0 {
		fd.IntervalFrames = 3
	}
	if fd.MaxFaces <= 0 {
		fd.MaxFaces = 16
	}

	c := &fd.Cascade
	if c.MinSize <= 0 {
		c.MinSize = 60
	}
	if c.MaxSize < 0 {
		c.MaxSize = 0
	}
	if c.ShiftFactor <= 0 {
		c.ShiftFactor = 0.1
	}
	if c.ScaleFactor <= 1 {
		c.ScaleFactor = 1.1
	}
	if c.IoU <= 0 {
		c.IoU = 0.2
	}
	if c.MinQuality <= 0 {
		c.MinQuality = 5.0
	}
	return nil
}
