package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete facefilter configuration
type Config struct {
	InstanceID       string              `yaml:"instance_id"`
	ShutdownTimeoutS int                 `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig        `yaml:"camera"`
	Preview          PreviewConfig       `yaml:"preview"`
	FaceDetection    FaceDetectionConfig `yaml:"face_detection"`
	Storage          StorageConfig       `yaml:"storage"`
	MQTT             MQTTConfig          `yaml:"mqtt"`
}

// CameraConfig contains device settings
type CameraConfig struct {
	Backend     string `yaml:"backend"`      // mock, gstreamer
	Source      string `yaml:"source"`       // gstreamer only: v4l2, rtsp
	Device      string `yaml:"device"`       // v4l2 device node
	RTSPURL     string `yaml:"rtsp_url"`     // rtsp source URL
	Resolution  string `yaml:"resolution"`   // 360p, 480p, 720p, 1080p
	FPS         int    `yaml:"fps"`          // target preview rate
	MaxFaces    int    `yaml:"max_faces"`    // mock native detection capacity
	DetectionHz int    `yaml:"detection_hz"` // mock detection callback rate
}

// PreviewConfig contains display distribution settings
type PreviewConfig struct {
	AutoStart  *bool `yaml:"auto_start"` // start preview on boot (default: true)
	SinkBuffer int   `yaml:"sink_buffer"`
}

// ShouldAutoStart resolves the auto_start default.
func (p PreviewConfig) ShouldAutoStart() bool {
	return p.AutoStart == nil || *p.AutoStart
}

// FaceDetectionConfig contains detection and redaction settings
type FaceDetectionConfig struct {
	AutoStart      bool          `yaml:"auto_start"`      // toggle detection on right after preview
	Redact         string        `yaml:"redact"`          // first, all
	IntervalFrames int           `yaml:"interval_frames"` // software worker samples every Nth frame
	MaxFaces       int           `yaml:"max_faces"`       // software worker capacity
	Cascade        CascadeConfig `yaml:"cascade"`
}

// CascadeConfig tunes the pigo cascade. An empty path disables
// software detection entirely.
type CascadeConfig struct {
	Path        string  `yaml:"path"`
	MinSize     int     `yaml:"min_size"`
	MaxSize     int     `yaml:"max_size"` // 0 selects min(frame width, height)
	ShiftFactor float64 `yaml:"shift_factor"`
	ScaleFactor float64 `yaml:"scale_factor"`
	IoU         float64 `yaml:"iou"`
	MinQuality  float64 `yaml:"min_quality"`
}

// StorageConfig contains photo persistence settings
type StorageConfig struct {
	PhotoDir string `yaml:"photo_dir"` // empty selects $HOME/Pictures
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string          `yaml:"broker"`
	ClientID string          `yaml:"client_id"` // default: instance_id
	Topics   MQTTTopics      `yaml:"topics"`
	QoS      map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Control string `yaml:"control"`
	Events  string `yaml:"events"`
	Health  string `yaml:"health"`
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
