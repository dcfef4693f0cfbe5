package gstcam

import (
	"errors"
	"testing"

	"github.com/crazymi/TizenFaceFilter/internal/camera"
	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// Pipeline construction needs GStreamer libraries on the host, so the
// tests here stick to the pure parts: config validation, caps strings
// and error classification.

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		shouldErr bool
	}{
		{name: "defaults", cfg: Config{}, shouldErr: false},
		{name: "v4l2 explicit", cfg: Config{Source: "v4l2", Device: "/dev/video2"}, shouldErr: false},
		{name: "rtsp with url", cfg: Config{Source: "rtsp", RTSPURL: "rtsp://h/cam"}, shouldErr: false},
		{name: "rtsp without url", cfg: Config{Source: "rtsp"}, shouldErr: true},
		{name: "unknown source", cfg: Config{Source: "screen"}, shouldErr: true},
		{name: "fps above cap", cfg: Config{FPS: 90}, shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam, err := New(tt.cfg)
			if tt.shouldErr {
				if err == nil {
					t.Error("New accepted invalid config")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			w, h := cam.PreviewSize()
			if w <= 0 || h <= 0 {
				t.Errorf("PreviewSize = %dx%d after defaults", w, h)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	cam, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if cam.cfg.Source != "v4l2" || cam.cfg.Device != "/dev/video0" {
		t.Errorf("source defaults = %s %s, want v4l2 /dev/video0", cam.cfg.Source, cam.cfg.Device)
	}
	if w, h := cam.PreviewSize(); w != 640 || h != 480 {
		t.Errorf("PreviewSize = %dx%d, want 640x480", w, h)
	}
	if cam.cfg.FPS != 15 {
		t.Errorf("fps = %d, want 15", cam.cfg.FPS)
	}
	if cam.SupportsFaceDetection() {
		t.Error("gstcam claims native face detection")
	}
	if cam.MaxDetectedFaces() != 0 {
		t.Errorf("MaxDetectedFaces = %d, want 0", cam.MaxDetectedFaces())
	}
	if err := cam.StartFaceDetection(nil); !errors.Is(err, camera.ErrDetectionUnsupported) {
		t.Errorf("StartFaceDetection = %v, want ErrDetectionUnsupported", err)
	}
	if err := cam.StopPreview(); !errors.Is(err, camera.ErrPreviewNotRunning) {
		t.Errorf("StopPreview before start = %v, want ErrPreviewNotRunning", err)
	}
}

func TestBuildI420Caps(t *testing.T) {
	tests := []struct {
		w, h, fps int
		want      string
	}{
		{640, 480, 15, "video/x-raw,format=I420,width=640,height=480,framerate=15/1"},
		{1280, 720, 30, "video/x-raw,format=I420,width=1280,height=720,framerate=30/1"},
		{320, 240, 1, "video/x-raw,format=I420,width=320,height=240,framerate=1/1"},
	}
	for _, tt := range tests {
		if got := buildI420Caps(tt.w, tt.h, tt.fps); got != tt.want {
			t.Errorf("buildI420Caps(%d,%d,%d) = %q, want %q", tt.w, tt.h, tt.fps, got, tt.want)
		}
	}
}

func TestClassifyErrorText(t *testing.T) {
	tests := []struct {
		text string
		want errorCategory
	}{
		{"Could not open device '/dev/video0' for reading and writing", catTransport},
		{"Device '/dev/video0' is busy", catTransport},
		{"Failed to connect. (Generic error)", catTransport},
		{"connection timeout while waiting for server response", catTransport},
		{"Unauthorized (401)", catAuth},
		{"not authorized: bad credentials", catAuth},
		{"no decoder available for type 'video/x-h265'", catCodec},
		{"Internal data stream error, reason not-negotiated", catCodec},
		{"something inexplicable happened", catUnknown},
	}
	for _, tt := range tests {
		if got := classifyErrorText(tt.text); got != tt.want {
			t.Errorf("classifyErrorText(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if classifyGstError(nil) != catUnknown {
		t.Error("nil error should classify unknown")
	}
}

func TestErrorCategory_String(t *testing.T) {
	names := map[errorCategory]string{
		catTransport:      "transport",
		catCodec:          "codec",
		catAuth:           "auth",
		catUnknown:        "unknown",
		errorCategory(99): "unknown",
	}
	for cat, want := range names {
		if got := cat.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", cat, got, want)
		}
	}
}

func TestI420ToYCbCr(t *testing.T) {
	w, h := 16, 8
	data := make([]byte, w*h*3/2)
	for i := range data {
		data[i] = byte(i)
	}
	frame := &types.Frame{Width: w, Height: h, Format: types.FormatI420, Data: data}

	img, err := i420ToYCbCr(frame)
	if err != nil {
		t.Fatalf("i420ToYCbCr failed: %v", err)
	}
	if img.YStride != w || img.CStride != w/2 {
		t.Errorf("strides = %d/%d, want %d/%d", img.YStride, img.CStride, w, w/2)
	}
	if &img.Y[0] != &frame.Data[0] {
		t.Error("Y plane is a copy, want a view into the frame buffer")
	}
	if len(img.Y) != w*h || len(img.Cb) != w*h/4 || len(img.Cr) != w*h/4 {
		t.Errorf("plane sizes = %d/%d/%d", len(img.Y), len(img.Cb), len(img.Cr))
	}

	short := &types.Frame{Width: w, Height: h, Format: types.FormatI420, Data: data[:w*h]}
	if _, err := i420ToYCbCr(short); err == nil {
		t.Error("short buffer accepted")
	}
}
