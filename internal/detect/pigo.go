package detect

import (
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// PigoConfig configures the pigo-backed detector.
type PigoConfig struct {
	// CascadePath points at a binary pigo cascade (facefinder). Required.
	CascadePath string
	// MinSize is the smallest face side in pixels (default 60)
	MinSize int
	// MaxSize is the largest face side in pixels (0 = frame-bound)
	MaxSize int
	// ShiftFactor moves the detection window by this fraction (default 0.1)
	ShiftFactor float64
	// ScaleFactor grows the window between scans (default 1.1)
	ScaleFactor float64
	// IoU is the cluster overlap threshold (default 0.2)
	IoU float64
	// MinQuality drops detections scoring below this (default 5.0)
	MinQuality float32
}

func (c *PigoConfig) applyDefaults() {
	if c.MinSize <= 0 {
		c.MinSize = 60
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
}

// Pigo detects faces with the pure-Go pigo cascade classifier. The
// classifier works directly on grayscale pixels, which is exactly what
// the preview luma plane is, so no conversion is needed per frame.
type Pigo struct {
	cfg        PigoConfig
	classifier *pigo.Pigo
}

// NewPigo loads and unpacks the cascade. Fails fast on a missing or
// corrupt cascade file so a misconfigured daemon dies at startup, not on
// the first frame.
func NewPigo(cfg PigoConfig) (*Pigo, error) {
	if cfg.CascadePath == "" {
		return nil, fmt.Errorf("detect: cascade path is required")
	}
	cfg.applyDefaults()

	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("detect: reading cascade %s: %w", cfg.CascadePath, err)
	}
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("detect: unpacking cascade %s: %w", cfg.CascadePath, err)
	}
	return &Pigo{cfg: cfg, classifier: classifier}, nil
}

// Detect implements Detector.
func (p *Pigo) Detect(lum []byte, width, height int) ([]types.Rect, error) {
	if len(lum) < width*height {
		return nil, fmt.Errorf("detect: luma plane too short for %dx%d", width, height)
	}

	maxSize := p.cfg.MaxSize
	if maxSize <= 0 {
		maxSize = width
		if height < width {
			maxSize = height
		}
	}

	dets := p.classifier.RunCascade(pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: p.cfg.ShiftFactor,
		ScaleFactor: p.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: lum,
			Rows:   height,
			Cols:   width,
			Dim:    width,
		},
	}, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.cfg.IoU)

	rects := make([]types.Rect, 0, len(dets))
	for _, d := range dets {
		if d.Q < p.cfg.MinQuality {
			continue
		}
		// pigo reports center and side; rects carry the top-left corner
		half := d.Scale / 2
		rects = append(rects, types.Rect{
			X:      d.Col - half,
			Y:      d.Row - half,
			Width:  d.Scale,
			Height: d.Scale,
		})
	}
	return rects, nil
}
