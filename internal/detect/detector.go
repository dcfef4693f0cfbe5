// Package detect adds a face-detection capability to camera devices
// that lack a native one: a pluggable Detector runs on a sampling worker
// goroutine fed by a single-slot mailbox, so detection latency never
// backpressures the preview path.
package detect

import "github.com/crazymi/TizenFaceFilter/internal/types"

// Detector finds face rectangles on a luma plane. Implementations must
// be safe for repeated calls from a single worker goroutine and must not
// retain the pixel slice.
type Detector interface {
	Detect(lum []byte, width, height int) ([]types.Rect, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(lum []byte, width, height int) ([]types.Rect, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(lum []byte, width, height int) ([]types.Rect, error) {
	return f(lum, width, height)
}
