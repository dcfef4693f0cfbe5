package types

import "fmt"

// Resolution represents supported preview resolutions
type Resolution int

const (
	// Res360p represents 480x360 resolution
	Res360p Resolution = iota
	// Res480p represents 640x480 resolution (VGA, the default preview size)
	Res480p
	// Res720p represents 1280x720 resolution (HD)
	Res720p
	// Res1080p represents 1920x1080 resolution (Full HD)
	Res1080p
)

// Dimensions returns the width and height for the resolution
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case Res360p:
		return 480, 360
	case Res480p:
		return 640, 480
	case Res720p:
		return 1280, 720
	case Res1080p:
		return 1920, 1080
	default:
		// Safe default: VGA preview
		return 640, 480
	}
}

// String returns a human-readable string representation of the resolution
func (r Resolution) String() string {
	switch r {
	case Res360p:
		return "360p"
	case Res480p:
		return "480p"
	case Res720p:
		return "720p"
	case Res1080p:
		return "1080p"
	default:
		return "480p"
	}
}

// ParseResolution converts a config string ("480p", "720p", ...) into a
// Resolution. Unknown strings are rejected rather than defaulted so a
// typo in the config surfaces at startup.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "360p":
		return Res360p, nil
	case "480p":
		return Res480p, nil
	case "720p":
		return Res720p, nil
	case "1080p":
		return Res1080p, nil
	default:
		return Res480p, fmt.Errorf("types: unknown resolution %q (valid: 360p, 480p, 720p, 1080p)", s)
	}
}
