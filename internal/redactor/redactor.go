// Package redactor blanks detected face regions out of preview frames.
//
// Redaction happens in place on the luma plane: zeroing Y samples turns
// the region black in any planar YUV format without touching chroma,
// which is cheap enough to run inside the per-frame callback. The
// stride is always the frame's own width; frames arrive at whatever
// size the device negotiated.
package redactor

import (
	"fmt"
	"sync/atomic"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// Mode selects how many of the detected faces get blanked per frame.
type Mode int32

const (
	// ModeFirstOnly blanks only the first detected rectangle, matching
	// the original viewfinder behavior.
	ModeFirstOnly Mode = iota
	// ModeAll blanks every detected rectangle.
	ModeAll
)

// String returns the config spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	default:
		return "first"
	}
}

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "first":
		return ModeFirstOnly, nil
	case "all":
		return ModeAll, nil
	default:
		return ModeFirstOnly, fmt.Errorf("redactor: unknown redact mode %q (valid: first, all)", s)
	}
}

// Processor applies face redaction to frames. Safe for concurrent use;
// the mode may be switched at runtime while frames are in flight.
type Processor struct {
	mode atomic.Int32

	framesRedacted atomic.Uint64
	rectsBlanked   atomic.Uint64
}

// New returns a Processor starting in the given mode.
func New(mode Mode) *Processor {
	p := &Processor{}
	p.mode.Store(int32(mode))
	return p
}

// SetMode switches the redaction scope for subsequent frames.
func (p *Processor) SetMode(mode Mode) {
	p.mode.Store(int32(mode))
}

// CurrentMode returns the active redaction scope.
func (p *Processor) CurrentMode() Mode {
	return Mode(p.mode.Load())
}

// Apply blanks the luma samples covered by the given rectangles and
// returns how many rectangles were actually blanked. Rectangles are
// clipped to the frame; ones that fall entirely outside are skipped.
// Frames whose buffer cannot hold a luma plane are left untouched.
func (p *Processor) Apply(frame *types.Frame, rects []types.Rect) int {
	if frame == nil || len(rects) == 0 {
		return 0
	}
	lum := frame.Luma()
	if lum == nil {
		return 0
	}
	if p.CurrentMode() == ModeFirstOnly {
		rects = rects[:1]
	}

	stride := frame.Width
	blanked := 0
	for _, r := range rects {
		c := r.Clip(frame.Width, frame.Height)
		if c.Empty() {
			continue
		}
		base := c.X + c.Y*stride
		for j := 0; j < c.Height; j++ {
			row := lum[base+j*stride : base+j*stride+c.Width]
			for i := range row {
				row[i] = 0
			}
		}
		blanked++
	}
	if blanked > 0 {
		p.framesRedacted.Add(1)
		p.rectsBlanked.Add(uint64(blanked))
	}
	return blanked
}

// FramesRedacted returns how many frames had at least one rect blanked.
func (p *Processor) FramesRedacted() uint64 {
	return p.framesRedacted.Load()
}

// RectsBlanked returns the total number of rectangles blanked.
func (p *Processor) RectsBlanked() uint64 {
	return p.rectsBlanked.Load()
}
