package types

import "time"

// Luma-first planar pixel formats carried by preview frames.
// For all of them Data[:Width*Height] is the luma (Y) plane and the
// luma stride equals Width.
const (
	FormatI420  = "I420"
	FormatNV12  = "NV12"
	FormatGray8 = "GRAY8"
)

// Frame represents a single preview frame.
//
// Frames are owned Go memory: devices copy pixel data out of driver
// buffers before building a Frame, so holding a *Frame past a callback
// is safe. Data MUST NOT be modified after the frame has been published
// to a sink (immutability contract, see internal/framebus).
type Frame struct {
	// Seq is the monotonic per-device sequence number
	Seq uint64
	// Timestamp is when the frame left the device
	Timestamp time.Time
	// Width in pixels; also the luma plane stride
	Width int
	// Height in pixels
	Height int
	// Format is one of FormatI420, FormatNV12, FormatGray8
	Format string
	// Data holds the planar pixel data, luma plane first
	Data []byte
	// SourceName identifies the producing device ("mock", "v4l2:/dev/video0")
	SourceName string
	// TraceID is a unique identifier for tracing a frame across the pipeline
	TraceID string
}

// Luma returns the luma plane, or nil if the buffer is too short to
// hold one. The returned slice aliases Data: writes through it redact
// the frame in place.
func (f *Frame) Luma() []byte {
	n := f.Width * f.Height
	if n <= 0 || len(f.Data) < n {
		return nil
	}
	return f.Data[:n]
}

// CloneLuma returns an independent GRAY8 copy of the luma plane,
// suitable for handing to asynchronous consumers while the original
// frame keeps being mutated.
func (f *Frame) CloneLuma() *Frame {
	lum := f.Luma()
	if lum == nil {
		return nil
	}
	data := make([]byte, len(lum))
	copy(data, lum)
	return &Frame{
		Seq:        f.Seq,
		Timestamp:  f.Timestamp,
		Width:      f.Width,
		Height:     f.Height,
		Format:     FormatGray8,
		Data:       data,
		SourceName: f.SourceName,
		TraceID:    f.TraceID,
	}
}

// Photo is an encoded still image produced by a capture operation.
type Photo struct {
	// Data holds the encoded image bytes
	Data []byte
	// Format is the encoding ("jpeg")
	Format string
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// TakenAt is the capture timestamp
	TakenAt time.Time
}
