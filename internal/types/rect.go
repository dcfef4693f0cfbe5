package types

// Rect is a rectangle in pixel coordinates. Detected face rectangles
// may lie partly or fully outside the frame they were detected on;
// consumers clip before touching pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the pixel area of the rectangle.
func (r Rect) Area() int {
	return r.Width * r.Height
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Clip intersects the rectangle with a frame of the given dimensions.
// The result is always inside the frame with non-negative sizes; a
// rectangle entirely outside comes back Empty.
func (r Rect) Clip(frameWidth, frameHeight int) Rect {
	if r.X < 0 {
		r.Width += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.Height += r.Y
		r.Y = 0
	}
	if r.X >= frameWidth || r.Y >= frameHeight {
		return Rect{X: r.X, Y: r.Y}
	}
	if r.X+r.Width > frameWidth {
		r.Width = frameWidth - r.X
	}
	if r.Y+r.Height > frameHeight {
		r.Height = frameHeight - r.Y
	}
	if r.Width < 0 {
		r.Width = 0
	}
	if r.Height < 0 {
		r.Height = 0
	}
	return r
}
