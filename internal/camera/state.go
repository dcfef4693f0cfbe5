package camera

// State models the device lifecycle the way camera stacks report it:
// created, previewing, mid-capture, captured-and-about-to-resume.
type State int

const (
	// StateNone means the device is closed or was never opened
	StateNone State = iota
	// StateCreated means the device is open but not streaming
	StateCreated
	// StatePreview means frames are being delivered
	StatePreview
	// StateCapturing means a still capture is in progress
	StateCapturing
	// StateCaptured means a still was taken and preview is resuming
	StateCaptured
)

// String returns the state name used in logs and status payloads.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateCreated:
		return "CREATED"
	case StatePreview:
		return "PREVIEW"
	case StateCapturing:
		return "CAPTURING"
	case StateCaptured:
		return "CAPTURED"
	default:
		return "UNKNOWN"
	}
}
