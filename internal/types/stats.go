package types

import "time"

// CameraStats contains device-level counters.
type CameraStats struct {
	// FramesDelivered is the total number of preview frames delivered
	FramesDelivered uint64
	// DetectionsDelivered is the total number of detection callbacks fired
	DetectionsDelivered uint64
	// FPSTarget is the configured preview rate
	FPSTarget float64
	// FPSReal is the measured preview rate
	FPSReal float64
	// Resolution is the negotiated preview size ("640x480")
	Resolution string
	// StartedAt is when the preview started (zero if not running)
	StartedAt time.Time
	// IsRunning indicates an active preview
	IsRunning bool
}

// RegistryStats contains face registry counters. Contention drops are
// normal operation, not errors; they are counted so operators can see
// how often the trylock discipline sheds work.
type RegistryStats struct {
	// Updates is the number of successful TryUpdate calls (incl. zero-count)
	Updates uint64
	// DroppedUpdates is the number of TryUpdate calls lost to contention
	DroppedUpdates uint64
	// Snapshots is the number of successful TrySnapshot calls
	Snapshots uint64
	// DroppedSnapshots is the number of TrySnapshot calls lost to contention
	DroppedSnapshots uint64
}

// SessionStats contains camera-screen controller counters.
type SessionStats struct {
	// FramesSeen is the number of preview callbacks observed
	FramesSeen uint64
	// FramesRedacted is the number of frames where at least one rect was blanked
	FramesRedacted uint64
	// RedactionsSkipped is the number of frames skipped due to registry contention
	RedactionsSkipped uint64
	// Detections is the number of detection callbacks observed
	Detections uint64
	// DetectionsDropped is the number of registry updates lost to contention
	DetectionsDropped uint64
	// PhotosTaken is the number of successful captures
	PhotosTaken uint64
	// EventsDropped is the number of events dropped on a full channel
	EventsDropped uint64
	// Registry is the embedded registry view (zero when unsupported)
	Registry RegistryStats
}

// BusStats contains display bus counters.
type BusStats struct {
	// Subscribers is the current subscriber count
	Subscribers int
	// Published is the number of frames offered to the bus
	Published uint64
	// Delivered is the number of frame deliveries across all subscribers
	Delivered uint64
	// Dropped is the number of deliveries lost to full subscriber buffers
	Dropped uint64
}
