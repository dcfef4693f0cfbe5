package types

import (
	"encoding/json"
	"time"
)

// Event is the interface for everything the daemon publishes on the
// events topic. Implementations are small value types that marshal
// themselves; the emitter never inspects payloads.
type Event interface {
	// Type returns the event type identifier ("faces_detected", ...)
	Type() string
	// Timestamp returns when the event occurred
	Timestamp() time.Time
	// ToJSON serializes the event for publishing
	ToJSON() ([]byte, error)
}

// FaceEvent reports a successful face registry update.
type FaceEvent struct {
	// Count is the number of faces recorded (post-clamp)
	Count int `json:"count"`
	// First is the first detected rectangle, the one the original
	// viewfinder reported in its on-screen diagnostic
	First Rect `json:"first"`
	// FrameSeq is the preview sequence current when the detection landed
	FrameSeq uint64 `json:"frame_seq,omitempty"`
	// At is the detection timestamp
	At time.Time `json:"at"`
}

// Type implements Event
func (e FaceEvent) Type() string { return "faces_detected" }

// Timestamp implements Event
func (e FaceEvent) Timestamp() time.Time { return e.At }

// ToJSON implements Event
func (e FaceEvent) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		FaceEvent
	}{e.Type(), e})
}

// PhotoEvent reports a captured and stored photo.
type PhotoEvent struct {
	// Path is where the photo was written
	Path string `json:"path"`
	// Bytes is the encoded size
	Bytes int `json:"bytes"`
	// At is the capture timestamp
	At time.Time `json:"at"`
}

// Type implements Event
func (e PhotoEvent) Type() string { return "photo_saved" }

// Timestamp implements Event
func (e PhotoEvent) Timestamp() time.Time { return e.At }

// ToJSON implements Event
func (e PhotoEvent) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		PhotoEvent
	}{e.Type(), e})
}

// LifecycleEvent reports a session state change (preview started or
// stopped, detection toggled).
type LifecycleEvent struct {
	// Stage is the lifecycle stage ("preview_started", "detection_on", ...)
	Stage string `json:"stage"`
	// Detail carries optional context (error text on forced transitions)
	Detail string `json:"detail,omitempty"`
	// At is the transition timestamp
	At time.Time `json:"at"`
}

// Type implements Event
func (e LifecycleEvent) Type() string { return "lifecycle" }

// Timestamp implements Event
func (e LifecycleEvent) Timestamp() time.Time { return e.At }

// ToJSON implements Event
func (e LifecycleEvent) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		LifecycleEvent
	}{e.Type(), e})
}
