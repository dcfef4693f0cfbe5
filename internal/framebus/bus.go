// Package framebus distributes redacted preview frames to display
// sinks with a strict drop policy. A slow sink loses frames; it never
// slows the camera callback down.
package framebus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

var (
	// ErrDuplicateID is returned when a sink id is already subscribed
	ErrDuplicateID = errors.New("framebus: sink id already subscribed")
	// ErrClosed is returned by Subscribe after Close
	ErrClosed = errors.New("framebus: bus closed")
)

type sink struct {
	ch        chan *types.Frame
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Bus fans frames out to subscribed sinks. Publish uses a non-blocking
// send per sink: a full buffer drops that delivery and bumps the sink's
// counter. Published frames are immutable by contract; every sink sees
// the same instance.
type Bus struct {
	mu     sync.RWMutex
	sinks  map[string]*sink
	closed bool

	published atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{sinks: make(map[string]*sink)}
}

// Subscribe registers a sink and returns its frame channel. The channel
// closes on Unsubscribe or Close. Buffer defaults to 1, the drop-old
// semantics worth having on a live preview.
func (b *Bus) Subscribe(id string, buffer int) (<-chan *types.Frame, error) {
	if buffer <= 0 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.sinks[id]; ok {
		return nil, ErrDuplicateID
	}
	s := &sink{ch: make(chan *types.Frame, buffer)}
	b.sinks[id] = s

	slog.Info("sink subscribed to framebus",
		"sink_id", id,
		"buffer", buffer,
		"total_sinks", len(b.sinks),
	)
	return s.ch, nil
}

// Unsubscribe removes a sink and closes its channel. Unknown ids are
// ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sinks[id]
	if !ok {
		return
	}
	delete(b.sinks, id)
	close(s.ch)

	slog.Info("sink unsubscribed from framebus",
		"sink_id", id,
		"total_sinks", len(b.sinks),
	)
}

// Publish offers the frame to every sink. Never blocks. Holding the
// read lock across the sends keeps Unsubscribe/Close from closing a
// channel mid-send.
func (b *Bus) Publish(frame *types.Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, s := range b.sinks {
		select {
		case s.ch <- frame:
			s.delivered.Add(1)
		default:
			s.dropped.Add(1)
			slog.Debug("frame dropped for sink",
				"sink_id", id,
				"frame_seq", frame.Seq,
				"trace_id", frame.TraceID,
			)
		}
	}
	b.published.Add(1)
}

// Stats returns the aggregate bus counters.
func (b *Bus) Stats() types.BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := types.BusStats{
		Subscribers: len(b.sinks),
		Published:   b.published.Load(),
	}
	for _, s := range b.sinks {
		st.Delivered += s.delivered.Load()
		st.Dropped += s.dropped.Load()
	}
	return st
}

// droppedBySink snapshots the per-sink drop counters for the stats
// logger.
func (b *Bus) droppedBySink() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]uint64, len(b.sinks))
	for id, s := range b.sinks {
		out[id] = s.dropped.Load()
	}
	return out
}

// Close drops all sinks and closes their channels. Subsequent Publish
// calls are no-ops and Subscribe fails with ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.sinks {
		close(s.ch)
		delete(b.sinks, id)
	}
	slog.Info("framebus closed", "published", b.published.Load())
}

// StartStatsLogger logs bus counters every interval until ctx is done,
// warning when a sink dropped more than 80% of the interval's frames.
func (b *Bus) StartStatsLogger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prevPublished := b.published.Load()
	prevDropped := b.droppedBySink()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			published := b.published.Load()
			dropped := b.droppedBySink()
			deltaPublished := published - prevPublished

			for id, total := range dropped {
				deltaDropped := total - prevDropped[id]
				if deltaPublished == 0 {
					continue
				}
				dropRate := float64(deltaDropped) / float64(deltaPublished)
				if dropRate > 0.80 {
					slog.Warn("sink high drop rate detected",
						"sink_id", id,
						"drop_rate_pct", int(dropRate*100),
						"dropped_last_interval", deltaDropped,
						"frames_last_interval", deltaPublished,
						"action", "check sink health")
				}
			}

			fields := []interface{}{
				"sinks", len(dropped),
				"published", published,
			}
			for id, total := range dropped {
				if total > 0 {
					fields = append(fields, id+"_dropped", total)
				}
			}
			slog.Debug("framebus stats", fields...)

			prevPublished = published
			prevDropped = dropped
		}
	}
}
