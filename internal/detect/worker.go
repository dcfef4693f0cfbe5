package detect

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crazymi/TizenFaceFilter/internal/camera"
	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// WorkerConfig tunes the sampling detection loop.
type WorkerConfig struct {
	// SampleEvery processes every Nth offered frame (default 3). The
	// frames in between only bump a counter.
	SampleEvery int
	// MaxFaces is the capability limit reported to the session; it
	// sizes the face registry (default 16).
	MaxFaces int
}

func (c *WorkerConfig) applyDefaults() {
	if c.SampleEvery <= 0 {
		c.SampleEvery = 3
	}
	if c.MaxFaces <= 0 {
		c.MaxFaces = 16
	}
}

// Metrics are the worker counters.
type Metrics struct {
	// FramesOffered is how many preview frames passed by
	FramesOffered uint64
	// FramesSampled is how many were picked for detection
	FramesSampled uint64
	// FramesDropped is how many sampled frames were overwritten unprocessed
	FramesDropped uint64
	// Passes is how many detector runs completed
	Passes uint64
	// Errors is how many detector runs failed
	Errors uint64
	// FacesFound is the total rectangles reported
	FacesFound uint64
	// LastPass is the duration of the most recent detector run
	LastPass time.Duration
}

// Worker runs a Detector on a sampled subset of preview frames.
//
// The preview path hands frames in through Offer, which never blocks:
// sampled frames land in a single-slot mailbox that overwrites the
// previous occupant (drop-old: a newer frame is always worth more than
// a stale one). The worker goroutine drains the slot, runs the detector
// and fires the detection callback, exactly like a hardware detection
// engine would on its own thread.
type Worker struct {
	det Detector
	cfg WorkerConfig

	mu      sync.Mutex
	cond    *sync.Cond
	pending *types.Frame
	closed  bool
	fn      camera.DetectFunc

	running atomic.Bool
	wg      sync.WaitGroup

	offered    atomic.Uint64
	sampled    atomic.Uint64
	dropped    atomic.Uint64
	passes     atomic.Uint64
	errs       atomic.Uint64
	facesFound atomic.Uint64
	lastPassNS atomic.Int64
}

// NewWorker wraps a Detector in a sampling loop. The worker is inert
// until Start.
func NewWorker(det Detector, cfg WorkerConfig) *Worker {
	cfg.applyDefaults()
	w := &Worker{det: det, cfg: cfg}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// MaxFaces returns the reported detection capacity.
func (w *Worker) MaxFaces() int {
	return w.cfg.MaxFaces
}

// Start begins the detection loop, delivering results to fn.
func (w *Worker) Start(fn camera.DetectFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running.Load() {
		return camera.ErrDetectionRunning
	}
	w.fn = fn
	w.closed = false
	w.pending = nil
	w.running.Store(true)
	w.wg.Add(1)
	go w.loop()

	slog.Debug("detect worker started",
		"sample_every", w.cfg.SampleEvery, "max_faces", w.cfg.MaxFaces)
	return nil
}

// Stop halts the loop and waits for the in-flight pass to finish. The
// detector is pure CPU work, so the wait is bounded by one pass.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running.Load() {
		w.mu.Unlock()
		return camera.ErrDetectionNotRunning
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	w.wg.Wait()
	w.running.Store(false)
	slog.Debug("detect worker stopped", "passes", w.passes.Load(), "dropped", w.dropped.Load())
	return nil
}

// Offer hands a preview frame to the worker. Never blocks; must stay
// cheap enough for the per-frame callback. Only every Nth frame is
// cloned (luma plane only), the rest just tick a counter.
func (w *Worker) Offer(f *types.Frame) {
	if !w.running.Load() {
		return
	}
	n := w.offered.Add(1)
	if (n-1)%uint64(w.cfg.SampleEvery) != 0 {
		return
	}
	clone := f.CloneLuma()
	if clone == nil {
		return
	}
	w.sampled.Add(1)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.pending != nil {
		w.dropped.Add(1)
	}
	w.pending = clone
	w.cond.Signal()
	w.mu.Unlock()
}

// Metrics returns the worker counters.
func (w *Worker) Metrics() Metrics {
	return Metrics{
		FramesOffered: w.offered.Load(),
		FramesSampled: w.sampled.Load(),
		FramesDropped: w.dropped.Load(),
		Passes:        w.passes.Load(),
		Errors:        w.errs.Load(),
		FacesFound:    w.facesFound.Load(),
		LastPass:      time.Duration(w.lastPassNS.Load()),
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		w.mu.Lock()
		for w.pending == nil && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		frame := w.pending
		w.pending = nil
		fn := w.fn
		w.mu.Unlock()

		start := time.Now()
		rects, err := w.det.Detect(frame.Luma(), frame.Width, frame.Height)
		w.lastPassNS.Store(int64(time.Since(start)))
		if err != nil {
			w.errs.Add(1)
			slog.Warn("detect pass failed", "seq", frame.Seq, "error", err)
			continue
		}
		w.passes.Add(1)
		w.facesFound.Add(uint64(len(rects)))
		if fn != nil {
			fn(rects)
		}
	}
}
