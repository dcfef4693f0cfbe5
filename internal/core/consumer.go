package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/crazymi/TizenFaceFilter/internal/types"
)

// consumeEvents forwards session events to the MQTT emitter
func (a *App) consumeEvents(ctx context.Context) {
	defer a.wg.Done()

	slog.Info("event consumer started")

	published := uint64(0)

	for {
		select {
		case <-ctx.Done():
			slog.Info("event consumer stopping", "published", published)
			return

		case ev, ok := <-a.session.Events():
			if !ok {
				slog.Info("session event channel closed", "published", published)
				return
			}

			if err := a.emitter.Publish(ev); err != nil {
				slog.Error("failed to publish event",
					"type", ev.Type(),
					"error", err,
				)
				continue
			}
			published++
		}
	}
}

// watchDisplay drains the display sink the way a screen would, so bus
// delivery stats reflect a live consumer, and logs pipeline throughput.
func (a *App) watchDisplay(ctx context.Context, frames <-chan *types.Frame) {
	defer a.wg.Done()

	slog.Info("display sink attached")

	var shown uint64
	lastShown := uint64(0)
	lastLog := time.Now()
	logInterval := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			slog.Info("display sink stopping", "frames_shown", shown)
			return

		case frame, ok := <-frames:
			if !ok {
				slog.Info("display sink channel closed", "frames_shown", shown)
				return
			}

			shown++

			// Log stats periodically
			if time.Since(lastLog) >= logInterval {
				elapsed := time.Since(lastLog).Seconds()
				fps := float64(shown-lastShown) / elapsed
				sessionStats := a.session.Stats()

				slog.Debug("pipeline stats",
					"frames_shown", shown,
					"display_fps", float64(int(fps*100))/100,
					"frames_redacted", sessionStats.FramesRedacted,
					"faces_in_view", a.session.FaceCount(),
					"last_seq", frame.Seq,
				)

				lastLog = time.Now()
				lastShown = shown
			}
		}
	}
}
