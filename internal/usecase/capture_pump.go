package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"meetbot/internal/artifact"
	"meetbot/internal/ports"
)

const lowSignalPeakPercent = 1.0

// pumpCaptureBlocks reads blocks from the session stream into its buffer
// until ctx is cancelled. Read errors are logged and retried.
func pumpCaptureBlocks(
	ctx context.Context,
	session *captureSession,
	cfg RecorderConfig,
	logger *slog.Logger,
	now func() time.Time,
) {
	defer close(session.done)

	errLimit := rate.NewLimiter(rate.Every(5*time.Second), 3)
	lastStats := now()
	var latest []byte

	for {
		if ctx.Err() != nil {
			return
		}
		block, err := session.stream.Read(session.blockSize)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			if errLimit.Allow() {
				logger.Warn("audio read error", "error", err)
			}
			if !sleepContext(ctx, cfg.ReadRetryDelay) {
				return
			}
		case len(block) > 0:
			if !session.buffer.append(block) {
				return
			}
			session.frames.Add(1)
			session.bytes.Add(int64(len(block)))
			latest = block
		}

		// Stats are due on failing reads too, so a dead device still reports.
		if current := now(); current.Sub(lastStats) >= cfg.StatsInterval {
			logCaptureStats(logger, session, current, latest)
			lastStats = current
		}
	}
}

func logCaptureStats(logger *slog.Logger, session *captureSession, now time.Time, latest []byte) {
	elapsed := now.Sub(session.startTime)
	frames := session.frames.Load()
	if frames == 0 {
		logger.Warn("no audio data captured yet", "elapsed", formatClock(elapsed))
		return
	}

	expected := int64(0)
	if session.blockSize > 0 {
		expected = int64(elapsed.Seconds() * float64(session.sampleRate) / float64(session.blockSize))
	}
	peak := artifact.PeakPercent(latest)

	logger.Info("recording status",
		"duration", formatClock(elapsed),
		"frames", frames,
		"expected_frames", expected,
		"size_mb", fmt.Sprintf("%.1f", float64(session.bytes.Load())/(1024*1024)),
		"peak_percent", fmt.Sprintf("%.1f", peak),
	)
	if peak < lowSignalPeakPercent {
		logger.Warn("audio level very low, check input routing", "peak_percent", fmt.Sprintf("%.2f", peak))
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// waitForStream waits for the provider session to drain, closing it when
// the timeout passes first.
func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
