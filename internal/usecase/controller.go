package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"meetbot/internal/domain"
	"meetbot/internal/phrases"
	"meetbot/internal/ports"
)

var (
	ErrSurfaceNotOpen     = errors.New("control surface not open")
	ErrJoinButtonNotFound = errors.New("join button not found")
	ErrJoinClickFailed    = errors.New("join button click failed")
)

// ControllerConfig controls the join workflow and monitor loop. Zero
// durations mean no wait.
type ControllerConfig struct {
	MeetingLink      string
	DisplayName      string
	RecordingEnabled bool
	ConferenceHost   string
	ScreenshotDir    string

	SettleDelay     time.Duration
	ElementWait     time.Duration
	ElementPoll     time.Duration
	NameSettle      time.Duration
	PostClickDelay  time.Duration
	RecordingDelay  time.Duration
	MonitorInterval time.Duration
	MediaCheckEvery int

	Media MediaPolicyConfig
}

// DefaultControllerConfig returns the production timings.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		DisplayName:      "Anonymous Bot",
		RecordingEnabled: true,
		ConferenceHost:   "meet.google.com",
		SettleDelay:      4 * time.Second,
		ElementWait:      3 * time.Second,
		ElementPoll:      250 * time.Millisecond,
		NameSettle:       time.Second,
		PostClickDelay:   5 * time.Second,
		RecordingDelay:   3 * time.Second,
		MonitorInterval:  30 * time.Second,
		MediaCheckEvery:  5,
		Media:            DefaultMediaPolicyConfig(),
	}
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.ConferenceHost == "" {
		c.ConferenceHost = "meet.google.com"
	}
	if c.MediaCheckEvery <= 0 {
		c.MediaCheckEvery = 5
	}
	if c.ElementPoll <= 0 {
		c.ElementPoll = 250 * time.Millisecond
	}
	return c
}

// SessionController owns the conference session phase and sequences the
// join workflow, status polling, media enforcement and recording.
type SessionController struct {
	provider ports.SurfaceProvider
	recorder *Recorder
	catalog  *phrases.Catalog
	events   ports.EventSink
	logger   *slog.Logger
	cfg      ControllerConfig
	now      func() time.Time

	tracker sessionTracker

	mu         sync.Mutex
	surface    ports.ControlSurface
	classifier *StatusClassifier
	detector   *DisconnectDetector
	media      *MediaPolicy
	artifact   string
	shutdown   bool
}

// NewSessionController builds a controller. recorder may be nil when
// recording is disabled.
func NewSessionController(
	provider ports.SurfaceProvider,
	recorder *Recorder,
	catalog *phrases.Catalog,
	events ports.EventSink,
	logger *slog.Logger,
	cfg ControllerConfig,
) *SessionController {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = phrases.Default()
	}
	cfg = cfg.withDefaults()
	c := &SessionController{
		provider: provider,
		recorder: recorder,
		catalog:  catalog,
		events:   events,
		logger:   logger.With("component", "controller"),
		cfg:      cfg,
		now:      time.Now,
	}
	c.tracker.state = domain.SessionState{
		Phase:            domain.PhaseInitializing,
		MeetingLink:      cfg.MeetingLink,
		DisplayName:      cfg.DisplayName,
		RecordingEnabled: cfg.RecordingEnabled && recorder != nil,
	}
	return c
}

// Open acquires the control surface. It is a no-op when already open.
func (c *SessionController) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface != nil {
		return nil
	}
	if c.shutdown {
		return ErrSurfaceNotOpen
	}

	surface, err := c.provider.Open(ctx)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeSurface, err.Error())
		c.setPhase(domain.PhaseError, "surface unavailable")
		return fmt.Errorf("open control surface: %w", err)
	}
	c.surface = surface
	c.classifier = NewStatusClassifier(surface, c.catalog, c.logger)
	c.detector = NewDisconnectDetector(surface, c.catalog, c.cfg.ConferenceHost, c.logger)
	c.media = NewMediaPolicy(surface, c.logger, c.cfg.Media)
	c.logger.Info("control surface ready")
	return nil
}

// State returns a copy of the session state.
func (c *SessionController) State() domain.SessionState {
	return c.tracker.get()
}

// Artifact returns the most recent recording written during this session.
func (c *SessionController) Artifact() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact, c.artifact != ""
}

// PollStatus classifies the page and applies Joined or Waiting to the
// session phase. Ended is reported but left to the caller, which stops
// recording before the phase becomes terminal.
func (c *SessionController) PollStatus(ctx context.Context) domain.Phase {
	classifier := c.getClassifier()
	if classifier == nil {
		return domain.PhaseError
	}

	phase, err := classifier.Classify(ctx)
	if err != nil {
		c.logger.Error("error checking status", "error", err)
		c.events.SessionError(domain.ErrorCodeSurface, err.Error())
		return domain.PhaseError
	}
	switch phase {
	case domain.PhaseJoined:
		c.setPhase(domain.PhaseJoined, "in-call indicator visible")
	case domain.PhaseWaiting:
		c.setPhase(domain.PhaseWaiting, "waiting for admission")
	}
	return phase
}

// Monitor polls the session at a fixed interval until it ends, disconnects
// or ctx is cancelled.
func (c *SessionController) Monitor(ctx context.Context) error {
	detector, media := c.getMonitors()
	if detector == nil {
		return ErrSurfaceNotOpen
	}
	c.logger.Info("monitoring session", "interval", c.cfg.MonitorInterval)

	for iteration := 1; ; iteration++ {
		if !sleepContext(ctx, c.cfg.MonitorInterval) {
			return ctx.Err()
		}
		c.logger.Info("status check", "iteration", iteration)

		if detector.IsDisconnected(ctx) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("disconnected from meeting")
			c.finish(domain.PhaseDisconnected, domain.StopReasonDisconnected)
			return nil
		}

		switch c.PollStatus(ctx) {
		case domain.PhaseEnded:
			c.logger.Info("meeting has ended")
			c.finish(domain.PhaseEnded, domain.StopReasonEnded)
			return nil
		case domain.PhaseJoined:
			c.startRecording(ctx)
		case domain.PhaseWaiting:
			c.logger.Info("still waiting for host approval")
		}

		c.reportRecording()

		if iteration%c.cfg.MediaCheckEvery == 0 {
			c.logger.Info("verifying media settings")
			media.EnsureMutedAndCameraOff(ctx)
		}
	}
}

// Shutdown stops and persists any active recording, then releases the
// control surface. Only the first call has effect; it returns the artifact
// written by that call, if any.
func (c *SessionController) Shutdown(reason domain.StopReason) (string, bool) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return "", false
	}
	c.shutdown = true
	c.mu.Unlock()

	c.logger.Info("shutting down session", "reason", reason)
	path, ok := c.stopRecording(reason)

	c.mu.Lock()
	surface := c.surface
	c.surface = nil
	c.mu.Unlock()

	if surface != nil {
		if err := surface.Close(); err != nil {
			c.logger.Warn("error closing control surface", "error", err)
		} else {
			c.logger.Info("control surface closed")
		}
	}
	if !c.tracker.phase().Terminal() {
		c.setPhase(domain.PhaseEnded, string(reason))
	}
	return path, ok
}

func (c *SessionController) finish(phase domain.Phase, reason domain.StopReason) {
	c.stopRecording(reason)
	c.setPhase(phase, string(reason))
}

func (c *SessionController) startRecording(ctx context.Context) {
	if c.recorder == nil || !c.cfg.RecordingEnabled {
		return
	}
	if c.tracker.phase() != domain.PhaseJoined || c.recorder.Active() {
		return
	}
	c.logger.Info("confirmed in meeting, starting recording")
	if !sleepContext(ctx, c.cfg.RecordingDelay) {
		return
	}
	if !c.recorder.Start(ctx) {
		c.events.SessionError(domain.ErrorCodeAudioStart, "failed to start meeting recording")
		return
	}
	c.reportRecording()
}

func (c *SessionController) stopRecording(reason domain.StopReason) (string, bool) {
	if c.recorder == nil || !c.recorder.Active() {
		return "", false
	}
	path, ok := c.recorder.Stop(reason)
	if !ok {
		c.logger.Warn("failed to save meeting recording", "reason", reason)
		c.events.SessionError(domain.ErrorCodePersist, "recording was not persisted")
		return "", false
	}

	c.mu.Lock()
	c.artifact = path
	c.mu.Unlock()

	last := c.recorder.LastSession()
	filename := path
	c.events.RecordingStatus(domain.RecordingStatus{
		Duration:       last.Duration.Seconds(),
		FramesCaptured: last.FrameCount,
		Filename:       &filename,
	})
	c.logger.Info("meeting recording saved",
		"file", path,
		"reason", reason,
		"duration", formatClock(last.Duration),
	)
	return path, true
}

func (c *SessionController) reportRecording() {
	if c.recorder == nil {
		return
	}
	status := c.recorder.Status()
	c.events.RecordingStatus(status)
	if status.IsRecording {
		c.logger.Info("recording active",
			"duration", formatClock(time.Duration(status.Duration*float64(time.Second))),
			"frames", status.FramesCaptured,
		)
	}
}

func (c *SessionController) setPhase(next domain.Phase, reason string) {
	previous := c.tracker.phase()
	applied, ok := c.tracker.advance(next, c.now())
	if !ok {
		if applied != next {
			c.logger.Debug("phase transition ignored", "from", previous, "to", next, "reason", reason)
		}
		return
	}
	c.logger.Info("phase changed", "from", previous, "to", applied, "reason", reason)
	c.events.PhaseChanged(applied, reason)
}

func (c *SessionController) screenshot(ctx context.Context, name string) {
	c.mu.Lock()
	surface := c.surface
	c.mu.Unlock()
	if surface == nil {
		return
	}
	path := filepath.Join(c.cfg.ScreenshotDir, fmt.Sprintf("screenshot_%s_%d.png", name, c.now().Unix()))
	if err := surface.Screenshot(ctx, path); err != nil {
		c.logger.Warn("screenshot failed", "name", name, "error", err)
		return
	}
	c.logger.Info("screenshot saved", "file", path)
}

func (c *SessionController) getSurface() ports.ControlSurface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}

func (c *SessionController) getClassifier() *StatusClassifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return nil
	}
	return c.classifier
}

func (c *SessionController) getMonitors() (*DisconnectDetector, *MediaPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return nil, nil
	}
	return c.detector, c.media
}
