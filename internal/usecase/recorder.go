package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meetbot/internal/artifact"
	"meetbot/internal/domain"
	"meetbot/internal/ports"
)

var ErrNoInputDevice = errors.New("no audio input device available")

// RecorderConfig controls audio capture.
type RecorderConfig struct {
	Device         string
	Channels       int
	SampleRate     int
	BlockSize      int
	StopTimeout    time.Duration
	StatsInterval  time.Duration
	ReadRetryDelay time.Duration
	MinFileBytes   int64
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	if c.Channels <= 0 {
		c.Channels = 2
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.BlockSize <= 0 {
		c.BlockSize = 1024
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = 30 * time.Second
	}
	if c.ReadRetryDelay <= 0 {
		c.ReadRetryDelay = 100 * time.Millisecond
	}
	if c.MinFileBytes <= 0 {
		c.MinFileBytes = 1000
	}
	return c
}

// Recorder owns the capture stream and its background capture goroutine.
// Start, Stop and Status must not be called from the capture goroutine.
type Recorder struct {
	input  ports.AudioInput
	namer  *artifact.Namer
	logger *slog.Logger
	cfg    RecorderConfig
	now    func() time.Time

	mu      sync.Mutex
	state   domain.CaptureState
	current *captureSession
	last    domain.RecordingSession
}

func NewRecorder(input ports.AudioInput, namer *artifact.Namer, logger *slog.Logger, cfg RecorderConfig) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		input:  input,
		namer:  namer,
		logger: logger.With("component", "recorder"),
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		state:  domain.CaptureStateIdle,
	}
}

// Devices lists the available input devices.
func (r *Recorder) Devices() ([]ports.DeviceInfo, error) {
	return r.input.Devices()
}

// Start opens the input stream and launches the capture goroutine. It
// returns false without changing state when a recording is already running
// or no device can be opened.
func (r *Recorder) Start(ctx context.Context) bool {
	r.mu.Lock()
	if r.state != domain.CaptureStateIdle {
		r.mu.Unlock()
		r.logger.Warn("recording already in progress")
		return false
	}
	r.state = domain.CaptureStateCapturing
	r.mu.Unlock()

	session, err := r.open(ctx)
	if err != nil {
		r.logger.Error("failed to start recording", "error", err)
		r.mu.Lock()
		r.state = domain.CaptureStateIdle
		r.mu.Unlock()
		return false
	}

	captureCtx, cancel := context.WithCancel(context.Background())
	session.cancel = cancel

	r.mu.Lock()
	r.current = session
	r.mu.Unlock()

	go pumpCaptureBlocks(captureCtx, session, r.cfg, r.logger, r.now)

	r.logger.Info("audio recording started",
		"file", session.filename,
		"channels", session.channels,
		"sample_rate", session.sampleRate,
		"block_size", session.blockSize,
		"stats_interval", r.cfg.StatsInterval,
	)
	return true
}

func (r *Recorder) open(ctx context.Context) (*captureSession, error) {
	device, err := r.selectDevice()
	if err != nil {
		return nil, err
	}

	channels := min(r.cfg.Channels, device.MaxInputChannels)
	rate := r.cfg.SampleRate
	if device.DefaultSampleRate > 0 {
		rate = min(rate, int(device.DefaultSampleRate))
	}
	r.logger.Info("using audio device",
		"device", device.Name,
		"max_input_channels", device.MaxInputChannels,
		"default_sample_rate", device.DefaultSampleRate,
	)

	stream, err := r.input.Open(ctx, ports.StreamFormat{
		Device:     device.Name,
		Channels:   channels,
		SampleRate: rate,
		BlockSize:  r.cfg.BlockSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open input stream on %q: %w", device.Name, err)
	}

	start := r.now()
	return &captureSession{
		filename:   r.namer.Next(start),
		startTime:  start,
		channels:   channels,
		sampleRate: rate,
		blockSize:  r.cfg.BlockSize,
		stream:     stream,
		done:       make(chan struct{}),
		buffer:     &frameBuffer{},
	}, nil
}

func (r *Recorder) selectDevice() (ports.DeviceInfo, error) {
	devices, err := r.input.Devices()
	if err != nil {
		return ports.DeviceInfo{}, fmt.Errorf("enumerate input devices: %w", err)
	}
	for _, device := range devices {
		if device.MaxInputChannels <= 0 {
			continue
		}
		if r.cfg.Device == "" || device.Name == r.cfg.Device {
			return device, nil
		}
	}
	if r.cfg.Device != "" {
		return ports.DeviceInfo{}, fmt.Errorf("%w: %q not found", ErrNoInputDevice, r.cfg.Device)
	}
	return ports.DeviceInfo{}, ErrNoInputDevice
}

// Stop ends the active recording and persists it. It returns the artifact
// path, or false when nothing was written. Calling Stop while idle has no
// side effects.
func (r *Recorder) Stop(reason domain.StopReason) (string, bool) {
	r.mu.Lock()
	if r.state != domain.CaptureStateCapturing || r.current == nil {
		r.mu.Unlock()
		return "", false
	}
	session := r.current
	r.state = domain.CaptureStateStopping
	r.mu.Unlock()

	elapsed := r.now().Sub(session.startTime)
	defer r.finish(session, elapsed)

	r.logger.Info("stopping audio recording", "reason", reason, "duration", formatClock(elapsed))

	session.cancel()
	select {
	case <-session.done:
	case <-time.After(r.cfg.StopTimeout):
		r.logger.Warn("capture goroutine did not finish in time", "timeout", r.cfg.StopTimeout)
	}
	blocks := session.buffer.seal()

	if err := session.stream.Stop(); err != nil {
		r.logger.Warn("error stopping audio stream", "error", err)
	}
	if err := session.stream.Close(); err != nil {
		r.logger.Warn("error closing audio stream", "error", err)
	}

	if len(blocks) == 0 {
		r.logger.Warn("no audio data to save, recording was empty", "file", session.filename)
		return "", false
	}

	r.logger.Info("saving audio frames", "frames", len(blocks), "file", session.filename)
	size, err := artifact.WriteWAV(session.filename, artifact.Format{
		Channels:   session.channels,
		SampleRate: session.sampleRate,
	}, blocks)
	if err != nil {
		r.logger.Error("error saving recording", "file", session.filename, "error", err)
		return "", false
	}
	if size == 0 {
		r.logger.Error("recording file is empty", "file", session.filename)
		return "", false
	}
	session.bytes.Store(size)
	if size < r.cfg.MinFileBytes {
		r.logger.Warn("recording file is very small, may not contain audio", "file", session.filename, "bytes", size)
	}

	r.logger.Info("recording saved",
		"file", session.filename,
		"bytes", size,
		"size_mb", fmt.Sprintf("%.1f", float64(size)/(1024*1024)),
		"frames", len(blocks),
	)
	return session.filename, true
}

func (r *Recorder) finish(session *captureSession, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = session.snapshot(false)
	r.last.BytesWritten = session.bytes.Load()
	r.last.Duration = elapsed
	r.current = nil
	r.state = domain.CaptureStateIdle
}

// Status returns a snapshot of capture health without waiting on capture I/O.
func (r *Recorder) Status() domain.RecordingStatus {
	r.mu.Lock()
	session := r.current
	active := r.state == domain.CaptureStateCapturing && session != nil
	r.mu.Unlock()

	if !active {
		return domain.RecordingStatus{}
	}
	filename := session.filename
	return domain.RecordingStatus{
		IsRecording:    true,
		Duration:       r.now().Sub(session.startTime).Seconds(),
		FramesCaptured: session.frames.Load(),
		Filename:       &filename,
	}
}

// Active reports whether a recording is capturing.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == domain.CaptureStateCapturing && r.current != nil
}

// State returns the capture lifecycle state.
func (r *Recorder) State() domain.CaptureState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastSession describes the most recently finished recording.
func (r *Recorder) LastSession() domain.RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func formatClock(d time.Duration) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
