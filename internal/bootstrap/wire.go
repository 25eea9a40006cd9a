package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"meetbot/internal/artifact"
	"meetbot/internal/audio"
	"meetbot/internal/browser"
	"meetbot/internal/config"
	"meetbot/internal/phrases"
	"meetbot/internal/ports"
	"meetbot/internal/transcribe/deepgram"
	"meetbot/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Controller *usecase.SessionController
	// Recorder is nil when recording is disabled.
	Recorder *usecase.Recorder
	// Handoff is nil when no transcription key is configured.
	Handoff *usecase.TranscriptHandoff

	closers []func() error
}

// Close releases the audio backend.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Build wires all backend dependencies for a join run.
func Build(cfg config.Config, logger *slog.Logger, events ports.EventSink) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	catalog := phrases.Default()
	if path := strings.TrimSpace(cfg.Meeting.PhrasesFile); path != "" {
		loaded, err := phrases.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load phrases: %w", err)
		}
		catalog = loaded
	}

	services := &Services{Config: cfg}

	if cfg.Meeting.RecordingEnabled {
		input, closeInput, err := BuildAudioInput(cfg.Audio)
		if err != nil {
			return nil, err
		}
		services.closers = append(services.closers, closeInput)
		services.Recorder = usecase.NewRecorder(
			input,
			artifact.NewNamer(cfg.Audio.OutputDir),
			logger,
			usecase.RecorderConfig{
				Device:     cfg.Audio.Device,
				Channels:   cfg.Audio.Channels,
				SampleRate: cfg.Audio.SampleRate,
				BlockSize:  cfg.Audio.BlockSize,
			},
		)
	}

	surfaces := browser.NewProvider(browser.Config{
		ExecPath:    cfg.Browser.ExecPath,
		UserDataDir: cfg.Browser.UserDataDir,
		Headless:    cfg.Browser.Headless,
		GrantOrigin: "https://" + cfg.Meeting.ConferenceHost,
	}, logger)

	controllerCfg := usecase.DefaultControllerConfig()
	controllerCfg.MeetingLink = cfg.Meeting.Link
	controllerCfg.DisplayName = cfg.Meeting.DisplayName
	controllerCfg.RecordingEnabled = cfg.Meeting.RecordingEnabled
	controllerCfg.ConferenceHost = cfg.Meeting.ConferenceHost
	controllerCfg.ScreenshotDir = cfg.Meeting.ScreenshotDir
	controllerCfg.MonitorInterval = cfg.Meeting.MonitorInterval

	services.Controller = usecase.NewSessionController(surfaces, services.Recorder, catalog, events, logger, controllerCfg)

	if strings.TrimSpace(cfg.Deepgram.APIKey) != "" {
		services.Handoff = usecase.NewTranscriptHandoff(
			deepgram.NewProvider(deepgram.Config{
				APIKey:      cfg.Deepgram.APIKey,
				APIBaseURL:  cfg.Deepgram.APIBaseURL,
				Model:       cfg.Deepgram.Model,
				Language:    cfg.Deepgram.Language,
				SmartFormat: cfg.Deepgram.SmartFormat,
				Punctuate:   true,
				Diarize:     cfg.Deepgram.Diarize,
			}, logger),
			logger,
			usecase.HandoffConfig{},
		)
	}

	return services, nil
}

// BuildAudioInput opens the configured capture backend. The returned func
// releases it.
func BuildAudioInput(cfg config.AudioConfig) (ports.AudioInput, func() error, error) {
	switch cfg.Backend {
	case config.BackendFFMPEG:
		device := cfg.Device
		if strings.TrimSpace(device) == "" {
			device = "default"
		}
		return audio.NewFFMPEGInput(cfg.FFMPEGCommand, cfg.InputFormat, device, cfg.Channels), func() error { return nil }, nil
	case config.BackendPortAudio, "":
		input, err := audio.NewPortAudioInput()
		if err != nil {
			return nil, nil, err
		}
		return input, input.Terminate, nil
	default:
		return nil, nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}
