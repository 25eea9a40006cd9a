package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"meetbot/internal/domain"
	"meetbot/internal/ports"
)

var mediaSelectors = map[domain.MediaDevice][]ports.Selector{
	domain.MediaDeviceMicrophone: {
		ports.CSS("button[aria-label*='Turn off microphone']"),
		ports.CSS("button[aria-label*='microphone' i][aria-label*='on' i]"),
		ports.CSS("button[aria-label*='Mute' i]"),
		ports.CSS("button[jsname*='BOHaEe']"),
		ports.CSS("div[role='button'][aria-label*='microphone' i]"),
	},
	domain.MediaDeviceCamera: {
		ports.CSS("button[aria-label*='Turn off camera']"),
		ports.CSS("button[aria-label*='camera' i][aria-label*='on' i]"),
		ports.CSS("button[jsname*='I5Fjmd']"),
		ports.CSS("div[role='button'][aria-label*='camera' i]"),
	},
}

var verifySelectors = map[domain.MediaDevice]ports.Selector{
	domain.MediaDeviceMicrophone: ports.CSS("button[aria-label*='microphone' i]"),
	domain.MediaDeviceCamera:     ports.CSS("button[aria-label*='camera' i]"),
}

// MediaPolicyConfig bounds enforcement retries.
type MediaPolicyConfig struct {
	Rounds      int
	RoundPause  time.Duration
	ClickSettle time.Duration
	// InitialSettle is waited once before EnsureMutedAndCameraOff starts.
	InitialSettle time.Duration
}

func (c MediaPolicyConfig) withDefaults() MediaPolicyConfig {
	if c.Rounds <= 0 {
		c.Rounds = 5
	}
	if c.RoundPause < 0 {
		c.RoundPause = 0
	}
	if c.ClickSettle < 0 {
		c.ClickSettle = 0
	}
	return c
}

// DefaultMediaPolicyConfig returns the production timings.
func DefaultMediaPolicyConfig() MediaPolicyConfig {
	return MediaPolicyConfig{
		Rounds:        5,
		RoundPause:    2 * time.Second,
		ClickSettle:   time.Second,
		InitialSettle: 3 * time.Second,
	}
}

// MediaPolicy drives the conference mic and camera toggles to a desired
// state. Enforcement failure is logged, never returned.
type MediaPolicy struct {
	surface ports.ControlSurface
	logger  *slog.Logger
	cfg     MediaPolicyConfig
}

func NewMediaPolicy(surface ports.ControlSurface, logger *slog.Logger, cfg MediaPolicyConfig) *MediaPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaPolicy{
		surface: surface,
		logger:  logger.With("component", "media"),
		cfg:     cfg.withDefaults(),
	}
}

type labelVerdict int

const (
	verdictUnrelated labelVerdict = iota
	verdictNeedsToggle
	verdictAlreadyCorrect
)

// classifyMediaLabel maps a lower-cased accessible label to an action for
// the desired state. Labels describe the action the button performs, so
// "turn off microphone" means the microphone is currently on.
func classifyMediaLabel(label string, device domain.MediaDevice, desired domain.MediaState) labelVerdict {
	if !strings.Contains(label, string(device)) {
		return verdictUnrelated
	}
	current := domain.MediaStateOn
	switch {
	case strings.Contains(label, "turn off"):
		current = domain.MediaStateOn
	case strings.Contains(label, "turn on"),
		strings.Contains(label, "off"),
		strings.Contains(label, "muted"):
		current = domain.MediaStateOff
	}
	if current == desired {
		return verdictAlreadyCorrect
	}
	return verdictNeedsToggle
}

// Enforce runs up to cfg.Rounds passes over the device selectors until one
// element is toggled or found already in the desired state.
func (p *MediaPolicy) Enforce(ctx context.Context, device domain.MediaDevice, desired domain.MediaState) domain.MediaEnforcementResult {
	result := domain.MediaEnforcementResult{
		Device:        device,
		DesiredState:  desired,
		ObservedState: domain.MediaStateUnknown,
	}

	for round := 1; round <= p.cfg.Rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		result.AttemptCount = round
		p.logger.Debug("media toggle attempt", "device", device, "attempt", round)

		if p.enforceRound(ctx, device, desired, &result) {
			return result
		}
		if round < p.cfg.Rounds && !sleepContext(ctx, p.cfg.RoundPause) {
			break
		}
	}

	p.logger.Warn("could not enforce media state",
		"device", device,
		"desired", desired,
		"attempts", result.AttemptCount,
	)
	return result
}

func (p *MediaPolicy) enforceRound(ctx context.Context, device domain.MediaDevice, desired domain.MediaState, result *domain.MediaEnforcementResult) bool {
	for _, sel := range mediaSelectors[device] {
		elems, err := p.surface.FindElements(ctx, sel)
		if err != nil {
			continue
		}
		for _, elem := range elems {
			if !elem.IsVisible(ctx) || !elem.IsEnabled(ctx) {
				continue
			}
			label := strings.ToLower(elem.Attribute(ctx, "aria-label"))
			switch classifyMediaLabel(label, device, desired) {
			case verdictNeedsToggle:
				forced, err := clickElement(ctx, elem)
				if err != nil {
					p.logger.Debug("media toggle click failed", "device", device, "selector", sel.String(), "error", err)
					continue
				}
				sleepContext(ctx, p.cfg.ClickSettle)
				result.Toggled = true
				result.ObservedState = desired
				p.logger.Info("media device toggled", "device", device, "state", desired, "forced", forced)
				return true
			case verdictAlreadyCorrect:
				result.ObservedState = desired
				p.logger.Info("media device already in desired state", "device", device, "state", desired)
				return true
			}
		}
	}
	return false
}

// EnsureMutedAndCameraOff turns both devices off and logs a verification pass.
func (p *MediaPolicy) EnsureMutedAndCameraOff(ctx context.Context) []domain.MediaEnforcementResult {
	p.logger.Info("ensuring microphone is muted and camera is off")
	if !sleepContext(ctx, p.cfg.InitialSettle) {
		return nil
	}

	results := []domain.MediaEnforcementResult{
		p.Enforce(ctx, domain.MediaDeviceMicrophone, domain.MediaStateOff),
		p.Enforce(ctx, domain.MediaDeviceCamera, domain.MediaStateOff),
	}
	p.verify(ctx, domain.MediaDeviceMicrophone, domain.MediaStateOff)
	p.verify(ctx, domain.MediaDeviceCamera, domain.MediaStateOff)
	return results
}

func (p *MediaPolicy) verify(ctx context.Context, device domain.MediaDevice, desired domain.MediaState) {
	elems, err := p.surface.FindElements(ctx, verifySelectors[device])
	if err != nil {
		p.logger.Warn("media verification failed", "device", device, "error", err)
		return
	}
	for _, elem := range elems {
		if !elem.IsVisible(ctx) {
			continue
		}
		label := strings.ToLower(elem.Attribute(ctx, "aria-label"))
		if classifyMediaLabel(label, device, desired) == verdictAlreadyCorrect {
			p.logger.Info("media state confirmed", "device", device, "state", desired)
		} else {
			p.logger.Warn("media state unclear", "device", device, "label", label)
		}
		return
	}
}
