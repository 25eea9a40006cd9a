package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"meetbot/internal/ports"
)

// Config controls the Chrome instance backing a control surface.
type Config struct {
	ExecPath      string
	UserDataDir   string
	Headless      bool
	WindowWidth   int
	WindowHeight  int
	ActionTimeout time.Duration
	// GrantOrigin receives microphone permission and has camera left denied.
	GrantOrigin string
}

func (c Config) withDefaults() Config {
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = 1920, 1080
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 20 * time.Second
	}
	return c
}

// Provider launches Chrome through chromedp.
type Provider struct {
	cfg    Config
	logger *slog.Logger
}

func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg.withDefaults(), logger: logger.With("component", "browser")}
}

// chromeFlags lists the switches passed to Chrome on top of the chromedp
// defaults.
func chromeFlags(cfg Config) map[string]any {
	return map[string]any{
		"headless":                         cfg.Headless,
		"no-sandbox":                       true,
		"disable-dev-shm-usage":            true,
		"disable-extensions":               true,
		"no-first-run":                     true,
		"disable-default-apps":             true,
		"disable-infobars":                 true,
		"use-fake-ui-for-media-stream":     true,
		"use-fake-device-for-media-stream": true,
		"autoplay-policy":                  "no-user-gesture-required",
	}
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range chromeFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// Open starts a browser and returns its first tab. The browser lives until
// the surface is closed, independent of ctx.
func (p *Provider) Open(ctx context.Context) (ports.ControlSurface, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(p.cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			p.logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			p.logger.Warn(fmt.Sprintf(format, args...))
		}),
	)

	surface := &Surface{
		tab:           tabCtx,
		actionTimeout: p.cfg.ActionTimeout,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	actions := []chromedp.Action{}
	if p.cfg.GrantOrigin != "" {
		origin := p.cfg.GrantOrigin
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			c := chromedp.FromContext(ctx)
			return browser.GrantPermissions([]browser.PermissionType{browser.PermissionTypeAudioCapture}).
				WithOrigin(origin).
				Do(cdp.WithExecutor(ctx, c.Browser))
		}))
	}
	// The first Run binds the browser process to tabCtx, so it must not use
	// a derived context.
	stop := context.AfterFunc(ctx, surface.cancel)
	err := chromedp.Run(tabCtx, actions...)
	stop()
	if err != nil {
		_ = surface.Close()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	p.logger.Info("chrome started", "headless", p.cfg.Headless)
	return surface, nil
}
