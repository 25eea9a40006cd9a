package ports

import (
	"context"

	"meetbot/internal/domain"
)

// SelectorKind distinguishes CSS from XPath element queries.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
)

// Selector is one element lookup strategy.
type Selector struct {
	Kind SelectorKind
	Expr string
}

// CSS builds a CSS selector.
func CSS(expr string) Selector { return Selector{Kind: SelectorCSS, Expr: expr} }

// XPath builds an XPath selector.
func XPath(expr string) Selector { return Selector{Kind: SelectorXPath, Expr: expr} }

func (s Selector) String() string { return string(s.Kind) + ":" + s.Expr }

// Element is a handle on one page element.
type Element interface {
	IsVisible(ctx context.Context) bool
	IsEnabled(ctx context.Context) bool
	Attribute(ctx context.Context, name string) string
	// Click performs a native (input-event) click.
	Click(ctx context.Context) error
	// ForceClick clicks through page script, bypassing overlays.
	ForceClick(ctx context.Context) error
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
}

// ControlSurface drives and observes the browser session.
type ControlSurface interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageContent(ctx context.Context) (string, error)
	FindElements(ctx context.Context, sel Selector) ([]Element, error)
	ExecuteScript(ctx context.Context, script string, out any) error
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// SurfaceProvider acquires control surfaces.
type SurfaceProvider interface {
	Open(ctx context.Context) (ControlSurface, error)
}

// DeviceInfo describes an audio input device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

// StreamFormat describes how an input stream should be opened.
// Samples are always signed 16-bit little-endian.
type StreamFormat struct {
	Device     string
	Channels   int
	SampleRate int
	BlockSize  int
}

// AudioStream is an open capture stream.
type AudioStream interface {
	// Read returns one block of blockSize frames, tolerating overflow.
	Read(blockSize int) ([]byte, error)
	Stop() error
	Close() error
}

// AudioInput enumerates and opens capture devices.
type AudioInput interface {
	Devices() ([]DeviceInfo, error)
	Open(ctx context.Context, format StreamFormat) (AudioStream, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// EventSink receives session lifecycle and health updates.
type EventSink interface {
	PhaseChanged(phase domain.Phase, reason string)
	RecordingStatus(status domain.RecordingStatus)
	SessionError(code domain.ErrorCode, detail string)
}
