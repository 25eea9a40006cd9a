package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"meetbot/internal/domain"
	"meetbot/internal/ports"
)

type fakeElement struct {
	mu       sync.Mutex
	label    string
	hidden   bool
	disabled bool
	clickErr error
	forceErr error

	clicks      int
	forceClicks int
	cleared     int
	typed       string
}

func (e *fakeElement) IsVisible(context.Context) bool { return !e.hidden }
func (e *fakeElement) IsEnabled(context.Context) bool { return !e.disabled }

func (e *fakeElement) Attribute(_ context.Context, name string) string {
	if name == "aria-label" {
		return e.label
	}
	return ""
}

func (e *fakeElement) Click(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	return nil
}

func (e *fakeElement) ForceClick(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.forceErr != nil {
		return e.forceErr
	}
	e.forceClicks++
	return nil
}

func (e *fakeElement) Clear(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared++
	e.typed = ""
	return nil
}

func (e *fakeElement) Type(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.typed += text
	return nil
}

func (e *fakeElement) clickCount() (native, forced int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks, e.forceClicks
}

// fakeSurface is a scripted control surface. Elements are keyed by
// Selector.String(); page content can vary per navigated URL.
type fakeSurface struct {
	mu sync.Mutex

	url        string
	content    string
	pages      map[string]string
	elements   map[string][]ports.Element
	navErr     map[string]error
	urlErr     error
	contentErr error

	navigated   []string
	screenshots []string
	closed      int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		pages:    make(map[string]string),
		elements: make(map[string][]ports.Element),
		navErr:   make(map[string]error),
	}
}

func (s *fakeSurface) put(sel ports.Selector, elems ...ports.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[sel.String()] = elems
}

func (s *fakeSurface) setURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

func (s *fakeSurface) setContent(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = content
	s.pages = make(map[string]string)
}

func (s *fakeSurface) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	if err := s.navErr[url]; err != nil {
		return err
	}
	s.url = url
	return nil
}

func (s *fakeSurface) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, s.urlErr
}

func (s *fakeSurface) PageContent(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contentErr != nil {
		return "", s.contentErr
	}
	if page, ok := s.pages[s.url]; ok {
		return page, nil
	}
	return s.content, nil
}

func (s *fakeSurface) FindElements(_ context.Context, sel ports.Selector) ([]ports.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elements[sel.String()], nil
}

func (s *fakeSurface) ExecuteScript(context.Context, string, any) error { return nil }

func (s *fakeSurface) Screenshot(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots = append(s.screenshots, path)
	return nil
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSurface) snapshotNavigated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigated...)
}

type fakeSurfaceProvider struct {
	surface *fakeSurface
	err     error
	opens   int
}

func (p *fakeSurfaceProvider) Open(context.Context) (ports.ControlSurface, error) {
	p.opens++
	if p.err != nil {
		return nil, p.err
	}
	return p.surface, nil
}

var errStreamDrained = errors.New("stream drained")

// fakeAudioStream returns its scripted blocks after readErrs transient
// failures, then keeps failing until the capture goroutine is cancelled.
type fakeAudioStream struct {
	mu       sync.Mutex
	blocks   [][]byte
	readErrs int
	reads    int
	stops    int
	closes   int
}

func (s *fakeAudioStream) Read(int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErrs > 0 {
		s.readErrs--
		return nil, errors.New("input overflowed")
	}
	if len(s.blocks) == 0 {
		time.Sleep(time.Millisecond)
		return nil, errStreamDrained
	}
	block := s.blocks[0]
	s.blocks = s.blocks[1:]
	return block, nil
}

func (s *fakeAudioStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeAudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeAudioInput struct {
	mu      sync.Mutex
	devices []ports.DeviceInfo
	streams []*fakeAudioStream
	openErr error
	opened  []ports.StreamFormat
}

func newFakeAudioInput(streams ...*fakeAudioStream) *fakeAudioInput {
	return &fakeAudioInput{
		devices: []ports.DeviceInfo{{Name: "loopback", MaxInputChannels: 2, DefaultSampleRate: 44100}},
		streams: streams,
	}
}

func (f *fakeAudioInput) Devices() ([]ports.DeviceInfo, error) {
	return f.devices, nil
}

func (f *fakeAudioInput) Open(_ context.Context, format ports.StreamFormat) (ports.AudioStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = append(f.opened, format)
	if len(f.streams) == 0 {
		return &fakeAudioStream{}, nil
	}
	stream := f.streams[0]
	f.streams = f.streams[1:]
	return stream, nil
}

func (f *fakeAudioInput) snapshotOpened() []ports.StreamFormat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.StreamFormat(nil), f.opened...)
}

func pcmBlocks(n, blockSize, channels int, sample int16) [][]byte {
	blocks := make([][]byte, n)
	for i := range blocks {
		block := make([]byte, blockSize*channels*2)
		for j := 0; j+1 < len(block); j += 2 {
			block[j] = byte(uint16(sample))
			block[j+1] = byte(uint16(sample) >> 8)
		}
		blocks[i] = block
	}
	return blocks
}

type fakeEventSink struct {
	mu sync.Mutex

	phases   []phaseEvent
	statuses []domain.RecordingStatus
	errors   []errEvent
}

type phaseEvent struct {
	phase  domain.Phase
	reason string
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) PhaseChanged(phase domain.Phase, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases = append(f.phases, phaseEvent{phase: phase, reason: reason})
}

func (f *fakeEventSink) RecordingStatus(status domain.RecordingStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotPhases() []phaseEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]phaseEvent(nil), f.phases...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) lastStatus() (domain.RecordingStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return domain.RecordingStatus{}, false
	}
	return f.statuses[len(f.statuses)-1], true
}

func (f *fakeEventSink) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statuses)
}

// logCapture is a slog.Handler that keeps every record for assertions.
type logCapture struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func newLogCapture() (*slog.Logger, *logCapture) {
	capture := &logCapture{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return slog.New(capture), capture
}

func (h *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (h *logCapture) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, record.Clone())
	return nil
}

func (h *logCapture) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *logCapture) WithGroup(string) slog.Handler      { return h }

func (h *logCapture) has(level slog.Level, substr string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, record := range *h.records {
		if record.Level == level && strings.Contains(record.Message, substr) {
			return true
		}
	}
	return false
}

func (h *logCapture) count(substr string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, record := range *h.records {
		if strings.Contains(record.Message, substr) {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
