package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meetbot/internal/domain"
	"meetbot/internal/ports"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

// ErrMissingAPIKey is returned when no key was configured.
var ErrMissingAPIKey = errors.New("deepgram api key is not configured")

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey           string
	APIBaseURL       string
	Model            string
	Language         string
	SmartFormat      bool
	Punctuate        bool
	Diarize          bool
	HandshakeTimeout time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With("component", "deepgram"),
	}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to deepgram (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect to deepgram: %w", err)
	}
	p.logger.Debug("deepgram stream opened", "model", p.cfg.Model, "sample_rate", cfg.SampleRate, "channels", cfg.Channels)

	session := newStreamingSession(conn)
	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	go func() {
		<-session.done
		stop()
	}()

	return session, nil
}

type streamingSession struct {
	conn *websocket.Conn

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}
	// closing is closed by Close so a blocked emit can give up.
	closing chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func newStreamingSession(conn *websocket.Conn) *streamingSession {
	return &streamingSession{
		conn:    conn,
		events:  make(chan domain.TranscriptEvent, 64),
		audio:   make(chan []byte, 32),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("send audio: %w", err))
			// Drain so CloseSend never blocks on a dead socket.
			for range s.audio {
			}
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("close stream: %w", err))
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.setErr(fmt.Errorf("read provider event: %w", err))
			}
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		event, ok := eventFromResponse(response)
		if !ok {
			continue
		}
		if !s.emit(event) {
			return
		}
	}
}

// emit blocks until the consumer takes the event, since every final segment
// of a recording matters. It gives up once the session is closing.
func (s *streamingSession) emit(event domain.TranscriptEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.closing:
		return false
	}
}

type deepgramAlternative struct {
	Transcript string `json:"transcript"`
	Words      []struct {
		Speaker *int `json:"speaker"`
	} `json:"words"`
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []deepgramAlternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []deepgramAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r deepgramResponse) firstAlternative() (deepgramAlternative, bool) {
	if len(r.Channel.Alternatives) > 0 && strings.TrimSpace(r.Channel.Alternatives[0].Transcript) != "" {
		return r.Channel.Alternatives[0], true
	}
	if len(r.Results.Channels) > 0 && len(r.Results.Channels[0].Alternatives) > 0 {
		return r.Results.Channels[0].Alternatives[0], true
	}
	return deepgramAlternative{}, false
}

func extractTranscript(response deepgramResponse) string {
	alt, ok := response.firstAlternative()
	if !ok {
		return ""
	}
	return strings.TrimSpace(alt.Transcript)
}

// eventFromResponse converts a results message. With diarization on, a
// segment is prefixed by the speaker of its first word.
func eventFromResponse(response deepgramResponse) (domain.TranscriptEvent, bool) {
	alt, ok := response.firstAlternative()
	if !ok {
		return domain.TranscriptEvent{}, false
	}
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return domain.TranscriptEvent{}, false
	}
	if len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
		text = fmt.Sprintf("[speaker %d] %s", *alt.Words[0].Speaker, text)
	}

	event := domain.TranscriptEvent{Text: text, IsSpeechFinal: response.SpeechFinal}
	if response.IsFinal || response.SpeechFinal {
		event.Kind = domain.TranscriptKindFinal
	} else {
		event.Kind = domain.TranscriptKindPartial
	}
	return event, true
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram api base url: %w", err)
	}

	query := listenURL.Query()
	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	query.Set("punctuate", strconv.FormatBool(providerCfg.Punctuate))
	if providerCfg.Diarize {
		query.Set("diarize", "true")
	}
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
