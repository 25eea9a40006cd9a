package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"meetbot/internal/artifact"
	"meetbot/internal/domain"
	"meetbot/internal/ports"
)

var ErrNoTranscript = errors.New("no transcript captured")

type transcriptAggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(event domain.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
	}
}

func (a *transcriptAggregator) Raw() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if joined == "" {
		return a.lastSpoken
	}
	if a.lastSpoken == "" || strings.HasSuffix(joined, a.lastSpoken) {
		return joined
	}
	if len(a.lastSpoken) > len(joined) {
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	}
	return joined
}

// HandoffConfig controls how a finished recording is streamed for
// transcription.
type HandoffConfig struct {
	ChunkSize    int
	DrainTimeout time.Duration
}

// TranscriptHandoff streams a persisted recording through a transcription
// provider and writes the transcript next to it.
type TranscriptHandoff struct {
	provider ports.TranscriptionProvider
	logger   *slog.Logger
	cfg      HandoffConfig
}

func NewTranscriptHandoff(provider ports.TranscriptionProvider, logger *slog.Logger, cfg HandoffConfig) *TranscriptHandoff {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 8192
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &TranscriptHandoff{
		provider: provider,
		logger:   logger.With("component", "transcript"),
		cfg:      cfg,
	}
}

// TranscriptPath returns where the transcript of a recording is written.
func TranscriptPath(recording string) string {
	return strings.TrimSuffix(recording, filepath.Ext(recording)) + ".txt"
}

// Transcribe streams the recording at path and writes its transcript. It
// returns the transcript path.
func (h *TranscriptHandoff) Transcribe(ctx context.Context, path string) (string, error) {
	pcm, err := artifact.OpenPCM(path)
	if err != nil {
		return "", err
	}
	defer pcm.Close()

	session, err := h.provider.StartStreaming(ctx, ports.StreamingConfig{
		SampleRate: pcm.Format.SampleRate,
		Channels:   pcm.Format.Channels,
		Encoding:   "linear16",
	})
	if err != nil {
		return "", fmt.Errorf("start transcription: %w", err)
	}
	h.logger.Info("transcribing recording", "file", path, "bytes", pcm.Length)

	aggregator := newTranscriptAggregator()
	eventsDone := make(chan struct{})
	go consumeTranscriptionEvents(session, aggregator, eventsDone)

	sendErr := pumpPCMChunks(ctx, pcm, session, h.cfg.ChunkSize)
	_ = session.CloseSend()
	streamErr := waitForStream(session, h.cfg.DrainTimeout)
	<-eventsDone

	raw := aggregator.Raw()
	if raw == "" {
		if err := errors.Join(sendErr, streamErr); err != nil {
			return "", fmt.Errorf("transcription failed: %w", err)
		}
		return "", ErrNoTranscript
	}
	if sendErr != nil || streamErr != nil {
		h.logger.Warn("transcription incomplete", "send_error", sendErr, "stream_error", streamErr)
	}

	out := TranscriptPath(path)
	if err := os.WriteFile(out, []byte(raw+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	h.logger.Info("transcript saved", "file", out, "chars", len(raw))
	return out, nil
}

func pumpPCMChunks(ctx context.Context, r io.Reader, stream ports.StreamingSession, chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read recording: %w", err)
		}
	}
}

func consumeTranscriptionEvents(
	session ports.StreamingSession,
	aggregator *transcriptAggregator,
	done chan struct{},
) {
	defer close(done)

	for event := range session.Events() {
		aggregator.Add(event)
	}
}
