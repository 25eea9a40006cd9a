package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meetbot/internal/domain"
	"meetbot/internal/usecase"
)

// meetingSession is the part of the session controller a run drives.
type meetingSession interface {
	Open(ctx context.Context) error
	RequestJoin(ctx context.Context) error
	Monitor(ctx context.Context) error
	Shutdown(reason domain.StopReason) (string, bool)
	Artifact() (string, bool)
}

type transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

const transcribeTimeout = 10 * time.Minute

// App owns one bot run and receives the controller's events.
type App struct {
	logger *slog.Logger
	out    io.Writer

	mu     sync.Mutex
	phase  domain.Phase
	status domain.RecordingStatus
	errs   []domain.ErrorCode
}

func NewApp(logger *slog.Logger, out io.Writer) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &App{logger: logger.With("component", "app"), out: out, phase: domain.PhaseInitializing}
}

// Run joins the meeting and monitors it until it ends or ctx is cancelled,
// then finalizes the recording. Cancellation is a clean exit and skips the
// transcript handoff.
func (a *App) Run(ctx context.Context, session meetingSession, tr transcriber) error {
	runErr := a.drive(ctx, session)

	reason := domain.StopReasonShutdown
	if runErr != nil && ctx.Err() == nil {
		reason = domain.StopReasonError
	}
	session.Shutdown(reason)

	if path, ok := session.Artifact(); ok {
		a.summarize(path)
		switch {
		case tr == nil:
		case ctx.Err() != nil:
			a.logger.Info("transcription skipped after interrupt", "file", path)
		default:
			a.transcribe(ctx, tr, path)
		}
	} else {
		a.logger.Info("no recording was saved")
	}

	if ctx.Err() != nil {
		return nil
	}
	return runErr
}

func (a *App) drive(ctx context.Context, session meetingSession) error {
	if err := session.Open(ctx); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	if err := session.RequestJoin(ctx); err != nil {
		return fmt.Errorf("join meeting: %w", err)
	}
	if err := session.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("monitor meeting: %w", err)
	}
	return nil
}

func (a *App) summarize(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(path)
	if err != nil {
		a.logger.Warn("recording file missing after save", "file", abs, "error", err)
		return
	}
	sizeMB := float64(info.Size()) / (1024 * 1024)

	a.mu.Lock()
	status := a.status
	a.mu.Unlock()
	duration := time.Duration(status.Duration * float64(time.Second)).Round(time.Second)

	a.logger.Info("recording summary",
		"file", abs,
		"size_mb", fmt.Sprintf("%.2f", sizeMB),
		"duration", duration,
		"frames", status.FramesCaptured,
	)
	fmt.Fprintf(a.out, "Recording saved: %s (%.2f MB, %s)\n", abs, sizeMB, duration)
}

func (a *App) transcribe(ctx context.Context, tr transcriber, path string) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcribeTimeout)
	defer cancel()

	out, err := tr.Transcribe(tctx, path)
	if err != nil {
		if errors.Is(err, usecase.ErrNoTranscript) {
			a.logger.Warn("recording produced no transcript", "file", path)
			return
		}
		a.SessionError(domain.ErrorCodeTranscription, err.Error())
		return
	}
	fmt.Fprintf(a.out, "Transcript saved: %s\n", out)
}

// Phase returns the last phase reported by the controller.
func (a *App) Phase() domain.Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Errors returns the error codes reported so far.
func (a *App) Errors() []domain.ErrorCode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ErrorCode(nil), a.errs...)
}

// PhaseChanged logs session lifecycle updates.
func (a *App) PhaseChanged(phase domain.Phase, reason string) {
	a.mu.Lock()
	a.phase = phase
	a.mu.Unlock()
	a.logger.Info(phaseMessage(phase), "phase", phase, "reason", reason)
}

// RecordingStatus keeps the latest capture snapshot.
func (a *App) RecordingStatus(status domain.RecordingStatus) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
}

// SessionError logs backend errors.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.mu.Lock()
	a.errs = append(a.errs, code)
	a.mu.Unlock()
	a.logger.Error(errorMessage(code, detail), "code", code, "detail", detail)
}

func phaseMessage(phase domain.Phase) string {
	switch phase {
	case domain.PhaseInitializing:
		return "Starting up"
	case domain.PhaseJoinRequested:
		return "Requesting to join"
	case domain.PhaseWaiting:
		return "Waiting for host approval"
	case domain.PhaseJoined:
		return "Joined the meeting"
	case domain.PhaseDisconnected:
		return "Disconnected from the meeting"
	case domain.PhaseEnded:
		return "Meeting ended"
	case domain.PhaseError:
		return "Session failed"
	default:
		return "Phase changed"
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeSurface:
		return "Browser control issue"
	case domain.ErrorCodeJoin:
		return "Could not join the meeting"
	case domain.ErrorCodeAudioStart:
		return "Recording could not start"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodePersist:
		return "Recording could not be saved"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
