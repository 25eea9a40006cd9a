package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"meetbot/internal/config"
	"meetbot/internal/domain"
	"meetbot/internal/usecase"
)

func TestPhaseMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.Phase]string{
		domain.PhaseInitializing:  "Starting up",
		domain.PhaseJoinRequested: "Requesting to join",
		domain.PhaseWaiting:       "Waiting for host approval",
		domain.PhaseJoined:        "Joined the meeting",
		domain.PhaseDisconnected:  "Disconnected from the meeting",
		domain.PhaseEnded:         "Meeting ended",
		domain.PhaseError:         "Session failed",
	}
	for phase, want := range cases {
		phase, want := phase, want
		t.Run(string(phase), func(t *testing.T) {
			t.Parallel()
			if got := phaseMessage(phase); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := phaseMessage("unknown"); got != "Phase changed" {
		t.Fatalf("unexpected fallback message %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:       "Startup failed",
		domain.ErrorCodeSurface:       "Browser control issue",
		domain.ErrorCodeJoin:          "Could not join the meeting",
		domain.ErrorCodeAudioStart:    "Recording could not start",
		domain.ErrorCodeAudioStop:     "Audio stop issue",
		domain.ErrorCodeAudioStream:   "Audio streaming issue",
		domain.ErrorCodePersist:       "Recording could not be saved",
		domain.ErrorCodeTranscription: "Transcription error",
	}
	for code, want := range cases {
		code, want := code, want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRunFinalizesRecordingAndTranscribes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "meeting_recording_20261015_090000.wav")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	session := &fakeSession{artifact: path}
	tr := &fakeTranscriber{out: "meeting_recording_20261015_090000.txt"}

	var out bytes.Buffer
	app := NewApp(nil, &out)
	app.RecordingStatus(domain.RecordingStatus{IsRecording: true, Duration: 65, FramesCaptured: 10})

	if err := app.Run(context.Background(), session, tr); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if session.shutdownReason != domain.StopReasonShutdown {
		t.Fatalf("unexpected shutdown reason %q", session.shutdownReason)
	}
	if tr.path != path {
		t.Fatalf("expected transcription of %q, got %q", path, tr.path)
	}
	if !strings.Contains(out.String(), "Recording saved: ") || !strings.Contains(out.String(), "1m5s") {
		t.Fatalf("unexpected summary: %q", out.String())
	}
	if !strings.Contains(out.String(), "Transcript saved: meeting_recording_20261015_090000.txt") {
		t.Fatalf("missing transcript line: %q", out.String())
	}
}

func TestRunOpenFailureShutsDownWithError(t *testing.T) {
	t.Parallel()

	session := &fakeSession{openErr: errors.New("chrome missing")}
	tr := &fakeTranscriber{}

	err := NewApp(nil, nil).Run(context.Background(), session, tr)
	if err == nil || !strings.Contains(err.Error(), "chrome missing") {
		t.Fatalf("expected open error, got %v", err)
	}
	if session.joined || session.monitored {
		t.Fatalf("run must stop after open failure")
	}
	if session.shutdownReason != domain.StopReasonError {
		t.Fatalf("unexpected shutdown reason %q", session.shutdownReason)
	}
	if tr.path != "" {
		t.Fatalf("no artifact means no transcription")
	}
}

func TestRunJoinFailureReturnsSentinel(t *testing.T) {
	t.Parallel()

	session := &fakeSession{joinErr: usecase.ErrJoinButtonNotFound}
	err := NewApp(nil, nil).Run(context.Background(), session, nil)
	if !errors.Is(err, usecase.ErrJoinButtonNotFound) {
		t.Fatalf("expected join sentinel, got %v", err)
	}
	if session.monitored {
		t.Fatalf("monitor must not run after failed join")
	}
}

func TestRunCancellationIsCleanExit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{onMonitor: cancel}

	if err := NewApp(nil, nil).Run(ctx, session, nil); err != nil {
		t.Fatalf("expected clean exit on cancel, got %v", err)
	}
	if session.shutdownReason != domain.StopReasonShutdown {
		t.Fatalf("unexpected shutdown reason %q", session.shutdownReason)
	}
}

func TestRunInterruptSkipsTranscription(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{artifact: path, onMonitor: cancel}
	tr := &fakeTranscriber{block: true}

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- NewApp(nil, &out).Run(ctx, session, tr) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit on interrupt, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run blocked on transcription after interrupt")
	}
	if tr.path != "" {
		t.Fatalf("transcription must not start after interrupt")
	}
	if !strings.Contains(out.String(), "Recording saved: ") {
		t.Fatalf("recording summary still expected: %q", out.String())
	}
}

func TestRunTranscriptionFailureIsReportedOnly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	app := NewApp(nil, nil)
	err := app.Run(context.Background(), &fakeSession{artifact: path}, &fakeTranscriber{err: errors.New("quota")})
	if err != nil {
		t.Fatalf("transcription failure must not fail the run: %v", err)
	}
	if codes := app.Errors(); len(codes) != 1 || codes[0] != domain.ErrorCodeTranscription {
		t.Fatalf("expected transcription error code, got %v", codes)
	}

	quiet := NewApp(nil, nil)
	if err := quiet.Run(context.Background(), &fakeSession{artifact: path}, &fakeTranscriber{err: usecase.ErrNoTranscript}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quiet.Errors()) != 0 {
		t.Fatalf("empty transcript is not an error: %v", quiet.Errors())
	}
}

func TestAppTracksPhase(t *testing.T) {
	t.Parallel()

	app := NewApp(nil, nil)
	if app.Phase() != domain.PhaseInitializing {
		t.Fatalf("unexpected initial phase %q", app.Phase())
	}
	app.PhaseChanged(domain.PhaseJoined, "in-call indicator visible")
	if app.Phase() != domain.PhaseJoined {
		t.Fatalf("unexpected phase %q", app.Phase())
	}
}

func TestApplyJoinFlags(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{}
	cmd.Flags().Bool("headless", false, "")
	if err := cmd.Flags().Set("headless", "true"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg := config.Default()
	applyJoinFlags(cmd, &cfg, joinFlags{name: "Scribe", noRecord: true, headless: true, outputDir: "out", device: "BlackHole 2ch"},
		[]string{"https://meet.google.com/abc-defg-hij"})

	if cfg.Meeting.Link != "https://meet.google.com/abc-defg-hij" || cfg.Meeting.DisplayName != "Scribe" {
		t.Fatalf("unexpected meeting config: %+v", cfg.Meeting)
	}
	if cfg.Meeting.RecordingEnabled || !cfg.Browser.Headless {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Audio.OutputDir != "out" || cfg.Audio.Device != "BlackHole 2ch" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.String() != "meetbot v"+version+"\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

type fakeSession struct {
	openErr   error
	joinErr   error
	onMonitor func()
	artifact  string

	joined         bool
	monitored      bool
	shutdownReason domain.StopReason
}

func (f *fakeSession) Open(context.Context) error { return f.openErr }

func (f *fakeSession) RequestJoin(context.Context) error {
	f.joined = true
	return f.joinErr
}

func (f *fakeSession) Monitor(ctx context.Context) error {
	f.monitored = true
	if f.onMonitor != nil {
		f.onMonitor()
		return ctx.Err()
	}
	return nil
}

func (f *fakeSession) Shutdown(reason domain.StopReason) (string, bool) {
	f.shutdownReason = reason
	return f.artifact, f.artifact != ""
}

func (f *fakeSession) Artifact() (string, bool) { return f.artifact, f.artifact != "" }

type fakeTranscriber struct {
	out   string
	err   error
	block bool
	path  string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	f.path = path
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.out, f.err
}
