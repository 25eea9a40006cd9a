package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	for _, key := range []string{
		"MEETBOT_MEETING_LINK", "MEETBOT_DISPLAY_NAME", "MEETBOT_RECORDING_ENABLED",
		"MEETBOT_AUDIO_BACKEND", "MEETBOT_CHANNELS", "MEETBOT_SAMPLE_RATE", "MEETBOT_BLOCK_SIZE",
		"MEETBOT_LOG_LEVEL", "MEETBOT_LOG_FORMAT", "MEETBOT_MONITOR_INTERVAL_SECONDS",
		"DEEPGRAM_API_KEY", "DEEPGRAM_SMART_FORMAT",
	} {
		t.Setenv(key, "")
	}
	return home
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Meeting.DisplayName != "Echo" || !cfg.Meeting.RecordingEnabled {
		t.Fatalf("unexpected meeting defaults: %+v", cfg.Meeting)
	}
	if cfg.Meeting.MonitorInterval != 30*time.Second {
		t.Fatalf("unexpected monitor interval: %s", cfg.Meeting.MonitorInterval)
	}
	if cfg.Audio.Backend != BackendPortAudio || cfg.Audio.Channels != 2 || cfg.Audio.SampleRate != 44100 || cfg.Audio.BlockSize != 1024 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Audio.OutputDir != "recordings" {
		t.Fatalf("unexpected output dir: %q", cfg.Audio.OutputDir)
	}
}

func TestLoadReadsUserConfigFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "meetbot", "config.toml"), `
[meeting]
link = "https://meet.google.com/abc-defg-hij"
display_name = "Scribe"
monitor_interval_seconds = 10

[audio]
backend = "ffmpeg"
channels = 1

[deepgram]
diarize = true
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Meeting.Link != "https://meet.google.com/abc-defg-hij" || cfg.Meeting.DisplayName != "Scribe" {
		t.Fatalf("unexpected meeting config: %+v", cfg.Meeting)
	}
	if cfg.Meeting.MonitorInterval != 10*time.Second {
		t.Fatalf("unexpected monitor interval: %s", cfg.Meeting.MonitorInterval)
	}
	if cfg.Audio.Backend != BackendFFMPEG || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 44100 || !cfg.Meeting.RecordingEnabled {
		t.Fatalf("absent keys should keep defaults: %+v", cfg)
	}
	if !cfg.Deepgram.Diarize || !cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "bot.toml")
	writeConfig(t, path, "[meeting]\ndisplay_name = \"FromFile\"\n[log]\nlevel = \"debug\"\n")

	t.Setenv("MEETBOT_DISPLAY_NAME", "FromEnv")
	t.Setenv("MEETBOT_RECORDING_ENABLED", "off")
	t.Setenv("MEETBOT_SAMPLE_RATE", "48000")
	t.Setenv("MEETBOT_AUDIO_BACKEND", "FFMPEG")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Meeting.DisplayName != "FromEnv" || cfg.Meeting.RecordingEnabled {
		t.Fatalf("unexpected meeting config: %+v", cfg.Meeting)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Backend != BackendFFMPEG {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected file log level, got %q", cfg.Log.Level)
	}
	if cfg.Deepgram.APIKey != "test-key" || cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
}

func TestLoadInvalidValuesFallback(t *testing.T) {
	isolate(t)
	t.Setenv("MEETBOT_CHANNELS", "-1")
	t.Setenv("MEETBOT_SAMPLE_RATE", "bad")
	t.Setenv("MEETBOT_BLOCK_SIZE", "5")
	t.Setenv("MEETBOT_AUDIO_BACKEND", "jack")
	t.Setenv("MEETBOT_LOG_LEVEL", "loud")
	t.Setenv("MEETBOT_LOG_FORMAT", "xml")
	t.Setenv("MEETBOT_MONITOR_INTERVAL_SECONDS", "0")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "not-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.Channels != 2 || cfg.Audio.SampleRate != 44100 || cfg.Audio.BlockSize != 1024 {
		t.Fatalf("expected audio fallbacks, got %+v", cfg.Audio)
	}
	if cfg.Audio.Backend != BackendPortAudio {
		t.Fatalf("expected backend fallback, got %q", cfg.Audio.Backend)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("expected log fallbacks, got %+v", cfg.Log)
	}
	if cfg.Meeting.MonitorInterval != 30*time.Second {
		t.Fatalf("expected default monitor interval, got %s", cfg.Meeting.MonitorInterval)
	}
	if !cfg.Deepgram.SmartFormat {
		t.Fatalf("expected default smart format true")
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	home := isolate(t)

	if _, err := Load(filepath.Join(home, "missing.toml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "bot.toml")
	writeConfig(t, path, "[meeting]\nlnk = \"typo\"\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "meeting.lnk") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "bot.toml")
	writeConfig(t, path, "[meeting\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing link error")
	}
	cfg.Meeting.Link = "abc-defg-hij"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected non-url error")
	}
	cfg.Meeting.Link = "https://meet.google.com/abc-defg-hij"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
