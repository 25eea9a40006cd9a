package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config stores runtime configuration for a bot run.
type Config struct {
	Meeting  MeetingConfig
	Audio    AudioConfig
	Browser  BrowserConfig
	Log      LogConfig
	Deepgram DeepgramConfig
}

type MeetingConfig struct {
	Link             string        `toml:"link"`
	DisplayName      string        `toml:"display_name"`
	RecordingEnabled bool          `toml:"recording_enabled"`
	ConferenceHost   string        `toml:"conference_host"`
	PhrasesFile      string        `toml:"phrases_file"`
	ScreenshotDir    string        `toml:"screenshot_dir"`
	MonitorInterval  time.Duration `toml:"-"`
	// MonitorIntervalSeconds is the file form of MonitorInterval.
	MonitorIntervalSeconds int `toml:"monitor_interval_seconds"`
}

// Audio backends.
const (
	BackendPortAudio = "portaudio"
	BackendFFMPEG    = "ffmpeg"
)

type AudioConfig struct {
	Backend       string `toml:"backend"`
	Device        string `toml:"device"`
	Channels      int    `toml:"channels"`
	SampleRate    int    `toml:"sample_rate"`
	BlockSize     int    `toml:"block_size"`
	OutputDir     string `toml:"output_dir"`
	FFMPEGCommand string `toml:"ffmpeg_command"`
	InputFormat   string `toml:"input_format"`
}

type BrowserConfig struct {
	ExecPath    string `toml:"exec_path"`
	UserDataDir string `toml:"user_data_dir"`
	Headless    bool   `toml:"headless"`
}

type LogConfig struct {
	File       string `toml:"file"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type DeepgramConfig struct {
	APIKey      string `toml:"api_key"`
	APIBaseURL  string `toml:"api_base"`
	Model       string `toml:"model"`
	Language    string `toml:"language"`
	SmartFormat bool   `toml:"smart_format"`
	Diarize     bool   `toml:"diarize"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() Config {
	return Config{
		Meeting: MeetingConfig{
			DisplayName:            "Echo",
			RecordingEnabled:       true,
			ConferenceHost:         "meet.google.com",
			ScreenshotDir:          ".",
			MonitorIntervalSeconds: 30,
		},
		Audio: AudioConfig{
			Backend:       BackendPortAudio,
			Channels:      2,
			SampleRate:    44100,
			BlockSize:     1024,
			OutputDir:     "recordings",
			FFMPEGCommand: "ffmpeg",
			InputFormat:   "pulse",
		},
		Browser: BrowserConfig{},
		Log: LogConfig{
			File:       "meetbot.log",
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 10,
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
	}
}

// Load resolves configuration from an optional TOML file, then environment
// variables, then clamps invalid values back to defaults. An empty path
// falls back to the user config file when one exists.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultPath()
	}
	if path != "" {
		err := decodeFile(path, &cfg)
		if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	clamp(&cfg)
	return cfg, nil
}

// defaultPath is where Load looks when no file is given.
func defaultPath() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "meetbot", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "meetbot", "config.toml")
}

type fileConfig struct {
	Meeting  *MeetingConfig  `toml:"meeting"`
	Audio    *AudioConfig    `toml:"audio"`
	Browser  *BrowserConfig  `toml:"browser"`
	Log      *LogConfig      `toml:"log"`
	Deepgram *DeepgramConfig `toml:"deepgram"`
}

func decodeFile(path string, cfg *Config) error {
	// Decoding into the populated sections keeps defaults for absent keys.
	fc := fileConfig{
		Meeting:  &cfg.Meeting,
		Audio:    &cfg.Audio,
		Browser:  &cfg.Browser,
		Log:      &cfg.Log,
		Deepgram: &cfg.Deepgram,
	}
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) {
	m := &cfg.Meeting
	m.Link = envOrDefault("MEETBOT_MEETING_LINK", m.Link)
	m.DisplayName = envOrDefault("MEETBOT_DISPLAY_NAME", m.DisplayName)
	m.RecordingEnabled = envOrDefaultBool("MEETBOT_RECORDING_ENABLED", m.RecordingEnabled)
	m.ConferenceHost = envOrDefault("MEETBOT_CONFERENCE_HOST", m.ConferenceHost)
	m.PhrasesFile = envOrDefault("MEETBOT_PHRASES_FILE", m.PhrasesFile)
	m.ScreenshotDir = envOrDefault("MEETBOT_SCREENSHOT_DIR", m.ScreenshotDir)
	m.MonitorIntervalSeconds = envOrDefaultInt("MEETBOT_MONITOR_INTERVAL_SECONDS", m.MonitorIntervalSeconds)

	a := &cfg.Audio
	a.Backend = strings.ToLower(envOrDefault("MEETBOT_AUDIO_BACKEND", a.Backend))
	a.Device = envOrDefault("MEETBOT_AUDIO_DEVICE", a.Device)
	a.Channels = envOrDefaultInt("MEETBOT_CHANNELS", a.Channels)
	a.SampleRate = envOrDefaultInt("MEETBOT_SAMPLE_RATE", a.SampleRate)
	a.BlockSize = envOrDefaultInt("MEETBOT_BLOCK_SIZE", a.BlockSize)
	a.OutputDir = envOrDefault("MEETBOT_OUTPUT_DIR", a.OutputDir)
	a.FFMPEGCommand = envOrDefault("MEETBOT_FFMPEG_COMMAND", a.FFMPEGCommand)
	a.InputFormat = envOrDefault("MEETBOT_AUDIO_INPUT_FORMAT", a.InputFormat)

	b := &cfg.Browser
	b.ExecPath = envOrDefault("MEETBOT_CHROME_PATH", b.ExecPath)
	b.UserDataDir = envOrDefault("MEETBOT_CHROME_USER_DATA_DIR", b.UserDataDir)
	b.Headless = envOrDefaultBool("MEETBOT_HEADLESS", b.Headless)

	l := &cfg.Log
	l.File = envOrDefault("MEETBOT_LOG_FILE", l.File)
	l.Level = strings.ToLower(envOrDefault("MEETBOT_LOG_LEVEL", l.Level))
	l.Format = strings.ToLower(envOrDefault("MEETBOT_LOG_FORMAT", l.Format))

	d := &cfg.Deepgram
	d.APIKey = envOrDefault("DEEPGRAM_API_KEY", d.APIKey)
	d.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", d.APIBaseURL)
	d.Model = envOrDefault("DEEPGRAM_MODEL", d.Model)
	d.Language = envOrDefault("DEEPGRAM_LANGUAGE", d.Language)
	d.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", d.SmartFormat)
	d.Diarize = envOrDefaultBool("DEEPGRAM_DIARIZE", d.Diarize)
}

func clamp(cfg *Config) {
	defaults := Default()

	if cfg.Meeting.MonitorIntervalSeconds <= 0 {
		cfg.Meeting.MonitorIntervalSeconds = defaults.Meeting.MonitorIntervalSeconds
	}
	cfg.Meeting.MonitorInterval = time.Duration(cfg.Meeting.MonitorIntervalSeconds) * time.Second
	if strings.TrimSpace(cfg.Meeting.DisplayName) == "" {
		cfg.Meeting.DisplayName = defaults.Meeting.DisplayName
	}
	if strings.TrimSpace(cfg.Meeting.ConferenceHost) == "" {
		cfg.Meeting.ConferenceHost = defaults.Meeting.ConferenceHost
	}

	switch cfg.Audio.Backend {
	case BackendPortAudio, BackendFFMPEG:
	default:
		cfg.Audio.Backend = defaults.Audio.Backend
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = defaults.Audio.Channels
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defaults.Audio.SampleRate
	}
	if cfg.Audio.BlockSize < 64 {
		cfg.Audio.BlockSize = defaults.Audio.BlockSize
	}
	if strings.TrimSpace(cfg.Audio.OutputDir) == "" {
		cfg.Audio.OutputDir = defaults.Audio.OutputDir
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		cfg.Log.Level = defaults.Log.Level
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups < 0 {
		cfg.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if cfg.Log.MaxAgeDays < 0 {
		cfg.Log.MaxAgeDays = defaults.Log.MaxAgeDays
	}
}

// Validate reports settings a join run cannot do without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Meeting.Link) == "" {
		return errors.New("meeting link is required (set MEETBOT_MEETING_LINK or meeting.link)")
	}
	if !strings.Contains(c.Meeting.Link, "://") {
		return fmt.Errorf("meeting link %q is not a url", c.Meeting.Link)
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
