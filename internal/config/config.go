package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	VideoDegrade = "degrade"
	VideoStrict  = "strict"
)

type Config struct {
	LogLevel string         `json:"log_level" env:"VMIC_LOG_LEVEL, overwrite"`
	Audio    AudioConfig    `json:"audio"`
	Graph    GraphConfig    `json:"graph"`
	Frames   FramesConfig   `json:"frames"`
	Capture  CaptureConfig  `json:"capture"`
	Bridge   BridgeConfig   `json:"bridge"`
	Recorder RecorderConfig `json:"recorder"`
}

// AudioConfig configures the physical capture platform.
type AudioConfig struct {
	DeviceID        string `json:"device_id" env:"VMIC_AUDIO_DEVICE_ID, overwrite"`
	SampleRate      int    `json:"sample_rate" env:"VMIC_AUDIO_SAMPLE_RATE, overwrite"`
	FramesPerBuffer int    `json:"frames_per_buffer" env:"VMIC_AUDIO_FRAMES_PER_BUFFER, overwrite"`
}

// GraphConfig is the rendering format of the virtual microphone.
type GraphConfig struct {
	SampleRate int `json:"sample_rate" env:"VMIC_GRAPH_SAMPLE_RATE, overwrite"`
	Channels   int `json:"channels" env:"VMIC_GRAPH_CHANNELS, overwrite"`
	Quantum    int `json:"quantum" env:"VMIC_GRAPH_QUANTUM, overwrite"`
}

type FramesConfig struct {
	MessageType string `json:"message_type" env:"VMIC_FRAME_TYPE, overwrite"`
	// Empty accepts frames from any sender.
	AllowedOrigins []string `json:"allowed_origins" env:"VMIC_ALLOWED_ORIGINS, overwrite"`
}

type CaptureConfig struct {
	VideoPolicy string `json:"video_policy" env:"VMIC_VIDEO_POLICY, overwrite"` // "degrade" or "strict"
}

type BridgeConfig struct {
	Addr        string `json:"addr" env:"VMIC_BRIDGE_ADDR, overwrite"`
	FramesPath  string `json:"frames_path" env:"VMIC_BRIDGE_FRAMES_PATH, overwrite"`
	StatusPath  string `json:"status_path" env:"VMIC_BRIDGE_STATUS_PATH, overwrite"`
	MaxFrameKiB int    `json:"max_frame_kib" env:"VMIC_BRIDGE_MAX_FRAME_KIB, overwrite"`
}

type RecorderConfig struct {
	// Path of a WAV file receiving the virtual microphone output. Empty
	// disables recording.
	Path string `json:"path" env:"VMIC_RECORD_PATH, overwrite"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			DeviceID:        "",
			SampleRate:      0, // device default
			FramesPerBuffer: 512,
		},
		Graph: GraphConfig{
			SampleRate: 48000,
			Channels:   1,
			Quantum:    128,
		},
		Frames: FramesConfig{
			MessageType: "AUDIO_FRAME",
		},
		Capture: CaptureConfig{
			VideoPolicy: VideoDegrade,
		},
		Bridge: BridgeConfig{
			Addr:        "127.0.0.1:7878",
			FramesPath:  "/frames",
			StatusPath:  "/debug/status",
			MaxFrameKiB: 2048,
		},
	}
}

// Load reads the config file at path (or the platform default location when
// path is empty), then applies .env and VMIC_* environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = configPath()
	}

	cfg := Default()

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the shim cannot run with.
func (c *Config) Validate() error {
	switch c.Capture.VideoPolicy {
	case VideoDegrade, VideoStrict:
	default:
		return fmt.Errorf("invalid video policy: %q (must be %s or %s)", c.Capture.VideoPolicy, VideoDegrade, VideoStrict)
	}
	if c.Graph.SampleRate <= 0 {
		return fmt.Errorf("graph sample rate must be positive, got %d", c.Graph.SampleRate)
	}
	if c.Graph.Channels <= 0 {
		return fmt.Errorf("graph channels must be positive, got %d", c.Graph.Channels)
	}
	if c.Frames.MessageType == "" {
		return fmt.Errorf("frame message type is required")
	}
	return nil
}

// Save writes the config to path, or the platform default location.
func (c *Config) Save(path string) error {
	if path == "" {
		path = configPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "vmic", "config.json")
}
