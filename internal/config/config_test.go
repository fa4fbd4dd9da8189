package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Graph.SampleRate != 48000 || cfg.Graph.Channels != 1 || cfg.Graph.Quantum != 128 {
		t.Errorf("unexpected graph defaults %+v", cfg.Graph)
	}
	if cfg.Frames.MessageType != "AUDIO_FRAME" {
		t.Errorf("unexpected frame type %q", cfg.Frames.MessageType)
	}
	if cfg.Capture.VideoPolicy != VideoDegrade {
		t.Errorf("unexpected video policy %q", cfg.Capture.VideoPolicy)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"log_level": "debug",
		"graph": {"sample_rate": 24000, "channels": 2, "quantum": 256},
		"frames": {"allowed_origins": ["chrome-extension://sokuji"]},
		"capture": {"video_policy": "strict"}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.LogLevel = "debug"
	want.Graph = GraphConfig{SampleRate: 24000, Channels: 2, Quantum: 256}
	want.Frames.AllowedOrigins = []string{"chrome-extension://sokuji"}
	want.Capture.VideoPolicy = VideoStrict
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"bridge": {"addr": "127.0.0.1:9000"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VMIC_BRIDGE_ADDR", "0.0.0.0:7000")
	t.Setenv("VMIC_GRAPH_SAMPLE_RATE", "16000")
	t.Setenv("VMIC_ALLOWED_ORIGINS", "a,b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bridge.Addr != "0.0.0.0:7000" {
		t.Errorf("expected env address, got %q", cfg.Bridge.Addr)
	}
	if cfg.Graph.SampleRate != 16000 {
		t.Errorf("expected env sample rate, got %d", cfg.Graph.SampleRate)
	}
	if diff := cmp.Diff([]string{"a", "b"}, cfg.Frames.AllowedOrigins); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Bridge.FramesPath != "/frames" {
		t.Errorf("unset variables must keep defaults, got %q", cfg.Bridge.FramesPath)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte(`{"graph": `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(broken); err == nil {
		t.Error("expected a parse error")
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"capture": {"video_policy": "sometimes"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(invalid)
	if err == nil || !strings.Contains(err.Error(), "video policy") {
		t.Errorf("expected a video policy error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"strict", func(c *Config) { c.Capture.VideoPolicy = VideoStrict }, false},
		{"empty policy", func(c *Config) { c.Capture.VideoPolicy = "" }, true},
		{"zero sample rate", func(c *Config) { c.Graph.SampleRate = 0 }, true},
		{"zero channels", func(c *Config) { c.Graph.Channels = 0 }, true},
		{"empty frame type", func(c *Config) { c.Frames.MessageType = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Recorder.Path = "/tmp/out.wav"
	cfg.Audio.DeviceID = "USB Headset"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
