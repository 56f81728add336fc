package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/BoothGo/internal/profile"
)

// MaxConfigFileBytes caps the size of a config file read by Load.
const MaxConfigFileBytes = 1 << 20

// ShotCount is the number of shots in a collage. It is not configurable.
const ShotCount = 3

// CameraConfig selects and parameterizes the frame source.
// Type selects a concrete implementation ("pattern", "still" or "v4l2").
type CameraConfig struct {
	Type      string `yaml:"type"`       // e.g., "v4l2"
	Device    string `yaml:"device"`     // V4L2 device node, e.g. /dev/video0
	Width     int    `yaml:"width"`      // requested frame width (px)
	Height    int    `yaml:"height"`     // requested frame height (px)
	FPS       int    `yaml:"fps"`        // requested capture rate
	StillPath string `yaml:"still_path"` // image served by the "still" source
	RetryMs   int    `yaml:"retry_ms"`   // delay between camera start attempts (ms)
}

// BoothConfig holds the capture session timing.
type BoothConfig struct {
	CountdownFrom       int `yaml:"countdown_from"`        // first countdown value (default 3)
	CountdownIntervalMs int `yaml:"countdown_interval_ms"` // time between countdown values (ms)
	PreviewFPS          int `yaml:"preview_fps"`           // live preview refresh rate
}

// CollageConfig describes the branding drawn on the collage.
type CollageConfig struct {
	Background   string `yaml:"background"`    // hex color, e.g. "#99C0F3"
	CaptionLeft  string `yaml:"caption_left"`  // left-aligned caption
	CaptionRight string `yaml:"caption_right"` // right-aligned caption
	LogoPath     string `yaml:"logo_path"`     // optional PNG/JPEG logo, built-in emblem if empty
	FontPath     string `yaml:"font_path"`     // optional TTF, Go Bold if empty
	JPEGQuality  int    `yaml:"jpeg_quality"`  // quality of the uploaded JPEG (1-100)
	PreviewWidth int    `yaml:"preview_width"` // width of the display-sized preview (px)
}

// UploadConfig selects the upload sink.
type UploadConfig struct {
	Type      string `yaml:"type"`       // "http" or "disk"
	Endpoint  string `yaml:"endpoint"`   // multipart endpoint for "http"
	Dir       string `yaml:"dir"`        // output directory for "disk"
	TimeoutMs int    `yaml:"timeout_ms"` // request timeout (ms)
}

// ProfileConfig is the initial display name attached to uploads.
type ProfileConfig struct {
	DisplayName string `yaml:"display_name"`
}

// PanelConfig wires the optional physical push button and flash lamp.
// Pins are BCM numbers. 0 = not used.
type PanelConfig struct {
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	ButtonPin  int  `yaml:"button_pin"`  // push button, active LOW
	FlashPin   int  `yaml:"flash_pin"`   // flash lamp relay, active HIGH
	FlashMs    int  `yaml:"flash_ms"`    // flash pulse length (ms)
	DebounceMs int  `yaml:"debounce_ms"` // button debounce window (ms)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Booth    BoothConfig    `yaml:"booth"`
	Collage  CollageConfig  `yaml:"collage"`
	Upload   UploadConfig   `yaml:"upload"`
	Profile  ProfileConfig  `yaml:"profile"`
	Panel    PanelConfig    `yaml:"panel"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are not a .yaml file directly inside a
// "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path must not contain '..': %s", path)
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have a .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize validates the configuration and fills in defaults.
func (c *Config) normalize() error {
	// Camera
	switch c.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case "pattern", "v4l2":
	case "still":
		if c.Camera.StillPath == "" {
			return fmt.Errorf("camera.still_path is required for camera type \"still\"")
		}
	default:
		return fmt.Errorf("unsupported camera.type: %s", c.Camera.Type)
	}
	if c.Camera.Device == "" {
		c.Camera.Device = "/dev/video0"
	}
	if c.Camera.Width <= 0 {
		c.Camera.Width = 1280
	}
	if c.Camera.Height <= 0 {
		c.Camera.Height = 720
	}
	if c.Camera.FPS <= 0 {
		c.Camera.FPS = 30
	}
	if c.Camera.FPS > 120 {
		return fmt.Errorf("camera.fps must be <= 120, got %d", c.Camera.FPS)
	}
	if c.Camera.RetryMs <= 0 {
		c.Camera.RetryMs = 2000 // 2s between start attempts
	}

	// Booth
	if c.Booth.CountdownFrom <= 0 {
		c.Booth.CountdownFrom = 3
	}
	if c.Booth.CountdownFrom > 10 {
		return fmt.Errorf("booth.countdown_from must be <= 10, got %d", c.Booth.CountdownFrom)
	}
	if c.Booth.CountdownIntervalMs <= 0 {
		c.Booth.CountdownIntervalMs = 1000 // one value per second
	}
	if c.Booth.PreviewFPS <= 0 {
		c.Booth.PreviewFPS = 15
	}
	if c.Booth.PreviewFPS > 60 {
		return fmt.Errorf("booth.preview_fps must be <= 60, got %d", c.Booth.PreviewFPS)
	}

	// Collage
	if c.Collage.Background == "" {
		c.Collage.Background = "#99C0F3"
	}
	if !isHexColor(c.Collage.Background) {
		return fmt.Errorf("collage.background must be a #RRGGBB color, got %q", c.Collage.Background)
	}
	if c.Collage.CaptionLeft == "" {
		c.Collage.CaptionLeft = "#ourjourneyz"
	}
	if c.Collage.CaptionRight == "" {
		c.Collage.CaptionRight = "#zahwajian"
	}
	if c.Collage.JPEGQuality == 0 {
		c.Collage.JPEGQuality = 80
	}
	if c.Collage.JPEGQuality < 1 || c.Collage.JPEGQuality > 100 {
		return fmt.Errorf("collage.jpeg_quality must be between 1 and 100, got %d", c.Collage.JPEGQuality)
	}
	if c.Collage.PreviewWidth <= 0 {
		c.Collage.PreviewWidth = 450
	}

	// Upload
	switch c.Upload.Type {
	case "":
		c.Upload.Type = "disk"
	case "disk", "http":
	default:
		return fmt.Errorf("unsupported upload.type: %s", c.Upload.Type)
	}
	if c.Upload.Type == "http" && c.Upload.Endpoint == "" {
		return fmt.Errorf("upload.endpoint is required for upload type \"http\"")
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = "uploads"
	}
	if c.Upload.TimeoutMs <= 0 {
		c.Upload.TimeoutMs = 30000
	}

	// Profile
	c.Profile.DisplayName = strings.TrimSpace(c.Profile.DisplayName)
	if c.Profile.DisplayName == "" {
		c.Profile.DisplayName = "Anonymous"
	}
	if n := utf8.RuneCountInString(c.Profile.DisplayName); n > profile.MaxNameLength {
		return fmt.Errorf("profile.display_name must be at most %d characters, got %d", profile.MaxNameLength, n)
	}

	// Panel
	if c.Panel.FlashMs <= 0 {
		c.Panel.FlashMs = 150
	}
	if c.Panel.DebounceMs <= 0 {
		c.Panel.DebounceMs = 50
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// CameraRetry returns the delay between two camera start attempts.
func (c *Config) CameraRetry() time.Duration {
	return time.Duration(c.Camera.RetryMs) * time.Millisecond
}

// CountdownInterval returns the time between two countdown values.
func (c *Config) CountdownInterval() time.Duration {
	return time.Duration(c.Booth.CountdownIntervalMs) * time.Millisecond
}

// PreviewInterval returns the period of the live preview loop.
func (c *Config) PreviewInterval() time.Duration {
	return time.Second / time.Duration(c.Booth.PreviewFPS)
}

// UploadTimeout returns the upload request timeout.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.TimeoutMs) * time.Millisecond
}

// FlashPulse returns how long the flash lamp stays on.
func (c *Config) FlashPulse() time.Duration {
	return time.Duration(c.Panel.FlashMs) * time.Millisecond
}

// Debounce returns the button debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Panel.DebounceMs) * time.Millisecond
}

// PanelEnabled reports whether any GPIO pin is wired.
func (c *Config) PanelEnabled() bool {
	return c.Panel.ButtonPin > 0 || c.Panel.FlashPin > 0
}
