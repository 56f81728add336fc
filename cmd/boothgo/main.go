package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gogpu/gg"

	"github.com/cjeanneret/BoothGo/internal/assets"
	"github.com/cjeanneret/BoothGo/internal/config"
	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/hw/gpio"
	"github.com/cjeanneret/BoothGo/internal/hw/panel"
	"github.com/cjeanneret/BoothGo/internal/logic/collage"
	"github.com/cjeanneret/BoothGo/internal/logic/filter"
	"github.com/cjeanneret/BoothGo/internal/logic/session"
	"github.com/cjeanneret/BoothGo/internal/profile"
	"github.com/cjeanneret/BoothGo/internal/upload"
	"github.com/cjeanneret/BoothGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	cameraType := flag.String("camera", "", "override camera type (pattern, still, v4l2)")
	displayName := flag.String("display_name", "", "override the display name attached to uploads")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := validateCLIOverrides(*cameraType, *displayName); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, *cameraType, *displayName)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	if debug.IsEnabled(debug.LevelTrace) {
		gg.SetLogger(debug.Slog())
	}
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Camera config", cfg.Camera)
	debug.PrintStruct("Collage config", cfg.Collage)

	frames, err := camera.NewFactory(cfg.Camera)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	bridge, err := upload.New(cfg.Upload, cfg.UploadTimeout())
	if err != nil {
		log.Fatalf("init upload failed: %v", err)
	}
	compositor := collage.New(
		assets.NewFiles(cfg.Collage.LogoPath, cfg.Collage.FontPath),
		collage.Options{
			Background:   cfg.Collage.Background,
			CaptionLeft:  cfg.Collage.CaptionLeft,
			CaptionRight: cfg.Collage.CaptionRight,
			PreviewWidth: cfg.Collage.PreviewWidth,
		},
	)
	names := profile.NewStore(cfg.Profile.DisplayName)

	// Initialize GPIO driver (panel only)
	var gpioDriver gpio.Driver
	var flash *panel.Flash
	if cfg.PanelEnabled() {
		debug.Value("Mock GPIO", cfg.Panel.MockGPIO)
		gpioDriver, err = gpio.NewDriver(cfg.Panel.MockGPIO)
		if err != nil {
			log.Fatalf("init GPIO failed: %v", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
		if cfg.Panel.FlashPin > 0 {
			flash, err = panel.NewFlash(gpioDriver, cfg.Panel.FlashPin, cfg.FlashPulse())
			if err != nil {
				log.Fatalf("init flash failed: %v", err)
			}
		}
	}

	var broadcaster *web.StatusBroadcaster
	port := webPort.port()
	if port > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	newSession := func() (web.Session, error) {
		src, err := frames()
		if err != nil {
			return nil, err
		}
		opts := session.Options{
			Source:            src,
			Compositor:        compositor,
			Uploader:          bridge,
			Profile:           names,
			CountdownFrom:     cfg.Booth.CountdownFrom,
			CountdownInterval: cfg.CountdownInterval(),
			PreviewInterval:   cfg.PreviewInterval(),
			CameraRetry:       cfg.CameraRetry(),
			JPEGQuality:       cfg.Collage.JPEGQuality,
		}
		if broadcaster != nil {
			opts.OnChange = broadcaster.BroadcastSnapshot
		}
		if flash != nil {
			opts.OnFire = flash.Fire
		}
		return session.New(opts), nil
	}
	sessions := web.NewManager(newSession)
	defer func() {
		if err := sessions.Close(); err != nil && !errors.Is(err, web.ErrNoSession) {
			log.Printf("closing session failed: %v", err)
		}
	}()

	if gpioDriver != nil && cfg.Panel.ButtonPin > 0 {
		button, err := panel.NewButton(gpioDriver, cfg.Panel.ButtonPin, cfg.Debounce())
		if err != nil {
			log.Fatalf("init button failed: %v", err)
		}
		go func() {
			err := button.Run(ctx, func() {
				if err := sessions.Press(ctx); err != nil {
					debug.Error(fmt.Errorf("button: %w", err))
				}
			})
			if err != nil {
				debug.Error(fmt.Errorf("button: %w", err))
			}
		}()
	}

	if port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		ui := web.UIConfig{
			Shots:         config.ShotCount,
			CountdownFrom: cfg.Booth.CountdownFrom,
			PreviewFPS:    cfg.Booth.PreviewFPS,
			Filters:       filterNames(),
		}
		srv := web.NewServer(webAddr, broadcaster, sessions, names, ui)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if cfg.PanelEnabled() && cfg.Panel.ButtonPin > 0 {
		debug.Info("Waiting for button presses")
		<-ctx.Done()
		return
	}

	// Run one unattended session: three shots, collage, upload
	if err := runOnce(ctx, sessions, 200*time.Millisecond); err != nil {
		log.Fatalf("session failed: %v", err)
	}
}

// runOnce opens a session, takes the three shots, builds the collage and
// uploads it, polling the session every tick.
func runOnce(ctx context.Context, sessions *web.Manager, tick time.Duration) error {
	s, err := sessions.Open(ctx)
	if err != nil {
		return err
	}

	wait := func(done func(session.Snapshot) bool) (session.Snapshot, error) {
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			snap := s.Snapshot()
			if done(snap) {
				return snap, nil
			}
			if snap.State == session.Closed {
				return snap, session.ErrClosed
			}
			select {
			case <-ctx.Done():
				return snap, ctx.Err()
			case <-t.C:
			}
		}
	}

	debug.Section("Capturing")
	for i := 0; i < session.MaxShots; i++ {
		if _, err := wait(func(snap session.Snapshot) bool { return snap.State == session.Live && snap.CameraReady }); err != nil {
			return err
		}
		if _, err := s.RequestCapture(); err != nil {
			return err
		}
		want := i + 1
		snap, err := wait(func(snap session.Snapshot) bool {
			return snap.Shots >= want || (snap.State == session.Live && snap.ErrorKind != "")
		})
		if err != nil {
			return err
		}
		if snap.Shots < want {
			return fmt.Errorf("shot %d: %s", want, snap.Error)
		}
	}

	debug.Section("Collage")
	if err := s.RequestCollage(); err != nil {
		return err
	}
	if err := s.ConfirmUpload(); err != nil {
		return err
	}
	snap, err := wait(func(snap session.Snapshot) bool { return snap.State == session.Preview })
	if errors.Is(err, session.ErrClosed) {
		debug.Summary("Session Complete")
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("upload: %s", snap.Error)
}

func filterNames() []string {
	names := make([]string, len(filter.Modes))
	for i, m := range filter.Modes {
		names[i] = m.String()
	}
	return names
}

// validateCLIOverrides checks non-empty CLI overrides.
// Empty values are ignored (they mean "use config default").
func validateCLIOverrides(cameraType, displayName string) error {
	switch cameraType {
	case "", "pattern", "still", "v4l2":
	default:
		return fmt.Errorf("camera must be pattern, still or v4l2, got %q", cameraType)
	}
	if n := len([]rune(displayName)); n > profile.MaxNameLength {
		return fmt.Errorf("display_name longer than %d characters", profile.MaxNameLength)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-empty values are applied.
func applyOverrides(cfg *config.Config, cameraType, displayName string) {
	if cameraType != "" {
		cfg.Camera.Type = cameraType
	}
	if displayName != "" {
		cfg.Profile.DisplayName = displayName
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
