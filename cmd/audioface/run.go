package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/normanking/audioface/internal/audio"
	"github.com/normanking/audioface/internal/bridge"
	"github.com/normanking/audioface/internal/bus"
	"github.com/normanking/audioface/internal/config"
	"github.com/normanking/audioface/internal/logging"
	"github.com/normanking/audioface/internal/renderer"
	"github.com/normanking/audioface/internal/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runOptions struct {
	configDir string
	model     string
	audio     string
	mode      string
	addr      string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Animate a model from an audio source",
		Long: `Starts the animation session, the websocket feed and the settings API.
Send SIGUSR1 to toggle the session; SIGINT or SIGTERM stops it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configDir, _ = cmd.Flags().GetString("config-dir")
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.model, "model", "", "glTF/GLB model (overrides model.path)")
	cmd.Flags().StringVar(&opts.audio, "audio", "", "WAV file used as the input device (overrides audio.source)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "local or remote (overrides session.mode)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides server.addr)")
	return cmd
}

func run(ctx context.Context, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loaded := loadEnvFiles()

	var mgr *config.Manager
	var err error
	if opts.configDir != "" {
		mgr, err = config.LoadFrom(opts.configDir)
	} else {
		mgr, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg := mgr.Config()
	if opts.model != "" {
		cfg.Model.Path = opts.model
	}
	if opts.audio != "" {
		cfg.Audio.Source = opts.audio
	}
	if opts.mode != "" {
		cfg.Session.Mode = strings.ToLower(opts.mode)
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Audio.Source == "" {
		return errors.New("no audio source: set audio.source or pass --audio")
	}

	logDir := cfg.Log.Dir
	if logDir == "" {
		logDir = filepath.Join(mgr.Dir(), "logs")
	}
	syslog, err := logging.New(&logging.Config{
		LogDir:  logDir,
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer syslog.Close()

	logger := syslog.Component("main")
	if len(loaded) > 0 {
		logger.Info().Strs("keys", loaded).Msg("Loaded environment variables")
	}

	eventBus := bus.NewEventBus()
	eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeCaptureError,
		bus.EventTypeChunkFailed,
	}, func(e bus.Event) {
		logger.Debug().Str("event", string(e.Type)).Interface("data", e.Data).Msg("Pipeline event")
	})

	device := audio.NewWAVDevice(cfg.Audio.Source)
	device.Loop = cfg.Audio.Loop

	sess := session.New(session.Options{
		Device:   device,
		Config:   cfg,
		EventBus: eventBus,
		Logger:   syslog.Zerolog(),
	})

	model, err := openModel(cfg.Model.Path)
	switch {
	case errors.Is(err, renderer.ErrNoMorphTargets):
		logger.Warn().Str("path", cfg.Model.Path).Msg("Model has no morph targets, nothing will animate")
	case err != nil:
		return fmt.Errorf("load model: %w", err)
	}
	sess.SetModel(model)
	logger.Info().Str("model", model.Name).Int("meshes", len(model.Meshes())).Int("targets", model.MorphTargetCount()).Msg("Model loaded")

	if cfg.Model.Watch && cfg.Model.Path != "" {
		watcher, err := renderer.NewModelWatcher(cfg.Model.Path, func(m *renderer.Model) { sess.SetModel(m) }, syslog.Zerolog())
		if err != nil {
			logger.Warn().Err(err).Msg("Model hot reload unavailable")
		} else {
			defer watcher.Close()
		}
	}

	mgr.Watch(func(c *config.Config, err error) {
		if err != nil {
			logger.Warn().Err(err).Msg("Ignoring invalid config change")
			return
		}
		sess.UpdateConfig(c)
		logger.Info().Msg("Config reloaded, applies on next activation")
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	face := bridge.NewFaceBridge(syslog.Zerolog())
	runner := session.NewRunner(sess, cfg.Session.TickRate, syslog.Zerolog(), face)

	if cfg.Session.Enabled {
		// A failed activation is reported and the process keeps serving, so
		// the session can be fixed and re-enabled over the API.
		if err := sess.Activate(ctx); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return toggleOnSignal(ctx, sess, logger) })

	if cfg.Server.Enabled {
		srv := bridge.NewServer(cfg.Server.Addr, face,
			bridge.NewSettingsBridge(sess, mgr, syslog.Zerolog()),
			bridge.NewLogBridge(syslog),
			syslog.Zerolog())
		g.Go(func() error { return srv.Run(ctx) })
		fmt.Println(successStyle.Render("✓ Serving on http://" + cfg.Server.Addr))
	}

	return g.Wait()
}

func toggleOnSignal(ctx context.Context, sess *session.Session, logger zerolog.Logger) error {
	if len(toggleSignals) == 0 {
		<-ctx.Done()
		return nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, toggleSignals...)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			enable := !sess.State().Active
			if err := sess.SetEnabled(ctx, enable); err != nil {
				logger.Error().Err(err).Msg("Toggle failed")
				continue
			}
			logger.Info().Bool("enabled", enable).Msg("Session toggled")
		}
	}
}

// loadEnvFiles loads API keys from ~/.audioface/.env without overriding the
// process environment. It returns the keys it set.
func loadEnvFiles() []string {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil
	}

	file, err := os.Open(filepath.Join(dir, ".env"))
	if err != nil {
		return nil
	}
	defer file.Close()

	var loaded []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			loaded = append(loaded, key)
		}
	}
	return loaded
}
