// RobinAvatar - an animated companion that talks back
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/robinavatar/internal/avatar"
	"github.com/normanking/robinavatar/internal/avatar3d"
	"github.com/normanking/robinavatar/internal/bus"
	"github.com/normanking/robinavatar/internal/config"
	"github.com/normanking/robinavatar/internal/conversation"
	"github.com/normanking/robinavatar/internal/frameloop"
	"github.com/normanking/robinavatar/internal/llm"
	"github.com/normanking/robinavatar/internal/logging"
	"github.com/normanking/robinavatar/internal/metrics"
	"github.com/normanking/robinavatar/internal/proxy"
	"github.com/normanking/robinavatar/internal/stage"
	"github.com/normanking/robinavatar/internal/tts"
)

const version = "1.0.0"

var (
	configDir string
	logLevel  string
	addr      string
	modelPath string
	noWatch   bool
)

var rootCmd = &cobra.Command{
	Use:   "robinavatar",
	Short: "RobinAvatar - an animated companion that talks back",
	Long: `RobinAvatar runs the chat/speech proxy and the avatar session that
renderers connect to over a websocket.

Configuration:
  The config file is looked up in:
  1. --config-dir flag
  2. $HOME/.robinavatar/config.yaml
  3. ./config.yaml

Environment Variables:
  ELEVENLABS_API_KEY   - ElevenLabs API key
  OPENAI_API_KEY       - OpenAI API key (tts.provider: openai)
  ROBINAVATAR_*        - overrides any config key, e.g. ROBINAVATAR_CHAT_MODEL`,
	Version:      version,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy and the avatar session",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding config.yaml (default is $HOME/.robinavatar)")

	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&modelPath, "model", "", "avatar asset, .glb/.gltf/.vrm (overrides avatar.model_path)")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload idle tuning when the config file changes")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLoader() *config.Loader {
	if configDir != "" {
		return config.NewLoader(configDir)
	}
	return config.NewLoader()
}

func loadConfig() (*config.Loader, *config.Config, error) {
	loader := newLoader()
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return loader, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if modelPath != "" {
		cfg.Avatar.ModelPath = modelPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	syslog, err := logging.New(&logging.Config{
		LogDir:     cfg.Logging.Dir,
		Level:      logging.LogLevel(cfg.Logging.Level),
		MaxHistory: cfg.Logging.MaxHistory,
		Console:    cfg.Logging.Console,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		// Fallback to standard log if logger fails
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	syslog.Info("main", "RobinAvatar starting", map[string]interface{}{
		"version":    version,
		"configFile": loader.ConfigFile(),
		"addr":       cfg.Server.Addr,
		"model":      cfg.Chat.Model,
		"tts":        cfg.TTS.Provider,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := bus.NewEventBus()
	m := metrics.New()
	detach := m.Attach(eventBus)
	defer detach()

	loop := frameloop.New(cfg.Avatar.Loop, syslog.Component("frameloop"))
	hub := stage.New(cfg.Stage, loop, eventBus, syslog.Component("stage"))
	defer hub.Close()

	var rig *avatar3d.Rig
	if cfg.Avatar.ModelPath != "" {
		rig, err = avatar3d.LoadRig(cfg.Avatar.ModelPath)
		if err != nil {
			// The avatar still talks without a rig; renderers get no pose.
			syslog.Error("avatar", "Failed to load avatar asset", err, map[string]interface{}{
				"path": cfg.Avatar.ModelPath,
			})
		}
	}
	av := avatar3d.NewAvatar(rig, cfg.AvatarOptions())

	client := conversation.NewProxyClient(cfg.ProxyBaseURL(), cfg.Proxy.Timeout, syslog.Component("conversation"))
	session := avatar.NewSession(ctx, avatar.Deps{
		Loop:   loop,
		Avatar: av,
		Stage:  hub,
		Chat:   client,
		Speech: client,
		Bus:    eventBus,
	}, avatar.Config{
		FrameEvery: cfg.Avatar.FrameEvery,
		Reveal:     cfg.Reveal,
		Transcript: cfg.Conversation.Transcript,
		Controller: cfg.Conversation.Controller,
	}, syslog.Component("avatar"))

	speech, err := tts.New(ctx, cfg.TTS, syslog.Component("tts"))
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	if c, ok := speech.(io.Closer); ok {
		defer c.Close()
	}
	chat := llm.NewClient(cfg.Chat, syslog.Component("llm"))

	srv := proxy.New(cfg.Server, chat, speech, m, syslog.Zerolog())
	srv.Mount(hub)
	srv.Mount(syslog)

	if !noWatch {
		loader.Watch(func(c *config.Config) {
			loop.Post(func() { av.SetIdleConfig(c.Idle) })
			eventBus.Publish(bus.Event{
				Type: bus.EventTypeConfigReloaded,
				Data: map[string]any{"file": loader.ConfigFile()},
			})
			syslog.Info("config", "Configuration reloaded", nil)
		}, func(err error) {
			syslog.Warn("config", "Ignoring invalid configuration change", map[string]interface{}{
				"error": err.Error(),
			})
		})
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		syslog.Info("main", "Shutdown signal received", nil)
	case runErr = <-srvDone:
		syslog.Error("main", "HTTP server stopped", runErr, nil)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		syslog.Error("main", "HTTP shutdown failed", err, nil)
	}
	if err := <-loopDone; err != nil {
		syslog.Error("main", "Frame loop failed", err, nil)
	}

	// The loop has stopped, so nothing else touches the session now.
	session.Close()
	syslog.Info("main", "RobinAvatar shutdown complete", nil)
	return runErr
}
