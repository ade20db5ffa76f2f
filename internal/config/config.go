// Package config provides configuration management for robinavatar
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/normanking/robinavatar/internal/avatar3d"
	"github.com/normanking/robinavatar/internal/conversation"
	"github.com/normanking/robinavatar/internal/frameloop"
	"github.com/normanking/robinavatar/internal/llm"
	"github.com/normanking/robinavatar/internal/proxy"
	"github.com/normanking/robinavatar/internal/reveal"
	"github.com/normanking/robinavatar/internal/stage"
	"github.com/normanking/robinavatar/internal/tts"
)

const (
	dirName   = ".robinavatar"
	envPrefix = "ROBINAVATAR"
)

// Config holds all application configuration
type Config struct {
	Server       proxy.Config        `mapstructure:"server"`
	Chat         llm.Config          `mapstructure:"chat"`
	TTS          tts.Config          `mapstructure:"tts"`
	Avatar       AvatarConfig        `mapstructure:"avatar"`
	Idle         avatar3d.IdleConfig `mapstructure:"idle"`
	Reveal       reveal.Config       `mapstructure:"reveal"`
	Stage        stage.Config        `mapstructure:"stage"`
	Proxy        ProxyConfig         `mapstructure:"proxy"`
	Conversation ConversationConfig  `mapstructure:"conversation"`
	Logging      LoggingConfig       `mapstructure:"logging"`
}

// AvatarConfig configures the rig binding and the frame loop
type AvatarConfig struct {
	// ModelPath is a .glb/.gltf/.vrm file; empty runs without a rig
	ModelPath string `mapstructure:"model_path"`
	// FrameEvery sends every nth frame to renderers
	FrameEvery int `mapstructure:"frame_every"`

	Loop    frameloop.Config       `mapstructure:"loop"`
	Binding avatar3d.BindingConfig `mapstructure:"binding"`
	// Shapes overrides asset morph names by symbolic key (joy, mouth_a, ...)
	Shapes  map[string]string      `mapstructure:"shapes"`
	LipSync avatar3d.LipSyncConfig `mapstructure:"lip_sync"`
	Eyes    avatar3d.EyeConfig     `mapstructure:"eyes"`
}

// ProxyConfig tells the conversation controller where the chat and speech
// endpoints live. Empty means this process.
type ProxyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ConversationConfig struct {
	Transcript conversation.TranscriptConfig `mapstructure:"transcript"`
	Controller conversation.ControllerConfig `mapstructure:"controller"`
}

// LoggingConfig configures file and console logging
type LoggingConfig struct {
	Dir        string `mapstructure:"dir"`
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	MaxHistory int    `mapstructure:"max_history"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	shapes := make(map[string]string, avatar3d.ShapeCount)
	for s := avatar3d.Shape(0); s < avatar3d.ShapeCount; s++ {
		shapes[s.String()] = avatar3d.DefaultShapeNames[s]
	}

	logDir := "logs"
	if dir, err := GetConfigDir(); err == nil {
		logDir = filepath.Join(dir, "logs")
	}

	return &Config{
		Server: proxy.DefaultConfig(),
		Chat:   llm.DefaultConfig(),
		TTS:    tts.DefaultConfig(),
		Avatar: AvatarConfig{
			FrameEvery: 1,
			Loop:       frameloop.DefaultConfig(),
			Binding:    avatar3d.DefaultBindingConfig(),
			Shapes:     shapes,
			LipSync:    avatar3d.DefaultLipSyncConfig(),
			Eyes:       avatar3d.DefaultEyeConfig(),
		},
		Idle:   avatar3d.DefaultIdleConfig(),
		Reveal: reveal.DefaultConfig(),
		Stage:  stage.DefaultConfig(),
		Proxy: ProxyConfig{
			Timeout: 60 * time.Second,
		},
		Conversation: ConversationConfig{
			Transcript: conversation.DefaultTranscriptConfig(),
			Controller: conversation.DefaultControllerConfig(),
		},
		Logging: LoggingConfig{
			Dir:        logDir,
			Level:      "info",
			Console:    true,
			MaxHistory: 1000,
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// AvatarOptions assembles the avatar3d options this config describes.
func (c *Config) AvatarOptions() avatar3d.Options {
	opts := avatar3d.DefaultOptions()
	opts.Binding = c.Avatar.Binding
	opts.Binding.Shapes = avatar3d.ShapeNamesFromMap(c.Avatar.Shapes)
	opts.LipSync = c.Avatar.LipSync
	opts.Eyes = c.Avatar.Eyes
	opts.Idle = c.Idle
	return opts
}

// ProxyBaseURL is where the controller sends chat and speech requests.
func (c *Config) ProxyBaseURL() string {
	if c.Proxy.BaseURL != "" {
		return c.Proxy.BaseURL
	}
	addr := c.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// Validate rejects settings the program cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Avatar.Loop.FPS <= 0 || c.Avatar.Loop.FPS > 240 {
		errs = append(errs, fmt.Errorf("avatar.loop.fps must be in 1..240, got %d", c.Avatar.Loop.FPS))
	}
	switch strings.ToLower(c.TTS.Provider) {
	case "elevenlabs", "openai", "polly", "gcp", "google":
	default:
		errs = append(errs, fmt.Errorf("tts.provider %q: %w", c.TTS.Provider, tts.ErrUnknownProvider))
	}
	if c.Reveal.FadeStep <= 0 || c.Reveal.FadeStep > 1 {
		errs = append(errs, fmt.Errorf("reveal.fade_step must be in (0, 1], got %v", c.Reveal.FadeStep))
	}
	if c.Reveal.ProgressTimeout <= 0 {
		errs = append(errs, errors.New("reveal.progress_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Loader reads the config file, the environment and .env files, and can
// watch the file for edits.
type Loader struct {
	v    *viper.Viper
	dirs []string

	mu      sync.Mutex
	current *Config
}

// NewLoader searches dirs for config.yaml. With no dirs it uses
// ~/.robinavatar and the working directory.
func NewLoader(dirs ...string) *Loader {
	if len(dirs) == 0 {
		if dir, err := GetConfigDir(); err == nil {
			dirs = append(dirs, dir)
		}
		dirs = append(dirs, ".")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}

	// Environment variable overrides: ROBINAVATAR_CHAT_MODEL etc.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, "", reflect.ValueOf(*DefaultConfig()))
	return &Loader{v: v, dirs: dirs}
}

// Load reads configuration from the default locations.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// Load reads .env files, then the config file and environment. When no
// config file exists the defaults are written to the first directory.
func (l *Loader) Load() (*Config, error) {
	for _, dir := range l.dirs {
		if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
			return nil, err
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := l.writeDefaults(); err != nil {
			return nil, err
		}
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// ConfigFile is the file in use, empty when running on defaults only.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Current returns the last successfully loaded config.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Watch calls fn with the new config whenever the file changes and still
// validates; onError receives decode or validation failures.
func (l *Loader) Watch(fn func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		fn(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) writeDefaults() error {
	if len(l.dirs) == 0 {
		return nil
	}
	dir := l.dirs[0]
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := l.v.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if !errors.As(err, &exists) {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	l.v.SetConfigFile(path)
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setDefaults registers every leaf of cfg under its mapstructure key so
// environment overrides and the written default file cover all settings.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" || !field.IsExported() {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		fv := val.Field(i)
		switch {
		case fv.Type() == durationType:
			v.SetDefault(key, time.Duration(fv.Int()).String())
		case fv.Kind() == reflect.Struct:
			setDefaults(v, key, fv)
		case fv.Kind() == reflect.Array:
			items := make([]any, fv.Len())
			for j := range items {
				items[j] = fv.Index(j).Interface()
			}
			v.SetDefault(key, items)
		default:
			v.SetDefault(key, fv.Interface())
		}
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, dirName), nil
}
