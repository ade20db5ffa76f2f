// Command avatar3d drives one conversation cycle headlessly: a scripted
// (or proxied) reply is revealed against a simulated speech track while
// the avatar animates on the frame loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/robinavatar/internal/avatar"
	"github.com/normanking/robinavatar/internal/avatar3d"
	"github.com/normanking/robinavatar/internal/bus"
	"github.com/normanking/robinavatar/internal/conversation"
	"github.com/normanking/robinavatar/internal/frameloop"
	"github.com/normanking/robinavatar/internal/reveal"
)

type Config struct {
	Message  string
	Reply    string
	ChatURL  string
	Model    string
	FPS      int
	Manual   bool
	PerRune  time.Duration
	Unknown  bool
	FailAt   float64
	Timeout  time.Duration
	Verbose  bool
	LogLevel string
}

func main() {
	cfg := parseFlags()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Msg("Harness failed")
	}
}

// scriptedChat answers every message with the same reply.
type scriptedChat string

func (c scriptedChat) Chat(ctx context.Context, message string) (string, error) {
	return string(c), nil
}

// scriptedSpeech produces one byte of "audio" per reply rune, so the
// simulated track length follows the text.
type scriptedSpeech struct{}

func (scriptedSpeech) Synthesize(ctx context.Context, text string) (*conversation.Speech, error) {
	return &conversation.Speech{Audio: make([]byte, len([]rune(text))), ContentType: "audio/mpeg"}, nil
}

var errTimeout = errors.New("cycle did not finish in time")

func run(ctx context.Context, cfg Config, out io.Writer, logger zerolog.Logger) error {
	if cfg.FPS <= 0 {
		cfg.FPS = 60
	}

	var rig *avatar3d.Rig
	if cfg.Model != "" {
		r, err := avatar3d.LoadRig(cfg.Model)
		if err != nil {
			return fmt.Errorf("load %s: %w", cfg.Model, err)
		}
		rig = r
	}
	av := avatar3d.NewAvatar(rig, avatar3d.DefaultOptions())

	var (
		loop   avatar.Loop
		manual *frameloop.Manual
		wall   *frameloop.Loop
	)
	if cfg.Manual {
		manual = frameloop.NewManual(time.Second / time.Duration(cfg.FPS))
		loop = manual
	} else {
		lc := frameloop.DefaultConfig()
		lc.FPS = cfg.FPS
		wall = frameloop.New(lc, logger)
		loop = wall
	}

	player := &simPlayer{sched: loop, perByte: cfg.PerRune, unknown: cfg.Unknown, failAt: cfg.FailAt}
	loop.OnFrame(player.tick)

	var chat conversation.ChatClient = scriptedChat(cfg.Reply)
	if cfg.ChatURL != "" {
		chat = conversation.NewProxyClient(cfg.ChatURL, 0, logger)
	}

	eventBus := bus.NewEventBus()
	eventBus.Subscribe(bus.EventTypeRevealTransition, func(e bus.Event) {
		logger.Debug().
			Interface("cycle", e.Data["cycle"]).
			Interface("from", e.Data["from"]).
			Interface("to", e.Data["to"]).
			Interface("reason", e.Data["reason"]).
			Msg("Reveal transition")
	})

	session := avatar.NewSession(ctx, avatar.Deps{
		Loop:   loop,
		Avatar: av,
		Player: player,
		Chat:   chat,
		Speech: scriptedSpeech{},
		Bus:    eventBus,
	}, avatar.DefaultConfig(), logger)
	defer session.Close()

	done := make(chan avatar.State, 1)
	failed := make(chan error, 1)
	var prev avatar.State
	sawBusy := false
	session.OnState(func(st avatar.State) {
		if cfg.Verbose || st.Reveal != prev.Reveal || st.Busy != prev.Busy || st.Expression != prev.Expression {
			fmt.Fprintf(out, "%8s cycle=%d reveal=%s expression=%s busy=%t\n",
				loop.Now().Round(time.Millisecond), st.Cycle, st.Reveal, st.Expression, st.Busy)
		}
		prev = st
		if st.Busy {
			sawBusy = true
		}
		if sawBusy && !st.Busy && st.Reveal == reveal.StateIdle.String() {
			select {
			case done <- st:
			default:
			}
		}
	})

	loop.Post(func() {
		if err := session.Submit(cfg.Message); err != nil {
			failed <- err
		}
	})

	var err error
	if manual != nil {
		err = driveManual(ctx, manual, session, cfg.Timeout, done, failed)
	} else {
		err = driveReal(ctx, wall, cfg.Timeout, done, failed)
	}
	if err != nil {
		return err
	}

	for _, m := range session.Transcript().Messages() {
		fmt.Fprintf(out, "%s: %s\n", m.Sender, m.Text)
	}
	return nil
}

// driveManual steps loop time frame by frame. While a request is out it
// only flushes, so loop time does not race ahead of the network.
func driveManual(ctx context.Context, m *frameloop.Manual, s *avatar.Session, timeout time.Duration, done <-chan avatar.State, failed <-chan error) error {
	for {
		select {
		case <-done:
			return nil
		case err := <-failed:
			return err
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if timeout > 0 && m.Now() > timeout {
			return errTimeout
		}
		if s.Controller().Busy() && !s.Revealer().Active() {
			m.Flush()
			runtime.Gosched()
			time.Sleep(time.Millisecond)
			continue
		}
		m.Frame()
	}
}

func driveReal(ctx context.Context, l *frameloop.Loop, timeout time.Duration, done <-chan avatar.State, failed <-chan error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan error, 1)
	go func() { loopDone <- l.Run(ctx) }()
	defer func() {
		cancel()
		<-loopDone
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = time.After(timeout)
	}
	select {
	case <-done:
		return nil
	case err := <-failed:
		return err
	case <-deadline:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.Message, "say", "Hello Robin!", "Message to send")
	flag.StringVar(&cfg.Reply, "reply", "Hello friend! I'm so happy to see you 🌸", "Scripted reply when -chat is not set")
	flag.StringVar(&cfg.ChatURL, "chat", "", "Proxy base URL to get the reply from, e.g. http://localhost:3001")
	flag.StringVar(&cfg.Model, "model", "", "Avatar asset (.glb/.gltf/.vrm)")
	flag.IntVar(&cfg.FPS, "fps", 60, "Frames per second")
	flag.BoolVar(&cfg.Manual, "manual", true, "Step a deterministic clock instead of wall time")
	flag.DurationVar(&cfg.PerRune, "per-rune", 60*time.Millisecond, "Simulated speech time per reply character")
	flag.BoolVar(&cfg.Unknown, "unknown-duration", false, "Track never reports its length")
	flag.Float64Var(&cfg.FailAt, "fail-at", 0, "Fail playback at this fraction of the track (0 disables)")
	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Give up after this much loop time")
	flag.BoolVar(&cfg.Verbose, "v", false, "Print every state change, including phonemes")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level")

	flag.Parse()

	return cfg
}
