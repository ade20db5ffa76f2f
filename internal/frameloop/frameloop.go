// Package frameloop provides the single goroutine every animation and
// reveal state change runs on. Code outside the loop hands work in through
// Post; code inside schedules frame callbacks and timers that can be
// cancelled by handle.
package frameloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Handle identifies a pending frame callback or timer.
type Handle uint64

// Scheduler is what loop-side code uses to defer work. All callbacks run
// on the loop goroutine.
type Scheduler interface {
	Now() time.Duration
	RequestFrame(fn func()) Handle
	AfterFunc(d time.Duration, fn func()) Handle
	Cancel(h Handle)
}

// Poster hands a function to the loop goroutine. It reports false if the
// loop has stopped and fn will never run.
type Poster interface {
	Post(fn func()) bool
}

// FrameFunc is called once per frame with the clamped frame delta in
// seconds.
type FrameFunc func(dt float32)

type Config struct {
	FPS      int           `mapstructure:"fps"`
	MaxDelta time.Duration `mapstructure:"max_delta"`
	Backlog  int           `mapstructure:"backlog"`
}

func DefaultConfig() Config {
	return Config{
		FPS:      60,
		MaxDelta: 100 * time.Millisecond,
		Backlog:  256,
	}
}

type frameEntry struct {
	handle Handle
	fn     func()
}

// Loop is the real-time implementation driven by a ticker.
type Loop struct {
	config Config
	logger zerolog.Logger

	start time.Time
	next  atomic.Uint64
	tasks chan func()
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	frames  []frameEntry
	running map[Handle]bool
	timers  map[Handle]*time.Timer
	hooks   []FrameFunc

	frameCount atomic.Uint64
}

func New(cfg Config, logger zerolog.Logger) *Loop {
	def := DefaultConfig()
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.MaxDelta <= 0 {
		cfg.MaxDelta = def.MaxDelta
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = def.Backlog
	}
	return &Loop{
		config: cfg,
		logger: logger.With().Str("component", "frameloop").Logger(),
		start:  time.Now(),
		tasks:  make(chan func(), cfg.Backlog),
		done:   make(chan struct{}),
		timers: make(map[Handle]*time.Timer),
	}
}

func (l *Loop) Now() time.Duration {
	return time.Since(l.start)
}

// Frames is the number of frames run so far.
func (l *Loop) Frames() uint64 {
	return l.frameCount.Load()
}

// OnFrame registers a hook that runs every frame after the one-shot frame
// callbacks.
func (l *Loop) OnFrame(fn FrameFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

func (l *Loop) RequestFrame(fn func()) Handle {
	h := Handle(l.next.Add(1))
	l.mu.Lock()
	l.frames = append(l.frames, frameEntry{handle: h, fn: fn})
	l.mu.Unlock()
	return h
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Handle {
	h := Handle(l.next.Add(1))
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timers[h] = time.AfterFunc(d, func() {
		l.Post(func() {
			l.mu.Lock()
			_, live := l.timers[h]
			delete(l.timers, h)
			l.mu.Unlock()
			if live {
				fn()
			}
		})
	})
	return h
}

// Cancel drops a pending frame callback or timer. Cancelling a handle that
// already ran is a no-op.
func (l *Loop) Cancel(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[h]; ok {
		t.Stop()
		delete(l.timers, h)
	}
	delete(l.running, h)
	for i, f := range l.frames {
		if f.handle == h {
			l.frames = append(l.frames[:i], l.frames[i+1:]...)
			break
		}
	}
}

func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run drives frames until ctx is cancelled. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.config.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer l.shutdown()

	l.logger.Info().Int("fps", l.config.FPS).Msg("Frame loop started")
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Uint64("frames", l.Frames()).Msg("Frame loop stopped")
			return nil
		case fn := <-l.tasks:
			l.safeRun("task", fn)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if dt > l.config.MaxDelta {
				dt = l.config.MaxDelta
			}
			l.runFrame(float32(dt.Seconds()))
		}
	}
}

func (l *Loop) runFrame(dt float32) {
	l.frameCount.Add(1)

	l.mu.Lock()
	due := l.frames
	l.frames = nil
	l.running = make(map[Handle]bool, len(due))
	for _, f := range due {
		l.running[f.handle] = true
	}
	hooks := l.hooks
	l.mu.Unlock()

	for _, f := range due {
		// A callback may cancel a sibling scheduled for the same frame.
		if !l.claim(f.handle) {
			continue
		}
		l.safeRun("frame", f.fn)
	}
	for _, hook := range hooks {
		l.safeRun("hook", func() { hook(dt) })
	}
}

func (l *Loop) claim(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running[h] {
		return false
	}
	delete(l.running, h)
	return true
}

func (l *Loop) safeRun(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Str("kind", kind).Interface("panic", r).Msg("Loop callback panicked")
		}
	}()
	fn()
}

func (l *Loop) shutdown() {
	l.once.Do(func() {
		close(l.done)
		l.mu.Lock()
		defer l.mu.Unlock()
		for h, t := range l.timers {
			t.Stop()
			delete(l.timers, h)
		}
		l.frames = nil
	})
}
