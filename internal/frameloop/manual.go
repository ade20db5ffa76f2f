package frameloop

import (
	"sort"
	"sync"
	"time"
)

type timerEntry struct {
	handle Handle
	at     time.Duration
	fn     func()
}

// Manual is a deterministic scheduler for the headless harness and tests.
// Time only moves when Advance or Frame is called; frames fall on every
// multiple of step, and timers due at the same instant as a frame run
// before it.
type Manual struct {
	step time.Duration

	mu      sync.Mutex
	now     time.Duration
	frameAt time.Duration
	next    Handle
	frames  []frameEntry
	running map[Handle]bool
	timers  []timerEntry
	posted  []func()
	hooks   []FrameFunc
	count   uint64
}

func NewManual(step time.Duration) *Manual {
	if step <= 0 {
		step = time.Second / 60
	}
	return &Manual{step: step, frameAt: step}
}

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Step() time.Duration {
	return m.step
}

func (m *Manual) Frames() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Manual) OnFrame(fn FrameFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manual) RequestFrame(fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.frames = append(m.frames, frameEntry{handle: m.next, fn: fn})
	return m.next
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.next++
	m.timers = append(m.timers, timerEntry{handle: m.next, at: m.now + d, fn: fn})
	// Stable, so equal deadlines keep scheduling order.
	sort.SliceStable(m.timers, func(i, j int) bool { return m.timers[i].at < m.timers[j].at })
	return m.next
}

func (m *Manual) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, h)
	for i, t := range m.timers {
		if t.handle == h {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
	for i, f := range m.frames {
		if f.handle == h {
			m.frames = append(m.frames[:i], m.frames[i+1:]...)
			return
		}
	}
}

// Post queues fn; it runs on the next Flush, Frame or Advance. Safe from
// any goroutine.
func (m *Manual) Post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, fn)
	return true
}

// Pending reports how many timers and frame callbacks are scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers) + len(m.frames)
}

// Flush runs posted functions, including ones they post, until none are
// left.
func (m *Manual) Flush() {
	for {
		m.mu.Lock()
		posted := m.posted
		m.posted = nil
		m.mu.Unlock()
		if len(posted) == 0 {
			return
		}
		for _, fn := range posted {
			fn()
		}
	}
}

// Frame advances to the next frame boundary, running any timers due on
// the way, then the frame itself.
func (m *Manual) Frame() {
	m.mu.Lock()
	d := m.frameAt - m.now
	m.mu.Unlock()
	m.Advance(d)
}

// Advance moves time forward by d, running timers and frames in
// chronological order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	end := m.now + d
	m.mu.Unlock()

	for {
		m.Flush()

		m.mu.Lock()
		if len(m.timers) > 0 && m.timers[0].at <= end && m.timers[0].at <= m.frameAt {
			t := m.timers[0]
			m.timers = m.timers[1:]
			m.now = t.at
			m.mu.Unlock()
			t.fn()
			continue
		}
		if m.frameAt <= end {
			m.now = m.frameAt
			m.frameAt += m.step
			m.mu.Unlock()
			m.runFrame()
			continue
		}
		m.now = end
		m.mu.Unlock()
		break
	}
	m.Flush()
}

func (m *Manual) runFrame() {
	m.mu.Lock()
	m.count++
	due := m.frames
	m.frames = nil
	m.running = make(map[Handle]bool, len(due))
	for _, f := range due {
		m.running[f.handle] = true
	}
	hooks := m.hooks
	m.mu.Unlock()

	for _, f := range due {
		if !m.claim(f.handle) {
			continue
		}
		f.fn()
	}
	dt := float32(m.step.Seconds())
	for _, hook := range hooks {
		hook(dt)
	}
}

func (m *Manual) claim(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running[h] {
		return false
	}
	delete(m.running, h)
	return true
}
