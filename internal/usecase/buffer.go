package usecase

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The default uses time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type pendingTurn struct {
	messages []string
	timer    Timer
	gen      uint64
}

// TurnBuffer accumulates a sender's messages and signals once the sender has
// been quiet for the configured period. Every Append cancels and replaces the
// sender's pending timer, so at most one timer is live per sender.
type TurnBuffer struct {
	quiet  time.Duration
	sched  Scheduler
	onFire func(sender string)

	mu      sync.Mutex
	pending map[string]*pendingTurn
	gen     uint64
	stopped bool
}

func NewTurnBuffer(quiet time.Duration, sched Scheduler, onFire func(sender string)) *TurnBuffer {
	if sched == nil {
		sched = realScheduler{}
	}
	return &TurnBuffer{
		quiet:   quiet,
		sched:   sched,
		onFire:  onFire,
		pending: make(map[string]*pendingTurn),
	}
}

// Append adds msg to the sender's buffer and restarts the quiet period.
func (b *TurnBuffer) Append(sender, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	p := b.pending[sender]
	if p == nil {
		p = &pendingTurn{}
		b.pending[sender] = p
	}
	p.messages = append(p.messages, msg)
	if p.timer != nil {
		p.timer.Stop()
	}
	b.gen++
	gen := b.gen
	p.gen = gen
	p.timer = b.sched.AfterFunc(b.quiet, func() { b.fire(sender, gen) })
}

// fire ignores timers that were replaced after they started running.
// An empty buffer at fire time abandons the turn.
func (b *TurnBuffer) fire(sender string, gen uint64) {
	b.mu.Lock()
	p := b.pending[sender]
	if b.stopped || p == nil || p.gen != gen {
		b.mu.Unlock()
		return
	}
	p.timer = nil
	if len(p.messages) == 0 {
		// Already taken by a concurrent pass; nothing to dispatch.
		delete(b.pending, sender)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.onFire(sender)
}

// Take atomically returns and clears the sender's buffered messages in
// arrival order. A still-pending timer for the sender is left to fire and
// find the buffer empty.
func (b *TurnBuffer) Take(sender string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending[sender]
	if p == nil {
		return nil
	}
	msgs := p.messages
	p.messages = nil
	if p.timer == nil {
		delete(b.pending, sender)
	}
	return msgs
}

// Buffered returns a copy of the sender's buffered messages.
func (b *TurnBuffer) Buffered(sender string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending[sender]
	if p == nil {
		return nil
	}
	return append([]string(nil), p.messages...)
}

// Stop cancels every pending timer. Later appends are ignored.
func (b *TurnBuffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	for sender, p := range b.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(b.pending, sender)
	}
}
