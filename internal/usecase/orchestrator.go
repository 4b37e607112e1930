package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"whatsapp-agent/internal/domain"
)

const (
	defaultQuiet       = 30 * time.Second
	defaultTurnTimeout = 3 * time.Minute
	defaultSessionTTL  = 30 * 24 * time.Hour
	defaultEventTTL    = 24 * time.Hour
	releaseTimeout     = 5 * time.Second
)

// Config tunes the orchestrator. Zero values take the defaults.
type Config struct {
	Quiet       time.Duration
	Poll        PollPolicy
	TurnTimeout time.Duration
	SessionTTL  time.Duration
	EventTTL    time.Duration
	AdminPhone  string
}

type Option func(*Orchestrator)

func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithScheduler replaces the debounce timer source.
func WithScheduler(s Scheduler) Option {
	return func(o *Orchestrator) {
		o.sched = s
	}
}

// WithClassifier replaces the stage classifier.
func WithClassifier(c StageClassifier) Option {
	return func(o *Orchestrator) {
		o.classifier = c
	}
}

// Orchestrator turns inbound gateway events into at most one assistant reply
// per debounced turn and at most one processing pass per sender.
type Orchestrator struct {
	log        *slog.Logger
	sched      Scheduler
	classifier StageClassifier

	dedup      *DedupFilter
	buffer     *TurnBuffer
	gate       *Gate
	sessions   *SessionTracker
	driver     *CompletionDriver
	dispatcher *ReplyDispatcher

	turnTimeout time.Duration
	newTurnID   func() string

	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

func NewOrchestrator(store Store, backend CompletionBackend, gateway Gateway, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if backend == nil {
		return nil, errors.New("usecase: completion backend must not be nil")
	}
	if gateway == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if cfg.Quiet <= 0 {
		cfg.Quiet = defaultQuiet
	}
	if cfg.Poll == (PollPolicy{}) {
		cfg.Poll = DefaultPollPolicy()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = defaultEventTTL
	}

	o := &Orchestrator{
		log:         slog.Default(),
		turnTimeout: cfg.TurnTimeout,
		newTurnID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.baseCtx, o.cancel = context.WithCancel(context.Background())

	o.dedup = NewDedupFilter(store, cfg.EventTTL)
	// The lock outlives the longest legitimate pass.
	o.gate = NewGate(store, cfg.TurnTimeout+releaseTimeout)
	o.sessions = NewSessionTracker(store, cfg.SessionTTL, o.classifier)
	o.driver = NewCompletionDriver(backend, o.sessions, cfg.Poll, o.log)
	o.dispatcher = NewReplyDispatcher(gateway, cfg.AdminPhone)
	o.buffer = NewTurnBuffer(cfg.Quiet, o.sched, o.onQuiet)
	return o, nil
}

// Ingest filters, deduplicates and normalizes ev, then buffers it for the
// sender's next turn. Drops are reported as *Error with a silent code; the
// caller should not treat them as failures.
func (o *Orchestrator) Ingest(ctx context.Context, ev domain.InboundEvent) error {
	if noise, reason := IsNoise(ev); noise {
		o.log.Debug("event ignored", "event_id", ev.EventID, "reason", reason)
		return newError(ErrorGatewayNoise, reason, nil)
	}

	admitted, err := o.dedup.Admit(ctx, ev.EventID)
	if err != nil {
		o.log.Error("dedup check failed", "event_id", ev.EventID, "err", err)
		return newError(ErrorInternal, "dedup_store", err)
	}
	if !admitted {
		o.log.Debug("duplicate event dropped", "event_id", ev.EventID)
		return newError(ErrorDuplicateEvent, "seen", nil)
	}

	sender, msg, err := Normalize(ev)
	if err != nil {
		o.log.Debug("event discarded", "event_id", ev.EventID, "err", err)
		return err
	}

	o.buffer.Append(sender, msg)
	o.log.Info("message buffered", "sender", sender, "event_id", ev.EventID)
	return nil
}

// onQuiet runs when a sender's quiet period ends.
func (o *Orchestrator) onQuiet(sender string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(o.baseCtx, o.turnTimeout)
	defer cancel()

	turnID := o.newTurnID()
	log := o.log.With("sender", sender, "turn_id", turnID)
	if err := o.dispatchTurn(ctx, log, sender, turnID); err != nil {
		if Silent(err) {
			log.Debug("turn dropped", "err", err)
			return
		}
		log.Error("turn failed", "code", CodeOf(err), "err", err)
	}
}

// dispatchTurn claims the sender's gate under turnID, takes the buffered
// messages and runs one turn. The gate is released on every path.
func (o *Orchestrator) dispatchTurn(ctx context.Context, log *slog.Logger, sender, turnID string) error {
	entered, err := o.gate.TryEnter(ctx, sender, turnID)
	if err != nil {
		return newError(ErrorInternal, "gate_store", err)
	}
	if !entered {
		return newError(ErrorConcurrencyBusy, "processing", nil)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		released, err := o.gate.Leave(releaseCtx, sender, turnID)
		if err != nil {
			log.Error("gate release failed", "err", err)
		} else if !released {
			log.Warn("gate lock expired before release")
		}
	}()

	msgs := o.buffer.Take(sender)
	if len(msgs) == 0 {
		return newError(ErrorNormalizationDiscard, "empty_buffer", nil)
	}
	return o.runTurn(ctx, log, sender, strings.Join(msgs, "\n"))
}

func (o *Orchestrator) runTurn(ctx context.Context, log *slog.Logger, sender, combined string) error {
	sess, err := o.sessions.Load(ctx, sender)
	if err != nil {
		return newError(ErrorInternal, "session_read", err)
	}
	log.Info("turn dispatched", "stage", sess.Stage, "thread_id", sess.ThreadID)

	reply, sess, err := o.driver.Complete(ctx, sender, sess, combined)
	if err != nil {
		return err
	}

	sess, advanced, err := o.sessions.Advance(ctx, sender, sess, reply)
	switch {
	case err != nil:
		log.Error("stage update failed", "stage", sess.Stage, "err", err)
	case advanced:
		log.Info("stage advanced", "stage", sess.Stage)
	default:
		// Every completed turn restarts the session TTL.
		if err := o.sessions.Save(ctx, sender, sess); err != nil {
			log.Error("session refresh failed", "err", err)
		}
	}

	if out := o.sessions.Scrub(reply); out != "" {
		receipt, err := o.dispatcher.Deliver(ctx, sender, out)
		if err != nil {
			return err
		}
		log.Info("reply delivered", "thread_id", sess.ThreadID, "message_id", receipt.MessageID)
	} else {
		log.Warn("reply held back: nothing left after removing markers", "thread_id", sess.ThreadID)
	}

	if advanced && sess.Stage == domain.StageWaitingBuyerConfirmation {
		if err := o.dispatcher.NotifyOperator(ctx, sender); err != nil {
			log.Error("operator notification failed", "err", err)
		}
	}
	return nil
}

// Buffered returns the messages currently waiting for sender's next turn.
func (o *Orchestrator) Buffered(sender string) []string {
	return o.buffer.Buffered(sender)
}

// Close cancels pending debounce timers and waits for in-flight turns. If ctx
// ends first, in-flight turns are cancelled.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.buffer.Stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}
