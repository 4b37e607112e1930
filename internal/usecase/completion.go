package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whatsapp-agent/internal/domain"
)

const (
	defaultPollInterval = time.Second
	defaultMaxPolls     = 120
	defaultMaxWait      = 2 * time.Minute
	roleUser            = "user"
	roleAssistant       = "assistant"
)

// CompletionBackend is the asynchronous assistant service.
type CompletionBackend interface {
	CreateThread(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadID, role, text string) error
	StartRun(ctx context.Context, threadID string) (domain.Run, error)
	GetRunStatus(ctx context.Context, threadID, runID string) (domain.RunStatus, error)
	// ListMessages returns thread messages in chronological order.
	ListMessages(ctx context.Context, threadID string) ([]domain.ThreadMessage, error)
}

// PollPolicy bounds how long a run is awaited. Zero MaxPolls or MaxWait
// disables that bound.
type PollPolicy struct {
	Interval time.Duration
	MaxPolls int
	MaxWait  time.Duration
}

// DefaultPollPolicy polls once a second for up to two minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: defaultPollInterval, MaxPolls: defaultMaxPolls, MaxWait: defaultMaxWait}
}

// CompletionDriver submits a turn to the backend and waits for the reply.
type CompletionDriver struct {
	backend  CompletionBackend
	sessions *SessionTracker
	policy   PollPolicy
	log      *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewCompletionDriver(backend CompletionBackend, sessions *SessionTracker, policy PollPolicy, log *slog.Logger) *CompletionDriver {
	if policy.Interval <= 0 {
		policy.Interval = defaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &CompletionDriver{
		backend:  backend,
		sessions: sessions,
		policy:   policy,
		log:      log,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Complete posts combined on the sender's thread, runs the assistant and
// returns its reply. The returned session carries the thread handle, which is
// stored as soon as a new thread is created.
func (d *CompletionDriver) Complete(ctx context.Context, sender string, sess domain.Session, combined string) (string, domain.Session, error) {
	newThread := false
	if sess.ThreadID == "" {
		threadID, err := d.backend.CreateThread(ctx)
		if err != nil {
			return "", sess, newError(ErrorBackend, "create_thread", err)
		}
		sess.ThreadID = threadID
		newThread = true
		if err := d.sessions.Save(ctx, sender, sess); err != nil {
			return "", sess, newError(ErrorInternal, "session_write", err)
		}
		d.log.Info("thread created", "sender", sender, "thread_id", threadID)
	}

	if err := d.backend.PostMessage(ctx, sess.ThreadID, roleUser, buildTurnMessage(sess.Stage, newThread, combined)); err != nil {
		return "", sess, newError(ErrorBackend, "post_message", err)
	}

	run, err := d.backend.StartRun(ctx, sess.ThreadID)
	if err != nil {
		return "", sess, newError(ErrorBackend, "start_run", err)
	}

	status, err := d.await(ctx, sess.ThreadID, run)
	if err != nil {
		return "", sess, err
	}
	if status != domain.RunCompleted {
		return "", sess, newError(ErrorBackend, "run_"+string(status), nil)
	}

	msgs, err := d.backend.ListMessages(ctx, sess.ThreadID)
	if err != nil {
		return "", sess, newError(ErrorBackend, "list_messages", err)
	}
	reply := latestAssistantReply(msgs)
	if reply == "" {
		return "", sess, newError(ErrorBackend, "no_reply", nil)
	}
	return reply, sess, nil
}

// await polls the run until it leaves queued/in_progress or the policy runs out.
func (d *CompletionDriver) await(ctx context.Context, threadID string, run domain.Run) (domain.RunStatus, error) {
	status := run.Status
	started := d.now()
	polls := 0
	for status.Pending() {
		if d.policy.MaxPolls > 0 && polls >= d.policy.MaxPolls {
			return status, newError(ErrorBackendTimeout, fmt.Sprintf("max_polls_%d", polls), nil)
		}
		if d.policy.MaxWait > 0 && d.now().Sub(started) >= d.policy.MaxWait {
			return status, newError(ErrorBackendTimeout, "max_wait", nil)
		}
		d.log.Debug("run pending", "thread_id", threadID, "run_id", run.ID, "status", status)
		if err := d.sleep(ctx, d.policy.Interval); err != nil {
			return status, newError(ErrorBackendTimeout, "context_done", err)
		}
		next, err := d.backend.GetRunStatus(ctx, threadID, run.ID)
		polls++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return status, newError(ErrorBackendTimeout, "context_done", err)
			}
			return status, newError(ErrorBackend, "get_run", err)
		}
		status = next
	}
	return status, nil
}

// latestAssistantReply joins the text segments of the newest assistant message.
func latestAssistantReply(msgs []domain.ThreadMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != roleAssistant {
			continue
		}
		return strings.TrimSpace(strings.Join(msgs[i].Text, "\n"))
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
