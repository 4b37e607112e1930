package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"whatsapp-agent/internal/domain"
)

// fakeStore is a map-backed Store. TTLs are recorded; they only expire
// entries when clock is set.
type fakeStore struct {
	mu      sync.Mutex
	vals    map[string]string
	ttls    map[string]time.Duration
	expires map[string]time.Time
	clock   func() time.Time
	getErr  error
	setErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{vals: map[string]string{}, ttls: map[string]time.Duration{}, expires: map[string]time.Time{}}
}

func (s *fakeStore) put(key, value string, ttl time.Duration) {
	s.vals[key] = value
	s.ttls[key] = ttl
	delete(s.expires, key)
	if s.clock != nil && ttl > 0 {
		s.expires[key] = s.clock().Add(ttl)
	}
}

func (s *fakeStore) liveLocked(key string) (string, bool) {
	v, ok := s.vals[key]
	if !ok {
		return "", false
	}
	if exp, ok := s.expires[key]; ok && !s.clock().Before(exp) {
		delete(s.vals, key)
		delete(s.ttls, key)
		delete(s.expires, key)
		return "", false
	}
	return v, true
}

func (s *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.liveLocked(key)
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.put(key, value, ttl)
	return nil
}

func (s *fakeStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.put(key, value, ttl)
	return true, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vals, key)
	delete(s.ttls, key)
	delete(s.expires, key)
	return nil
}

func (s *fakeStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.liveLocked(key); !ok || v != value {
		return false, nil
	}
	delete(s.vals, key)
	delete(s.ttls, key)
	delete(s.expires, key)
	return true, nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.liveLocked(key)
	return ok
}

// fakeBackend scripts run statuses and records every call.
type fakeBackend struct {
	mu           sync.Mutex
	threadID     string
	createErr    error
	postErr      error
	startStatus  domain.RunStatus
	startErr     error
	statuses     []domain.RunStatus
	statusErr    error
	messages     []domain.ThreadMessage
	listErr      error
	threads      int
	posted       []string
	postedThread []string
	polls        int
	lists        int
}

func newFakeBackend(reply string) *fakeBackend {
	return &fakeBackend{
		threadID:    "thread_1",
		startStatus: domain.RunQueued,
		statuses:    []domain.RunStatus{domain.RunCompleted},
		messages: []domain.ThreadMessage{
			{ID: "msg_1", Role: roleUser, Text: []string{"earlier"}},
			{ID: "msg_2", Role: roleAssistant, Text: []string{reply}},
		},
	}
}

func (b *fakeBackend) CreateThread(_ context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return "", b.createErr
	}
	b.threads++
	return b.threadID, nil
}

func (b *fakeBackend) PostMessage(_ context.Context, threadID, role, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.postErr != nil {
		return b.postErr
	}
	if role != roleUser {
		return errors.New("unexpected role " + role)
	}
	b.posted = append(b.posted, text)
	b.postedThread = append(b.postedThread, threadID)
	return nil
}

func (b *fakeBackend) StartRun(_ context.Context, _ string) (domain.Run, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return domain.Run{}, b.startErr
	}
	return domain.Run{ID: "run_1", Status: b.startStatus}, nil
}

func (b *fakeBackend) GetRunStatus(_ context.Context, _, _ string) (domain.RunStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.statusErr != nil {
		return "", b.statusErr
	}
	idx := b.polls - 1
	if idx >= len(b.statuses) {
		idx = len(b.statuses) - 1
	}
	return b.statuses[idx], nil
}

func (b *fakeBackend) ListMessages(_ context.Context, _ string) ([]domain.ThreadMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	return b.messages, b.listErr
}

func (b *fakeBackend) postedTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.posted...)
}

type sentText struct {
	phone string
	text  string
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentText
	err  error
}

func (g *fakeGateway) SendText(_ context.Context, phone, text string) (domain.DeliveryReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return domain.DeliveryReceipt{}, g.err
	}
	g.sent = append(g.sent, sentText{phone: phone, text: text})
	return domain.DeliveryReceipt{MessageID: "m-1"}, nil
}

func (g *fakeGateway) sentTexts() []sentText {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentText(nil), g.sent...)
}

// fakeScheduler hands out timers that only run when the test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	sched   *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// live returns timers that are neither stopped nor fired.
func (s *fakeScheduler) live() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireLive runs every live timer synchronously.
func (s *fakeScheduler) fireLive() {
	for _, t := range s.live() {
		t.fire()
	}
}

func (t *fakeTimer) fire() {
	t.sched.mu.Lock()
	t.fired = true
	t.sched.mu.Unlock()
	t.f()
}

func noSleep(context.Context, time.Duration) error { return nil }
