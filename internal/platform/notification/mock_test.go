package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memStore struct {
	mu   sync.Mutex
	msgs map[uuid.UUID]*Message
	// insertErr makes Insert fail.
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{msgs: make(map[uuid.UUID]*Message)}
}

func (s *memStore) Insert(_ context.Context, msgs []*Message) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		cp := *m
		s.msgs[m.ID] = &cp
	}
	return nil
}

func (s *memStore) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Message
	for _, m := range s.msgs {
		if m.Status == StatusPending && !m.NextAttemptAt.After(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*Message, 0, len(due))
	for _, m := range due {
		m.Attempts++
		m.NextAttemptAt = leaseUntil
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.msgs[id]
	m.Status = StatusSent
	m.SentAt = &at
	m.LastError = nil
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id uuid.UUID, lastErr string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.msgs[id]
	m.LastError = &lastErr
	m.NextAttemptAt = next
	return nil
}

func (s *memStore) MarkDead(_ context.Context, id uuid.UUID, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.msgs[id]
	m.Status = StatusDead
	m.LastError = &lastErr
	return nil
}

func (s *memStore) Requeue(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok || m.Status == StatusSent {
		return ErrMessageNotFound
	}
	m.Status = StatusPending
	m.Attempts = 0
	m.NextAttemptAt = at
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) List(_ context.Context, f MessageFilter, limit, offset int) ([]*Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.msgs {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Channel != "" && m.Channel != f.Channel {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *memStore) CountPending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (s *memStore) get(id uuid.UUID) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.msgs[id]
}

func (s *memStore) all() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m)
	}
	return out
}

type memInApp struct {
	mu    sync.Mutex
	items []*InApp
}

func (s *memInApp) Create(_ context.Context, n *InApp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if n.OutboxID != nil && existing.OutboxID != nil && *existing.OutboxID == *n.OutboxID {
			return nil
		}
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	cp := *n
	s.items = append(s.items, &cp)
	return nil
}

func (s *memInApp) ListForRecipient(_ context.Context, rid uuid.UUID, unreadOnly bool, limit, offset int) ([]*InApp, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*InApp
	for _, n := range s.items {
		if n.RecipientID != rid || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (s *memInApp) MarkRead(_ context.Context, id, rid uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.ID == id && n.RecipientID == rid {
			if n.ReadAt == nil {
				n.ReadAt = &at
			}
			return nil
		}
	}
	return ErrNotificationNotFound
}

type sentEmail struct{ to, subject, body string }

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to, subject, body})
	return nil
}

type fakeSMS struct {
	calls int
	last  string
	err   error
}

func (f *fakeSMS) SendSMS(_ context.Context, to, body string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.last = to + ":" + body
	return nil
}

type published struct {
	key, eventType string
	payload        []byte
}

type fakePublisher struct {
	events []published
}

func (f *fakePublisher) Publish(_ context.Context, key, eventType string, payload []byte) error {
	f.events = append(f.events, published{key, eventType, payload})
	return nil
}

type countingObserver struct {
	delivered map[string]int
	failed    map[string]int
	dead      map[string]int
	pending   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{delivered: map[string]int{}, failed: map[string]int{}, dead: map[string]int{}}
}

func (o *countingObserver) Delivered(channel string, err error) {
	if err != nil {
		o.failed[channel]++
		return
	}
	o.delivered[channel]++
}
func (o *countingObserver) DeadLettered(channel string) { o.dead[channel]++ }
func (o *countingObserver) PendingObserved(n int)       { o.pending = n }

var errBoom = errors.New("boom")
