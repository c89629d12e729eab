package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/middleware"
)

const DefaultBufferSize = 10_000

var ErrValidation = errors.New("validation error")

// DropCounter is notified each time an entry is discarded because the
// buffer is full.
type DropCounter interface {
	AuditDroppedInc()
}

// Recorder persists audit entries from a background worker. Record never
// blocks the request path: when the buffer is full the entry is dropped.
type Recorder struct {
	repo    Repository
	logger  zerolog.Logger
	drops   DropCounter
	entries chan *Entry
	done    chan struct{}
	once    sync.Once
}

var _ middleware.AuditRecorder = (*Recorder)(nil)

func NewRecorder(repo Repository, logger zerolog.Logger, bufferSize int, drops DropCounter) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	r := &Recorder{
		repo:    repo,
		logger:  logger.With().Str("component", "audit").Logger(),
		drops:   drops,
		entries: make(chan *Entry, bufferSize),
		done:    make(chan struct{}),
	}
	go r.worker()
	return r
}

func (r *Recorder) Record(in middleware.AuditEntry) {
	e := &Entry{
		UserID:     in.UserID,
		Role:       in.Role,
		Action:     in.Action,
		Resource:   in.Resource,
		ResourceID: optional(in.ResourceID),
		StatusCode: in.StatusCode,
		RequestID:  optional(in.RequestID),
		IP:         optional(in.IP),
		CreatedAt:  in.Timestamp,
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	select {
	case r.entries <- e:
	default:
		if r.drops != nil {
			r.drops.AuditDroppedInc()
		}
		r.logger.Warn().
			Str("action", e.Action).
			Str("resource", e.Resource).
			Msg("audit buffer full, dropping entry")
	}
}

func (r *Recorder) worker() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.repo.Create(ctx, e); err != nil {
			r.logger.Error().Err(err).Str("action", e.Action).Msg("failed to persist audit entry")
		}
		cancel()
	}
}

// Close stops accepting entries and waits for the worker to flush what is
// buffered, or for ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.once.Do(func() { close(r.entries) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.logger.Warn().Msg("audit shutdown timed out; some entries may be lost")
		return ctx.Err()
	}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, fmt.Errorf("%w: from must be before to", ErrValidation)
	}
	return s.repo.List(ctx, f, limit, offset)
}
