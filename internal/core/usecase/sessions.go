package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc-upload-gateway/internal/core/domain"
	"github.com/kirillkom/doc-upload-gateway/internal/core/ports"
)

const DefaultSessionIdleTTL = time.Hour

// Session groups the per-browser state: the staged files, the submission
// state machine and the live preview tokens.
type Session struct {
	ID         string
	Store      *StagingStore
	Submission *SubmissionController
	Previews   *PreviewRegistry

	lastSeen time.Time
}

// Teardown releases every staged payload and preview token.
func (s *Session) Teardown(ctx context.Context) int {
	s.Previews.RevokeAll()
	return s.Store.Clear(ctx)
}

type SessionDeps struct {
	Storage       ports.ObjectStorage
	UploadClient  ports.UploadClient
	Metrics       ports.UploadMetrics
	Limits        StagingLimits
	SubmitTimeout time.Duration
}

type SessionFactory func(id string) *Session

func NewSessionFactory(deps SessionDeps) SessionFactory {
	return func(id string) *Session {
		store := NewStagingStore(deps.Storage, deps.Limits, deps.Metrics)
		return &Session{
			ID:         id,
			Store:      store,
			Submission: NewSubmissionController(store, deps.UploadClient, deps.SubmitTimeout, deps.Metrics),
			Previews:   NewPreviewRegistry(),
		}
	}
}

type SessionRegistry struct {
	factory SessionFactory
	idleTTL time.Duration
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionRegistry(factory SessionFactory, idleTTL time.Duration) *SessionRegistry {
	if idleTTL <= 0 {
		idleTTL = DefaultSessionIdleTTL
	}
	return &SessionRegistry{
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the session for id, creating a new one under a fresh id
// when id is empty or unknown. The second result reports creation.
func (r *SessionRegistry) Acquire(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[id]; ok && id != "" {
		session.lastSeen = r.now()
		return session, false
	}

	session := r.factory(r.newID())
	session.lastSeen = r.now()
	r.sessions[session.ID] = session
	slog.Info("session_created", "session_id", session.ID)
	return session, true
}

func (r *SessionRegistry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	session.lastSeen = r.now()
	return session, true
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep tears down sessions idle for longer than the TTL. Sessions with a
// submission in flight are left alone until it finishes.
func (r *SessionRegistry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, session := range r.sessions {
		if session.lastSeen.After(cutoff) {
			continue
		}
		if session.Submission.State() == domain.SubmissionSubmitting {
			continue
		}
		expired = append(expired, session)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, session := range expired {
		released := session.Teardown(ctx)
		slog.Info("session_expired", "session_id", session.ID, "released_files", released)
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is cancelled.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Close tears down every session regardless of age.
func (r *SessionRegistry) Close(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Teardown(ctx)
	}
}
