// Package memorystore is the volatile, single-process session provider.
package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/sessions"
)

// DefaultCleanupInterval is the time between expired-session sweeps.
const DefaultCleanupInterval = 300 * time.Second

// Provider is a thread-safe in-memory implementation of sessions.Provider.
// Expired records are hidden from reads immediately and physically removed
// by the periodic cleanup sweep.
type Provider struct {
	mu      sync.RWMutex
	store   map[string]sessions.Session
	nowTime func() time.Time
	stop    chan struct{}
}

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// New creates a new in-memory session provider
func New(options ...Option) *Provider {
	p := &Provider{
		store:   make(map[string]sessions.Session),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// CreateSession allocates a fresh session id and stores the record.
func (p *Provider) CreateSession(_ context.Context, data sessions.SessionData) (sessions.Session, error) {
	session := sessions.Session{
		ID:                uuid.NewString(),
		ExpiresAt:         data.ExpiresAt,
		PostLoginRedirect: data.PostLoginRedirect,
		Character:         data.Character,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.store[session.ID] = session
	return session, nil
}

// GetSession returns the record if present and unexpired, nil otherwise.
func (p *Provider) GetSession(_ context.Context, sessionID string) (*sessions.Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	session, ok := p.store[sessionID]
	if !ok || !session.ExpiresAt.After(p.nowTime()) {
		return nil, nil
	}
	// Return a copy to prevent external modifications
	copied := session
	return &copied, nil
}

// UpdateSession replaces the stored record for session.ID.
func (p *Provider) UpdateSession(_ context.Context, session sessions.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.store[session.ID]; !ok {
		return errors.Wrap(apperrors.ErrUnknownSession, "[Provider.UpdateSession]")
	}
	p.store[session.ID] = session
	return nil
}

// DeleteSession removes the record; no-op if absent.
func (p *Provider) DeleteSession(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.store, sessionID)
	return nil
}

// StartAutoCleanup starts regularly checking for and removing expired
// sessions. Calling it again restarts the sweep with the new interval.
func (p *Provider) StartAutoCleanup(interval time.Duration) {
	p.StopAutoCleanup()
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	stop := make(chan struct{})
	p.mu.Lock()
	p.stop = stop
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}

// StopAutoCleanup stops a previously started cleanup sweep.
func (p *Provider) StopAutoCleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

// Cleanup removes all expired sessions.
func (p *Provider) Cleanup() {
	now := p.nowTime()

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for sessionID, session := range p.store {
		if !session.ExpiresAt.After(now) {
			delete(p.store, sessionID)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Removed expired sessions")
	}
}

// Len returns the number of stored records, including expired ones the
// sweep has not removed yet.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.store)
}

var _ sessions.Provider = (*Provider)(nil)
