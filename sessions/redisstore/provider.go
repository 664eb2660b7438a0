// Package redisstore is a Redis-backed session provider. It conforms to the
// same sessions.Provider contract as the in-memory store; records carry a
// server-side TTL so Redis performs the cleanup sweep itself.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/sessions"
)

const keyPrefix = "pingboard:session:"

// Records whose ExpiresAt has already passed are still written with a
// minimal TTL so that reads observe consistent lazy-expiry behaviour.
const minTTL = time.Second

// Provider implements sessions.Provider on top of Redis.
type Provider struct {
	client  redis.UniversalClient
	nowTime func() time.Time
}

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowTime = nowFunc
	}
}

// New creates a Redis session provider using the given client.
func New(client redis.UniversalClient, options ...Option) (*Provider, error) {
	if client == nil {
		return nil, errors.New("[redisstore.New] client is required")
	}
	p := &Provider{
		client:  client,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// CreateSession allocates a fresh session id and stores the record with a
// TTL matching its expiry.
func (p *Provider) CreateSession(ctx context.Context, data sessions.SessionData) (sessions.Session, error) {
	session := sessions.Session{
		ID:                uuid.NewString(),
		ExpiresAt:         data.ExpiresAt,
		PostLoginRedirect: data.PostLoginRedirect,
		Character:         data.Character,
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return sessions.Session{}, errors.Wrap(err, "[Provider.CreateSession] marshal")
	}
	if err := p.client.Set(ctx, keyPrefix+session.ID, payload, p.ttl(session.ExpiresAt)).Err(); err != nil {
		return sessions.Session{}, errors.Wrap(err, "[Provider.CreateSession] redis set")
	}
	return session, nil
}

// GetSession returns the record if present and unexpired, nil otherwise.
func (p *Provider) GetSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	payload, err := p.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.GetSession] redis get")
	}

	var session sessions.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errors.Wrap(err, "[Provider.GetSession] unmarshal")
	}
	if !session.ExpiresAt.After(p.nowTime()) {
		return nil, nil
	}
	return &session, nil
}

// UpdateSession replaces the stored record for session.ID, failing with
// ErrUnknownSession if Redis no longer holds it.
func (p *Provider) UpdateSession(ctx context.Context, session sessions.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[Provider.UpdateSession] marshal")
	}

	ok, err := p.client.SetXX(ctx, keyPrefix+session.ID, payload, p.ttl(session.ExpiresAt)).Result()
	if err != nil {
		return errors.Wrap(err, "[Provider.UpdateSession] redis set")
	}
	if !ok {
		return errors.Wrap(apperrors.ErrUnknownSession, "[Provider.UpdateSession]")
	}
	return nil
}

// DeleteSession removes the record; no-op if absent.
func (p *Provider) DeleteSession(ctx context.Context, sessionID string) error {
	if err := p.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return errors.Wrap(err, "[Provider.DeleteSession] redis del")
	}
	return nil
}

func (p *Provider) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(p.nowTime())
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

var _ sessions.Provider = (*Provider)(nil)
