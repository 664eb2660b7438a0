package memorystore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/sessions"
	"github.com/eve-tools/pingboard/sessions/memorystore"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestCreateAndGetSession(t *testing.T) {
	clock := newFakeClock()
	p := memorystore.New(memorystore.WithNowTime(clock.Now))

	created, err := p.CreateSession(context.Background(), sessions.SessionData{
		ExpiresAt:         clock.Now().Add(time.Hour),
		PostLoginRedirect: "/calendar",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := p.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, created, *got)
}

func TestSessionIDsAreUnique(t *testing.T) {
	p := memorystore.New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := p.CreateSession(context.Background(), sessions.SessionData{
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
		require.False(t, seen[s.ID])
		seen[s.ID] = true
	}
}

func TestGetSessionHidesExpiredRecordBeforeSweep(t *testing.T) {
	clock := newFakeClock()
	p := memorystore.New(memorystore.WithNowTime(clock.Now))

	created, err := p.CreateSession(context.Background(), sessions.SessionData{
		ExpiresAt: clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	// The sweep has not run; the record is still stored but must behave
	// as absent.
	got, err := p.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, 1, p.Len())
}

func TestUpdateSession(t *testing.T) {
	clock := newFakeClock()
	p := memorystore.New(memorystore.WithNowTime(clock.Now))

	created, err := p.CreateSession(context.Background(), sessions.SessionData{
		ExpiresAt: clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	created.Character = &sessions.Character{ID: 95465499, Name: "CCP Bartender"}
	require.NoError(t, p.UpdateSession(context.Background(), created))

	got, err := p.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Character)
	require.Equal(t, "CCP Bartender", got.Character.Name)
}

func TestUpdateUnknownSessionFails(t *testing.T) {
	p := memorystore.New()

	err := p.UpdateSession(context.Background(), sessions.Session{
		ID:        "no-such-session",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, apperrors.ErrUnknownSession)
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	p := memorystore.New()

	created, err := p.CreateSession(context.Background(), sessions.SessionData{
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, p.DeleteSession(context.Background(), created.ID))
	require.NoError(t, p.DeleteSession(context.Background(), created.ID))

	got, err := p.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCleanupRemovesOnlyExpiredSessions(t *testing.T) {
	clock := newFakeClock()
	p := memorystore.New(memorystore.WithNowTime(clock.Now))

	expired, err := p.CreateSession(context.Background(), sessions.SessionData{
		ExpiresAt: clock.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	alive, err := p.CreateSession(context.Background(), sessions.SessionData{
		ExpiresAt: clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	p.Cleanup()

	require.Equal(t, 1, p.Len())
	got, err := p.GetSession(context.Background(), alive.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	got, err = p.GetSession(context.Background(), expired.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStartAndStopAutoCleanup(t *testing.T) {
	p := memorystore.New()
	p.StartAutoCleanup(10 * time.Millisecond)
	// Restarting with a new interval must not panic or leak.
	p.StartAutoCleanup(10 * time.Millisecond)
	p.StopAutoCleanup()
	p.StopAutoCleanup()
}
