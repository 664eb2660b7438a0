package roles_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/roles"
	"github.com/eve-tools/pingboard/sessions"
)

type fakeGroupsProvider struct {
	groups         map[int64][]string
	err            error
	calls          int
	freshRequested bool
}

func (f *fakeGroupsProvider) GetGroups(ctx context.Context, characterID int64, forceRefresh bool) ([]string, error) {
	f.calls++
	if forceRefresh {
		f.freshRequested = true
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.groups[characterID], nil
}

var testCharacter = &sessions.Character{ID: 95465499, Name: "CCP Bartender"}

func setupResolver(t *testing.T, provider *fakeGroupsProvider) *roles.Resolver {
	t.Helper()

	mapping := roles.Mapping{
		"group-a": {roles.EventsRead},
		"group-b": {roles.EventsWrite},
		"group-c": {roles.EventsRead, roles.Ping},
	}
	resolver, err := roles.NewResolver(mapping, provider)
	require.NoError(t, err)
	return resolver
}

func TestNewResolverRequiresGroupsProvider(t *testing.T) {
	_, err := roles.NewResolver(roles.Mapping{}, nil)
	require.Error(t, err)
}

func TestMappingFromGroups(t *testing.T) {
	mapping := roles.MappingFromGroups(map[roles.Role][]string{
		roles.EventsRead:  {"alpha", "beta"},
		roles.EventsWrite: {"beta", ""},
	})

	require.Equal(t, []roles.Role{roles.EventsRead}, mapping["alpha"])
	require.ElementsMatch(t, []roles.Role{roles.EventsRead, roles.EventsWrite}, mapping["beta"])
	require.NotContains(t, mapping, "")
}

func TestRolesUnionIsDeduplicated(t *testing.T) {
	provider := &fakeGroupsProvider{groups: map[int64][]string{
		testCharacter.ID: {"group-a", "group-c", "unknown-group"},
	}}
	resolver := setupResolver(t, provider)

	got, err := resolver.ForCharacter(testCharacter).Roles(context.Background(), false)
	require.NoError(t, err)
	// group-a and group-c both grant EventsRead; it appears once. The
	// unknown group grants nothing.
	require.ElementsMatch(t, []roles.Role{roles.EventsRead, roles.Ping}, got)
}

func TestAnonymousResolvesToNoRolesWithoutCacheCall(t *testing.T) {
	provider := &fakeGroupsProvider{}
	resolver := setupResolver(t, provider)

	got, err := resolver.ForCharacter(nil).Roles(context.Background(), false)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, provider.calls)
}

func TestHasRolesRequiresAllListed(t *testing.T) {
	provider := &fakeGroupsProvider{groups: map[int64][]string{
		testCharacter.ID: {"group-a", "group-b"},
	}}
	cr := setupResolver(t, provider).ForCharacter(testCharacter)

	ok, err := cr.HasRoles(context.Background(), roles.EventsRead, roles.EventsWrite)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cr.HasRoles(context.Background(), roles.EventsRead, roles.Ping)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHasAnyRoleRequiresOneListed(t *testing.T) {
	provider := &fakeGroupsProvider{groups: map[int64][]string{
		testCharacter.ID: {"group-a"},
	}}
	cr := setupResolver(t, provider).ForCharacter(testCharacter)

	ok, err := cr.HasAnyRole(context.Background(), roles.EventsRead, roles.Ping)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cr.HasAnyRole(context.Background(), roles.Ping, roles.PingTemplatesWrite)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFreshVariantsForceARefresh(t *testing.T) {
	provider := &fakeGroupsProvider{groups: map[int64][]string{
		testCharacter.ID: {"group-a"},
	}}
	cr := setupResolver(t, provider).ForCharacter(testCharacter)

	_, err := cr.HasRoles(context.Background(), roles.EventsRead)
	require.NoError(t, err)
	require.False(t, provider.freshRequested)

	_, err = cr.HasFreshRoles(context.Background(), roles.EventsRead)
	require.NoError(t, err)
	require.True(t, provider.freshRequested)
}

func TestGuardsDistinguishUnauthenticatedFromForbidden(t *testing.T) {
	provider := &fakeGroupsProvider{groups: map[int64][]string{
		testCharacter.ID: {"group-a", "group-b"},
	}}
	resolver := setupResolver(t, provider)

	bound := resolver.ForCharacter(testCharacter)
	require.NoError(t, bound.RequireAllOf(context.Background(), roles.EventsRead, roles.EventsWrite))
	require.ErrorIs(t,
		bound.RequireAllOf(context.Background(), roles.EventsRead, roles.PingTemplatesWrite),
		apperrors.ErrForbidden)

	anonymous := resolver.ForCharacter(nil)
	require.ErrorIs(t,
		anonymous.RequireAllOf(context.Background(), roles.EventsRead),
		apperrors.ErrUnauthenticated)
	require.ErrorIs(t,
		anonymous.RequireOneOf(context.Background(), roles.EventsRead),
		apperrors.ErrUnauthenticated)
}

func TestGuardFreshVariants(t *testing.T) {
	provider := &fakeGroupsProvider{groups: map[int64][]string{
		testCharacter.ID: {"group-b"},
	}}
	cr := setupResolver(t, provider).ForCharacter(testCharacter)

	require.NoError(t, cr.RequireOneFreshOf(context.Background(), roles.EventsWrite))
	require.True(t, provider.freshRequested)

	require.ErrorIs(t,
		cr.RequireAllFreshOf(context.Background(), roles.EventsWrite, roles.Ping),
		apperrors.ErrForbidden)
}

func TestGuardPropagatesProviderErrors(t *testing.T) {
	providerErr := errors.New("membership service down")
	provider := &fakeGroupsProvider{err: providerErr}
	cr := setupResolver(t, provider).ForCharacter(testCharacter)

	err := cr.RequireAllOf(context.Background(), roles.EventsRead)
	require.ErrorIs(t, err, providerErr)
	require.NotErrorIs(t, err, apperrors.ErrForbidden)
}
