// Package roles turns external group memberships into application
// permissions. The mapping is a flat, externally configured table; roles are
// resolved per request through the group cache, with "fresh" variants for
// privilege-sensitive actions that must not trust cached memberships.
package roles

import (
	"context"

	"github.com/pkg/errors"

	apperrors "github.com/eve-tools/pingboard/internal/errors"
	"github.com/eve-tools/pingboard/sessions"
)

// Role represents an application-level permission.
type Role string

const (
	EventsRead         Role = "events-read"
	EventsWrite        Role = "events-write"
	Ping               Role = "ping"
	PingTemplatesWrite Role = "ping-templates-write"
)

// Mapping maps an external group name to the roles it grants. Groups not in
// the table grant nothing.
type Mapping map[string][]Role

// MappingFromGroups inverts a role -> group-names table, the shape role
// configuration arrives in, into a Mapping.
func MappingFromGroups(groupsByRole map[Role][]string) Mapping {
	mapping := make(Mapping)
	for role, groups := range groupsByRole {
		for _, group := range groups {
			if group == "" {
				continue
			}
			mapping[group] = append(mapping[group], role)
		}
	}
	return mapping
}

// GroupsProvider yields a character's current group names, cached unless
// forceRefresh is set.
type GroupsProvider interface {
	GetGroups(ctx context.Context, characterID int64, forceRefresh bool) ([]string, error)
}

// Resolver resolves sessions to roles via the group cache and the mapping
// table.
type Resolver struct {
	mapping Mapping
	groups  GroupsProvider
}

// NewResolver creates a Resolver over the given read-only mapping.
func NewResolver(mapping Mapping, groups GroupsProvider) (*Resolver, error) {
	if groups == nil {
		return nil, errors.New("[roles.NewResolver] groups provider is required")
	}
	return &Resolver{
		mapping: mapping,
		groups:  groups,
	}, nil
}

// ForCharacter builds the per-request capability value for the given
// character. A nil character yields an anonymous value that resolves to no
// roles without ever calling the group cache.
func (r *Resolver) ForCharacter(character *sessions.Character) *CharacterRoles {
	return &CharacterRoles{resolver: r, character: character}
}

// CharacterRoles resolves and checks roles for one character. It is built
// once per request and threaded explicitly through calls.
type CharacterRoles struct {
	resolver  *Resolver
	character *sessions.Character
}

// Groups returns the character's external group names.
func (c *CharacterRoles) Groups(ctx context.Context, fresh bool) ([]string, error) {
	if c.character == nil {
		return nil, nil
	}
	groups, err := c.resolver.groups.GetGroups(ctx, c.character.ID, fresh)
	if err != nil {
		return nil, errors.Wrap(err, "[CharacterRoles.Groups]")
	}
	return groups, nil
}

// Roles maps the character's groups through the mapping table and returns
// the deduplicated union of all granted roles.
func (c *CharacterRoles) Roles(ctx context.Context, fresh bool) ([]Role, error) {
	groups, err := c.Groups(ctx, fresh)
	if err != nil {
		return nil, err
	}

	seen := make(map[Role]bool)
	var result []Role
	for _, group := range groups {
		for _, role := range c.resolver.mapping[group] {
			if !seen[role] {
				seen[role] = true
				result = append(result, role)
			}
		}
	}
	return result, nil
}

// HasRoles reports whether the character holds every one of the given roles.
func (c *CharacterRoles) HasRoles(ctx context.Context, roles ...Role) (bool, error) {
	return c.hasAll(ctx, false, roles)
}

// HasFreshRoles is HasRoles against the membership service's current state.
func (c *CharacterRoles) HasFreshRoles(ctx context.Context, roles ...Role) (bool, error) {
	return c.hasAll(ctx, true, roles)
}

// HasAnyRole reports whether the character holds at least one of the given
// roles.
func (c *CharacterRoles) HasAnyRole(ctx context.Context, roles ...Role) (bool, error) {
	return c.hasAny(ctx, false, roles)
}

// HasAnyFreshRole is HasAnyRole against the membership service's current
// state.
func (c *CharacterRoles) HasAnyFreshRole(ctx context.Context, roles ...Role) (bool, error) {
	return c.hasAny(ctx, true, roles)
}

// RequireAllOf allows the request to proceed only if the character holds
// every given role. Fails with ErrUnauthenticated when no character is
// bound, ErrForbidden otherwise.
func (c *CharacterRoles) RequireAllOf(ctx context.Context, roles ...Role) error {
	ok, err := c.HasRoles(ctx, roles...)
	return c.guard(ok, err)
}

// RequireAllFreshOf is RequireAllOf with a forced membership refresh. Meant
// for privilege-escalating or destructive operations.
func (c *CharacterRoles) RequireAllFreshOf(ctx context.Context, roles ...Role) error {
	ok, err := c.HasFreshRoles(ctx, roles...)
	return c.guard(ok, err)
}

// RequireOneOf allows the request to proceed if the character holds at
// least one of the given roles.
func (c *CharacterRoles) RequireOneOf(ctx context.Context, roles ...Role) error {
	ok, err := c.HasAnyRole(ctx, roles...)
	return c.guard(ok, err)
}

// RequireOneFreshOf is RequireOneOf with a forced membership refresh.
func (c *CharacterRoles) RequireOneFreshOf(ctx context.Context, roles ...Role) error {
	ok, err := c.HasAnyFreshRole(ctx, roles...)
	return c.guard(ok, err)
}

func (c *CharacterRoles) hasAll(ctx context.Context, fresh bool, roles []Role) (bool, error) {
	held, err := c.Roles(ctx, fresh)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if !containsRole(held, role) {
			return false, nil
		}
	}
	return true, nil
}

func (c *CharacterRoles) hasAny(ctx context.Context, fresh bool, roles []Role) (bool, error) {
	held, err := c.Roles(ctx, fresh)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if containsRole(held, role) {
			return true, nil
		}
	}
	return false, nil
}

func (c *CharacterRoles) guard(ok bool, err error) error {
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if c.character == nil {
		return apperrors.ErrUnauthenticated
	}
	return apperrors.ErrForbidden
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
