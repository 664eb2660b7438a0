package neucore

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eve-tools/pingboard/cache"
)

// GroupsSource fetches a character's current group memberships.
type GroupsSource interface {
	GetCharacterGroups(ctx context.Context, characterID int64) ([]Group, error)
}

// GroupCache shields the membership API behind a single-flight TTL cache
// keyed by character id.
type GroupCache struct {
	cache *cache.Cache[int64, []string]
}

// NewGroupCache creates a cache over source; entries stay fresh for
// cacheTTL.
func NewGroupCache(source GroupsSource, cacheTTL time.Duration) *GroupCache {
	return &GroupCache{
		cache: cache.New(cacheTTL, func(ctx context.Context, characterID int64) (cache.Result[[]string], error) {
			log.Debug().Int64("characterId", characterID).Msg("Fetching neucore groups")
			groups, err := source.GetCharacterGroups(ctx, characterID)
			if err != nil {
				return cache.Result[[]string]{}, err
			}
			names := make([]string, 0, len(groups))
			for _, group := range groups {
				names = append(names, group.Name)
			}
			return cache.Result[[]string]{Value: names}, nil
		}),
	}
}

// GetGroups returns the character's group names, from cache unless
// forceRefresh bypasses it for a must-be-fresh check.
func (g *GroupCache) GetGroups(ctx context.Context, characterID int64, forceRefresh bool) ([]string, error) {
	return g.cache.Get(ctx, characterID, forceRefresh)
}
