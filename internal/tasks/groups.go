package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/linkea-sync/internal/cache"
	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/services"
	"github.com/desertthunder/linkea-sync/internal/shared"
)

// DefaultGroupTTL is how long a resolved group ID is cached.
const DefaultGroupTTL = 24 * time.Hour

// GroupClient is the part of the Sender.net API the group directory needs.
type GroupClient interface {
	ListGroups(ctx context.Context) ([]models.Group, error)
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	CreateGroup(ctx context.Context, title string) (*models.Group, error)
}

// GroupDirectory resolves logical group names to Sender.net group IDs.
//
// Resolved IDs are cached per name for ttl. Remote failures are logged and reported as unresolved,
// never returned as errors.
type GroupDirectory struct {
	client GroupClient
	store  cache.Store
	gate   *Gate
	ttl    time.Duration
	logger *log.Logger
}

// NewGroupDirectory creates a [GroupDirectory]. A nil store uses an in-memory cache; ttl <= 0 uses [DefaultGroupTTL].
func NewGroupDirectory(client GroupClient, store cache.Store, gate *Gate, ttl time.Duration, logger *log.Logger) *GroupDirectory {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultGroupTTL
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &GroupDirectory{
		client: client,
		store:  store,
		gate:   gate,
		ttl:    ttl,
		logger: shared.WithLogger(logger, "component", "groups"),
	}
}

// ResolveGroupID returns the remote ID for the group titled name.
//
// The cache is consulted first. On a miss the full group list is fetched and matched by title, ignoring
// case. When nothing matches and createIfMissing is set, the group is created. ok is false when the
// integration is disabled or the group could not be found or created.
func (d *GroupDirectory) ResolveGroupID(ctx context.Context, name string, createIfMissing bool) (id string, ok bool) {
	if !d.gate.Enabled() {
		return "", false
	}

	key := cache.GroupKey(name)
	if cached, hit, err := d.store.Get(ctx, key); err != nil {
		d.logger.Debug("group cache read failed", "group", name, "err", err)
	} else if hit && cached != "" {
		return cached, true
	}

	groups, err := d.client.ListGroups(ctx)
	if err != nil {
		d.logger.Warn("failed to list groups", "group", name, "err", err)
		return "", false
	}

	for _, g := range groups {
		if g.Matches(name) && g.ID != "" {
			d.remember(ctx, key, name, g.ID)
			return g.ID, true
		}
	}

	if !createIfMissing {
		return "", false
	}

	created, err := d.client.CreateGroup(ctx, name)
	if err != nil {
		d.logger.Warn("failed to create group", "group", name, "err", err)
		return "", false
	}
	d.logger.Info("created group", "group", name, "id", created.ID)
	d.remember(ctx, key, name, created.ID)
	return created.ID, true
}

// Invalidate drops cached IDs for names, or for every default group when names is empty.
func (d *GroupDirectory) Invalidate(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		names = models.DefaultGroups()
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = cache.GroupKey(n)
	}
	if err := d.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("%w: invalidate groups: %v", shared.ErrCacheStore, err)
	}
	return nil
}

// Verify checks each cached ID against Sender.net and drops the ones whose group no longer exists.
// It returns the names that were dropped. With no names the default groups are used.
//
// Only a 404 drops an entry; other failures are logged and the cached ID is kept.
func (d *GroupDirectory) Verify(ctx context.Context, names ...string) []string {
	if !d.gate.Enabled() {
		return nil
	}
	if len(names) == 0 {
		names = models.DefaultGroups()
	}

	var stale []string
	for _, n := range names {
		key := cache.GroupKey(n)
		id, hit, err := d.store.Get(ctx, key)
		if err != nil || !hit || id == "" {
			continue
		}

		_, err = d.client.GetGroup(ctx, id)
		switch {
		case err == nil:
			continue
		case errors.Is(err, services.ErrNotFound):
			if err := d.store.Delete(ctx, key); err != nil {
				d.logger.Warn("failed to drop stale group id", "group", n, "err", err)
				continue
			}
			d.logger.Info("dropped stale group id", "group", n, "id", id)
			stale = append(stale, n)
		default:
			d.logger.Warn("failed to verify group", "group", n, "id", id, "err", err)
		}
	}
	return stale
}

// EnsureAll resolves every name, creating missing groups, and returns name to ID. Unresolved names map to "".
// With no names the default groups are used.
func (d *GroupDirectory) EnsureAll(ctx context.Context, names ...string) map[string]string {
	if len(names) == 0 {
		names = models.DefaultGroups()
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		id, _ := d.ResolveGroupID(ctx, n, true)
		out[n] = id
	}
	return out
}

func (d *GroupDirectory) remember(ctx context.Context, key, name, id string) {
	if err := d.store.Set(ctx, key, id, d.ttl); err != nil {
		d.logger.Warn("failed to cache group id", "group", name, "err", err)
	}
}
