package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/linkea-sync/internal/repositories"
	"github.com/desertthunder/linkea-sync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// CacheClear forgets the cached IDs of the logical groups in the configured cache store.
//
// It does not require the integration to be enabled: only the store is touched.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	store, err := r.cacheStore(ctx)
	if err != nil {
		return err
	}

	groups := tasks.NewGroupDirectory(nil, store, nil, 0, r.logger)
	if err := groups.Invalidate(ctx); err != nil {
		return err
	}

	r.logger.Info("group cache cleared", "driver", r.config.Sender.CacheDriver)
	r.writePlain("%s Cached group IDs cleared\n", styles.ok.Render("✓"))
	return nil
}

// CachePurge deletes expired rows from the database-backed cache.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	store, err := r.cacheStore(ctx)
	if err != nil {
		return err
	}

	repo, ok := store.(*repositories.CacheRepository)
	if !ok {
		r.writePlain("%s\n", styles.help.Render(fmt.Sprintf("The %q cache driver expires entries on its own.", r.config.Sender.CacheDriver)))
		return nil
	}

	n, err := repo.Purge(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("purged expired cache entries", "count", n)
	r.writePlain("%s Purged %d expired entries\n", styles.ok.Render("✓"), n)
	return nil
}
