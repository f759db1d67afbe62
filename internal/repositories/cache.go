package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/linkea-sync/internal/cache"
	"github.com/desertthunder/linkea-sync/internal/shared"
)

var _ cache.Store = (*CacheRepository)(nil)

// CacheRepository implements [cache.Store] on the cache_entries table.
//
// Expired rows are treated as misses and removed on read. Writes overwrite existing keys.
type CacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewCacheRepository creates a new [CacheRepository] with the given database connection
func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db, now: time.Now}
}

func (r *CacheRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		expiresAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: read %s: %v", shared.ErrCacheStore, key, err)
	}

	if expiresAt.Valid && !r.now().Before(expiresAt.Time) {
		if err := r.Delete(ctx, key); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return value, true, nil
}

func (r *CacheRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := r.now().UTC()

	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	query := `
		INSERT INTO cache_entries (key, value, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, expiresAt, now, now); err != nil {
		return fmt.Errorf("%w: write %s: %v", shared.ErrCacheStore, key, err)
	}
	return nil
}

func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return fmt.Errorf("%w: delete %s: %v", shared.ErrCacheStore, key, err)
		}
	}
	return nil
}

// Purge removes every expired entry and returns how many were dropped.
func (r *CacheRepository) Purge(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %v", shared.ErrCacheStore, err)
	}
	return result.RowsAffected()
}
