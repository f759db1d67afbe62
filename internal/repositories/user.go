package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/shared"
)

const userColumns = `id, sequence, email, name, first_name, last_name, handle, legacy_id, sendernet_id,
	verified_at, created_at, updated_at, deleted_at`

var _ models.Repository[*models.User] = (*UserRepository)(nil)

// UserRepository implements [models.Repository] for user [models.User] persistence.
type UserRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// Create inserts a new user into the database with generated ID and sequence
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "users")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	user.SetID(id)
	user.SetSequence(sequence)

	query := `
		INSERT INTO users (id, sequence, email, name, first_name, last_name, handle, legacy_id, sendernet_id,
			verified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		user.Email(),
		user.Name(),
		nullString(user.FirstName()),
		nullString(user.LastName()),
		nullString(user.Handle()),
		nullString(user.LegacyID()),
		nullString(user.SubscriberID()),
		nullTime(user.VerifiedAt()),
		user.CreatedAt(),
		user.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateUser, shared.RedactEmail(user.Email()))
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// Get retrieves a user by ID, excluding soft-deleted users
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ? AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = ? AND deleted_at IS NULL`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, shared.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, shared.RedactEmail(email))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// Update modifies an existing user in the database
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := r.now().UTC()
	user.SetUpdatedAt(now)

	query := `
		UPDATE users
		SET email = ?, name = ?, first_name = ?, last_name = ?, handle = ?, legacy_id = ?, sendernet_id = ?,
			verified_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Email(),
		user.Name(),
		nullString(user.FirstName()),
		nullString(user.LastName()),
		nullString(user.Handle()),
		nullString(user.LegacyID()),
		nullString(user.SubscriberID()),
		nullTime(user.VerifiedAt()),
		now,
		user.ID(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateUser, shared.RedactEmail(user.Email()))
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectOneRow(result, user.ID())
}

// SetSubscriberID writes back the Sender.net subscriber ID for a user without touching other fields.
func (r *UserRepository) SetSubscriberID(ctx context.Context, userID, subscriberID string) error {
	query := `UPDATE users SET sendernet_id = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, nullString(subscriberID), r.now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to store subscriber id: %w", err)
	}
	return expectOneRow(result, userID)
}

// Save creates the user, or updates the stored record with the same email. It reports whether a row was created.
func (r *UserRepository) Save(ctx context.Context, user *models.User) (bool, error) {
	existing, err := r.GetByEmail(ctx, user.Email())
	switch {
	case errors.Is(err, shared.ErrUserNotFound):
		return true, r.Create(ctx, user)
	case err != nil:
		return false, err
	}

	user.SetID(existing.ID())
	user.SetSequence(existing.Sequence())
	user.SetCreatedAt(existing.CreatedAt())
	if user.SubscriberID() == "" {
		user.SetSubscriberID(existing.SubscriberID())
	}
	return false, r.Update(ctx, user)
}

// Delete soft-deletes a user by ID
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectOneRow(result, id)
}

// List retrieves users matching the given criteria, excluding soft-deleted users, ordered by sequence.
//
// Supported criteria:
//   - "email" (string): exact match, ignoring case
//   - "verified_only" (bool): only users with a verification timestamp
//   - "unsynced" (bool): only users without a stored subscriber ID
//   - "limit" (int), "offset" (int): paging
func (r *UserRepository) List(ctx context.Context, criteria map[string]any) ([]*models.User, error) {
	where, args := userFilter(criteria)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` ORDER BY sequence ASC`

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset, ok := criteria["offset"].(int); ok && offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

// Count returns the number of users matching criteria. Paging keys are ignored.
func (r *UserRepository) Count(ctx context.Context, criteria map[string]any) (int, error) {
	where, args := userFilter(criteria)

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func userFilter(criteria map[string]any) (string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	var args []any

	if email, ok := criteria["email"].(string); ok && email != "" {
		clauses = append(clauses, "LOWER(email) = ?")
		args = append(args, shared.NormalizeEmail(email))
	}
	if v, ok := criteria["verified_only"].(bool); ok && v {
		clauses = append(clauses, "verified_at IS NOT NULL")
	}
	if v, ok := criteria["unsynced"].(bool); ok && v {
		clauses = append(clauses, "(sendernet_id IS NULL OR sendernet_id = '')")
	}

	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		id, email, name                         string
		sequence                                int
		first, last, handle, legacy, subscriber sql.NullString
		verifiedAt, deletedAt                   sql.NullTime
		createdAt, updatedAt                    time.Time
	)

	err := row.Scan(&id, &sequence, &email, &name, &first, &last, &handle, &legacy, &subscriber,
		&verifiedAt, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(sequence, email, name)
	user.SetID(id)
	user.SetNames(first.String, last.String)
	user.SetHandle(handle.String)
	user.SetLegacyID(legacy.String)
	user.SetSubscriberID(subscriber.String)
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)
	if verifiedAt.Valid {
		user.SetVerifiedAt(&verifiedAt.Time)
	}
	if deletedAt.Valid {
		user.SetDeletedAt(&deletedAt.Time)
	}
	return user, nil
}

func expectOneRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s (missing or deleted)", shared.ErrUserNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
