package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/linkea-sync/internal/formatter"
	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/shared"
	"github.com/urfave/cli/v3"
)

// userView is the JSON shape of a listed user.
type userView struct {
	ID           string     `json:"id"`
	Sequence     int        `json:"sequence"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Handle       string     `json:"handle,omitempty"`
	Legacy       bool       `json:"legacy"`
	Tags         []string   `json:"tags"`
	SubscriberID string     `json:"subscriber_id,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func newUserView(u *models.User) userView {
	first, last := u.SubscriberName()
	return userView{
		ID:           u.ID(),
		Sequence:     u.Sequence(),
		Email:        u.Email(),
		FirstName:    first,
		LastName:     last,
		Handle:       u.Handle(),
		Legacy:       u.IsLegacy(),
		Tags:         models.BuildTags(u).Strings(),
		SubscriberID: u.SubscriberID(),
		VerifiedAt:   u.VerifiedAt(),
		CreatedAt:    u.CreatedAt(),
	}
}

// UsersImport creates or updates local users from a CSV file. Existing users are matched by email.
func (r *Runner) UsersImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	users, err := formatter.ParseUsersCSV(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	repo, err := r.userRepo(ctx)
	if err != nil {
		return err
	}

	var created, updated int
	for _, u := range users {
		isNew, err := repo.Save(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to save user %s: %w", shared.RedactEmail(u.Email()), err)
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	r.logger.Info("users imported", "file", path, "created", created, "updated", updated)
	r.writePlain("%s Imported %d users (%d created, %d updated)\n", styles.ok.Render("✓"), len(users), created, updated)
	return nil
}

// UsersList prints local users as a table or JSON.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.userRepo(ctx)
	if err != nil {
		return err
	}

	users, err := repo.List(ctx, map[string]any{
		"verified_only": cmd.Bool("verified-only"),
		"limit":         cmd.Int("limit"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]userView, 0, len(users))
		for _, u := range users {
			views = append(views, newUserView(u))
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	if len(users) == 0 {
		return r.writePlain("No users found.\n")
	}
	return formatter.RenderUsers(r.output, users)
}
