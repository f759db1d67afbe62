package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/desertthunder/linkea-sync/internal/formatter"
	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/services"
	"github.com/desertthunder/linkea-sync/internal/shared"
	"github.com/desertthunder/linkea-sync/internal/tasks"
	"github.com/urfave/cli/v3"
)

var (
	errSyncFailures  = errors.New("some users failed to sync")
	errGroupsMissing = errors.New("some groups could not be resolved")
)

// SenderGroups creates the logical groups that are missing remotely and prints their IDs.
func (r *Runner) SenderGroups(ctx context.Context, cmd *cli.Command) error {
	if err := r.senderStack(ctx, cmd.Bool("force")); err != nil {
		return err
	}

	r.writePlainHeader("Sender.net groups")

	if cmd.Bool("clear") {
		if err := r.groups.Invalidate(ctx); err != nil {
			return err
		}
		r.writePlain("Cached group IDs cleared\n")
	}

	if cmd.Bool("verify") {
		for _, name := range r.groups.Verify(ctx) {
			r.writePlain("%s Cached ID for %q no longer exists, resolving again\n", styles.warn.Render("!"), name)
		}
	}

	ids := r.groups.EnsureAll(ctx)
	rows := make([]formatter.GroupRow, 0, len(ids))
	missing := 0
	for _, name := range models.DefaultGroups() {
		rows = append(rows, formatter.GroupRow{Name: name, ID: ids[name]})
		if ids[name] == "" {
			missing++
		}
	}

	if err := formatter.RenderGroups(r.output, rows); err != nil {
		return err
	}

	if missing > 0 {
		r.writePlain("%s\n", styles.err.Render("Some groups failed to resolve"))
		return fmt.Errorf("%w: %d of %d", errGroupsMissing, missing, len(rows))
	}

	r.writePlain("%s All groups are ready. IDs are cached for %s.\n",
		styles.ok.Render("✓"), r.config.Sender.CacheTTLDuration())
	return nil
}

// SenderExport syncs local users to Sender.net, or classifies them with --dry-run.
func (r *Runner) SenderExport(ctx context.Context, cmd *cli.Command) error {
	force := cmd.Bool("force")
	dryRun := cmd.Bool("dry-run")
	opts := tasks.SyncOpts{OnlyVerified: cmd.Bool("verified-only")}

	r.writePlainHeader("Sender.net user export")

	if err := r.senderStack(ctx, force || dryRun); err != nil {
		return err
	}

	users, err := r.listUsers(ctx, opts.OnlyVerified, cmd.Int("limit"), cmd.Int("offset"))
	if err != nil {
		return err
	}
	r.writePlain("Found %d users to process\n", len(users))

	if len(users) == 0 {
		r.writePlain("%s\n", styles.warn.Render("No users to export."))
		return nil
	}

	if dryRun {
		r.writePlain("%s\n", styles.warn.Render("Dry run: no subscribers will be created or updated"))
		plan, err := r.engine.Plan(ctx, users, opts)
		if err != nil {
			return err
		}
		r.writePlain("Found %d existing subscribers in Sender.net\n\n", plan.DirectorySize)
		if err := formatter.RenderPlan(r.output, plan); err != nil {
			return err
		}
		r.writePlainln("Would add %d new subscribers, update %d existing and skip %d",
			len(plan.New), len(plan.Existing), len(plan.Skipped))
		return nil
	}

	if !force && !cmd.Bool("yes") {
		ok, err := r.confirm(fmt.Sprintf("Export %d users to Sender.net?", len(users)))
		if err != nil {
			return err
		}
		if !ok {
			r.writePlain("Export cancelled.\n")
			return nil
		}
	}

	stats := r.engine.SyncUsers(ctx, users, opts, r.printProgress)
	r.logger.Info("sender export completed", "stats", stats.String())

	r.writePlainln("Export summary")
	if err := formatter.RenderStats(r.output, stats); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("export interrupted: %w", err)
	}
	if stats.Failed > 0 {
		r.writePlain("%s\n", styles.warn.Render("Some users failed to export. Check the logs for details."))
		return fmt.Errorf("%w: %d of %d", errSyncFailures, stats.Failed, stats.Total)
	}

	r.writePlain("%s Export completed\n", styles.ok.Render("✓"))
	return nil
}

// SenderFix re-applies names, status and tags to every user's subscriber, reading users in chunks.
func (r *Runner) SenderFix(ctx context.Context, cmd *cli.Command) error {
	chunk := cmd.Int("limit")
	if chunk <= 0 {
		return fmt.Errorf("%w: --limit must be positive, got %d", shared.ErrInvalidFlag, chunk)
	}

	if err := r.senderStack(ctx, cmd.Bool("force")); err != nil {
		return err
	}

	total, err := r.users.Count(ctx, nil)
	if err != nil {
		return err
	}

	r.writePlainHeader("Fixing Sender.net names and status")
	r.writePlain("Found %d users\n", total)

	var stats models.SyncStats
	for offset := 0; offset < total; offset += chunk {
		if ctx.Err() != nil {
			break
		}

		users, err := r.users.List(ctx, map[string]any{"limit": chunk, "offset": offset})
		if err != nil {
			return err
		}
		if len(users) == 0 {
			break
		}

		base := offset
		part := r.engine.FixUsers(ctx, users, func(u tasks.ProgressUpdate) {
			r.writePlain("  %s [%d/%d] %s: %s\n", styles.outcome(u.Outcome), base+u.Step, total, u.User.Email(), u.Outcome)
		})
		stats = addStats(stats, part)
	}

	r.writePlainln("Fix summary")
	if err := formatter.RenderStats(r.output, stats); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fix interrupted: %w", err)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errSyncFailures, stats.Failed, stats.Total)
	}
	return nil
}

// SenderCSV writes the manual import CSV. Group IDs are resolved when the integration can be reached.
func (r *Runner) SenderCSV(ctx context.Context, cmd *cli.Command) error {
	var groupIDs []string
	if err := r.senderStack(ctx, true); err != nil {
		r.logger.Warn("writing CSV without group IDs", "reason", err)
	} else {
		ids := r.groups.EnsureAll(ctx)
		groupIDs = append(groupIDs, ids[models.GroupUsers])
	}

	repo, err := r.userRepo(ctx)
	if err != nil {
		return err
	}
	users, err := repo.List(ctx, nil)
	if err != nil {
		return err
	}

	path, err := formatter.WriteCSVExport(users, cmd.String("output"), groupIDs...)
	if err != nil {
		return err
	}

	r.logger.Info("csv export written", "path", path, "users", len(users))
	r.writePlain("%s CSV file generated with %d users: %s\n", styles.ok.Render("✓"), len(users), path)
	r.writePlain("%s\n", styles.help.Render("Upload it at Sender.net > Subscribers > Import"))
	return nil
}

// SenderVerify marks the user's subscriber verified, recording the verification locally first when missing.
func (r *Runner) SenderVerify(ctx context.Context, cmd *cli.Command) error {
	if err := r.senderStack(ctx, cmd.Bool("force")); err != nil {
		return err
	}

	u, err := r.users.GetByEmail(ctx, cmd.String("email"))
	if err != nil {
		return err
	}

	if !u.IsVerified() {
		now := time.Now().UTC()
		u.SetVerifiedAt(&now)
		if err := r.users.Update(ctx, u); err != nil {
			return err
		}
		r.logger.Info("recorded local verification", "user", u.ID())
	}

	if !r.reconciler.MarkVerified(ctx, u) {
		return fmt.Errorf("%w: could not mark %s verified", shared.ErrAPIRequest, shared.RedactEmail(u.Email()))
	}

	r.writePlain("%s %s marked verified\n", styles.ok.Render("✓"), u.Email())
	return nil
}

// SenderDelete removes the user's subscriber and clears the stored subscriber ID.
func (r *Runner) SenderDelete(ctx context.Context, cmd *cli.Command) error {
	if err := r.senderStack(ctx, cmd.Bool("force")); err != nil {
		return err
	}

	u, err := r.users.GetByEmail(ctx, cmd.String("email"))
	if err != nil {
		return err
	}

	if !r.reconciler.DeleteSubscriber(ctx, u) {
		return fmt.Errorf("%w: could not delete subscriber %s", shared.ErrAPIRequest, shared.RedactEmail(u.Email()))
	}

	r.writePlain("%s subscriber %s deleted\n", styles.ok.Render("✓"), u.Email())
	return nil
}

// SenderLookup prints a remote subscriber found by email or ID.
func (r *Runner) SenderLookup(ctx context.Context, cmd *cli.Command) error {
	identifier := strings.TrimSpace(cmd.StringArg("identifier"))
	if identifier == "" {
		return fmt.Errorf("%w: identifier", shared.ErrMissingArgument)
	}

	if err := r.senderStack(ctx, cmd.Bool("force")); err != nil {
		return err
	}

	res := r.reconciler.Lookup(ctx, identifier)
	switch {
	case res.IsFound():
		if cmd.Bool("json") {
			return r.writeJSON(res.Subscriber, true)
		}
		return formatter.RenderSubscriber(r.output, res.Subscriber)
	case res.IsNotFound():
		r.writePlain("%s\n", styles.warn.Render("Subscriber not found"))
		return fmt.Errorf("%w: %s", services.ErrNotFound, identifier)
	default:
		return res.Err
	}
}

// listUsers loads users for export. An offset without a limit is applied after loading.
func (r *Runner) listUsers(ctx context.Context, verifiedOnly bool, limit, offset int) ([]*models.User, error) {
	users, err := r.users.List(ctx, map[string]any{
		"verified_only": verifiedOnly,
		"limit":         limit,
		"offset":        offset,
	})
	if err != nil {
		return nil, err
	}
	if limit <= 0 && offset > 0 {
		users = users[min(offset, len(users)):]
	}
	return users, nil
}

func (r *Runner) printProgress(u tasks.ProgressUpdate) {
	r.writePlain("  %s %s\n", styles.outcome(u.Outcome), u.Message)
}

// confirm asks a yes/no question on the runner's input. Anything but y or yes is a no.
func (r *Runner) confirm(question string) (bool, error) {
	r.writePlain("%s [y/N]: ", question)

	answer, err := bufio.NewReader(r.input).ReadString('\n')
	if err != nil && answer == "" {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func addStats(a, b models.SyncStats) models.SyncStats {
	return models.SyncStats{
		Total:         a.Total + b.Total,
		Synced:        a.Synced + b.Synced,
		Updated:       a.Updated + b.Updated,
		Skipped:       a.Skipped + b.Skipped,
		Failed:        a.Failed + b.Failed,
		AlreadyExists: a.AlreadyExists + b.AlreadyExists,
	}
}
