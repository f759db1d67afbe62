package tasks

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/services"
	"github.com/desertthunder/linkea-sync/internal/shared"
)

const (
	// DefaultPerPage is the page size used for directory fetches; Sender.net caps it at 100.
	DefaultPerPage = 100
	// DefaultMaxPages bounds directory pagination against an API that never reports its last page.
	DefaultMaxPages = 1000
)

// SyncOpts tunes [SyncEngine.SyncUsers].
type SyncOpts struct {
	// OnlyVerified skips users without a verification timestamp.
	OnlyVerified bool
}

// SyncEngine applies a [Reconciler] across a set of users.
//
// Users are processed strictly in input order, one at a time. Every remote-mutating call is followed by
// [services.Throttle.Pace].
type SyncEngine struct {
	reconciler *Reconciler
	throttle   *services.Throttle
	perPage    int
	maxPages   int
	logger     *log.Logger
}

// NewSyncEngine creates a [SyncEngine]. throttle may be nil to disable pacing.
func NewSyncEngine(reconciler *Reconciler, throttle *services.Throttle, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &SyncEngine{
		reconciler: reconciler,
		throttle:   throttle,
		perPage:    DefaultPerPage,
		maxPages:   DefaultMaxPages,
		logger:     shared.WithLogger(logger, "component", "sync"),
	}
}

// WithPaging overrides the directory page size and page ceiling. Non-positive values keep the defaults.
func (e *SyncEngine) WithPaging(perPage, maxPages int) *SyncEngine {
	if perPage > 0 {
		e.perPage = min(perPage, DefaultPerPage)
	}
	if maxPages > 0 {
		e.maxPages = maxPages
	}
	return e
}

// SyncUsers creates or updates a subscriber for every user and returns the tally.
//
// While the gate is closed every user is skipped without any remote call. Otherwise the remote directory is
// fetched once; users already in it are updated with fresh tags, the rest are created without triggering
// automations. progress, when non-nil, is called once per user after it is classified.
// If ctx is cancelled the remaining users are skipped.
func (e *SyncEngine) SyncUsers(ctx context.Context, users []*models.User, opts SyncOpts, progress ProgressFunc) models.SyncStats {
	stats := models.SyncStats{Total: len(users)}

	gate := e.reconciler.Gate()
	if !gate.Enabled() {
		e.logger.Info("integration disabled, skipping sync", "reason", gate.Reason(), "users", len(users))
		stats.Skipped = len(users)
		return stats
	}

	existing, err := e.Directory(ctx)
	if err != nil {
		e.logger.Warn("directory fetch incomplete, continuing with partial set", "known", len(existing), "err", err)
	}

	for i, u := range users {
		outcome, reason := e.syncOne(ctx, u, opts, existing)
		outcome.record(&stats)
		if progress != nil {
			progress(userUpdate(SyncUser, i+1, len(users), u, outcome, reason))
		}
	}

	e.logger.Info("sync finished", "stats", stats.String())
	return stats
}

func (e *SyncEngine) syncOne(ctx context.Context, u *models.User, opts SyncOpts, existing map[string]struct{}) (Outcome, string) {
	if ctx.Err() != nil {
		return OutcomeSkipped, "Cancelled"
	}
	if opts.OnlyVerified && !u.IsVerified() {
		return OutcomeSkipped, "Not verified"
	}

	defer e.pace(ctx)

	if _, ok := existing[shared.NormalizeEmail(u.Email())]; ok {
		e.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{Tags: models.DeltaFor(u)})
		return OutcomeUpdated, "Updated existing subscriber"
	}

	sub, existed := e.reconciler.create(ctx, u, CreateOpts{SkipAutomation: true})
	switch {
	case sub == nil:
		return OutcomeFailed, "Failed to add"
	case existed:
		return OutcomeExisting, "Already exists"
	default:
		return OutcomeSynced, "Synced successfully"
	}
}

// Plan classifies users against the remote directory without mutating anything.
func (e *SyncEngine) Plan(ctx context.Context, users []*models.User, opts SyncOpts) (models.SyncPlan, error) {
	var plan models.SyncPlan

	gate := e.reconciler.Gate()
	if !gate.Enabled() {
		return plan, fmt.Errorf("%w: %s", shared.ErrSyncDisabled, gate.Reason())
	}

	existing, err := e.Directory(ctx)
	if err != nil {
		return plan, err
	}
	plan.DirectorySize = len(existing)

	for _, u := range users {
		switch _, ok := existing[shared.NormalizeEmail(u.Email())]; {
		case opts.OnlyVerified && !u.IsVerified():
			plan.Skipped = append(plan.Skipped, u)
		case ok:
			plan.Existing = append(plan.Existing, u)
		default:
			plan.New = append(plan.New, u)
		}
	}
	return plan, nil
}

// FixUsers re-applies names, ACTIVE status and tags to every user's subscriber.
func (e *SyncEngine) FixUsers(ctx context.Context, users []*models.User, progress ProgressFunc) models.SyncStats {
	stats := models.SyncStats{Total: len(users)}

	gate := e.reconciler.Gate()
	if !gate.Enabled() {
		e.logger.Info("integration disabled, skipping fix", "reason", gate.Reason(), "users", len(users))
		stats.Skipped = len(users)
		return stats
	}

	for i, u := range users {
		outcome, reason := OutcomeUpdated, ""
		switch {
		case ctx.Err() != nil:
			outcome, reason = OutcomeSkipped, "Cancelled"
		case e.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{Tags: models.DeltaFor(u)}) == nil:
			outcome = OutcomeFailed
			e.pace(ctx)
		default:
			e.pace(ctx)
		}

		outcome.record(&stats)
		if progress != nil {
			progress(userUpdate(FixUser, i+1, len(users), u, outcome, reason))
		}
	}

	e.logger.Info("fix finished", "stats", stats.String())
	return stats
}

// Directory fetches every remote subscriber email, lowercased.
//
// Pages are requested until the API reports the last page or the page ceiling is reached. On error the
// emails collected so far are returned along with the error.
func (e *SyncEngine) Directory(ctx context.Context) (map[string]struct{}, error) {
	emails := make(map[string]struct{})
	client := e.reconciler.client

	for page := 1; ; page++ {
		if page > e.maxPages {
			e.logger.Warn("directory page ceiling reached", "pages", e.maxPages, "known", len(emails))
			return emails, nil
		}

		res, err := client.ListSubscribers(ctx, page, e.perPage)
		if err != nil {
			return emails, fmt.Errorf("failed to fetch subscriber directory page %d: %w", page, err)
		}
		for _, s := range res.Data {
			emails[shared.NormalizeEmail(s.Email)] = struct{}{}
		}

		e.logger.Debug("fetched directory page", "page", page, "last_page", res.Meta.LastPage, "known", len(emails))
		if !res.HasMore() {
			return emails, nil
		}
	}
}

func (e *SyncEngine) pace(ctx context.Context) {
	if err := e.throttle.Pace(ctx); err != nil {
		e.logger.Debug("pacing interrupted", "err", err)
	}
}
