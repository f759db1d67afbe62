package tasks

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/services"
	"github.com/desertthunder/linkea-sync/internal/shared"
)

// SubscriberIDStore persists the remote subscriber ID assigned to a local user.
// [repositories.UserRepository] implements it.
type SubscriberIDStore interface {
	SetSubscriberID(ctx context.Context, userID, subscriberID string) error
}

// CreateOpts tunes [Reconciler.CreateSubscriber].
type CreateOpts struct {
	// ExtraGroupIDs are added to the default users group.
	ExtraGroupIDs []string
	// SkipAutomation suppresses Sender.net automations (welcome flows) for the new subscriber.
	SkipAutomation bool
}

// UpdateOpts tunes [Reconciler.UpdateSubscriber].
type UpdateOpts struct {
	// Fields are extra custom fields. Tag-derived fields win on conflicts.
	Fields map[string]string
	// Tags are encoded into custom fields when non-empty.
	Tags   models.TagDelta
	Groups []string
	// TriggerAutomation is sent only when set.
	TriggerAutomation *bool
}

// Reconciler brings one Sender.net subscriber in line with one local user.
//
// Every method is a no-op returning nil or false while the [Gate] is closed. Remote failures are logged and
// reported through the return value; no method returns an error.
type Reconciler struct {
	client services.Service
	groups *GroupDirectory
	gate   *Gate
	ids    SubscriberIDStore
	logger *log.Logger
	now    func() time.Time
}

// NewReconciler creates a [Reconciler]. ids may be nil, in which case assigned IDs are kept on the user only.
func NewReconciler(client services.Service, groups *GroupDirectory, gate *Gate, ids SubscriberIDStore, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Reconciler{
		client: client,
		groups: groups,
		gate:   gate,
		ids:    ids,
		logger: shared.WithLogger(logger, "component", "reconciler"),
		now:    time.Now,
	}
}

// Gate returns the gate guarding this reconciler.
func (r *Reconciler) Gate() *Gate { return r.gate }

// Lookup finds a subscriber by email or remote ID. A closed gate yields NotFound.
func (r *Reconciler) Lookup(ctx context.Context, identifier string) models.SubscriberLookup {
	if !r.gate.Enabled() {
		return models.NotFound()
	}
	return r.client.LookupSubscriber(ctx, identifier)
}

// CreateSubscriber ensures a subscriber exists for u.
//
// An existing subscriber with the same email is adopted as-is: its ID is stored on u and it is returned.
// Otherwise the subscriber is created ACTIVE in the users group plus opts.ExtraGroupIDs with freshly built tags.
// Returns nil when the gate is closed or the create failed.
func (r *Reconciler) CreateSubscriber(ctx context.Context, u *models.User, opts CreateOpts) *models.Subscriber {
	sub, _ := r.create(ctx, u, opts)
	return sub
}

// create reports whether the returned subscriber already existed remotely.
func (r *Reconciler) create(ctx context.Context, u *models.User, opts CreateOpts) (*models.Subscriber, bool) {
	if !r.gate.Enabled() {
		r.logger.Debug("integration disabled, skipping create", "reason", r.gate.Reason())
		return nil, false
	}

	logger := r.userLogger(u)

	lookup := r.client.LookupSubscriber(ctx, u.Email())
	switch {
	case lookup.IsFound():
		logger.Info("subscriber already exists", "subscriber", lookup.Subscriber.ID)
		r.storeID(ctx, u, lookup.Subscriber.ID)
		return lookup.Subscriber, true
	case lookup.Kind == models.LookupTransientError:
		logger.Warn("subscriber lookup failed, attempting create", "err", lookup.Err)
	}

	var groups []string
	if id, ok := r.groups.ResolveGroupID(ctx, models.GroupUsers, true); ok {
		groups = append(groups, id)
	}
	for _, id := range opts.ExtraGroupIDs {
		if id != "" && !slices.Contains(groups, id) {
			groups = append(groups, id)
		}
	}

	first, last := u.SubscriberName()
	delta := models.DeltaFor(u)

	sub, err := r.client.CreateSubscriber(ctx, services.CreateSubscriberRequest{
		Email:             u.Email(),
		Firstname:         first,
		Lastname:          last,
		Status:            models.StatusActive,
		TriggerAutomation: !opts.SkipAutomation,
		Groups:            groups,
		Fields:            models.SubscriberFields(u, delta, r.now()),
	})
	if err != nil {
		r.logFailure(logger, "create subscriber", err)
		return nil, false
	}

	r.storeID(ctx, u, sub.ID)
	logger.Info("subscriber created", "subscriber", sub.ID, "tags", delta.Active().String())
	return sub, false
}

// UpdateSubscriber patches the subscriber for u, addressed by stored remote ID or else by email.
//
// Names are recomputed and both subscriber and transactional status are forced to ACTIVE. Returns nil when
// the gate is closed or the update failed.
func (r *Reconciler) UpdateSubscriber(ctx context.Context, u *models.User, opts UpdateOpts) *models.Subscriber {
	if !r.gate.Enabled() {
		r.logger.Debug("integration disabled, skipping update", "reason", r.gate.Reason())
		return nil
	}

	logger := r.userLogger(u)
	identifier := u.SubscriberID()
	if identifier == "" {
		identifier = u.Email()
	}

	first, last := u.SubscriberName()
	req := services.UpdateSubscriberRequest{
		Firstname:                first,
		Lastname:                 last,
		SubscriberStatus:         models.StatusActive,
		TransactionalEmailStatus: models.StatusActive,
		TriggerAutomation:        opts.TriggerAutomation,
		Groups:                   opts.Groups,
	}

	if len(opts.Fields) > 0 || !opts.Tags.IsEmpty() {
		req.Fields = make(map[string]string, len(opts.Fields))
		for k, v := range opts.Fields {
			req.Fields[k] = v
		}
	}
	if !opts.Tags.IsEmpty() {
		for k, v := range models.SubscriberFields(u, opts.Tags, r.now()) {
			req.Fields[k] = v
		}
	}

	sub, err := r.client.UpdateSubscriber(ctx, identifier, req)
	if err != nil {
		r.logFailure(logger, "update subscriber", err)
		return nil
	}

	if !u.HasSubscriberID() {
		r.storeID(ctx, u, sub.ID)
	}
	logger.Info("subscriber updated", "subscriber", sub.ID, "tags", opts.Tags.Active().String())
	return sub
}

// MarkVerified re-tags u from its current state and triggers automations keyed on that state.
// The caller sets the verification timestamp on u first; an unverified user stays pending.
func (r *Reconciler) MarkVerified(ctx context.Context, u *models.User) bool {
	trigger := true
	return r.UpdateSubscriber(ctx, u, UpdateOpts{Tags: models.DeltaFor(u), TriggerAutomation: &trigger}) != nil
}

// AddToGroups adds u's subscriber to groupIDs. An empty list is a no-op returning false.
func (r *Reconciler) AddToGroups(ctx context.Context, u *models.User, groupIDs []string) bool {
	if len(groupIDs) == 0 {
		return false
	}
	return r.UpdateSubscriber(ctx, u, UpdateOpts{Groups: groupIDs}) != nil
}

// DeleteSubscriber removes u's subscriber by email and clears the stored remote ID.
func (r *Reconciler) DeleteSubscriber(ctx context.Context, u *models.User) bool {
	if !r.gate.Enabled() {
		return false
	}

	logger := r.userLogger(u)
	if err := r.client.DeleteSubscribers(ctx, u.Email()); err != nil {
		r.logFailure(logger, "delete subscriber", err)
		return false
	}

	if u.HasSubscriberID() {
		r.storeID(ctx, u, "")
	}
	logger.Info("subscriber deleted")
	return true
}

func (r *Reconciler) storeID(ctx context.Context, u *models.User, id string) {
	if u.SubscriberID() == id {
		return
	}
	u.SetSubscriberID(id)
	if r.ids == nil || u.ID() == "" {
		return
	}
	if err := r.ids.SetSubscriberID(ctx, u.ID(), id); err != nil {
		r.userLogger(u).Warn("failed to store subscriber id", "subscriber", id, "err", err)
	}
}

func (r *Reconciler) userLogger(u *models.User) *log.Logger {
	return r.logger.With("user", u.ID(), "email", shared.RedactEmail(u.Email()))
}

// logFailure logs malformed 2xx bodies as warnings and everything else as errors.
func (r *Reconciler) logFailure(logger *log.Logger, op string, err error) {
	if errors.Is(err, services.ErrUnexpectedResponse) {
		logger.Warn(op+": unexpected response", "err", err)
		return
	}
	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		logger.Error(op+" failed", "method", apiErr.Method, "endpoint", apiErr.Endpoint, "status", apiErr.Status, "body", apiErr.Body)
		return
	}
	logger.Error(op+" failed", "err", err)
}
