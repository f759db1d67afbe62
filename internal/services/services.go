// package services defines interface Service for interacting with the Sender.net HTTP API
package services

import (
	"context"

	"github.com/desertthunder/linkea-sync/internal/models"
)

// Service is the email-marketing provider surface the sync depends on. [SenderClient] implements it.
type Service interface {
	// LookupSubscriber finds a subscriber by email or remote ID.
	LookupSubscriber(ctx context.Context, identifier string) models.SubscriberLookup

	// CreateSubscriber creates a subscriber. A 2xx response without an ID is an error.
	CreateSubscriber(ctx context.Context, in CreateSubscriberRequest) (*models.Subscriber, error)

	// UpdateSubscriber patches the subscriber addressed by remote ID or email.
	UpdateSubscriber(ctx context.Context, identifier string, in UpdateSubscriberRequest) (*models.Subscriber, error)

	// DeleteSubscribers removes subscribers by email.
	DeleteSubscribers(ctx context.Context, emails ...string) error

	// ListSubscribers fetches one page of the subscriber directory.
	ListSubscribers(ctx context.Context, page, perPage int) (*SenderSubscriberPage, error)

	// ListGroups fetches the group directory.
	ListGroups(ctx context.Context) ([]models.Group, error)

	// GetGroup fetches one group by remote ID. A deleted group is [ErrNotFound].
	GetGroup(ctx context.Context, id string) (*models.Group, error)

	// CreateGroup creates a group with the given title.
	CreateGroup(ctx context.Context, title string) (*models.Group, error)

	// Name returns the name of the provider (e.g., "Sender.net")
	Name() string
}

var _ Service = (*SenderClient)(nil)
