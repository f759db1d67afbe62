package models

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// ErrInvalidUser is wrapped by [User.Validate] failures.
var ErrInvalidUser = errors.New("invalid user")

// User is a Linkea account as seen by the Sender.net sync.
//
// The sync reads every field and writes back only the remote subscriber ID.
type User struct {
	id           string
	sequence     int
	email        string
	name         string
	firstName    string
	lastName     string
	handle       string
	legacyID     string
	subscriberID string
	verifiedAt   *time.Time
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewUser creates a [User] with creation and update timestamps set to now.
func NewUser(sequence int, email, name string) *User {
	now := time.Now().UTC()
	return &User{
		sequence:  sequence,
		email:     strings.TrimSpace(email),
		name:      strings.TrimSpace(name),
		createdAt: now,
		updatedAt: now,
	}
}

func (u *User) ID() string              { return u.id }
func (u *User) Sequence() int           { return u.sequence }
func (u *User) Email() string           { return u.email }
func (u *User) Name() string            { return u.name }
func (u *User) FirstName() string       { return u.firstName }
func (u *User) LastName() string        { return u.lastName }
func (u *User) Handle() string          { return u.handle }
func (u *User) LegacyID() string        { return u.legacyID }
func (u *User) SubscriberID() string    { return u.subscriberID }
func (u *User) VerifiedAt() *time.Time  { return u.verifiedAt }
func (u *User) CreatedAt() time.Time    { return u.createdAt }
func (u *User) UpdatedAt() time.Time    { return u.updatedAt }
func (u *User) DeletedAt() *time.Time   { return u.deletedAt }
func (u *User) SetID(id string)         { u.id = id }
func (u *User) SetSequence(seq int)     { u.sequence = seq }
func (u *User) SetEmail(email string)   { u.email = strings.TrimSpace(email) }
func (u *User) SetName(name string)     { u.name = strings.TrimSpace(name) }
func (u *User) SetHandle(handle string) { u.handle = strings.TrimSpace(handle) }
func (u *User) SetLegacyID(id string)   { u.legacyID = strings.TrimSpace(id) }

// SetNames sets the structured first and last name.
func (u *User) SetNames(first, last string) {
	u.firstName = strings.TrimSpace(first)
	u.lastName = strings.TrimSpace(last)
}

// SetSubscriberID records the Sender.net subscriber ID assigned to this user.
func (u *User) SetSubscriberID(id string) { u.subscriberID = strings.TrimSpace(id) }

// SetVerifiedAt sets or clears (nil) the email verification timestamp.
func (u *User) SetVerifiedAt(t *time.Time) { u.verifiedAt = t }

func (u *User) SetCreatedAt(t time.Time)  { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time)  { u.updatedAt = t }
func (u *User) SetDeletedAt(t *time.Time) { u.deletedAt = t }

// IsVerified reports whether the user's email has been verified.
func (u *User) IsVerified() bool { return u.verifiedAt != nil && !u.verifiedAt.IsZero() }

// IsLegacy reports whether the user was imported from the legacy platform.
func (u *User) IsLegacy() bool { return u.legacyID != "" }

// HasSubscriberID reports whether a remote subscriber ID is stored.
func (u *User) HasSubscriberID() bool { return u.subscriberID != "" }

// Validate checks the fields required for persistence and sync.
func (u *User) Validate() error {
	if u.email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	if _, err := mail.ParseAddress(u.email); err != nil {
		return fmt.Errorf("%w: email %q is malformed", ErrInvalidUser, u.email)
	}
	if u.sequence < 0 {
		return fmt.Errorf("%w: sequence must be non-negative", ErrInvalidUser)
	}
	return nil
}

// SubscriberName returns the first/last name pair sent to Sender.net.
//
// A structured first name wins. Otherwise the display name is split on whitespace: the last token is
// the last name and everything before it the first name. A single token has no last name.
func (u *User) SubscriberName() (first, last string) {
	if u.firstName != "" || u.name == "" {
		return u.firstName, u.lastName
	}
	return SplitName(u.name)
}

// SplitName splits a display name into first and last name on its final whitespace-delimited token.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}
