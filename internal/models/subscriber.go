package models

import "strings"

// SubscriberStatus is the Sender.net subscriber (and transactional email) status.
type SubscriberStatus string

const (
	StatusActive       SubscriberStatus = "ACTIVE"
	StatusUnsubscribed SubscriberStatus = "UNSUBSCRIBED"
	StatusBounced      SubscriberStatus = "BOUNCED"
	StatusSpamReported SubscriberStatus = "SPAM_REPORTED"
)

// Valid reports whether s is one of the statuses Sender.net accepts.
func (s SubscriberStatus) Valid() bool {
	switch s {
	case StatusActive, StatusUnsubscribed, StatusBounced, StatusSpamReported:
		return true
	}
	return false
}

// Logical group names managed by the sync.
const (
	GroupUsers      = "Linkea Users"
	GroupNewsletter = "Newsletter"
	GroupAnonymous  = "Anonymous"
)

// DefaultGroups returns the fixed set of logical groups in setup order.
func DefaultGroups() []string {
	return []string{GroupUsers, GroupNewsletter, GroupAnonymous}
}

// Subscriber is the subset of a Sender.net subscriber record the sync cares about.
type Subscriber struct {
	ID                       string            `json:"id"`
	Email                    string            `json:"email"`
	FirstName                string            `json:"firstname"`
	LastName                 string            `json:"lastname"`
	Status                   SubscriberStatus  `json:"status"`
	TransactionalEmailStatus SubscriberStatus  `json:"transactional_email_status"`
	Fields                   map[string]string `json:"fields,omitempty"`
	Groups                   []Group           `json:"groups,omitempty"`
}

// Field returns a custom field value, accepting either "name" or the "{$name}" placeholder form.
func (s *Subscriber) Field(name string) string {
	if s == nil || s.Fields == nil {
		return ""
	}
	bare := strings.TrimSuffix(strings.TrimPrefix(name, "{$"), "}")
	if v, ok := s.Fields[FieldKey(bare)]; ok {
		return v
	}
	return s.Fields[bare]
}

// Group is a Sender.net group directory entry.
type Group struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Matches reports whether the group's title equals name, ignoring case.
func (g Group) Matches(name string) bool {
	return strings.EqualFold(strings.TrimSpace(g.Title), strings.TrimSpace(name))
}

// LookupKind enumerates the outcomes of a subscriber lookup.
type LookupKind int

const (
	LookupNotFound LookupKind = iota
	LookupFound
	LookupTransientError
)

func (k LookupKind) String() string {
	switch k {
	case LookupFound:
		return "found"
	case LookupNotFound:
		return "not_found"
	case LookupTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// SubscriberLookup is the result of looking a subscriber up by email or ID.
//
// Exactly one of the states holds: Found with a non-nil Subscriber, NotFound, or TransientError with
// a non-nil Err.
type SubscriberLookup struct {
	Kind       LookupKind
	Subscriber *Subscriber
	Err        error
}

// Found wraps a located subscriber.
func Found(s *Subscriber) SubscriberLookup {
	return SubscriberLookup{Kind: LookupFound, Subscriber: s}
}

// NotFound is the negative lookup result.
func NotFound() SubscriberLookup {
	return SubscriberLookup{Kind: LookupNotFound}
}

// TransientError wraps a lookup that failed for reasons other than absence.
func TransientError(err error) SubscriberLookup {
	return SubscriberLookup{Kind: LookupTransientError, Err: err}
}

func (l SubscriberLookup) IsFound() bool    { return l.Kind == LookupFound && l.Subscriber != nil }
func (l SubscriberLookup) IsNotFound() bool { return l.Kind == LookupNotFound }
