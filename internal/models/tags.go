package models

import (
	"slices"
	"strings"
	"time"
)

// Tag is a subscriber label encoded into Sender.net custom fields.
type Tag string

const (
	TagPending  Tag = "pending"
	TagVerified Tag = "verified"
	TagPremium  Tag = "premium"
	TagLegacy   Tag = "legacy"
	TagFreemium Tag = "freemium"
)

// Custom field names written on every reconciliation.
const (
	FieldTags         = "tags"
	FieldUserState    = "user_state"
	FieldHandle       = "linkea_handle"
	FieldRegisteredAt = "registered_at"
	FieldVerifiedAt   = "verified_at"
	FieldIsLegacy     = "is_legacy"
)

// FieldTimeLayout is the timestamp layout used in custom fields.
const FieldTimeLayout = "2006-01-02 15:04:05"

// FieldKey returns the Sender.net placeholder key for a custom field name.
func FieldKey(name string) string {
	return "{$" + name + "}"
}

// TagSet is an ordered set of tags. Order is insertion order and duplicates are dropped.
type TagSet []Tag

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool { return slices.Contains(s, t) }

// With returns a copy of s with t appended when absent.
func (s TagSet) With(t Tag) TagSet {
	if s.Has(t) {
		return s
	}
	out := make(TagSet, len(s), len(s)+1)
	copy(out, s)
	return append(out, t)
}

// Strings returns the tag names in order.
func (s TagSet) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = string(t)
	}
	return out
}

func (s TagSet) String() string { return strings.Join(s.Strings(), ",") }

// TagDelta describes tags to add and tags to remove.
type TagDelta struct {
	Add    TagSet
	Remove TagSet
}

// Active returns Add minus Remove, preserving the order of Add.
func (d TagDelta) Active() TagSet {
	var out TagSet
	for _, t := range d.Add {
		if !d.Remove.Has(t) {
			out = out.With(t)
		}
	}
	return out
}

// IsEmpty reports whether the delta carries no tags at all.
func (d TagDelta) IsEmpty() bool { return len(d.Add) == 0 && len(d.Remove) == 0 }

// UserState returns "verified" or "pending" according to the active tags, or "" when neither is present.
func (d TagDelta) UserState() string {
	active := d.Active()
	switch {
	case active.Has(TagVerified):
		return string(TagVerified)
	case active.Has(TagPending):
		return string(TagPending)
	default:
		return ""
	}
}

// BuildTags derives the tag set from the user's current state.
//
// Exactly one of verified/pending is present. Legacy users get legacy. Freemium is always present.
func BuildTags(u *User) TagSet {
	var tags TagSet
	if u.IsVerified() {
		tags = tags.With(TagVerified)
	} else {
		tags = tags.With(TagPending)
	}
	if u.IsLegacy() {
		tags = tags.With(TagLegacy)
	}
	return tags.With(TagFreemium)
}

// DeltaFor wraps [BuildTags] in a delta that also removes the opposite verification state.
func DeltaFor(u *User) TagDelta {
	d := TagDelta{Add: BuildTags(u)}
	if u.IsVerified() {
		d.Remove = TagSet{TagPending}
	} else {
		d.Remove = TagSet{TagVerified}
	}
	return d
}

// SubscriberFields builds the custom fields for u from delta. now is used when the user has no creation time.
//
// Tag fields are written only when the active set is non-empty.
func SubscriberFields(u *User, delta TagDelta, now time.Time) map[string]string {
	fields := make(map[string]string)

	if active := delta.Active(); len(active) > 0 {
		fields[FieldKey(FieldTags)] = active.String()
		if state := delta.UserState(); state != "" {
			fields[FieldKey(FieldUserState)] = state
		}
	}

	if u.Handle() != "" {
		fields[FieldKey(FieldHandle)] = u.Handle()
	}

	registered := u.CreatedAt()
	if registered.IsZero() {
		registered = now
	}
	fields[FieldKey(FieldRegisteredAt)] = registered.UTC().Format(FieldTimeLayout)

	if u.IsVerified() {
		fields[FieldKey(FieldVerifiedAt)] = u.VerifiedAt().UTC().Format(FieldTimeLayout)
	}

	if u.IsLegacy() {
		fields[FieldKey(FieldIsLegacy)] = "yes"
	}

	return fields
}
