package models

import "fmt"

// SyncStats is the tally of a bulk operation.
//
// AlreadyExists counts creates that converged onto an existing remote record and is included in Synced.
type SyncStats struct {
	Total         int `json:"total"`
	Synced        int `json:"synced"`
	Updated       int `json:"updated"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	AlreadyExists int `json:"already_exists"`
}

// Balanced reports whether every user was classified exactly once.
func (s SyncStats) Balanced() bool {
	return s.Total == s.Synced+s.Updated+s.Skipped+s.Failed
}

func (s SyncStats) String() string {
	return fmt.Sprintf("total=%d synced=%d updated=%d skipped=%d failed=%d already_exists=%d",
		s.Total, s.Synced, s.Updated, s.Skipped, s.Failed, s.AlreadyExists)
}

// SyncPlan is the dry-run classification of a user set against the remote directory.
type SyncPlan struct {
	New      []*User
	Existing []*User
	Skipped  []*User
	// DirectorySize is the number of remote subscribers fetched.
	DirectorySize int
}

// Total returns the number of classified users.
func (p SyncPlan) Total() int { return len(p.New) + len(p.Existing) + len(p.Skipped) }
