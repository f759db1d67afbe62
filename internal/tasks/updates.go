package tasks

import (
	"fmt"

	"github.com/desertthunder/linkea-sync/internal/models"
)

// ProgressUpdate represents a progress event during a bulk operation.
//
// One update is emitted per user, after the user has been classified.
type ProgressUpdate struct {
	Phase   Phase        // Operation phase
	Step    int          // 1-based position of the user in the input
	Total   int          // Number of users in the input
	Outcome Outcome      // Classification of this user
	User    *models.User // The user just processed
	Message string       // Human-readable message for display
}

// ProgressFunc receives progress updates. It is called synchronously, in input order.
type ProgressFunc func(ProgressUpdate)

// Operation phase enumeration
type Phase int

const (
	SyncUser Phase = iota
	FixUser
)

func (p Phase) String() string {
	switch p {
	case SyncUser:
		return "sync_user"
	case FixUser:
		return "fix_user"
	default:
		return ""
	}
}

// Outcome is the bucket a user lands in during a bulk operation.
type Outcome int

const (
	OutcomeSynced Outcome = iota + 1
	OutcomeExisting
	OutcomeUpdated
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSynced:
		return "synced"
	case OutcomeExisting:
		return "already_exists"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return ""
	}
}

// record adds o to stats.
func (o Outcome) record(stats *models.SyncStats) {
	switch o {
	case OutcomeSynced:
		stats.Synced++
	case OutcomeExisting:
		stats.Synced++
		stats.AlreadyExists++
	case OutcomeUpdated:
		stats.Updated++
	case OutcomeSkipped:
		stats.Skipped++
	case OutcomeFailed:
		stats.Failed++
	}
}

func (o Outcome) message() string {
	switch o {
	case OutcomeSynced:
		return "Created"
	case OutcomeExisting:
		return "Already exists"
	case OutcomeUpdated:
		return "Updated"
	case OutcomeFailed:
		return "Failed"
	default:
		return ""
	}
}

func userUpdate(phase Phase, step, total int, u *models.User, outcome Outcome, reason string) ProgressUpdate {
	if reason == "" {
		reason = outcome.message()
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Outcome: outcome,
		User:    u,
		Message: fmt.Sprintf("[%d/%d] %s: %s", step, total, u.Email(), reason),
	}
}
