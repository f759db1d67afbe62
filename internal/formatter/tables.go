package formatter

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/desertthunder/linkea-sync/internal/models"
)

// GroupRow is one line of the group setup table.
type GroupRow struct {
	Name string
	ID   string
}

// RenderGroups writes the name/ID/status table printed by group setup.
func RenderGroups(w io.Writer, rows []GroupRow) error {
	table := tablewriter.NewWriter(w)
	table.Header("Group", "ID", "Status")
	for _, r := range rows {
		status := "ok"
		id := r.ID
		if id == "" {
			status = "missing"
			id = "-"
		}
		if err := table.Append([]string{r.Name, id, status}); err != nil {
			return fmt.Errorf("failed to append group row: %w", err)
		}
	}
	return table.Render()
}

// RenderStats writes the tally of a sync run.
func RenderStats(w io.Writer, stats models.SyncStats) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Count")
	rows := [][]string{
		{"Total", strconv.Itoa(stats.Total)},
		{"Synced", strconv.Itoa(stats.Synced)},
		{"Already existed", strconv.Itoa(stats.AlreadyExists)},
		{"Updated", strconv.Itoa(stats.Updated)},
		{"Skipped", strconv.Itoa(stats.Skipped)},
		{"Failed", strconv.Itoa(stats.Failed)},
	}
	for _, r := range rows {
		if err := table.Append(r); err != nil {
			return fmt.Errorf("failed to append stats row: %w", err)
		}
	}
	return table.Render()
}

// RenderPlan writes a dry-run classification with one row per user.
func RenderPlan(w io.Writer, plan models.SyncPlan) error {
	table := tablewriter.NewWriter(w)
	table.Header("Email", "Action", "Tags")

	add := func(users []*models.User, action string) error {
		for _, u := range users {
			if err := table.Append([]string{u.Email(), action, models.BuildTags(u).String()}); err != nil {
				return fmt.Errorf("failed to append plan row: %w", err)
			}
		}
		return nil
	}
	if err := add(plan.New, "create"); err != nil {
		return err
	}
	if err := add(plan.Existing, "update"); err != nil {
		return err
	}
	if err := add(plan.Skipped, "skip"); err != nil {
		return err
	}
	return table.Render()
}

// RenderUsers writes a listing of local users.
func RenderUsers(w io.Writer, users []*models.User) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Email", "Name", "Tags", "Subscriber ID")
	for _, u := range users {
		first, last := u.SubscriberName()
		name := first
		if last != "" {
			name += " " + last
		}
		sub := u.SubscriberID()
		if sub == "" {
			sub = "-"
		}
		row := []string{strconv.Itoa(u.Sequence()), u.Email(), name, models.BuildTags(u).String(), sub}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append user row: %w", err)
		}
	}
	return table.Render()
}

// RenderSubscriber writes a remote subscriber as field/value rows. Custom fields are listed in key order.
func RenderSubscriber(w io.Writer, sub *models.Subscriber) error {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")

	groups := make([]string, 0, len(sub.Groups))
	for _, g := range sub.Groups {
		if g.Title != "" {
			groups = append(groups, g.Title+" ("+g.ID+")")
		} else {
			groups = append(groups, g.ID)
		}
	}

	rows := [][]string{
		{"ID", sub.ID},
		{"Email", sub.Email},
		{"First Name", sub.FirstName},
		{"Last Name", sub.LastName},
		{"Status", string(sub.Status)},
		{"Transactional", string(sub.TransactionalEmailStatus)},
		{"Groups", strings.Join(groups, ", ")},
	}
	keys := make([]string, 0, len(sub.Fields))
	for k := range sub.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		rows = append(rows, []string{k, sub.Fields[k]})
	}

	for _, r := range rows {
		if err := table.Append(r); err != nil {
			return fmt.Errorf("failed to append subscriber row: %w", err)
		}
	}
	return table.Render()
}
