// package formatter renders users and sync results for operators: the Sender.net import CSV, user import parsing
// and terminal summary tables.
package formatter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/shared"
)

// ErrMissingColumn is returned by [ParseUsersCSV] when the header lacks a required column.
var ErrMissingColumn = errors.New("missing CSV column")

// ExportHeaders are the columns of the manual Sender.net import file.
var ExportHeaders = []string{
	"Email", "First Name", "Last Name", "Status", "Groups", "Tags", "Verified At", "Linkea Handle", "Is Legacy",
}

// ExportToCSV converts users to the Sender.net manual import format.
//
// groupIDs are written comma-joined into every row's Groups column; empty IDs are dropped.
func ExportToCSV(users []*models.User, groupIDs ...string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(ExportHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	groups := make([]string, 0, len(groupIDs))
	for _, id := range groupIDs {
		if id != "" {
			groups = append(groups, id)
		}
	}
	groupCol := strings.Join(groups, ",")

	for _, u := range users {
		first, last := u.SubscriberName()
		verifiedAt := ""
		if u.IsVerified() {
			verifiedAt = u.VerifiedAt().UTC().Format(models.FieldTimeLayout)
		}
		legacy := "no"
		if u.IsLegacy() {
			legacy = "yes"
		}

		record := []string{
			u.Email(),
			first,
			last,
			string(models.StatusActive),
			groupCol,
			models.BuildTags(u).String(),
			verifiedAt,
			u.Handle(),
			legacy,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportFilename returns the default export file name for the given time.
func ExportFilename(now time.Time) string {
	return "sendernet_export_" + now.Format("2006-01-02_15-04-05") + ".csv"
}

// WriteCSVExport writes the import CSV to path, defaulting to [ExportFilename] in the working directory.
func WriteCSVExport(users []*models.User, path string, groupIDs ...string) (string, error) {
	if path == "" {
		path = ExportFilename(time.Now())
	}

	data, err := ExportToCSV(users, groupIDs...)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}
	return path, nil
}

// importColumns are the recognised header names of a user import file. Only email is required.
var importColumns = []string{
	"email", "name", "first_name", "last_name", "handle", "legacy_id", "verified_at", "created_at",
}

// timeLayouts are tried in order when parsing timestamp columns.
var timeLayouts = []string{time.RFC3339, models.FieldTimeLayout, "2006-01-02"}

// ParseUsersCSV reads users from a CSV file with a header row.
//
// Columns are matched by name, case-insensitively and in any order; unknown columns are ignored.
// Rows with a blank email are skipped. Sequences are assigned from 1 in file order, and IDs are left empty
// for the repository to fill.
func ParseUsersCSV(r io.Reader) ([]*models.User, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", shared.ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := index["email"]; !ok {
		return nil, fmt.Errorf("%w: email", ErrMissingColumn)
	}

	var users []*models.User
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		col := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		email := col("email")
		if email == "" {
			continue
		}

		u := models.NewUser(len(users)+1, email, col("name"))
		u.SetNames(col("first_name"), col("last_name"))
		u.SetHandle(col("handle"))
		u.SetLegacyID(col("legacy_id"))

		if v := col("verified_at"); v != "" {
			t, err := parseTime(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: verified_at: %w", line, err)
			}
			u.SetVerifiedAt(&t)
		}
		if v := col("created_at"); v != "" {
			t, err := parseTime(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: created_at: %w", line, err)
			}
			u.SetCreatedAt(t)
		}

		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		users = append(users, u)
	}

	return users, nil
}

// ImportColumns returns the header names [ParseUsersCSV] understands.
func ImportColumns() []string {
	out := make([]string, len(importColumns))
	copy(out, importColumns)
	return out
}

func parseTime(v string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q", shared.ErrInvalidInput, v)
}
