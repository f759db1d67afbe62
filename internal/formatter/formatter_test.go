package formatter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/shared"
	th "github.com/desertthunder/linkea-sync/internal/testing"
)

func exportUsers() []*models.User {
	verified := time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)

	ana := th.NewUser(1, "ana@example.com", "Ana María Lopez")
	ana.SetVerifiedAt(&verified)
	ana.SetHandle("ana")
	ana.SetLegacyID("64f1c0ffee")

	bo := th.NewUser(2, "bo@example.com", "Bo")
	bo.SetNames("Robert", "Smith")

	return []*models.User{ana, bo}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("generated CSV is invalid: %v", err)
	}
	return records
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(exportUsers(), "grp_users", "", "grp_news")
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		want := [][]string{
			ExportHeaders,
			{"ana@example.com", "Ana María", "Lopez", "ACTIVE", "grp_users,grp_news", "verified,legacy,freemium", "2024-05-02 14:30:00", "ana", "yes"},
			{"bo@example.com", "Robert", "Smith", "ACTIVE", "grp_users,grp_news", "pending,freemium", "", "", "no"},
		}
		if diff := cmp.Diff(want, readCSV(t, data)); diff != "" {
			t.Errorf("CSV mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ExportToCSV without users", func(t *testing.T) {
		data, err := ExportToCSV(nil)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		if got := strings.TrimSpace(string(data)); got != strings.Join(ExportHeaders, ",") {
			t.Errorf("expected header only, got %q", got)
		}
	})

	t.Run("ExportFilename", func(t *testing.T) {
		got := ExportFilename(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
		if got != "sendernet_export_2024-01-02_03-04-05.csv" {
			t.Errorf("unexpected filename %q", got)
		}
	})

	t.Run("WriteCSVExport", func(t *testing.T) {
		t.Run("WithDefaultPath", func(t *testing.T) {
			tempDir := t.TempDir()
			originalDir := th.MustGetwd(t)
			th.MustChdir(t, tempDir)
			defer th.MustChdir(t, originalDir)

			path, err := WriteCSVExport(exportUsers(), "")
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			if !strings.HasPrefix(path, "sendernet_export_") || !strings.HasSuffix(path, ".csv") {
				t.Errorf("unexpected default path %q", path)
			}
			th.AssertFileExists(t, path)

			content := th.MustReadFile(t, path)
			if !strings.Contains(content, "bo@example.com,Robert,Smith,ACTIVE") {
				t.Errorf("CSV missing user row, got: %s", content)
			}
		})

		t.Run("WithCustomPath", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "users.csv")

			got, err := WriteCSVExport(exportUsers(), path, "grp_users")
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			if got != path {
				t.Errorf("expected %q, got %q", path, got)
			}
			th.AssertFileExists(t, path)
		})

		t.Run("UnwritablePath", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing", "users.csv")
			if _, err := WriteCSVExport(exportUsers(), path); err == nil {
				t.Error("expected error for missing directory")
			}
		})
	})
}

func TestParseUsersCSV(t *testing.T) {
	t.Run("Parses Known Columns", func(t *testing.T) {
		input := strings.Join([]string{
			"Email, Name, first_name, last_name, handle, legacy_id, verified_at, created_at, plan",
			"ana@example.com,Ana Lopez,,,ana,64f1c0ffee,2024-05-02 14:30:00,2024-05-01T09:00:00Z,pro",
			"bo@example.com,,Robert,Smith,,,,2024-04-01,free",
		}, "\n")

		users, err := ParseUsersCSV(strings.NewReader(input))
		if err != nil {
			t.Fatalf("ParseUsersCSV failed: %v", err)
		}
		if len(users) != 2 {
			t.Fatalf("expected 2 users, got %d", len(users))
		}

		ana := users[0]
		if ana.Sequence() != 1 || ana.Email() != "ana@example.com" || ana.Handle() != "ana" || !ana.IsLegacy() {
			t.Errorf("unexpected first user: %+v", ana)
		}
		if !ana.IsVerified() || !ana.VerifiedAt().Equal(time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)) {
			t.Errorf("unexpected verified_at %v", ana.VerifiedAt())
		}
		if first, last := ana.SubscriberName(); first != "Ana" || last != "Lopez" {
			t.Errorf("expected name split Ana/Lopez, got %s/%s", first, last)
		}

		bo := users[1]
		if bo.Sequence() != 2 || bo.IsVerified() || bo.IsLegacy() {
			t.Errorf("unexpected second user: %+v", bo)
		}
		if first, last := bo.SubscriberName(); first != "Robert" || last != "Smith" {
			t.Errorf("expected Robert/Smith, got %s/%s", first, last)
		}
		if !bo.CreatedAt().Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected created_at %v", bo.CreatedAt())
		}
	})

	t.Run("Skips Blank Emails", func(t *testing.T) {
		users, err := ParseUsersCSV(strings.NewReader("email\n\nana@example.com\n,\n"))
		if err != nil {
			t.Fatalf("ParseUsersCSV failed: %v", err)
		}
		if len(users) != 1 {
			t.Errorf("expected 1 user, got %d", len(users))
		}
	})

	t.Run("Requires Email Column", func(t *testing.T) {
		_, err := ParseUsersCSV(strings.NewReader("name\nAna\n"))
		if !errors.Is(err, ErrMissingColumn) {
			t.Errorf("expected ErrMissingColumn, got %v", err)
		}
	})

	t.Run("Empty File", func(t *testing.T) {
		_, err := ParseUsersCSV(strings.NewReader(""))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Invalid Email", func(t *testing.T) {
		_, err := ParseUsersCSV(strings.NewReader("email\nnot-an-email\n"))
		if !errors.Is(err, models.ErrInvalidUser) {
			t.Errorf("expected ErrInvalidUser, got %v", err)
		}
	})

	t.Run("Invalid Timestamp", func(t *testing.T) {
		_, err := ParseUsersCSV(strings.NewReader("email,verified_at\nana@example.com,yesterday\n"))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected line number in error, got %v", err)
		}
	})

	t.Run("Import Columns Are A Copy", func(t *testing.T) {
		cols := ImportColumns()
		cols[0] = "changed"
		if ImportColumns()[0] != "email" {
			t.Error("ImportColumns exposed its backing array")
		}
	})
}

func TestTables(t *testing.T) {
	t.Run("RenderGroups", func(t *testing.T) {
		var buf bytes.Buffer
		err := RenderGroups(&buf, []GroupRow{
			{Name: models.GroupUsers, ID: "grp_1"},
			{Name: models.GroupNewsletter},
		})
		if err != nil {
			t.Fatalf("RenderGroups failed: %v", err)
		}

		out := buf.String()
		for _, want := range []string{"Linkea Users", "grp_1", "ok", "Newsletter", "missing"} {
			if !strings.Contains(out, want) {
				t.Errorf("table missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("RenderStats", func(t *testing.T) {
		var buf bytes.Buffer
		stats := models.SyncStats{Total: 7, Synced: 3, AlreadyExists: 1, Updated: 2, Skipped: 1, Failed: 1}
		if err := RenderStats(&buf, stats); err != nil {
			t.Fatalf("RenderStats failed: %v", err)
		}

		out := buf.String()
		for _, want := range []string{"Total", "7", "Already existed", "Failed"} {
			if !strings.Contains(out, want) {
				t.Errorf("table missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("RenderPlan", func(t *testing.T) {
		users := exportUsers()
		var buf bytes.Buffer
		plan := models.SyncPlan{New: users[:1], Existing: users[1:]}
		if err := RenderPlan(&buf, plan); err != nil {
			t.Fatalf("RenderPlan failed: %v", err)
		}

		out := buf.String()
		for _, want := range []string{"ana@example.com", "create", "bo@example.com", "update"} {
			if !strings.Contains(out, want) {
				t.Errorf("table missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("RenderUsers", func(t *testing.T) {
		users := exportUsers()
		users[0].SetSubscriberID("sub_9")
		var buf bytes.Buffer
		if err := RenderUsers(&buf, users); err != nil {
			t.Fatalf("RenderUsers failed: %v", err)
		}

		out := buf.String()
		for _, want := range []string{"sub_9", "Robert Smith", "pending,freemium"} {
			if !strings.Contains(out, want) {
				t.Errorf("table missing %q:\n%s", want, out)
			}
		}
	})
}

func TestRenderSubscriber(t *testing.T) {
	sub := &models.Subscriber{
		ID:        "sub_1",
		Email:     "ana@example.com",
		FirstName: "Ana",
		Status:    models.StatusActive,
		Fields:    map[string]string{"{$tags}": "verified,freemium", "{$is_legacy}": "yes"},
		Groups:    []models.Group{{ID: "grp_1", Title: models.GroupUsers}, {ID: "grp_2"}},
	}

	var buf bytes.Buffer
	if err := RenderSubscriber(&buf, sub); err != nil {
		t.Fatalf("RenderSubscriber failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"sub_1", "ana@example.com", "ACTIVE", "Linkea Users (grp_1)", "grp_2", "{$tags}", "verified,freemium"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "{$is_legacy}") > strings.Index(out, "{$tags}") {
		t.Error("custom fields should be sorted by key")
	}
}
