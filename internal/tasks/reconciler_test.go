package tasks

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/desertthunder/linkea-sync/internal/models"
)

func TestReconcilerCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an active subscriber in the users group", func(t *testing.T) {
		f := newFixture(t)
		usersGroup := f.stub.AddGroup(models.GroupUsers)
		u := newUser(1, "ana@example.com", "Ana Lopez", false)
		u.SetHandle("ana")

		sub := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{})
		if sub == nil {
			t.Fatal("CreateSubscriber() returned nil")
		}

		remote, ok := f.stub.Subscriber("ana@example.com")
		if !ok {
			t.Fatal("subscriber not created remotely")
		}
		if remote.Status != "ACTIVE" || !remote.TriggerAutomation {
			t.Errorf("status=%q trigger=%v", remote.Status, remote.TriggerAutomation)
		}
		if remote.Firstname != "Ana" || remote.Lastname != "Lopez" {
			t.Errorf("names = %q %q", remote.Firstname, remote.Lastname)
		}
		if !slices.Contains(remote.Groups, usersGroup) {
			t.Errorf("groups = %v, want %s", remote.Groups, usersGroup)
		}

		want := map[string]string{
			"{$tags}":          "pending,freemium",
			"{$user_state}":    "pending",
			"{$linkea_handle}": "ana",
			"{$registered_at}": "2024-05-01 09:00:00",
		}
		if diff := cmp.Diff(want, remote.Fields); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}

		if u.SubscriberID() != sub.ID || f.ids.get(u.ID()) != sub.ID {
			t.Errorf("subscriber id not stored: user=%q store=%q want=%q", u.SubscriberID(), f.ids.get(u.ID()), sub.ID)
		}
	})

	t.Run("adopts an existing subscriber without creating", func(t *testing.T) {
		f := newFixture(t)
		existing := f.stub.AddSubscriber("Bob@Example.com")
		u := newUser(2, "bob@example.com", "Bob", true)

		sub := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{})
		if sub == nil || sub.ID != existing {
			t.Fatalf("CreateSubscriber() = %+v, want id %s", sub, existing)
		}
		if n := f.stub.Calls("POST /subscribers"); n != 0 {
			t.Errorf("POST /subscribers called %d times, want 0", n)
		}
		if f.ids.get(u.ID()) != existing {
			t.Errorf("stored id = %q, want %q", f.ids.get(u.ID()), existing)
		}
	})

	t.Run("merges extra groups without duplicates", func(t *testing.T) {
		f := newFixture(t)
		usersGroup := f.stub.AddGroup(models.GroupUsers)
		news := f.stub.AddGroup(models.GroupNewsletter)
		u := newUser(3, "carla@example.com", "Carla", true)

		f.reconciler.CreateSubscriber(ctx, u, CreateOpts{ExtraGroupIDs: []string{news, usersGroup, ""}})

		remote, _ := f.stub.Subscriber("carla@example.com")
		if diff := cmp.Diff([]string{usersGroup, news}, remote.Groups); diff != "" {
			t.Errorf("groups mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("skip automation", func(t *testing.T) {
		f := newFixture(t)
		u := newUser(4, "dan@example.com", "Dan", true)

		f.reconciler.CreateSubscriber(ctx, u, CreateOpts{SkipAutomation: true})

		remote, _ := f.stub.Subscriber("dan@example.com")
		if remote.TriggerAutomation {
			t.Error("automation should not be triggered")
		}
	})

	t.Run("splits multi word display names on the last token", func(t *testing.T) {
		f := newFixture(t)
		u := newUser(5, "maria@example.com", "María José de la Cruz", true)

		f.reconciler.CreateSubscriber(ctx, u, CreateOpts{})

		remote, _ := f.stub.Subscriber("maria@example.com")
		if remote.Firstname != "María José de la" || remote.Lastname != "Cruz" {
			t.Errorf("names = %q %q", remote.Firstname, remote.Lastname)
		}
	})

	t.Run("group directory outage still creates the subscriber", func(t *testing.T) {
		f := newFixture(t)
		f.stub.FailRoute("GET /groups", http.StatusServiceUnavailable, 0, nil)
		u := newUser(6, "eve@example.com", "Eve", false)

		if sub := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{}); sub == nil {
			t.Fatal("CreateSubscriber() returned nil")
		}
		remote, _ := f.stub.Subscriber("eve@example.com")
		if len(remote.Groups) != 0 {
			t.Errorf("groups = %v, want none", remote.Groups)
		}
	})

	t.Run("transient lookup error still attempts create", func(t *testing.T) {
		f := newFixture(t)
		f.stub.FailRoute("GET /subscribers/{id}", http.StatusInternalServerError, 1, nil)
		u := newUser(7, "finn@example.com", "Finn", true)

		if sub := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{}); sub == nil {
			t.Fatal("CreateSubscriber() returned nil")
		}
		if n := f.stub.Calls("POST /subscribers"); n != 1 {
			t.Errorf("POST /subscribers called %d times, want 1", n)
		}
	})

	t.Run("remote failure returns nil and stores nothing", func(t *testing.T) {
		f := newFixture(t)
		f.stub.FailEmail("gus@example.com", http.StatusInternalServerError)
		u := newUser(8, "gus@example.com", "Gus", true)

		if sub := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{}); sub != nil {
			t.Errorf("CreateSubscriber() = %+v, want nil", sub)
		}
		if u.HasSubscriberID() || f.ids.get(u.ID()) != "" {
			t.Error("no subscriber id should be stored")
		}
	})

	t.Run("response without id is a failure", func(t *testing.T) {
		f := newFixture(t)
		f.stub.OmitID("POST /subscribers")
		u := newUser(9, "hana@example.com", "Hana", true)

		if sub := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{}); sub != nil {
			t.Errorf("CreateSubscriber() = %+v, want nil", sub)
		}
		if u.HasSubscriberID() {
			t.Error("no subscriber id should be stored")
		}
	})

	t.Run("id store failure does not fail the create", func(t *testing.T) {
		f := newFixture(t)
		f.ids.err = errors.New("disk full")
		u := newUser(10, "ivan@example.com", "Ivan", true)

		sub := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{})
		if sub == nil || u.SubscriberID() != sub.ID {
			t.Errorf("CreateSubscriber() = %+v, user id %q", sub, u.SubscriberID())
		}
	})
}

func TestReconcilerUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("forces both statuses to ACTIVE", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("jo@example.com")
		f.stub.SetStatus(id, "UNSUBSCRIBED", "BOUNCED")
		u := newUser(1, "jo@example.com", "Jo", true)

		if sub := f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{}); sub == nil {
			t.Fatal("UpdateSubscriber() returned nil")
		}

		remote, _ := f.stub.Subscriber(id)
		if remote.Status != "ACTIVE" || remote.TransactionalEmailStatus != "ACTIVE" {
			t.Errorf("status=%q transactional=%q", remote.Status, remote.TransactionalEmailStatus)
		}
	})

	t.Run("falls back to email and stores the id", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("kai@example.com")
		u := newUser(2, "kai@example.com", "Kai Sato", false)

		f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{Tags: models.DeltaFor(u)})

		if u.SubscriberID() != id || f.ids.get(u.ID()) != id {
			t.Errorf("stored id = %q/%q, want %q", u.SubscriberID(), f.ids.get(u.ID()), id)
		}
		remote, _ := f.stub.Subscriber(id)
		if remote.Firstname != "Kai" || remote.Lastname != "Sato" {
			t.Errorf("names = %q %q", remote.Firstname, remote.Lastname)
		}
		if remote.Fields["{$tags}"] != "pending,freemium" {
			t.Errorf("tags field = %q", remote.Fields["{$tags}"])
		}
	})

	t.Run("renaming to a single name clears the last name", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("ana@example.com")
		u := newUser(8, "ana@example.com", "Ana Lopez", true)

		f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{})
		u.SetName("Ana")
		if sub := f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{}); sub == nil {
			t.Fatal("UpdateSubscriber() returned nil")
		}

		remote, _ := f.stub.Subscriber(id)
		if remote.Firstname != "Ana" || remote.Lastname != "" {
			t.Errorf("names = %q %q, want \"Ana\" \"\"", remote.Firstname, remote.Lastname)
		}
	})

	t.Run("addresses by stored id", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("old@example.com")
		u := newUser(3, "new@example.com", "Lu", true)
		u.SetSubscriberID(id)

		if sub := f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{}); sub == nil || sub.ID != id {
			t.Errorf("UpdateSubscriber() = %+v, want id %s", sub, id)
		}
	})

	t.Run("extra fields merge under tag fields", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("mo@example.com")
		u := newUser(4, "mo@example.com", "Mo", true)

		f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{
			Fields: map[string]string{"{$plan}": "gold", "{$tags}": "stale"},
			Tags:   models.DeltaFor(u),
		})

		remote, _ := f.stub.Subscriber(id)
		if remote.Fields["{$plan}"] != "gold" || remote.Fields["{$tags}"] != "verified,freemium" {
			t.Errorf("fields = %v", remote.Fields)
		}
	})

	t.Run("without tags no tag fields are written", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("ned@example.com")
		u := newUser(5, "ned@example.com", "Ned", true)

		f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{})

		remote, _ := f.stub.Subscriber(id)
		if len(remote.Fields) != 0 {
			t.Errorf("fields = %v, want none", remote.Fields)
		}
	})

	t.Run("missing subscriber returns nil", func(t *testing.T) {
		f := newFixture(t)
		u := newUser(6, "nobody@example.com", "Nobody", true)

		if sub := f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{}); sub != nil {
			t.Errorf("UpdateSubscriber() = %+v, want nil", sub)
		}
	})

	t.Run("response without id is a failure", func(t *testing.T) {
		f := newFixture(t)
		f.stub.AddSubscriber("omar@example.com")
		f.stub.OmitID("PATCH /subscribers/{id}")
		u := newUser(7, "omar@example.com", "Omar", true)

		if sub := f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{}); sub != nil {
			t.Errorf("UpdateSubscriber() = %+v, want nil", sub)
		}
	})
}

func TestReconcilerIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stub.AddGroup(models.GroupUsers)
	u := newUser(1, "pia@example.com", "Pia Nilsson", true)
	u.SetLegacyID("64b7f0c2a1")

	if sub := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{}); sub == nil {
		t.Fatal("CreateSubscriber() returned nil")
	}

	f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{Tags: models.DeltaFor(u)})
	once, _ := f.stub.Subscriber(u.SubscriberID())

	f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{Tags: models.DeltaFor(u)})
	twice, _ := f.stub.Subscriber(u.SubscriberID())

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second update drifted (-once +twice):\n%s", diff)
	}
	if n := f.stub.SubscriberCount(); n != 1 {
		t.Errorf("remote has %d subscribers, want 1", n)
	}
	if again := f.reconciler.CreateSubscriber(ctx, u, CreateOpts{}); again == nil || again.ID != u.SubscriberID() {
		t.Errorf("repeated create = %+v", again)
	}
	if n := f.stub.Calls("POST /subscribers"); n != 1 {
		t.Errorf("POST /subscribers called %d times, want 1", n)
	}
	if twice.Fields["{$tags}"] != "verified,legacy,freemium" || twice.Fields["{$is_legacy}"] != "yes" {
		t.Errorf("fields = %v", twice.Fields)
	}
}

func TestReconcilerMarkVerified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.stub.AddSubscriber("quinn@example.com")
	u := newUser(1, "quinn@example.com", "Quinn", false)

	f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{Tags: models.DeltaFor(u)})
	before, _ := f.stub.Subscriber(id)
	if before.Fields["{$user_state}"] != "pending" {
		t.Fatalf("user_state = %q before verification", before.Fields["{$user_state}"])
	}

	at := verifiedAt
	u.SetVerifiedAt(&at)
	if !f.reconciler.MarkVerified(ctx, u) {
		t.Fatal("MarkVerified() = false")
	}

	after, _ := f.stub.Subscriber(id)
	if after.Fields["{$tags}"] != "verified,freemium" || after.Fields["{$user_state}"] != "verified" {
		t.Errorf("fields = %v", after.Fields)
	}
	if after.Fields["{$verified_at}"] != "2024-05-02 14:30:00" {
		t.Errorf("verified_at = %q", after.Fields["{$verified_at}"])
	}
	if !after.TriggerAutomation {
		t.Error("MarkVerified should trigger automation")
	}
}

func TestReconcilerMarkVerifiedUnverified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.stub.AddSubscriber("remy@example.com")
	u := newUser(2, "remy@example.com", "Remy", false)

	if !f.reconciler.MarkVerified(ctx, u) {
		t.Fatal("MarkVerified() = false")
	}

	remote, _ := f.stub.Subscriber(id)
	if remote.Fields["{$tags}"] != "pending,freemium" || remote.Fields["{$user_state}"] != "pending" {
		t.Errorf("fields = %v", remote.Fields)
	}
	if _, ok := remote.Fields["{$verified_at}"]; ok {
		t.Errorf("verified_at written for an unverified user: %v", remote.Fields)
	}
}

func TestReconcilerGroupsAndDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("AddToGroups", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("rae@example.com")
		news := f.stub.AddGroup(models.GroupNewsletter)
		u := newUser(1, "rae@example.com", "Rae", true)

		if f.reconciler.AddToGroups(ctx, u, nil) {
			t.Error("AddToGroups() with no groups should be false")
		}
		if f.stub.TotalCalls() != 0 {
			t.Error("empty group list should not call the API")
		}

		if !f.reconciler.AddToGroups(ctx, u, []string{news}) {
			t.Fatal("AddToGroups() = false")
		}
		remote, _ := f.stub.Subscriber(id)
		if !slices.Contains(remote.Groups, news) {
			t.Errorf("groups = %v", remote.Groups)
		}
	})

	t.Run("DeleteSubscriber clears the stored id", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("sam@example.com")
		u := newUser(2, "sam@example.com", "Sam", true)
		u.SetSubscriberID(id)

		if !f.reconciler.DeleteSubscriber(ctx, u) {
			t.Fatal("DeleteSubscriber() = false")
		}
		if _, ok := f.stub.Subscriber(id); ok {
			t.Error("subscriber still present remotely")
		}
		if u.HasSubscriberID() {
			t.Error("subscriber id should be cleared")
		}
	})

	t.Run("DeleteSubscriber failure", func(t *testing.T) {
		f := newFixture(t)
		f.stub.FailRoute("DELETE /subscribers", http.StatusInternalServerError, 0, nil)
		u := newUser(3, "tom@example.com", "Tom", true)

		if f.reconciler.DeleteSubscriber(ctx, u) {
			t.Error("DeleteSubscriber() = true on failure")
		}
	})

	t.Run("Lookup", func(t *testing.T) {
		f := newFixture(t)
		id := f.stub.AddSubscriber("uma@example.com")

		if got := f.reconciler.Lookup(ctx, "uma@example.com"); !got.IsFound() || got.Subscriber.ID != id {
			t.Errorf("Lookup() = %+v", got)
		}
		if got := f.reconciler.Lookup(ctx, "missing@example.com"); !got.IsNotFound() {
			t.Errorf("Lookup() = %+v, want not found", got)
		}
	})
}

func TestReconcilerDisabled(t *testing.T) {
	ctx := context.Background()
	f := disabledFixture(t)
	f.stub.AddSubscriber("vera@example.com")
	u := newUser(1, "vera@example.com", "Vera", true)

	if f.reconciler.CreateSubscriber(ctx, u, CreateOpts{}) != nil {
		t.Error("CreateSubscriber() should be nil")
	}
	if f.reconciler.UpdateSubscriber(ctx, u, UpdateOpts{Tags: models.DeltaFor(u)}) != nil {
		t.Error("UpdateSubscriber() should be nil")
	}
	if f.reconciler.MarkVerified(ctx, u) {
		t.Error("MarkVerified() should be false")
	}
	if f.reconciler.AddToGroups(ctx, u, []string{"g"}) {
		t.Error("AddToGroups() should be false")
	}
	if f.reconciler.DeleteSubscriber(ctx, u) {
		t.Error("DeleteSubscriber() should be false")
	}
	if !f.reconciler.Lookup(ctx, u.Email()).IsNotFound() {
		t.Error("Lookup() should be not found")
	}
	if n := f.stub.TotalCalls(); n != 0 {
		t.Errorf("made %d remote calls, want 0", n)
	}
}
