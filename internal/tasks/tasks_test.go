package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/linkea-sync/internal/cache"
	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/services"
	"github.com/desertthunder/linkea-sync/internal/shared"
	tu "github.com/desertthunder/linkea-sync/internal/testing"
)

// memoryIDs records subscriber IDs written back by the reconciler.
type memoryIDs struct {
	mu  sync.Mutex
	ids map[string]string
	err error
}

func (m *memoryIDs) SetSubscriberID(_ context.Context, userID, subscriberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ids[userID] = subscriberID
	return nil
}

func (m *memoryIDs) get(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[userID]
}

type fixture struct {
	stub       *tu.SenderStub
	client     *services.SenderClient
	gate       *Gate
	store      *cache.MemoryStore
	groups     *GroupDirectory
	ids        *memoryIDs
	reconciler *Reconciler
	engine     *SyncEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stub := tu.NewSenderStub(t)
	client, err := services.NewSenderClient(context.Background(), services.SenderOpts{
		APIKey:  stub.Token,
		BaseURL: stub.URL(),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSenderClient() error = %v", err)
	}

	gate := NewGate(shared.SenderConfig{
		Enabled:      true,
		APIKey:       stub.Token,
		DisabledEnvs: []string{"local", "testing"},
	}, "production")

	store := cache.NewMemoryStore()
	groups := NewGroupDirectory(client, store, gate, time.Hour, nil)
	ids := &memoryIDs{ids: make(map[string]string)}
	reconciler := NewReconciler(client, groups, gate, ids, nil)

	return &fixture{
		stub:       stub,
		client:     client,
		gate:       gate,
		store:      store,
		groups:     groups,
		ids:        ids,
		reconciler: reconciler,
		engine:     NewSyncEngine(reconciler, nil, nil),
	}
}

// disabled returns a fixture whose gate is closed by the environment check.
func disabledFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.gate = NewGate(shared.SenderConfig{
		Enabled:      true,
		APIKey:       f.stub.Token,
		DisabledEnvs: []string{"local", "testing"},
	}, "testing")
	f.groups = NewGroupDirectory(f.client, f.store, f.gate, time.Hour, nil)
	f.reconciler = NewReconciler(f.client, f.groups, f.gate, f.ids, nil)
	f.engine = NewSyncEngine(f.reconciler, nil, nil)
	return f
}

var verifiedAt = time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)

func newUser(seq int, email, name string, verified bool) *models.User {
	u := tu.NewUser(seq, email, name)
	u.SetCreatedAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	if verified {
		at := verifiedAt
		u.SetVerifiedAt(&at)
	}
	return u
}
