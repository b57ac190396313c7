package testsupport

import (
	"context"
	"testing"

	"sortbin/internal/config"
	"sortbin/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustCreateUser registers a user and fails the test on error.
func MustCreateUser(t testing.TB, store *ledger.Store, name string, id int64) *ledger.User {
	t.Helper()

	user, err := store.Create(context.Background(), name, id)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return user
}
