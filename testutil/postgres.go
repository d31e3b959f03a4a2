package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/avelichka/photobridge/store"
)

// SetupPostgresStore opens a Postgres-backed store and runs migrations.
// It skips the test if the TEST_PG_DSN environment variable is not set.
func SetupPostgresStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	s, err := store.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open postgres store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}
