package store_test

import (
	"context"
	"testing"

	"github.com/avelichka/photobridge/testutil"
)

// TestPostgresStoreRoundTrip exercises the Postgres backend against a real
// database. Skipped unless TEST_PG_DSN is set.
func TestPostgresStoreRoundTrip(t *testing.T) {
	s := testutil.SetupPostgresStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if err := s.MarkProcessed(ctx, -100, 42); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := s.MarkProcessed(ctx, -100, 42); err != nil {
		t.Fatalf("duplicate MarkProcessed: %v", err)
	}
	done, err := s.IsProcessed(ctx, -100, 42)
	if err != nil || !done {
		t.Fatalf("IsProcessed = (%v, %v), want true", done, err)
	}

	if err := s.SetAlbumID(ctx, "pg-roundtrip", "album-1"); err != nil {
		t.Fatalf("SetAlbumID: %v", err)
	}
	if err := s.SetAlbumID(ctx, "pg-roundtrip", "album-2"); err != nil {
		t.Fatalf("SetAlbumID overwrite: %v", err)
	}
	id, err := s.GetAlbumID(ctx, "pg-roundtrip")
	if err != nil || id != "album-2" {
		t.Fatalf("GetAlbumID = (%q, %v), want album-2", id, err)
	}
	if err := s.DeleteAlbumCache(ctx, "pg-roundtrip"); err != nil {
		t.Fatalf("DeleteAlbumCache: %v", err)
	}

	if err := s.SetChatTitle(ctx, -100, "pg-title"); err != nil {
		t.Fatalf("SetChatTitle: %v", err)
	}
	title, err := s.GetChatTitle(ctx, -100)
	if err != nil || title != "pg-title" {
		t.Fatalf("GetChatTitle = (%q, %v), want pg-title", title, err)
	}
}
