package migrate

import (
	"context"
	"testing"

	"attune/internal/db"
)

func TestApplyIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	if v, err := Version(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh version = %d, %v", v, err)
	}
	applied, err := Apply(ctx, conn)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applied) == 0 || applied[0].Version != 1 {
		t.Fatalf("unexpected applied steps: %+v", applied)
	}
	again, err := Apply(ctx, conn)
	if err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing to apply, got %d", len(again))
	}
	v, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != applied[len(applied)-1].Version {
		t.Fatalf("version = %d", v)
	}
	var users int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		t.Fatalf("users table: %v", err)
	}
}
