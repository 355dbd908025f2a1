package accessory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/c4-bridge/internal/infrastructure/database"
	_ "github.com/nerrad567/c4-bridge/migrations"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "accessories.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRepositorySaveAndList(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	lamp := &Record{UUID: NewUUID(lampContext), Context: lampContext}
	stat := &Record{UUID: NewUUID(statContext), Context: statContext}
	for _, r := range []*Record{lamp, stat} {
		if err := repo.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) error = %v", r.Context.Name, err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	if list[0].Context != lampContext || list[1].Context != statContext {
		t.Errorf("List() = %+v", list)
	}

	got, err := repo.Get(ctx, stat.UUID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Context != statContext || got.CreatedAt.IsZero() {
		t.Errorf("Get() = %+v", got)
	}
}

func TestRepositorySaveUpdatesExisting(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rec := &Record{UUID: NewUUID(lampContext), Context: lampContext}
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	created := rec.CreatedAt

	rec.Context.DriverFileName = "light_v3.c4i"
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := repo.Get(ctx, rec.UUID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Context.DriverFileName != "light_v3.c4i" {
		t.Errorf("driver = %q, want updated", got.Context.DriverFileName)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed from %v to %v", created, got.CreatedAt)
	}

	list, _ := repo.List(ctx)
	if len(list) != 1 {
		t.Errorf("len(List()) = %d, want 1", len(list))
	}
}

func TestRepositoryNotFound(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}

	rec := &Record{UUID: NewUUID(lampContext), Context: lampContext}
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Delete(ctx, rec.UUID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, rec.UUID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}
