package migrations

import (
	"strings"
	"testing"

	"github.com/hms/hms/internal/platform/db"
)

func TestEmbeddedMigrationsLoadInOrder(t *testing.T) {
	migrations, err := db.NewMigrator(nil, Files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 5 {
		t.Fatalf("expected 5 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("expected version %d at position %d, got %d", i+1, i, m.Version)
		}
	}
}

func TestAppointmentSlotIndexExcludesCancelled(t *testing.T) {
	sql, err := Files.ReadFile("002_appointments.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	s := string(sql)
	if !strings.Contains(s, "CREATE UNIQUE INDEX IF NOT EXISTS appointment_active_slot_idx") {
		t.Fatal("expected the active slot unique index")
	}
	if !strings.Contains(s, "WHERE status <> 'cancelled'") {
		t.Error("expected the slot index to ignore cancelled appointments")
	}
}
