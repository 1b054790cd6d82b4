package store

import (
	"context"
	"testing"

	"github.com/KhaoulaIchou/gestion-stocks/internal/db"
)

func TestAppendAndListMachineHistory(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m, _ := CreateMachine(ctx, database, "Unité centrale", "HP", "SN-1", "INV-1")

	e1, err := AppendHistory(ctx, database, m.ID, "", "TPI Safi – Greffe")
	if err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if e1.From != "" {
		t.Errorf("expected empty from label, got %q", e1.From)
	}

	AppendHistory(ctx, database, m.ID, "TPI Safi – Greffe", "Réparation")

	entries, err := ListMachineHistory(ctx, database, m.ID)
	if err != nil {
		t.Fatalf("ListMachineHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Oldest first; same-timestamp entries keep insertion order.
	if entries[0].To != "TPI Safi – Greffe" || entries[1].To != "Réparation" {
		t.Errorf("expected ascending order, got %q then %q", entries[0].To, entries[1].To)
	}
}

func TestListAllHistoryJoinsMachine(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m, _ := CreateMachine(ctx, database, "Imprimante", "LaserJet", "SN-1", "INV-1")
	AppendHistory(ctx, database, m.ID, "", "TPI Safi – Greffe")
	AppendHistory(ctx, database, m.ID, "TPI Safi – Greffe", "Réparation")

	entries, err := ListAllHistory(ctx, database)
	if err != nil {
		t.Fatalf("ListAllHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].To != "Réparation" {
		t.Errorf("expected newest entry first, got %q", entries[0].To)
	}
	if entries[0].MachineReference != "LaserJet" || entries[0].MachineType != "Imprimante" {
		t.Errorf("expected machine fields joined, got %+v", entries[0])
	}
}
