package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/KhaoulaIchou/gestion-stocks/internal/db"
	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
	"github.com/KhaoulaIchou/gestion-stocks/internal/store"
)

const testDestination = "TPI Safi – Greffe"

func createTestMachine(t *testing.T, database *sql.DB, serial, inventory string) *model.Machine {
	t.Helper()
	m, err := CreateMachine(context.Background(), database, "unité centrale", "REF-"+serial, serial, inventory)
	if err != nil {
		t.Fatalf("CreateMachine: %v", err)
	}
	return m
}

func historyCount(t *testing.T, database *sql.DB, machineID int64) int {
	t.Helper()
	entries, err := store.ListMachineHistory(context.Background(), database, machineID)
	if err != nil {
		t.Fatalf("ListMachineHistory: %v", err)
	}
	return len(entries)
}

func lastHistoryTo(t *testing.T, database *sql.DB, machineID int64) string {
	t.Helper()
	entries, err := store.ListMachineHistory(context.Background(), database, machineID)
	if err != nil {
		t.Fatalf("ListMachineHistory: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no history entries")
	}
	return entries[len(entries)-1].To
}

func TestCreateMachineStartsInStock(t *testing.T) {
	database := db.NewTestDB(t)

	m := createTestMachine(t, database, "S1", "I1")
	if m.Status != model.StatusStocked {
		t.Errorf("expected status %q, got %q", model.StatusStocked, m.Status)
	}
	if m.DestinationID != nil {
		t.Error("new machine should have no destination")
	}
	if n := historyCount(t, database, m.ID); n != 0 {
		t.Errorf("new machine should have no history, got %d entries", n)
	}
}

func TestCreateMachineDuplicateNumbers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestMachine(t, database, "S1", "I1")

	// Uniqueness is case- and whitespace-insensitive.
	if _, err := CreateMachine(ctx, database, "écran", "R2", "  s1 ", "I2"); !errors.Is(err, ErrSerialTaken) {
		t.Errorf("expected ErrSerialTaken, got %v", err)
	}
	if _, err := CreateMachine(ctx, database, "écran", "R2", "S2", "i1  "); !errors.Is(err, ErrInventoryTaken) {
		t.Errorf("expected ErrInventoryTaken, got %v", err)
	}
}

func TestAssignAutoCreatesDestination(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	assigned, err := AssignToName(ctx, database, m.ID, testDestination)
	if err != nil {
		t.Fatalf("AssignToName: %v", err)
	}

	if assigned.Status != model.StatusAssigned {
		t.Errorf("expected status %q, got %q", model.StatusAssigned, assigned.Status)
	}
	if assigned.DestinationName != testDestination {
		t.Errorf("expected destination %q, got %q", testDestination, assigned.DestinationName)
	}

	entries, _ := store.ListMachineHistory(ctx, database, m.ID)
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	if entries[0].From != LabelStock || entries[0].To != testDestination {
		t.Errorf("expected {Stock → %s}, got {%s → %s}", testDestination, entries[0].From, entries[0].To)
	}

	// The destination row must exist now.
	d, _ := store.GetDestinationByName(ctx, database, testDestination)
	if d == nil {
		t.Fatal("destination was not auto-created")
	}
}

func TestAssignByIDRecordsPreviousDestination(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	first, _ := store.CreateDestination(ctx, database, testDestination)
	second, _ := store.CreateDestination(ctx, database, "Cour d'appel de Safi - Parquet")

	if _, err := Assign(ctx, database, m.ID, first.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := Assign(ctx, database, m.ID, second.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	entries, _ := store.ListMachineHistory(ctx, database, m.ID)
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[1].From != testDestination || entries[1].To != second.Name {
		t.Errorf("expected {%s → %s}, got {%s → %s}", testDestination, second.Name, entries[1].From, entries[1].To)
	}
}

func TestAssignNotFound(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := Assign(ctx, database, 999, 1); !errors.Is(err, ErrMachineNotFound) {
		t.Errorf("expected ErrMachineNotFound, got %v", err)
	}

	m := createTestMachine(t, database, "S1", "I1")
	if _, err := Assign(ctx, database, m.ID, 999); !errors.Is(err, ErrDestinationNotFound) {
		t.Errorf("expected ErrDestinationNotFound, got %v", err)
	}
}

func TestRepairRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	if _, err := AssignToName(ctx, database, m.ID, testDestination); err != nil {
		t.Fatalf("AssignToName: %v", err)
	}

	repairing, err := EnterRepair(ctx, database, m.ID)
	if err != nil {
		t.Fatalf("EnterRepair: %v", err)
	}
	if repairing.Status != model.StatusRepairing {
		t.Errorf("expected status %q, got %q", model.StatusRepairing, repairing.Status)
	}
	if repairing.DestinationID != nil {
		t.Error("repairing machine should have its destination cleared")
	}
	if got := lastHistoryTo(t, database, m.ID); got != LabelRepair {
		t.Errorf("expected last history entry %q, got %q", LabelRepair, got)
	}

	// Repeating the call must not duplicate the ledger entry.
	before := historyCount(t, database, m.ID)
	if _, err := EnterRepair(ctx, database, m.ID); err != nil {
		t.Fatalf("EnterRepair (repeat): %v", err)
	}
	if after := historyCount(t, database, m.ID); after != before {
		t.Errorf("repeated EnterRepair appended history: %d -> %d", before, after)
	}

	finished, err := FinishRepair(ctx, database, m.ID)
	if err != nil {
		t.Fatalf("FinishRepair: %v", err)
	}
	if finished.Status != model.StatusAssigned {
		t.Errorf("expected status %q, got %q", model.StatusAssigned, finished.Status)
	}
	if finished.DestinationName != testDestination {
		t.Errorf("expected machine returned to %q, got %q", testDestination, finished.DestinationName)
	}

	entries, _ := store.ListMachineHistory(ctx, database, m.ID)
	last := entries[len(entries)-1]
	if last.From != LabelRepair || last.To != testDestination {
		t.Errorf("expected {%s → %s}, got {%s → %s}", LabelRepair, testDestination, last.From, last.To)
	}
}

func TestFinishRepairRequiresRepairing(t *testing.T) {
	database := db.NewTestDB(t)

	m := createTestMachine(t, database, "S1", "I1")
	if _, err := FinishRepair(context.Background(), database, m.ID); !errors.Is(err, ErrNotRepairing) {
		t.Errorf("expected ErrNotRepairing, got %v", err)
	}
}

func TestFinishRepairUndeterminableOrigin(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	// Straight from stock to repair: no meaningful destination ever recorded.
	m := createTestMachine(t, database, "S1", "I1")
	if _, err := EnterRepair(ctx, database, m.ID); err != nil {
		t.Fatalf("EnterRepair: %v", err)
	}

	before := historyCount(t, database, m.ID)
	_, err := FinishRepair(ctx, database, m.ID)
	if !errors.Is(err, ErrOriginUndeterminable) {
		t.Fatalf("expected ErrOriginUndeterminable, got %v", err)
	}

	// The failed transition must leave no partial mutation behind.
	after, _ := store.GetMachine(ctx, database, m.ID)
	if after.Status != model.StatusRepairing {
		t.Errorf("failed finish-repair mutated status to %q", after.Status)
	}
	if n := historyCount(t, database, m.ID); n != before {
		t.Errorf("failed finish-repair appended history: %d -> %d", before, n)
	}
}

func TestFinishRepairDestinationGone(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	AssignToName(ctx, database, m.ID, testDestination)
	EnterRepair(ctx, database, m.ID)

	// Simulate drift between ledger labels and the destination table.
	if _, err := database.ExecContext(ctx, `DELETE FROM destinations WHERE name = ?`, testDestination); err != nil {
		t.Fatalf("deleting destination: %v", err)
	}

	if _, err := FinishRepair(ctx, database, m.ID); !errors.Is(err, ErrDestinationNotFound) {
		t.Errorf("expected ErrDestinationNotFound, got %v", err)
	}
}

func TestDeliver(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	AssignToName(ctx, database, m.ID, testDestination)

	delivered, err := Deliver(ctx, database, m.ID)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if delivered.Status != model.StatusDelivered {
		t.Errorf("expected status %q, got %q", model.StatusDelivered, delivered.Status)
	}
	if delivered.DestinationID != nil {
		t.Error("delivered machine should have its destination cleared")
	}

	entries, _ := store.ListMachineHistory(ctx, database, m.ID)
	last := entries[len(entries)-1]
	if last.From != testDestination || last.To != LabelDelivered {
		t.Errorf("expected {%s → %s}, got {%s → %s}", testDestination, LabelDelivered, last.From, last.To)
	}

	// Re-delivery is rejected, never double-appended.
	if _, err := Deliver(ctx, database, m.ID); !errors.Is(err, ErrAlreadyDelivered) {
		t.Errorf("expected ErrAlreadyDelivered, got %v", err)
	}
	if n := historyCount(t, database, m.ID); n != 2 {
		t.Errorf("expected 2 history entries after rejected re-delivery, got %d", n)
	}
}

func TestDeliverFromStockUsesFallbackLabel(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	if _, err := Deliver(ctx, database, m.ID); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	entries, _ := store.ListMachineHistory(ctx, database, m.ID)
	if entries[0].From != "Affectée" {
		t.Errorf("expected fallback from label %q, got %q", "Affectée", entries[0].From)
	}
}

func insertHistoryAt(t *testing.T, database *sql.DB, machineID int64, to string, at time.Time) {
	t.Helper()
	_, err := database.Exec(
		`INSERT INTO history (machine_id, from_label, to_label, changed_at) VALUES (?, NULL, ?, ?)`,
		machineID, to, at.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		t.Fatalf("inserting history: %v", err)
	}
}

func TestSweepRetention(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	old := createTestMachine(t, database, "S1", "I1")
	recent := createTestMachine(t, database, "S2", "I2")
	retired := createTestMachine(t, database, "S3", "I3")

	threshold := time.Now().UTC().AddDate(-DefaultRetentionYears, 0, 0)
	// Exactly at the threshold: included (inclusive comparison).
	insertHistoryAt(t, database, old.ID, testDestination, threshold)
	// Comfortably after the threshold: excluded.
	insertHistoryAt(t, database, recent.ID, testDestination, threshold.Add(time.Hour))
	// Already delivered machines are never candidates.
	insertHistoryAt(t, database, retired.ID, testDestination, threshold.Add(-time.Hour))
	if _, err := Deliver(ctx, database, retired.ID); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	result, err := SweepRetention(ctx, database, zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("SweepRetention: %v", err)
	}

	if result.Updated != 1 {
		t.Fatalf("expected 1 machine swept, got %d (%v)", result.Updated, result.Machines)
	}
	if result.Machines[0] != old.Reference {
		t.Errorf("expected swept reference %q, got %q", old.Reference, result.Machines[0])
	}

	swept, _ := store.GetMachine(ctx, database, old.ID)
	if swept.Status != model.StatusDelivered {
		t.Errorf("expected swept machine delivered, got %q", swept.Status)
	}
	// The sweep routes through the deliver transition, so the ledger got
	// the same entry a single delivery writes.
	if got := lastHistoryTo(t, database, old.ID); got != LabelDelivered {
		t.Errorf("expected last ledger entry %q, got %q", LabelDelivered, got)
	}

	untouched, _ := store.GetMachine(ctx, database, recent.ID)
	if untouched.Status != model.StatusStocked {
		t.Errorf("recent machine should be untouched, got %q", untouched.Status)
	}
}

func TestUpdateMachineRepairDetection(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	AssignToName(ctx, database, m.ID, testDestination)

	// A legacy repair label through the generic edit path triggers the
	// repair transition.
	status := "reparation"
	updated, err := UpdateMachine(ctx, database, m.ID, UpdateRequest{Status: &status})
	if err != nil {
		t.Fatalf("UpdateMachine: %v", err)
	}
	if updated.Status != model.StatusRepairing {
		t.Errorf("expected status %q, got %q", model.StatusRepairing, updated.Status)
	}
	if updated.DestinationID != nil {
		t.Error("repair via update should clear the destination")
	}
	if got := lastHistoryTo(t, database, m.ID); got != LabelRepair {
		t.Errorf("expected ledger entry %q, got %q", LabelRepair, got)
	}

	// Setting the same status again must not duplicate the ledger entry.
	before := historyCount(t, database, m.ID)
	if _, err := UpdateMachine(ctx, database, m.ID, UpdateRequest{Status: &status}); err != nil {
		t.Fatalf("UpdateMachine (repeat): %v", err)
	}
	if after := historyCount(t, database, m.ID); after != before {
		t.Errorf("repeated repair update appended history: %d -> %d", before, after)
	}
}

func TestUpdateMachineFieldsOnly(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	ref := "REF-NEW"
	updated, err := UpdateMachine(ctx, database, m.ID, UpdateRequest{Reference: &ref})
	if err != nil {
		t.Fatalf("UpdateMachine: %v", err)
	}
	if updated.Reference != "REF-NEW" {
		t.Errorf("expected reference updated, got %q", updated.Reference)
	}
	if n := historyCount(t, database, m.ID); n != 0 {
		t.Errorf("field-only update should not write history, got %d entries", n)
	}
}

func TestUpdateMachineInvalidStatus(t *testing.T) {
	database := db.NewTestDB(t)

	m := createTestMachine(t, database, "S1", "I1")
	status := "cassée"
	if _, err := UpdateMachine(context.Background(), database, m.ID, UpdateRequest{Status: &status}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestDeleteMachinesRemovesHistoryFirst(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m1 := createTestMachine(t, database, "S1", "I1")
	m2 := createTestMachine(t, database, "S2", "I2")
	AssignToName(ctx, database, m1.ID, testDestination)
	AssignToName(ctx, database, m2.ID, testDestination)

	deleted, failed, err := DeleteMachines(ctx, database, []int64{m1.ID, m2.ID})
	if err != nil {
		t.Fatalf("DeleteMachines: %v", err)
	}
	if deleted != 2 || len(failed) != 0 {
		t.Fatalf("expected 2 deleted, got %d (failed %v)", deleted, failed)
	}

	var count int
	database.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&count)
	if count != 0 {
		t.Errorf("expected history wiped with machines, got %d rows", count)
	}

	// Repeating the call is a no-op reporting zero deletions.
	deleted, failed, _ = DeleteMachines(ctx, database, []int64{m1.ID, m2.ID})
	if deleted != 0 || len(failed) != 2 {
		t.Errorf("expected 0 deleted and 2 failed on repeat, got %d / %v", deleted, failed)
	}
}

func TestDeleteSingleMachineNotFound(t *testing.T) {
	database := db.NewTestDB(t)

	if err := DeleteMachine(context.Background(), database, 42); !errors.Is(err, ErrMachineNotFound) {
		t.Errorf("expected ErrMachineNotFound, got %v", err)
	}
}

func TestDeleteHistoryEntry(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")
	entry, err := store.AppendHistory(ctx, database, m.ID, "", "Stock")
	if err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	if err := DeleteHistoryEntry(ctx, database, entry.ID); err != nil {
		t.Fatalf("DeleteHistoryEntry: %v", err)
	}
	if err := DeleteHistoryEntry(ctx, database, entry.ID); !errors.Is(err, ErrHistoryEntryNotFound) {
		t.Errorf("expected ErrHistoryEntryNotFound, got %v", err)
	}
}

// Trajectory consistency: after any successful transition the latest ledger
// entry names the machine's current place.
func TestTrajectoryConsistency(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	m := createTestMachine(t, database, "S1", "I1")

	AssignToName(ctx, database, m.ID, testDestination)
	if got := lastHistoryTo(t, database, m.ID); got != testDestination {
		t.Errorf("after assign: last entry %q, want %q", got, testDestination)
	}

	EnterRepair(ctx, database, m.ID)
	if got := lastHistoryTo(t, database, m.ID); got != LabelRepair {
		t.Errorf("after repair: last entry %q, want %q", got, LabelRepair)
	}

	FinishRepair(ctx, database, m.ID)
	if got := lastHistoryTo(t, database, m.ID); got != testDestination {
		t.Errorf("after finish-repair: last entry %q, want %q", got, testDestination)
	}

	Deliver(ctx, database, m.ID)
	if got := lastHistoryTo(t, database, m.ID); got != LabelDelivered {
		t.Errorf("after deliver: last entry %q, want %q", got, LabelDelivered)
	}
}
