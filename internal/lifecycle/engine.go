package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
	"github.com/KhaoulaIchou/gestion-stocks/internal/store"
)

// DefaultRetentionYears is the age threshold after which the retention
// sweep retires a machine.
const DefaultRetentionYears = 5

// sqliteTimeFormat matches the text form of CURRENT_TIMESTAMP so cutoff
// comparisons against changed_at stay lexicographic.
const sqliteTimeFormat = "2006-01-02 15:04:05"

// Every transition below runs its read-validate-mutate sequence in a single
// transaction scoped to one machine: either both the history append and the
// machine update commit, or neither does.

// CreateMachine registers a new machine in stock. No history entry is
// written; the ledger starts with the first movement.
func CreateMachine(ctx context.Context, db *sql.DB, machineType, reference, serial, inventory string) (*model.Machine, error) {
	serialTaken, inventoryTaken, err := store.MachineNumbersTaken(ctx, db, 0, serial, inventory)
	if err != nil {
		return nil, err
	}
	if serialTaken {
		return nil, fmt.Errorf("%w: %s", ErrSerialTaken, strings.TrimSpace(serial))
	}
	if inventoryTaken {
		return nil, fmt.Errorf("%w: %s", ErrInventoryTaken, strings.TrimSpace(inventory))
	}

	return store.CreateMachine(ctx, db, machineType, reference, serial, inventory)
}

// Assign deploys a machine to an existing destination.
func Assign(ctx context.Context, db *sql.DB, machineID, destinationID int64) (*model.Machine, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := getMachineTx(ctx, tx, machineID)
	if err != nil {
		return nil, err
	}

	var destName string
	err = tx.QueryRowContext(ctx,
		`SELECT name FROM destinations WHERE id = ?`, destinationID,
	).Scan(&destName)
	if err == sql.ErrNoRows {
		return nil, ErrDestinationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting destination: %w", err)
	}

	if err := assignTx(ctx, tx, m, destinationID, destName); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment: %w", err)
	}

	return store.GetMachine(ctx, db, machineID)
}

// AssignToName deploys a machine to the destination with the given name,
// creating the destination if it does not exist yet.
func AssignToName(ctx context.Context, db *sql.DB, machineID int64, name string) (*model.Machine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("destination name required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := getMachineTx(ctx, tx, machineID)
	if err != nil {
		return nil, err
	}

	var destID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM destinations WHERE name = ?`, name,
	).Scan(&destID)
	if err == sql.ErrNoRows {
		result, insErr := tx.ExecContext(ctx,
			`INSERT INTO destinations (name) VALUES (?)`, name)
		if insErr != nil {
			return nil, fmt.Errorf("creating destination: %w", insErr)
		}
		destID, insErr = result.LastInsertId()
		if insErr != nil {
			return nil, fmt.Errorf("getting destination id: %w", insErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("getting destination: %w", err)
	}

	if err := assignTx(ctx, tx, m, destID, name); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing assignment: %w", err)
	}

	return store.GetMachine(ctx, db, machineID)
}

// EnterRepair sends a machine to repair, clearing its destination. Calling
// it on a machine already under repair is a no-op so the ledger never
// accumulates duplicate repair entries.
func EnterRepair(ctx context.Context, db *sql.DB, machineID int64) (*model.Machine, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := getMachineTx(ctx, tx, machineID)
	if err != nil {
		return nil, err
	}
	if m.Status == model.StatusRepairing {
		return m, nil
	}

	if err := enterRepairTx(ctx, tx, m); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing repair entry: %w", err)
	}

	return store.GetMachine(ctx, db, machineID)
}

// FinishRepair returns a machine from repair to the destination it came
// from, as reconstructed from its history by ResolveOrigin. The destination
// must still exist under that exact name; it is never auto-created here.
func FinishRepair(ctx context.Context, db *sql.DB, machineID int64) (*model.Machine, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := getMachineTx(ctx, tx, machineID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.StatusRepairing {
		return nil, ErrNotRepairing
	}

	entries, err := machineHistoryTx(ctx, tx, machineID)
	if err != nil {
		return nil, err
	}

	source := ResolveOrigin(entries)
	if source == "" {
		return nil, ErrOriginUndeterminable
	}

	var destID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM destinations WHERE name = ?`, source,
	).Scan(&destID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", ErrDestinationNotFound, source)
	}
	if err != nil {
		return nil, fmt.Errorf("getting destination: %w", err)
	}

	if err := appendHistoryTx(ctx, tx, machineID, LabelRepair, source); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE machines SET destination_id = ?, status = ? WHERE id = ?`,
		destID, string(model.StatusAssigned), machineID,
	); err != nil {
		return nil, fmt.Errorf("updating machine: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing repair completion: %w", err)
	}

	return store.GetMachine(ctx, db, machineID)
}

// Deliver retires a machine. The history keeps its provenance; the current
// destination is cleared. Re-delivering is rejected so the ledger cannot
// accumulate duplicate delivery entries.
func Deliver(ctx context.Context, db *sql.DB, machineID int64) (*model.Machine, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := getMachineTx(ctx, tx, machineID)
	if err != nil {
		return nil, err
	}
	if m.Status == model.StatusDelivered {
		return nil, ErrAlreadyDelivered
	}

	from := m.DestinationName
	if from == "" {
		from = labelAssigned
	}
	if err := appendHistoryTx(ctx, tx, machineID, from, LabelDelivered); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE machines SET destination_id = NULL, status = ? WHERE id = ?`,
		string(model.StatusDelivered), machineID,
	); err != nil {
		return nil, fmt.Errorf("updating machine: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delivery: %w", err)
	}

	return store.GetMachine(ctx, db, machineID)
}

// SweepResult reports the outcome of a retention sweep.
type SweepResult struct {
	Updated  int      `json:"updated"`
	Machines []string `json:"machines"`
	Failed   []string `json:"failed,omitempty"`
}

// SweepRetention delivers every non-delivered machine whose oldest recorded
// movement is at or before now minus the given number of years (inclusive
// threshold). Each machine is processed independently; one failure does not
// abort the rest.
func SweepRetention(ctx context.Context, db *sql.DB, logger *zap.Logger, years int) (SweepResult, error) {
	if years <= 0 {
		years = DefaultRetentionYears
	}
	cutoff := time.Now().UTC().AddDate(-years, 0, 0).Format(sqliteTimeFormat)

	rows, err := db.QueryContext(ctx,
		`SELECT m.id, m.reference FROM machines m
		 WHERE m.status != ?
		   AND EXISTS (SELECT 1 FROM history h
		               WHERE h.machine_id = m.id AND h.changed_at <= ?)
		 ORDER BY m.id`,
		string(model.StatusDelivered), cutoff,
	)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing sweep candidates: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id        int64
		reference string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.reference); err != nil {
			return SweepResult{}, fmt.Errorf("scanning sweep candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return SweepResult{}, fmt.Errorf("listing sweep candidates: %w", err)
	}

	result := SweepResult{Machines: []string{}}
	for _, c := range candidates {
		if _, err := Deliver(ctx, db, c.id); err != nil {
			logger.Warn("retention sweep: delivery failed",
				zap.Int64("machine_id", c.id),
				zap.String("reference", c.reference),
				zap.Error(err))
			result.Failed = append(result.Failed, c.reference)
			continue
		}
		result.Updated++
		result.Machines = append(result.Machines, c.reference)
	}
	return result, nil
}

// UpdateRequest carries a generic machine edit. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Type            *string
	Reference       *string
	SerialNumber    *string
	InventoryNumber *string
	Status          *string
}

// UpdateMachine applies a generic field edit. A status value that parses to
// the repairing state delegates to the repair transition, so the ledger
// entry and destination clearing happen exactly as with EnterRepair; other
// recognized status values are set directly without a ledger entry.
func UpdateMachine(ctx context.Context, db *sql.DB, machineID int64, req UpdateRequest) (*model.Machine, error) {
	if req.SerialNumber != nil || req.InventoryNumber != nil {
		serial, inventory := "", ""
		if req.SerialNumber != nil {
			serial = *req.SerialNumber
		}
		if req.InventoryNumber != nil {
			inventory = *req.InventoryNumber
		}
		serialTaken, inventoryTaken, err := store.MachineNumbersTaken(ctx, db, machineID, serial, inventory)
		if err != nil {
			return nil, err
		}
		if req.SerialNumber != nil && serialTaken {
			return nil, fmt.Errorf("%w: %s", ErrSerialTaken, strings.TrimSpace(serial))
		}
		if req.InventoryNumber != nil && inventoryTaken {
			return nil, fmt.Errorf("%w: %s", ErrInventoryTaken, strings.TrimSpace(inventory))
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := getMachineTx(ctx, tx, machineID)
	if err != nil {
		return nil, err
	}

	machineType := m.Type
	reference := m.Reference
	serial := m.SerialNumber
	inventory := m.InventoryNumber
	if req.Type != nil {
		machineType = strings.TrimSpace(*req.Type)
	}
	if req.Reference != nil {
		reference = strings.TrimSpace(*req.Reference)
	}
	if req.SerialNumber != nil {
		serial = strings.TrimSpace(*req.SerialNumber)
	}
	if req.InventoryNumber != nil {
		inventory = strings.TrimSpace(*req.InventoryNumber)
	}

	status := m.Status
	destID := m.DestinationID
	if req.Status != nil {
		parsed, ok := model.ParseStatus(*req.Status)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
		}
		if parsed == model.StatusRepairing && m.Status != model.StatusRepairing {
			if err := enterRepairTx(ctx, tx, m); err != nil {
				return nil, err
			}
		}
		status = parsed
		if parsed == model.StatusRepairing {
			destID = nil
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE machines SET type = ?, reference = ?, serial_number = ?,
		        inventory_number = ?, status = ?, destination_id = ?
		 WHERE id = ?`,
		machineType, reference, serial, inventory, string(status), destID, machineID,
	); err != nil {
		return nil, fmt.Errorf("updating machine: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}

	return store.GetMachine(ctx, db, machineID)
}

// DeleteMachine removes a machine and its history entries. The history rows
// go first so the foreign key never dangles.
func DeleteMachine(ctx context.Context, db *sql.DB, machineID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE machine_id = ?`, machineID,
	); err != nil {
		return fmt.Errorf("deleting machine history: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM machines WHERE id = ?`, machineID,
	)
	if err != nil {
		return fmt.Errorf("deleting machine: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deletion: %w", err)
	}
	if affected == 0 {
		return ErrMachineNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing deletion: %w", err)
	}
	return nil
}

// DeleteMachines removes the given machines best-effort and reports how
// many were deleted plus the IDs that could not be.
func DeleteMachines(ctx context.Context, db *sql.DB, ids []int64) (deleted int, failed []int64, err error) {
	for _, id := range ids {
		if err := DeleteMachine(ctx, db, id); err != nil {
			failed = append(failed, id)
			continue
		}
		deleted++
	}
	return deleted, failed, nil
}

// DeleteHistoryEntry removes one erroneous ledger entry. It does not
// recompute machine state; correcting the machine afterwards is the
// operator's responsibility.
func DeleteHistoryEntry(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM history WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("deleting history entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deletion: %w", err)
	}
	if affected == 0 {
		return ErrHistoryEntryNotFound
	}
	return nil
}

// assignTx writes the assignment ledger entry and points the machine at its
// new destination.
func assignTx(ctx context.Context, tx *sql.Tx, m *model.Machine, destID int64, destName string) error {
	from := m.DestinationName
	if from == "" {
		from = LabelStock
	}
	if err := appendHistoryTx(ctx, tx, m.ID, from, destName); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE machines SET destination_id = ?, status = ? WHERE id = ?`,
		destID, string(model.StatusAssigned), m.ID,
	); err != nil {
		return fmt.Errorf("updating machine: %w", err)
	}
	return nil
}

// enterRepairTx writes the repair ledger entry and clears the destination.
func enterRepairTx(ctx context.Context, tx *sql.Tx, m *model.Machine) error {
	from := m.DestinationName
	if from == "" {
		from = LabelStock
	}
	if err := appendHistoryTx(ctx, tx, m.ID, from, LabelRepair); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE machines SET destination_id = NULL, status = ? WHERE id = ?`,
		string(model.StatusRepairing), m.ID,
	); err != nil {
		return fmt.Errorf("updating machine: %w", err)
	}
	return nil
}

func appendHistoryTx(ctx context.Context, tx *sql.Tx, machineID int64, from, to string) error {
	var fromVal any
	if from != "" {
		fromVal = from
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (machine_id, from_label, to_label) VALUES (?, ?, ?)`,
		machineID, fromVal, to,
	); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

func getMachineTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Machine, error) {
	m := &model.Machine{}
	var status string
	var destID sql.NullInt64
	var destName sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT m.id, m.type, m.reference, m.serial_number, m.inventory_number,
		        m.status, m.destination_id, m.created_at, d.name
		 FROM machines m LEFT JOIN destinations d ON d.id = m.destination_id
		 WHERE m.id = ?`, id,
	).Scan(&m.ID, &m.Type, &m.Reference, &m.SerialNumber, &m.InventoryNumber,
		&status, &destID, &m.CreatedAt, &destName)
	if err == sql.ErrNoRows {
		return nil, ErrMachineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting machine: %w", err)
	}
	m.Status = model.Status(status)
	if destID.Valid {
		m.DestinationID = &destID.Int64
	}
	m.DestinationName = destName.String
	return m, nil
}

func machineHistoryTx(ctx context.Context, tx *sql.Tx, machineID int64) ([]model.HistoryEntry, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, machine_id, from_label, to_label, changed_at
		 FROM history WHERE machine_id = ?
		 ORDER BY changed_at, id`, machineID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing machine history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var from sql.NullString
		if err := rows.Scan(&e.ID, &e.MachineID, &from, &e.To, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		e.From = from.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
