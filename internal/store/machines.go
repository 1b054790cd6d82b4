package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
)

const machineColumns = `m.id, m.type, m.reference, m.serial_number, m.inventory_number,
       m.status, m.destination_id, m.created_at, d.name AS destination_name`

const machineFrom = `FROM machines m LEFT JOIN destinations d ON d.id = m.destination_id`

// CreateMachine inserts a new machine in stock. Identity fields are trimmed
// before insertion; uniqueness of serial and inventory numbers is enforced
// case-insensitively by the schema.
func CreateMachine(ctx context.Context, db *sql.DB, machineType, reference, serial, inventory string) (*model.Machine, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO machines (type, reference, serial_number, inventory_number, status)
		 VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(machineType), strings.TrimSpace(reference),
		strings.TrimSpace(serial), strings.TrimSpace(inventory),
		string(model.StatusStocked),
	)
	if err != nil {
		return nil, fmt.Errorf("creating machine: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting machine id: %w", err)
	}

	return GetMachine(ctx, db, id)
}

// GetMachine returns a machine by ID with its destination name joined.
func GetMachine(ctx context.Context, db *sql.DB, id int64) (*model.Machine, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+machineColumns+` `+machineFrom+` WHERE m.id = ?`, id,
	)
	m, err := scanMachine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting machine: %w", err)
	}
	return m, nil
}

// ListMachines returns all machines with destination names joined.
func ListMachines(ctx context.Context, db *sql.DB) ([]model.Machine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+machineColumns+` `+machineFrom+` ORDER BY m.reference, m.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}
	defer rows.Close()

	return scanMachines(rows)
}

// ListMachinesByStatus returns machines in the given lifecycle state.
func ListMachinesByStatus(ctx context.Context, db *sql.DB, status model.Status) ([]model.Machine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+machineColumns+` `+machineFrom+` WHERE m.status = ? ORDER BY m.reference, m.id`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("listing machines by status: %w", err)
	}
	defer rows.Close()

	return scanMachines(rows)
}

// ListStock returns machines sitting in stock (stocked, no destination).
func ListStock(ctx context.Context, db *sql.DB) ([]model.Machine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+machineColumns+` `+machineFrom+`
		 WHERE m.status = ? AND m.destination_id IS NULL
		 ORDER BY m.reference, m.id`,
		string(model.StatusStocked),
	)
	if err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	defer rows.Close()

	return scanMachines(rows)
}

// ListMachinesByDestination returns machines currently assigned to a destination.
func ListMachinesByDestination(ctx context.Context, db *sql.DB, destinationID int64) ([]model.Machine, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+machineColumns+` `+machineFrom+`
		 WHERE m.destination_id = ? ORDER BY m.reference, m.id`,
		destinationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing machines by destination: %w", err)
	}
	defer rows.Close()

	return scanMachines(rows)
}

// MachineNumbersTaken reports whether the serial or inventory number is
// already used by another machine, comparing trimmed and lowercased values.
// excludeID skips the machine being edited.
func MachineNumbersTaken(ctx context.Context, db *sql.DB, excludeID int64, serial, inventory string) (serialTaken, inventoryTaken bool, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT
		   EXISTS(SELECT 1 FROM machines WHERE id != ? AND lower(trim(serial_number)) = lower(trim(?))),
		   EXISTS(SELECT 1 FROM machines WHERE id != ? AND lower(trim(inventory_number)) = lower(trim(?)))`,
		excludeID, serial, excludeID, inventory,
	).Scan(&serialTaken, &inventoryTaken)
	if err != nil {
		return false, false, fmt.Errorf("checking machine numbers: %w", err)
	}
	return serialTaken, inventoryTaken, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMachine(row rowScanner) (*model.Machine, error) {
	m := &model.Machine{}
	var status string
	var destID sql.NullInt64
	var destName sql.NullString
	err := row.Scan(&m.ID, &m.Type, &m.Reference, &m.SerialNumber, &m.InventoryNumber,
		&status, &destID, &m.CreatedAt, &destName)
	if err != nil {
		return nil, err
	}
	m.Status = model.Status(status)
	if destID.Valid {
		m.DestinationID = &destID.Int64
	}
	m.DestinationName = destName.String
	return m, nil
}

func scanMachines(rows *sql.Rows) ([]model.Machine, error) {
	var machines []model.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning machine: %w", err)
		}
		machines = append(machines, *m)
	}
	return machines, rows.Err()
}
