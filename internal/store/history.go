package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
)

// ListMachineHistory returns a machine's history ordered oldest first.
// This is the ordering the origin resolver consumes.
func ListMachineHistory(ctx context.Context, db *sql.DB, machineID int64) ([]model.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx,
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

// ListAllHistory returns the full ledger newest first with the owning
// machine's reference and type joined, for the history overview.
func ListAllHistory(ctx context.Context, db *sql.DB) ([]model.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT h.id, h.machine_id, h.from_label, h.to_label, h.changed_at,
		        m.reference, m.type
		 FROM history h
		 JOIN machines m ON m.id = h.machine_id
		 ORDER BY h.changed_at DESC, h.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var from sql.NullString
		if err := rows.Scan(&e.ID, &e.MachineID, &from, &e.To, &e.ChangedAt,
			&e.MachineReference, &e.MachineType); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		e.From = from.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AppendHistory records one transition for a machine. from may be empty,
// meaning "from stock" or unknown predecessor.
func AppendHistory(ctx context.Context, db *sql.DB, machineID int64, from, to string) (*model.HistoryEntry, error) {
	var fromVal any
	if from != "" {
		fromVal = from
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO history (machine_id, from_label, to_label) VALUES (?, ?, ?)`,
		machineID, fromVal, to,
	)
	if err != nil {
		return nil, fmt.Errorf("appending history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting history id: %w", err)
	}

	e := &model.HistoryEntry{}
	var fromCol sql.NullString
	err = db.QueryRowContext(ctx,
		`SELECT id, machine_id, from_label, to_label, changed_at FROM history WHERE id = ?`, id,
	).Scan(&e.ID, &e.MachineID, &fromCol, &e.To, &e.ChangedAt)
	if err != nil {
		return nil, fmt.Errorf("getting history entry: %w", err)
	}
	e.From = fromCol.String
	return e, nil
}
