package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
)

// CreateDestination creates a new destination.
func CreateDestination(ctx context.Context, db *sql.DB, name string) (*model.Destination, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO destinations (name) VALUES (?)`,
		strings.TrimSpace(name),
	)
	if err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting destination id: %w", err)
	}

	return GetDestination(ctx, db, id)
}

// GetDestination returns a destination by ID.
func GetDestination(ctx context.Context, db *sql.DB, id int64) (*model.Destination, error) {
	d := &model.Destination{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM destinations WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting destination: %w", err)
	}
	return d, nil
}

// GetDestinationByName returns a destination by its exact name.
func GetDestinationByName(ctx context.Context, db *sql.DB, name string) (*model.Destination, error) {
	d := &model.Destination{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM destinations WHERE name = ?`, name,
	).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting destination by name: %w", err)
	}
	return d, nil
}

// FindOrCreateDestination returns the destination with the given name,
// creating it if it does not exist yet.
func FindOrCreateDestination(ctx context.Context, db *sql.DB, name string) (*model.Destination, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("destination name required")
	}

	d, err := GetDestinationByName(ctx, db, name)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return d, nil
	}
	return CreateDestination(ctx, db, name)
}

// defaultDestinations is the jurisdiction catalogue the service starts from.
var defaultDestinations = []string{
	"Tribunal de première instance de Safi - Présidence",
	"Tribunal de première instance de Safi - Parquet (Parquet)",
	"Tribunal de première instance de Safi - Section de famille",
	"Centre du juge de la circulation de Safi",
	"Tribunal de première instance de Essaouira - Présidence",
	"Tribunal de première instance de Essaouira - Parquet",
	"Tribunal de première instance de Youssoufia - Présidence",
	"Tribunal de première instance de Youssoufia - Parquet",
	"Cour d’appel de Safi - Présidence",
	"Cour d’appel de Safi - Section de famille",
	"Cour d’appel de Safi - Parquet",
}

// SeedDestinations inserts the default destination catalogue, skipping names
// that already exist. Returns how many were created.
func SeedDestinations(ctx context.Context, db *sql.DB) (int, error) {
	created := 0
	for _, name := range defaultDestinations {
		existing, err := GetDestinationByName(ctx, db, name)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		if _, err := CreateDestination(ctx, db, name); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// ListDestinations returns all destinations with their current machine counts.
func ListDestinations(ctx context.Context, db *sql.DB) ([]model.Destination, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT d.id, d.name, d.created_at, COUNT(m.id)
		 FROM destinations d
		 LEFT JOIN machines m ON m.destination_id = d.id
		 GROUP BY d.id
		 ORDER BY d.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing destinations: %w", err)
	}
	defer rows.Close()

	var destinations []model.Destination
	for rows.Next() {
		var d model.Destination
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.MachineCount); err != nil {
			return nil, fmt.Errorf("scanning destination: %w", err)
		}
		destinations = append(destinations, d)
	}
	return destinations, rows.Err()
}
