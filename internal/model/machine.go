package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a machine. Stored values are the four
// canonical labels; free-text legacy variants only exist at the API boundary
// and are translated by ParseStatus.
type Status string

const (
	StatusStocked   Status = "stocké"
	StatusAssigned  Status = "affectée"
	StatusRepairing Status = "en réparation"
	StatusDelivered Status = "délivrée"
)

// ParseStatus maps a status string, including legacy case and accent
// variants, to its canonical Status. The history of this dataset contains
// labels like "Réparation", "reparation" or "Stocké", so matching is by
// keyword rather than equality.
func ParseStatus(s string) (Status, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "":
		return "", false
	case strings.Contains(v, "répar") || strings.Contains(v, "repar"):
		return StatusRepairing, true
	case strings.Contains(v, "délivr") || strings.Contains(v, "delivr"):
		return StatusDelivered, true
	case strings.Contains(v, "affect") || strings.Contains(v, "assign"):
		return StatusAssigned, true
	case strings.Contains(v, "stock"):
		return StatusStocked, true
	}
	return "", false
}

// Machine represents a tracked piece of equipment (current state).
type Machine struct {
	ID              int64     `json:"id"`
	Type            string    `json:"type"`
	Reference       string    `json:"reference"`
	SerialNumber    string    `json:"serial_number"`
	InventoryNumber string    `json:"inventory_number"`
	Status          Status    `json:"status"`
	DestinationID   *int64    `json:"destination_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`

	// Joined field (not always populated).
	DestinationName string `json:"destination_name,omitempty"`
}

// InStock reports whether the machine is sitting in stock.
func (m *Machine) InStock() bool {
	return m.Status == StatusStocked && m.DestinationID == nil
}
