package model

import "time"

// HistoryEntry is one immutable record of a machine's "from → to" movement.
// An empty From means the machine came from stock or has no known
// predecessor.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	MachineID int64     `json:"machine_id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`

	// Joined fields (not always populated).
	MachineReference string `json:"machine_reference,omitempty"`
	MachineType      string `json:"machine_type,omitempty"`
}
