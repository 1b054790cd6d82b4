package model

import "time"

// Destination is an organizational unit a machine can be deployed to.
// The name follows the "<Jurisdiction> – <Component>" convention but is
// treated as an opaque string key by the lifecycle engine.
type Destination struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	// Joined field (not always populated).
	MachineCount int `json:"machine_count,omitempty"`
}
