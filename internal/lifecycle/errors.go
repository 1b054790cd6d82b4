package lifecycle

import "errors"

// Domain errors surfaced by transitions. Handlers map these to HTTP statuses
// with errors.Is; transitions that fail leave no partial mutation behind.
var (
	ErrMachineNotFound      = errors.New("machine not found")
	ErrDestinationNotFound  = errors.New("destination not found")
	ErrHistoryEntryNotFound = errors.New("history entry not found")

	// ErrOriginUndeterminable means finish-repair found no prior meaningful
	// destination in the machine's history; an operator must intervene.
	ErrOriginUndeterminable = errors.New("repair origin undeterminable")

	ErrNotRepairing     = errors.New("machine is not under repair")
	ErrAlreadyDelivered = errors.New("machine already delivered")
	ErrInvalidStatus    = errors.New("unrecognized status label")

	ErrSerialTaken    = errors.New("serial number already in use")
	ErrInventoryTaken = errors.New("inventory number already in use")
)
