package lifecycle

import "strings"

// Canonical ledger labels written on transitions. The history table predates
// this service and carries accent and case variants of the same words, so
// the read side (the origin resolver) matches by keyword while the write
// side only ever produces these values.
const (
	LabelStock     = "Stock"
	LabelRepair    = "Réparation"
	LabelDelivered = "Machines délivrées"

	// labelAssigned is the deliver fallback when a machine has no
	// destination to name as its provenance.
	labelAssigned = "Affectée"
)

var repairKeys = []string{"réparation", "reparation"}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isRepairLabel(s string) bool {
	v := norm(s)
	for _, k := range repairKeys {
		if strings.Contains(v, k) {
			return true
		}
	}
	return false
}

func isStockLabel(s string) bool {
	v := norm(s)
	return v == "stock" || strings.Contains(v, "stock")
}

func isDeliveredLabel(s string) bool {
	v := norm(s)
	return strings.Contains(v, "machines délivrées") || strings.Contains(v, "délivr")
}
