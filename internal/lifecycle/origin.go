package lifecycle

import (
	"slices"
	"strings"

	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
)

// ResolveOrigin determines the destination a machine should return to when
// its repair finishes, purely from its history ledger.
//
// The entries are scanned oldest first. Every entry whose "to" label names a
// real destination (not stock, not repair, not delivery) becomes the current
// candidate origin. The scan stops at the first repair-labeled entry and
// returns the candidate accumulated up to that point; for a machine repaired
// more than once this yields the origin of the first recorded repair
// episode. If no repair entry exists the last candidate is returned.
//
// An empty result means the origin is undeterminable and the caller must
// refuse the finish-repair transition.
func ResolveOrigin(entries []model.HistoryEntry) string {
	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, func(a, b model.HistoryEntry) int {
		return a.ChangedAt.Compare(b.ChangedAt)
	})

	lastMeaningful := ""
	for _, e := range ordered {
		to := strings.TrimSpace(e.To)
		if isRepairLabel(to) {
			return lastMeaningful
		}
		if to != "" && !isStockLabel(to) && !isDeliveredLabel(to) {
			lastMeaningful = to
		}
	}
	return lastMeaningful
}
