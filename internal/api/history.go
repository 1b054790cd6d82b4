package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/KhaoulaIchou/gestion-stocks/internal/lifecycle"
	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
	"github.com/KhaoulaIchou/gestion-stocks/internal/store"
)

// HistoryHandler handles ledger endpoints.
type HistoryHandler struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// List handles GET /api/history: the full ledger, newest first, with the
// owning machine's reference and type.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := store.ListAllHistory(r.Context(), h.DB)
	if err != nil {
		h.Logger.Error("listing history", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Delete handles DELETE /api/history/{id}: admin correction of one erroneous
// entry. Machine state is not recomputed.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid history entry id")
		return
	}

	if err := lifecycle.DeleteHistoryEntry(r.Context(), h.DB, id); err != nil {
		if errors.Is(err, lifecycle.ErrHistoryEntryNotFound) {
			jsonError(w, http.StatusNotFound, "history entry not found")
			return
		}
		h.Logger.Error("deleting history entry", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to delete history entry")
		return
	}

	claims := GetClaims(r.Context())
	h.Logger.Info("history entry deleted",
		zap.Int64("entry_id", id),
		zap.String("by", claims.Email))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "history entry deleted"})
}
