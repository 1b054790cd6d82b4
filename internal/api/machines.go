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

// MachinesHandler handles machine endpoints: CRUD, lifecycle transitions and
// the retention sweep.
type MachinesHandler struct {
	DB             *sql.DB
	Logger         *zap.Logger
	RetentionYears int
}

type createMachineRequest struct {
	Type            string `json:"type"`
	Reference       string `json:"reference"`
	SerialNumber    string `json:"serial_number"`
	InventoryNumber string `json:"inventory_number"`
}

type updateMachineRequest struct {
	Type            *string `json:"type"`
	Reference       *string `json:"reference"`
	SerialNumber    *string `json:"serial_number"`
	InventoryNumber *string `json:"inventory_number"`
	Status          *string `json:"status"`
}

type assignRequest struct {
	DestinationID int64  `json:"destination_id"`
	Destination   string `json:"destination"`
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// lifecycleError maps domain sentinels to HTTP responses. Unknown errors are
// logged and reported as 500.
func (h *MachinesHandler) lifecycleError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, lifecycle.ErrMachineNotFound):
		jsonError(w, http.StatusNotFound, "machine not found")
	case errors.Is(err, lifecycle.ErrDestinationNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrOriginUndeterminable):
		jsonError(w, http.StatusConflict, "origin destination cannot be determined from history")
	case errors.Is(err, lifecycle.ErrNotRepairing):
		jsonError(w, http.StatusConflict, "machine is not under repair")
	case errors.Is(err, lifecycle.ErrAlreadyDelivered):
		jsonError(w, http.StatusConflict, "machine is already delivered")
	case errors.Is(err, lifecycle.ErrSerialTaken), errors.Is(err, lifecycle.ErrInventoryTaken):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		h.Logger.Error(action, zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *MachinesHandler) listResponse(w http.ResponseWriter, machines []model.Machine, err error) {
	if err != nil {
		h.Logger.Error("listing machines", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list machines")
		return
	}
	if machines == nil {
		machines = []model.Machine{}
	}
	jsonResponse(w, http.StatusOK, machines)
}

// List handles GET /api/machines.
func (h *MachinesHandler) List(w http.ResponseWriter, r *http.Request) {
	machines, err := store.ListMachines(r.Context(), h.DB)
	h.listResponse(w, machines, err)
}

// ListStock handles GET /api/machines/stock.
func (h *MachinesHandler) ListStock(w http.ResponseWriter, r *http.Request) {
	machines, err := store.ListStock(r.Context(), h.DB)
	h.listResponse(w, machines, err)
}

// ListRepairs handles GET /api/machines/repairs.
func (h *MachinesHandler) ListRepairs(w http.ResponseWriter, r *http.Request) {
	machines, err := store.ListMachinesByStatus(r.Context(), h.DB, model.StatusRepairing)
	h.listResponse(w, machines, err)
}

// ListDelivered handles GET /api/machines/delivered.
func (h *MachinesHandler) ListDelivered(w http.ResponseWriter, r *http.Request) {
	machines, err := store.ListMachinesByStatus(r.Context(), h.DB, model.StatusDelivered)
	h.listResponse(w, machines, err)
}

// ListByDestination handles GET /api/machines/destination/{id}.
func (h *MachinesHandler) ListByDestination(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid destination id")
		return
	}
	machines, listErr := store.ListMachinesByDestination(r.Context(), h.DB, id)
	h.listResponse(w, machines, listErr)
}

// Create handles POST /api/machines.
func (h *MachinesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMachineRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Type == "" || req.Reference == "" || req.SerialNumber == "" || req.InventoryNumber == "" {
		jsonError(w, http.StatusBadRequest, "type, reference, serial_number, and inventory_number required")
		return
	}

	machine, err := lifecycle.CreateMachine(r.Context(), h.DB,
		req.Type, req.Reference, req.SerialNumber, req.InventoryNumber)
	if err != nil {
		h.lifecycleError(w, err, "creating machine")
		return
	}

	transitionsTotal.WithLabelValues("create").Inc()
	jsonResponse(w, http.StatusCreated, machine)
}

// Get handles GET /api/machines/{id}.
func (h *MachinesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	machine, err := store.GetMachine(r.Context(), h.DB, id)
	if err != nil {
		h.Logger.Error("getting machine", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get machine")
		return
	}
	if machine == nil {
		jsonError(w, http.StatusNotFound, "machine not found")
		return
	}

	jsonResponse(w, http.StatusOK, machine)
}

// Update handles PUT /api/machines/{id}.
func (h *MachinesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	var req updateMachineRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	machine, err := lifecycle.UpdateMachine(r.Context(), h.DB, id, lifecycle.UpdateRequest{
		Type:            req.Type,
		Reference:       req.Reference,
		SerialNumber:    req.SerialNumber,
		InventoryNumber: req.InventoryNumber,
		Status:          req.Status,
	})
	if err != nil {
		h.lifecycleError(w, err, "updating machine")
		return
	}

	jsonResponse(w, http.StatusOK, machine)
}

// Delete handles DELETE /api/machines/{id}.
func (h *MachinesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	if err := lifecycle.DeleteMachine(r.Context(), h.DB, id); err != nil {
		h.lifecycleError(w, err, "deleting machine")
		return
	}

	claims := GetClaims(r.Context())
	h.Logger.Info("machine deleted",
		zap.Int64("machine_id", id),
		zap.String("by", claims.Email))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "machine deleted"})
}

// BulkDelete handles POST /api/machines/bulk-delete.
func (h *MachinesHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		jsonError(w, http.StatusBadRequest, "ids required")
		return
	}

	deleted, failed, err := lifecycle.DeleteMachines(r.Context(), h.DB, req.IDs)
	if err != nil {
		h.Logger.Error("bulk deleting machines", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to delete machines")
		return
	}

	claims := GetClaims(r.Context())
	h.Logger.Info("machines bulk deleted",
		zap.Int("deleted", deleted),
		zap.Int64s("failed", failed),
		zap.String("by", claims.Email))
	jsonResponse(w, http.StatusOK, map[string]any{"deleted": deleted, "failed": failed})
}

// Assign handles PUT /api/machines/{id}/assign. The destination may be given
// by id or by name; an unknown name creates the destination.
func (h *MachinesHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var machine *model.Machine
	switch {
	case req.DestinationID != 0:
		machine, err = lifecycle.Assign(r.Context(), h.DB, id, req.DestinationID)
	case req.Destination != "":
		machine, err = lifecycle.AssignToName(r.Context(), h.DB, id, req.Destination)
	default:
		jsonError(w, http.StatusBadRequest, "destination_id or destination required")
		return
	}
	if err != nil {
		h.lifecycleError(w, err, "assigning machine")
		return
	}

	transitionsTotal.WithLabelValues("assign").Inc()
	jsonResponse(w, http.StatusOK, machine)
}

// Repair handles PUT /api/machines/{id}/repair.
func (h *MachinesHandler) Repair(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	machine, err := lifecycle.EnterRepair(r.Context(), h.DB, id)
	if err != nil {
		h.lifecycleError(w, err, "sending machine to repair")
		return
	}

	transitionsTotal.WithLabelValues("repair").Inc()
	jsonResponse(w, http.StatusOK, machine)
}

// FinishRepair handles PUT /api/machines/{id}/finish-repair.
func (h *MachinesHandler) FinishRepair(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	machine, err := lifecycle.FinishRepair(r.Context(), h.DB, id)
	if err != nil {
		h.lifecycleError(w, err, "finishing repair")
		return
	}

	transitionsTotal.WithLabelValues("finish_repair").Inc()
	jsonResponse(w, http.StatusOK, machine)
}

// Deliver handles PUT /api/machines/{id}/deliver.
func (h *MachinesHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	machine, err := lifecycle.Deliver(r.Context(), h.DB, id)
	if err != nil {
		h.lifecycleError(w, err, "delivering machine")
		return
	}

	transitionsTotal.WithLabelValues("deliver").Inc()
	jsonResponse(w, http.StatusOK, machine)
}

// CheckDelivered handles PUT /api/machines/check-delivered: the retention
// sweep, retiring machines whose history is older than the configured number
// of years.
func (h *MachinesHandler) CheckDelivered(w http.ResponseWriter, r *http.Request) {
	result, err := lifecycle.SweepRetention(r.Context(), h.DB, h.Logger, h.RetentionYears)
	if err != nil {
		h.Logger.Error("retention sweep", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "retention sweep failed")
		return
	}

	sweepMachinesTotal.Add(float64(result.Updated))
	claims := GetClaims(r.Context())
	h.Logger.Info("retention sweep finished",
		zap.Int("updated", result.Updated),
		zap.String("by", claims.Email))
	jsonResponse(w, http.StatusOK, result)
}

// History handles GET /api/machines/{id}/history.
func (h *MachinesHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	machine, err := store.GetMachine(r.Context(), h.DB, id)
	if err != nil {
		h.Logger.Error("getting machine", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get machine")
		return
	}
	if machine == nil {
		jsonError(w, http.StatusNotFound, "machine not found")
		return
	}

	entries, err := store.ListMachineHistory(r.Context(), h.DB, id)
	if err != nil {
		h.Logger.Error("listing machine history", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}
