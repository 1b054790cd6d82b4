package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
	"github.com/KhaoulaIchou/gestion-stocks/internal/store"
)

// DestinationsHandler handles destination endpoints.
type DestinationsHandler struct {
	DB     *sql.DB
	Logger *zap.Logger
}

type createDestinationRequest struct {
	Name string `json:"name"`
}

// List handles GET /api/destinations.
func (h *DestinationsHandler) List(w http.ResponseWriter, r *http.Request) {
	destinations, err := store.ListDestinations(r.Context(), h.DB)
	if err != nil {
		h.Logger.Error("listing destinations", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list destinations")
		return
	}
	if destinations == nil {
		destinations = []model.Destination{}
	}
	jsonResponse(w, http.StatusOK, destinations)
}

// Create handles POST /api/destinations.
func (h *DestinationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDestinationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	existing, err := store.GetDestinationByName(r.Context(), h.DB, req.Name)
	if err != nil {
		h.Logger.Error("checking destination", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to create destination")
		return
	}
	if existing != nil {
		jsonError(w, http.StatusConflict, "destination already exists")
		return
	}

	destination, err := store.CreateDestination(r.Context(), h.DB, req.Name)
	if err != nil {
		h.Logger.Error("creating destination", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to create destination")
		return
	}

	jsonResponse(w, http.StatusCreated, destination)
}

// Get handles GET /api/destinations/{id}, returning the destination with
// the machines currently assigned to it.
func (h *DestinationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid destination id")
		return
	}

	destination, err := store.GetDestination(r.Context(), h.DB, id)
	if err != nil {
		h.Logger.Error("getting destination", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to get destination")
		return
	}
	if destination == nil {
		jsonError(w, http.StatusNotFound, "destination not found")
		return
	}

	machines, err := store.ListMachinesByDestination(r.Context(), h.DB, id)
	if err != nil {
		h.Logger.Error("listing destination machines", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to list machines")
		return
	}
	if machines == nil {
		machines = []model.Machine{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"destination": destination,
		"machines":    machines,
	})
}

// Init handles POST /api/init, seeding the default destination catalogue.
// Safe to call more than once; existing names are kept.
func (h *DestinationsHandler) Init(w http.ResponseWriter, r *http.Request) {
	created, err := store.SeedDestinations(r.Context(), h.DB)
	if err != nil {
		h.Logger.Error("seeding destinations", zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "failed to seed destinations")
		return
	}

	h.Logger.Info("destination catalogue seeded", zap.Int("created", created))
	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "destinations insérées avec succès",
		"created": created,
	})
}
