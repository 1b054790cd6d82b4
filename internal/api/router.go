package api

import (
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
)

// RouterConfig carries the router's runtime settings.
type RouterConfig struct {
	JWTSecret      string
	TokenExpiry    time.Duration
	RetentionYears int
}

// NewRouter creates the API router with all endpoints registered, wrapped in
// request-ID and logging middleware.
func NewRouter(db *sql.DB, logger *zap.Logger, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, Logger: logger, JWTSecret: cfg.JWTSecret, TokenExpiry: cfg.TokenExpiry}
	machinesHandler := &MachinesHandler{DB: db, Logger: logger, RetentionYears: cfg.RetentionYears}
	destinationsHandler := &DestinationsHandler{DB: db, Logger: logger}
	historyHandler := &HistoryHandler{DB: db, Logger: logger}
	usersHandler := &UsersHandler{DB: db, Logger: logger}

	authMW := AuthMiddleware(cfg.JWTSecret)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	RegisterMetrics(mux)

	// Authenticated.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Machines: read (all roles), transitions and edits (manager+),
	// destructive deletes (admin).
	mux.Handle("GET /api/machines", authMW(http.HandlerFunc(machinesHandler.List)))
	mux.Handle("POST /api/machines", authMW(requireManager(http.HandlerFunc(machinesHandler.Create))))
	mux.Handle("GET /api/machines/stock", authMW(http.HandlerFunc(machinesHandler.ListStock)))
	mux.Handle("GET /api/machines/repairs", authMW(http.HandlerFunc(machinesHandler.ListRepairs)))
	mux.Handle("GET /api/machines/delivered", authMW(http.HandlerFunc(machinesHandler.ListDelivered)))
	mux.Handle("GET /api/machines/destination/{id}", authMW(http.HandlerFunc(machinesHandler.ListByDestination)))
	mux.Handle("GET /api/machines/{id}", authMW(http.HandlerFunc(machinesHandler.Get)))
	mux.Handle("PUT /api/machines/{id}", authMW(requireManager(http.HandlerFunc(machinesHandler.Update))))
	mux.Handle("DELETE /api/machines/{id}", authMW(requireAdmin(http.HandlerFunc(machinesHandler.Delete))))
	mux.Handle("PUT /api/machines/{id}/assign", authMW(requireManager(http.HandlerFunc(machinesHandler.Assign))))
	mux.Handle("PUT /api/machines/{id}/repair", authMW(requireManager(http.HandlerFunc(machinesHandler.Repair))))
	mux.Handle("PUT /api/machines/{id}/finish-repair", authMW(requireManager(http.HandlerFunc(machinesHandler.FinishRepair))))
	mux.Handle("PUT /api/machines/{id}/deliver", authMW(requireManager(http.HandlerFunc(machinesHandler.Deliver))))
	mux.Handle("PUT /api/machines/check-delivered", authMW(requireManager(http.HandlerFunc(machinesHandler.CheckDelivered))))
	mux.Handle("POST /api/machines/bulk-delete", authMW(requireAdmin(http.HandlerFunc(machinesHandler.BulkDelete))))
	mux.Handle("GET /api/machines/{id}/history", authMW(http.HandlerFunc(machinesHandler.History)))

	// Destinations: read (all roles), write (manager+), seed (admin).
	mux.Handle("GET /api/destinations", authMW(http.HandlerFunc(destinationsHandler.List)))
	mux.Handle("POST /api/destinations", authMW(requireManager(http.HandlerFunc(destinationsHandler.Create))))
	mux.Handle("GET /api/destinations/{id}", authMW(http.HandlerFunc(destinationsHandler.Get)))
	mux.Handle("POST /api/init", authMW(requireAdmin(http.HandlerFunc(destinationsHandler.Init))))

	// History: read (all roles), corrections (admin).
	mux.Handle("GET /api/history", authMW(http.HandlerFunc(historyHandler.List)))
	mux.Handle("DELETE /api/history/{id}", authMW(requireAdmin(http.HandlerFunc(historyHandler.Delete))))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	return RequestIDMiddleware(LoggingMiddleware(logger)(mux))
}
