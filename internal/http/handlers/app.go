package handlers

import (
	"encoding/json"
	"net/http"

	"plangen/internal/domain"
	"plangen/internal/infra"
)

// App bundles the dependencies shared by the HTTP handlers.
type App struct {
	Jobs   domain.JobRepository
	Cache  domain.CacheRepository
	Config *infra.Config
	Logger infra.Logger
}

func NewApp(jobs domain.JobRepository, cache domain.CacheRepository, cfg *infra.Config, logger infra.Logger) *App {
	return &App{Jobs: jobs, Cache: cache, Config: cfg, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
