package api

import (
	"net/http"

	"github.com/farmstand/farmstand/internal/schema"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SetupHandler exposes the schema setup runner to the storefront's setup panel.
type SetupHandler struct {
	runner *schema.Runner
	log    zerolog.Logger
}

func NewSetupHandler(runner *schema.Runner, log zerolog.Logger) *SetupHandler {
	return &SetupHandler{
		runner: runner,
		log:    log.With().Str("handler", "setup").Logger(),
	}
}

// Routes registers the setup endpoints.
func (h *SetupHandler) Routes(r chi.Router) {
	r.Get("/setup/status", h.Status)
	r.Post("/setup/run", h.Run)
	r.Post("/setup/migrations/{name}", h.RunOne)
	r.Get("/setup/migrations/{name}/sql", h.SQL)
}

// Status handles GET /api/v1/setup/status.
func (h *SetupHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"migrations": h.runner.Status(r.Context()),
	})
}

// Run handles POST /api/v1/setup/run. The report is returned either way;
// only the status code tells the panel whether to keep showing the retry.
func (h *SetupHandler) Run(w http.ResponseWriter, r *http.Request) {
	report := h.runner.Run(r.Context())
	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, report)
}

// RunOne handles POST /api/v1/setup/migrations/{name}.
func (h *SetupHandler) RunOne(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := schema.Lookup(name); !ok {
		WriteError(w, http.StatusNotFound, "unknown migration: "+name)
		return
	}
	outcome, err := h.runner.RunOne(r.Context(), name)
	if err != nil {
		h.log.Error().Err(err).Str("migration", name).Msg("run failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, outcome)
}

// SQL handles GET /api/v1/setup/migrations/{name}/sql.
func (h *SetupHandler) SQL(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := schema.Lookup(name)
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown migration: "+name)
		return
	}
	sql := m.SQL()
	if sql == "" {
		WriteErrorDetail(w, http.StatusNotFound, "migration has no SQL", name+" is applied through the storage API")
		return
	}
	WriteText(w, http.StatusOK, sql)
}
