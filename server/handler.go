package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bhaktidev/bhakti-sync/logging"
	"github.com/bhaktidev/bhakti-sync/record"
)

const maxBodyBytes = 1 << 20

// Handler serves the tracker sync API over a Store.
type Handler struct {
	store  *Store
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(store *Store) *Handler {
	return &Handler{
		store:  store,
		logger: logging.WithComponent("server"),
		now:    time.Now,
	}
}

// Routes returns the API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/mantras", h.handleGetMantras)
	mux.HandleFunc("GET /api/mantras/{date}", h.handleGetMantras)
	mux.HandleFunc("PUT /api/mantras", h.handleSetMantra)
	mux.HandleFunc("POST /api/mantras/increment", h.handleIncrementMantra)
	mux.HandleFunc("GET /api/activities", h.handleGetActivities)
	mux.HandleFunc("GET /api/activities/{date}", h.handleGetActivities)
	mux.HandleFunc("PUT /api/activities", h.handleSetActivity)
	mux.HandleFunc("GET /api/summary/{date}", h.handleSummary)
	mux.HandleFunc("GET /api/weekly", h.handleWeekly)

	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

// requestDate resolves the date for a read request: path parameter, then
// query parameter, then today.
func (h *Handler) requestDate(r *http.Request) (string, error) {
	date := r.PathValue("date")
	if date == "" {
		date = r.URL.Query().Get("date")
	}
	if date == "" {
		return record.FormatDate(h.now()), nil
	}
	if err := record.ValidateDate(date); err != nil {
		return "", err
	}
	return date, nil
}

func (h *Handler) handleGetMantras(w http.ResponseWriter, r *http.Request) {
	date, err := h.requestDate(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	mantras, err := h.store.MantrasForDate(r.Context(), date)
	if err != nil {
		h.logger.LogError(r.Context(), err, "list mantras failed")
		respondWithError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if mantras == nil {
		mantras = []Mantra{}
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"mantras": mantras,
	})
}

func (h *Handler) handleSetMantra(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Date  string `json:"date"`
		Count int    `json:"count"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Date == "" {
		req.Date = record.FormatDate(h.now())
	}
	if err := record.ValidateDate(req.Date); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Count < 0 {
		respondWithError(w, http.StatusBadRequest, "count must be non-negative")
		return
	}

	mantra, err := h.store.SetMantraCount(r.Context(), req.Name, req.Date, req.Count)
	if err != nil {
		h.logger.LogError(r.Context(), err, "set mantra failed")
		respondWithError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	respondWithJSON(w, http.StatusOK, mantra)
}

func (h *Handler) handleIncrementMantra(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Date string `json:"date"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Date == "" {
		req.Date = record.FormatDate(h.now())
	}
	if err := record.ValidateDate(req.Date); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	mantra, err := h.store.IncrementMantra(r.Context(), req.Name, req.Date)
	if err != nil {
		h.logger.LogError(r.Context(), err, "increment mantra failed")
		respondWithError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	respondWithJSON(w, http.StatusOK, mantra)
}

func (h *Handler) handleGetActivities(w http.ResponseWriter, r *http.Request) {
	date, err := h.requestDate(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	activities, err := h.store.ActivitiesForDate(r.Context(), date)
	if err != nil {
		h.logger.LogError(r.Context(), err, "list activities failed")
		respondWithError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if activities == nil {
		activities = []Activity{}
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"date":       date,
		"activities": activities,
	})
}

func (h *Handler) handleSetActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Date      string `json:"date"`
		Completed bool   `json:"completed"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Date == "" {
		req.Date = record.FormatDate(h.now())
	}
	if err := record.ValidateDate(req.Date); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	activity, err := h.store.SetActivityState(r.Context(), req.Name, req.Date, req.Completed)
	if err != nil {
		h.logger.LogError(r.Context(), err, "set activity failed")
		respondWithError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	respondWithJSON(w, http.StatusOK, activity)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	date, err := h.requestDate(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	mantras, err := h.store.MantrasForDate(r.Context(), date)
	if err != nil {
		h.logger.LogError(r.Context(), err, "summary failed")
		respondWithError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	activities, err := h.store.ActivitiesForDate(r.Context(), date)
	if err != nil {
		h.logger.LogError(r.Context(), err, "summary failed")
		respondWithError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"date":       date,
		"mantras":    mantras,
		"activities": activities,
	})
}

// handleWeekly returns every counter row in the 7-day window ending at the
// end date (query parameter, defaulting to today).
func (h *Handler) handleWeekly(w http.ResponseWriter, r *http.Request) {
	end := r.URL.Query().Get("end")
	if end == "" {
		end = record.FormatDate(h.now())
	}
	endDay, err := record.ParseDate(end)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	start := record.FormatDate(endDay.AddDate(0, 0, -6))

	data, err := h.store.WeeklySummary(r.Context(), start, end)
	if err != nil {
		h.logger.LogError(r.Context(), err, "weekly summary failed")
		respondWithError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if data == nil {
		data = []WeeklyCount{}
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"start": start,
		"end":   end,
		"data":  data,
	})
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
