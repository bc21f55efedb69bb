package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vigor/internal/datastore"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/wellness"
)

// Handler holds API route handlers.
type Handler struct {
	svc *wellness.Service
	now func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(svc *wellness.Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// ListCategories handles GET /categories.
//
//	@Summary		List the user's categories
//	@Tags			categories
//	@Produce		json
//	@Success		200	{object}	CategoryListResponse
//	@Security		BearerAuth
//	@Router			/categories [get]
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.ListCategories(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, "list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, CategoryListResponse{Categories: cats})
}

// GetCategory handles GET /categories/{id}.
//
//	@Summary		Get a category
//	@Tags			categories
//	@Produce		json
//	@Param			id	path		string	true	"Category id"
//	@Success		200	{object}	models.Category
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories/{id} [get]
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCategory(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get category", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateCategory handles POST /categories.
//
//	@Summary		Create a category
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CategoryRequest	true	"Category to create"
//	@Success		201		{object}	models.Category
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories [post]
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.CreateCategory(r.Context(), UserFromContext(r.Context()), req.model())
	if err != nil {
		writeServiceError(w, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCategory handles PUT /categories/{id}.
//
//	@Summary		Replace a category
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Category id"
//	@Param			body	body		CategoryRequest	true	"New category fields"
//	@Success		200		{object}	models.Category
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories/{id} [put]
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.UpdateCategory(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"), req.model())
	if err != nil {
		writeServiceError(w, "update category", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCategory handles DELETE /categories/{id}.
//
//	@Summary		Delete a category with its goals and entries
//	@Tags			categories
//	@Param			id	path	string	true	"Category id"
//	@Success		204	"Category deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories/{id} [delete]
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCategory(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGoals handles GET /goals.
//
//	@Summary		List the user's goals
//	@Tags			goals
//	@Produce		json
//	@Success		200	{object}	GoalListResponse
//	@Security		BearerAuth
//	@Router			/goals [get]
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.svc.ListGoals(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, "list goals", err)
		return
	}
	writeJSON(w, http.StatusOK, GoalListResponse{Goals: goals})
}

// GetGoal handles GET /goals/{id}.
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.GetGoal(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get goal", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// CreateGoal handles POST /goals.
//
//	@Summary		Create a goal
//	@Tags			goals
//	@Accept			json
//	@Produce		json
//	@Param			body	body		GoalRequest	true	"Goal to create"
//	@Success		201		{object}	models.Goal
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/goals [post]
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := h.svc.CreateGoal(r.Context(), UserFromContext(r.Context()), req.model())
	if err != nil {
		writeServiceError(w, "create goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// UpdateGoal handles PUT /goals/{id}.
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := h.svc.UpdateGoal(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"), req.model())
	if err != nil {
		writeServiceError(w, "update goal", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// DeleteGoal handles DELETE /goals/{id}.
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteGoal(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /entries.
//
//	@Summary		List entries with optional day range and category filter
//	@Tags			entries
//	@Produce		json
//	@Param			date		query		string	false	"Single day (YYYY-MM-DD)"
//	@Param			from		query		string	false	"First day, inclusive"
//	@Param			to			query		string	false	"Last day, inclusive"
//	@Param			category_id	query		string	false	"Category filter"
//	@Success		200			{object}	EntryListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := datastore.EntryFilter{From: q.Get("from"), To: q.Get("to"), CategoryID: q.Get("category_id")}
	if d := q.Get("date"); d != "" {
		f.From, f.To = d, d
	}
	for _, day := range []string{f.From, f.To} {
		if day == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, day); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("dates must be YYYY-MM-DD"))
			return
		}
	}

	entries, err := h.svc.ListEntries(r.Context(), UserFromContext(r.Context()), f)
	if err != nil {
		writeServiceError(w, "list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: entries})
}

// GetEntry handles GET /entries/{id}.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetEntry(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CreateEntry handles POST /entries.
//
//	@Summary		Log an entry
//	@Tags			entries
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EntryRequest	true	"Entry to log"
//	@Success		201		{object}	models.Entry
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries [post]
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, ok := entryModel(w, req)
	if !ok {
		return
	}
	e, err := h.svc.CreateEntry(r.Context(), UserFromContext(r.Context()), entry)
	if err != nil {
		writeServiceError(w, "create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateEntry handles PUT /entries/{id}.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, ok := entryModel(w, req)
	if !ok {
		return
	}
	e, err := h.svc.UpdateEntry(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"), entry)
	if err != nil {
		writeServiceError(w, "update entry", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEntry handles DELETE /entries/{id}.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEntry(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard handles GET /dashboard.
//
//	@Summary		Progress summary for one day
//	@Tags			dashboard
//	@Produce		json
//	@Param			date	query		string	false	"Day (YYYY-MM-DD), defaults to today"
//	@Success		200		{object}	DashboardResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	day := h.now()
	if d := r.URL.Query().Get("date"); d != "" {
		t, err := models.ParseDate(d)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		day = t
	}
	sum, err := h.svc.Dashboard(r.Context(), UserFromContext(r.Context()), day)
	if err != nil {
		writeServiceError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func entryModel(w http.ResponseWriter, req EntryRequest) (models.Entry, bool) {
	e := models.Entry{
		ID:         req.ID,
		CategoryID: req.CategoryID,
		MetricID:   req.MetricID,
		Value:      req.Value,
		Note:       req.Note,
	}
	if req.Date != "" {
		t, err := models.ParseDate(req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return e, false
		}
		e.Date = t
	}
	return e, true
}
