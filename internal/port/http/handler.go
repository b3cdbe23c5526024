package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/automarket/consignment-service/internal/domain/entity"
	"github.com/automarket/consignment-service/internal/platform/logger"
	"github.com/automarket/consignment-service/internal/repository"
	"github.com/automarket/consignment-service/internal/service"
)

// ItemHandler exposes the item lifecycle over HTTP.
type ItemHandler struct {
	submissions  *service.SubmissionService
	orchestrator *service.Orchestrator
	log          logger.Logger
}

func NewItemHandler(submissions *service.SubmissionService, orchestrator *service.Orchestrator, log logger.Logger) *ItemHandler {
	return &ItemHandler{submissions: submissions, orchestrator: orchestrator, log: log}
}

func (h *ItemHandler) Routes(r chi.Router) {
	r.Post("/items", h.handleSubmit)
	r.Get("/items", h.handleList)
	r.Get("/items/{itemID}", h.handleGet)
	r.Get("/items/{itemID}/status", h.handleStatus)
	r.Post("/items/{itemID}/approve", h.handleApprove)
	r.Post("/items/{itemID}/reject", h.handleReject)
	r.Post("/items/{itemID}/list", h.handleListOnMarketplaces)
	r.Post("/items/{itemID}/unlist", h.handleUnlist)
	r.Post("/items/{itemID}/mark-sold", h.handleMarkSold)
	r.Post("/items/{itemID}/reprice", h.handleReprice)
}

func (h *ItemHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, service.NewValidationError("invalid request body: %v", err))
		return
	}
	item, err := h.submissions.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

func (h *ItemHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.submissions.Get(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) handleList(w http.ResponseWriter, r *http.Request) {
	params := repository.ListItemsParams{
		SortBy:    r.URL.Query().Get("sort_by"),
		SortOrder: r.URL.Query().Get("sort_order"),
	}
	for _, raw := range r.URL.Query()["status"] {
		status, err := entity.ParseItemStatus(raw)
		if err != nil {
			h.writeError(w, service.NewValidationError("unknown status filter %q", raw))
			return
		}
		params.Statuses = append(params.Statuses, status)
	}
	params.Page = queryInt(r, "page")
	params.PageSize = queryInt(r, "page_size")

	result, err := h.submissions.List(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.orchestrator.Status(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *ItemHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.Approve(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// The reason is optional, so an empty body is fine.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, service.NewValidationError("invalid request body: %v", err))
		return
	}
	result, err := h.orchestrator.Reject(r.Context(), chi.URLParam(r, "itemID"), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemHandler) handleListOnMarketplaces(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.List(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemHandler) handleUnlist(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.Unlist(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemHandler) handleMarkSold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform string  `json:"platform"`
		Price    float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, service.NewValidationError("invalid request body: %v", err))
		return
	}
	platform, err := entity.ParsePlatform(req.Platform)
	if err != nil {
		h.writeError(w, service.NewValidationError("unknown platform %q", req.Platform))
		return
	}
	result, err := h.orchestrator.MarkSold(r.Context(), chi.URLParam(r, "itemID"), platform, req.Price)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemHandler) handleReprice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, service.NewValidationError("invalid request body: %v", err))
		return
	}
	result, err := h.orchestrator.Reprice(r.Context(), chi.URLParam(r, "itemID"), req.Price)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *ItemHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Errorf("failed to encode response: %v", err)
	}
}

func (h *ItemHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case service.IsValidationError(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConcurrencyConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Errorf("request failed: %v", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
