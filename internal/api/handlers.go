package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"compliance-monitor/internal/bus"
	"compliance-monitor/internal/compliance"
	"compliance-monitor/internal/metrics"
	"compliance-monitor/internal/service"
	"compliance-monitor/internal/storage"
)

// Service is implemented by *service.Service.
type Service interface {
	ListRules(ctx context.Context) ([]compliance.Rule, error)
	ListAppliedRules(ctx context.Context) ([]compliance.AppliedRule, error)
	ApplyRule(ctx context.Context, req compliance.ApplyRequest) (compliance.AppliedRule, error)
	DeactivateRule(ctx context.Context, id int64, actor string) error
	ListTagRules(ctx context.Context) ([]compliance.TagRule, error)
	ApplyTagRule(ctx context.Context, rule compliance.TagRule) (compliance.TagRule, error)
	DeactivateTagRule(ctx context.Context, id int64, actor string) error
	ListWhitelist(ctx context.Context, objectType compliance.ObjectType) ([]compliance.WhitelistEntry, error)
	AddToWhitelist(ctx context.Context, entry compliance.WhitelistEntry) (compliance.WhitelistEntry, error)
	RemoveFromWhitelist(ctx context.Context, id int64, actor string) error
	RemoveWhitelistEntries(ctx context.Context, ids []int64, actor string) (int64, error)
	WarehouseCompliance(ctx context.Context, f compliance.Filter) (service.Report[compliance.ObjectCompliance], error)
	RetentionCompliance(ctx context.Context, objectType compliance.ObjectType, f compliance.Filter) (service.Report[compliance.ObjectCompliance], error)
	TagCompliance(ctx context.Context, objectType compliance.ObjectType, f compliance.Filter) (service.Report[compliance.ObjectTagCompliance], error)
	FixScript(ctx context.Context, evaluation string, objectType compliance.ObjectType, f compliance.Filter) (string, error)
	RequestRefresh(ctx context.Context, source, actor string) (bus.RefreshRequest, error)
	RefreshRuns(ctx context.Context, source string, limit int) ([]storage.RefreshRun, error)
}

// ActorHeader names the user on requests whose body has no actor field.
const ActorHeader = "X-Actor"

type Handler struct {
	Service Service
	Timeout time.Duration
	Logger  *slog.Logger
}

type errorResponse struct {
	Ok      bool                     `json:"ok"`
	Code    string                   `json:"code"`
	Message string                   `json:"message"`
	Details []compliance.ErrorDetail `json:"details"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/rules", h.handleRulesList)
	r.Route("/applied-rules", func(r chi.Router) {
		r.Get("/", h.handleAppliedRulesList)
		r.Post("/", h.handleApplyRule)
		r.Post("/{id}/deactivate", h.handleDeactivateRule)
	})
	r.Route("/tag-rules", func(r chi.Router) {
		r.Get("/", h.handleTagRulesList)
		r.Post("/", h.handleApplyTagRule)
		r.Post("/{id}/deactivate", h.handleDeactivateTagRule)
	})
	r.Route("/whitelist", func(r chi.Router) {
		r.Get("/", h.handleWhitelistList)
		r.Post("/", h.handleWhitelistAdd)
		r.Post("/remove", h.handleWhitelistBulkRemove)
		r.Delete("/{id}", h.handleWhitelistRemove)
	})
	r.Route("/compliance", func(r chi.Router) {
		r.Get("/warehouses", h.handleWarehouseCompliance)
		r.Get("/retention", h.handleRetentionCompliance)
		r.Get("/tags", h.handleTagCompliance)
		r.Get("/{evaluation}/fix-sql", h.handleFixSQL)
	})
	r.Post("/inventory/refresh", h.handleRefresh)
	r.Get("/inventory/runs", h.handleRefreshRuns)
}

func (h *Handler) handleRulesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rules, err := h.Service.ListRules(ctx)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) handleAppliedRulesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rules, err := h.Service.ListAppliedRules(ctx)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) handleApplyRule(w http.ResponseWriter, r *http.Request) {
	var req compliance.ApplyRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if req.AppliedBy == "" {
		req.AppliedBy = actor(r)
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rule, err := h.Service.ApplyRule(ctx, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) handleDeactivateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Service.DeactivateRule(ctx, id, actor(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleTagRulesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rules, err := h.Service.ListTagRules(ctx)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) handleApplyTagRule(w http.ResponseWriter, r *http.Request) {
	var req tagRuleRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if req.AppliedBy == "" {
		req.AppliedBy = actor(r)
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rule, err := h.Service.ApplyTagRule(ctx, compliance.TagRule{
		TagName:     req.TagName,
		ObjectType:  compliance.ObjectType(req.ObjectType),
		Description: req.Description,
		AppliedBy:   req.AppliedBy,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) handleDeactivateTagRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Service.DeactivateTagRule(ctx, id, actor(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleWhitelistList(w http.ResponseWriter, r *http.Request) {
	objectType, ok := queryObjectType(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	entries, err := h.Service.ListWhitelist(ctx, objectType)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleWhitelistAdd(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if req.WhitelistedBy == "" {
		req.WhitelistedBy = actor(r)
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	entry, err := h.Service.AddToWhitelist(ctx, compliance.WhitelistEntry{
		RuleID:        req.RuleID,
		AppliedRuleID: req.AppliedRuleID,
		ObjectType:    compliance.ObjectType(req.ObjectType),
		ObjectName:    req.ObjectName,
		TagName:       req.TagName,
		Reason:        req.Reason,
		WhitelistedBy: req.WhitelistedBy,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleWhitelistRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Service.RemoveFromWhitelist(ctx, id, actor(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleWhitelistBulkRemove(w http.ResponseWriter, r *http.Request) {
	var req bulkRemoveRequest
	if err := decode(r, &req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	removed, err := h.Service.RemoveWhitelistEntries(ctx, req.IDs, actor(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "removed": removed})
}

func (h *Handler) handleWarehouseCompliance(w http.ResponseWriter, r *http.Request) {
	f, ok := queryFilter(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	report, err := h.Service.WarehouseCompliance(ctx, f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleRetentionCompliance(w http.ResponseWriter, r *http.Request) {
	objectType, ok := queryObjectType(w, r)
	if !ok {
		return
	}
	f, ok := queryFilter(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	report, err := h.Service.RetentionCompliance(ctx, objectType, f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleTagCompliance(w http.ResponseWriter, r *http.Request) {
	objectType, ok := queryObjectType(w, r)
	if !ok {
		return
	}
	f, ok := queryFilter(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	report, err := h.Service.TagCompliance(ctx, objectType, f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleFixSQL(w http.ResponseWriter, r *http.Request) {
	evaluation := chi.URLParam(r, "evaluation")
	switch evaluation {
	case metrics.EvaluationWarehouses, metrics.EvaluationRetention, metrics.EvaluationTags:
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Ok: false, Code: "NOT_FOUND", Message: "unknown evaluation " + evaluation})
		return
	}
	objectType, ok := queryObjectType(w, r)
	if !ok {
		return
	}
	f, ok := queryFilter(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	script, err := h.Service.FixScript(ctx, evaluation, objectType, f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(script))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	// An empty body refreshes every source, whatever the framing.
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeServiceError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	sent, err := h.Service.RequestRefresh(ctx, strings.TrimSpace(req.Source), actor(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sent)
}

func (h *Handler) handleRefreshRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "invalid limit"})
			return
		}
		limit = parsed
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	runs, err := h.Service.RefreshRuns(ctx, r.URL.Query().Get("source"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// writeServiceError maps validation failures to 422, unknown ids to 404 and
// everything else to 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *compliance.ValidationError
	switch {
	case errors.Is(err, errBadJSON):
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Ok:      false,
			Code:    verr.Code,
			Message: verr.Error(),
			Details: verr.Details,
		})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Ok: false, Code: "NOT_FOUND", Message: "not found"})
	default:
		if h.Logger != nil {
			h.Logger.Error("request failed", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Ok: false, Code: "INTERNAL", Message: err.Error()})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryObjectType(w http.ResponseWriter, r *http.Request) (compliance.ObjectType, bool) {
	raw := r.URL.Query().Get("objectType")
	if strings.TrimSpace(raw) == "" {
		return "", true
	}
	objectType, ok := compliance.ParseObjectType(raw)
	if !ok || !objectType.IsInventoryType() {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Ok:      false,
			Code:    "OBJECT_TYPE_INVALID",
			Message: "unsupported object type " + raw,
			Details: []compliance.ErrorDetail{{Field: "objectType", Problem: "invalid", Hint: "Use WAREHOUSE, DATABASE, SCHEMA or TABLE"}},
		})
		return "", false
	}
	return objectType, true
}

func queryFilter(w http.ResponseWriter, r *http.Request) (compliance.Filter, bool) {
	status, ok := compliance.ParseStatusFilter(r.URL.Query().Get("status"))
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Ok:      false,
			Code:    "STATUS_INVALID",
			Message: "unknown status filter",
			Details: []compliance.ErrorDetail{{Field: "status", Problem: "invalid", Hint: "Use all, compliant, non-compliant, whitelisted or non-compliant-first"}},
		})
		return compliance.Filter{}, false
	}
	return compliance.Filter{Status: status, Search: r.URL.Query().Get("search")}, true
}

func actor(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(ActorHeader)); v != "" {
		return v
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
