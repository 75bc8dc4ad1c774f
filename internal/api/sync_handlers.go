package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/syncengine"
)

// ListRules handles GET /api/rules.
//
//	@Summary		List linkage rules
//	@Tags			rules
//	@Produce		json
//	@Success		200	{object}	RuleListResponse
//	@Security		BearerAuth
//	@Router			/rules [get]
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules()
	if err != nil {
		writeError(w, r, "list rules", err)
		return
	}
	writeJSON(w, http.StatusOK, RuleListResponse{Rules: rules})
}

// GetRule handles GET /api/rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.GetRule(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /api/rules.
//
//	@Summary		Create a linkage rule; an empty id is generated
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			body	body		linkage.Rule	true	"Rule to create"
//	@Success		201		{object}	linkage.Rule
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules [post]
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule linkage.Rule
	if !decodeJSON(w, r, &rule) {
		return
	}
	saved, err := h.svc.CreateRule(rule)
	if err != nil {
		writeError(w, r, "create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// UpdateRule handles PUT /api/rules/{id}. The path id wins over the body.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.GetRule(id); err != nil {
		writeError(w, r, "update rule", err)
		return
	}
	var rule linkage.Rule
	if !decodeJSON(w, r, &rule) {
		return
	}
	rule.ID = id
	saved, err := h.svc.SaveRule(rule)
	if err != nil {
		writeError(w, r, "update rule", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// ReplaceRules handles PUT /api/rules.
//
//	@Summary		Replace the whole rule list
//	@Tags			rules
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReplaceRulesRequest	true	"Every rule, each with an id"
//	@Success		200		{object}	RuleListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules [put]
func (h *Handler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	var req ReplaceRulesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ReplaceRules(req.Rules); err != nil {
		writeError(w, r, "replace rules", err)
		return
	}
	h.ListRules(w, r)
}

// DeleteRule handles DELETE /api/rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRule(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteRule handles POST /api/rules/{id}/execute.
//
//	@Summary		Run a rule from its source mode into its target
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Rule id"
//	@Success		200	{object}	syncengine.LinkageResult
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse	"Rule is disabled"
//	@Security		BearerAuth
//	@Router			/rules/{id}/execute [post]
func (h *Handler) ExecuteRule(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ExecuteLinkage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "execute rule", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ReverseRule handles POST /api/rules/{id}/reverse.
//
//	@Summary		Run a rule backwards, from its target into its source
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Rule id"
//	@Success		200	{object}	syncengine.LinkageResult
//	@Security		BearerAuth
//	@Router			/rules/{id}/reverse [post]
func (h *Handler) ReverseRule(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReverseLinkage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "reverse rule", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportRule handles POST /api/rules/{id}/export.
func (h *Handler) ExportRule(w http.ResponseWriter, r *http.Request) {
	name, err := h.svc.ExportRule(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "export rule", err)
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{File: name})
}

// ListTransforms handles GET /api/transforms.
func (h *Handler) ListTransforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TransformListResponse{Transforms: h.svc.Transforms()})
}

// Push handles POST /api/push.
//
//	@Summary		Copy whole cards from the source mode into a target
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		syncengine.PushRequest	true	"Push request"
//	@Success		200		{object}	syncengine.PushResult
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		422		{object}	errResponse	"Reserved value in a replicated field"
//	@Security		BearerAuth
//	@Router			/push [post]
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	var req syncengine.PushRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Push(r.Context(), req)
	if err != nil {
		writeError(w, r, "push", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListHistory handles GET /api/history.
//
//	@Summary		List sync history, newest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int	false	"Max entries"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.History(limit)
	if err != nil {
		writeError(w, r, "list history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// GetHistory handles GET /api/history/{id}.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.HistoryEntry(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get history", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ListAuthorizations handles GET /api/authorizations.
//
//	@Summary		List field authorization flags
//	@Tags			history
//	@Produce		json
//	@Param			source	query		string	false	"Source mode filter"
//	@Param			target	query		string	false	"Target mode filter"
//	@Success		200		{object}	AuthorizationListResponse
//	@Security		BearerAuth
//	@Router			/authorizations [get]
func (h *Handler) ListAuthorizations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	auths, err := h.svc.Authorizations(q.Get("source"), q.Get("target"))
	if err != nil {
		writeError(w, r, "list authorizations", err)
		return
	}
	writeJSON(w, http.StatusOK, AuthorizationListResponse{Authorizations: auths})
}

// BuildKey handles POST /api/keys.
//
//	@Summary		Encode a storage key
//	@Tags			keys
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BuildKeyRequest	true	"Key parts"
//	@Success		200		{object}	BuildKeyResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/keys [post]
func (h *Handler) BuildKey(w http.ResponseWriter, r *http.Request) {
	var req BuildKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, err := h.svc.BuildKey(storekey.Spec{
		Prefix:     req.Prefix,
		Version:    req.Version,
		Type:       req.Type,
		Identifier: req.Identifier,
	})
	if err != nil {
		writeError(w, r, "build key", err)
		return
	}
	writeJSON(w, http.StatusOK, BuildKeyResponse{Key: key})
}

// ParseKey handles GET /api/keys/parse?key=...
//
// Malformed keys are not an error: the response carries valid=false.
func (h *Handler) ParseKey(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'key' is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ParseKey(key))
}
