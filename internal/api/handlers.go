package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsync/internal/records"
	"github.com/starford/cardsync/internal/syncservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *syncservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *syncservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListModes handles GET /api/modes.
//
//	@Summary		List the source mode and every registered target
//	@Tags			modes
//	@Produce		json
//	@Success		200	{array}	records.Mode
//	@Security		BearerAuth
//	@Router			/modes [get]
func (h *Handler) ListModes(w http.ResponseWriter, r *http.Request) {
	modes, err := h.svc.Modes()
	if err != nil {
		writeError(w, r, "list modes", err)
		return
	}
	writeJSON(w, http.StatusOK, modes)
}

// CreateMode handles POST /api/modes.
//
//	@Summary		Register a target mode
//	@Tags			modes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateModeRequest	true	"Mode to register"
//	@Success		201		{object}	records.Mode
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modes [post]
func (h *Handler) CreateMode(w http.ResponseWriter, r *http.Request) {
	var req CreateModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode := records.Mode{ID: req.ID, Name: req.Name}
	if err := h.svc.RegisterMode(mode); err != nil {
		writeError(w, r, "create mode", err)
		return
	}
	writeJSON(w, http.StatusCreated, mode)
}

// DeleteMode handles DELETE /api/modes/{mode}.
//
//	@Summary		Unregister a target mode; its cards stay stored
//	@Tags			modes
//	@Param			mode	path	string	true	"Mode id"
//	@Success		204		"Mode removed"
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modes/{mode} [delete]
func (h *Handler) DeleteMode(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveMode(chi.URLParam(r, "mode")); err != nil {
		writeError(w, r, "delete mode", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCards handles GET /api/modes/{mode}/cards.
//
//	@Summary		List the cards of a mode in display order
//	@Tags			cards
//	@Produce		json
//	@Param			mode	path		string	true	"Mode id"
//	@Success		200		{object}	CardListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modes/{mode}/cards [get]
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.svc.Records().ListCards(r.Context(), chi.URLParam(r, "mode"))
	if err != nil {
		writeError(w, r, "list cards", err)
		return
	}
	writeJSON(w, http.StatusOK, CardListResponse{Cards: cards, Total: len(cards)})
}

// NextCardID handles GET /api/modes/{mode}/cards/next-id.
//
//	@Summary		Preview the id the next created card would get
//	@Tags			cards
//	@Produce		json
//	@Param			mode	path		string	true	"Mode id"
//	@Success		200		{object}	NextIDResponse
//	@Security		BearerAuth
//	@Router			/modes/{mode}/cards/next-id [get]
func (h *Handler) NextCardID(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.NextCardID(r.Context(), chi.URLParam(r, "mode"))
	if err != nil {
		writeError(w, r, "next card id", err)
		return
	}
	writeJSON(w, http.StatusOK, NextIDResponse{ID: id})
}

// GetCard handles GET /api/modes/{mode}/cards/{id}.
//
//	@Summary		Get a single card
//	@Tags			cards
//	@Produce		json
//	@Param			mode	path		string	true	"Mode id"
//	@Param			id		path		string	true	"Card id"
//	@Success		200		{object}	records.Card
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modes/{mode}/cards/{id} [get]
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Records().GetCard(r.Context(), chi.URLParam(r, "mode"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get card", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateCard handles POST /api/modes/{mode}/cards.
//
//	@Summary		Create a card with the next free id
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			mode	path		string				true	"Mode id"
//	@Param			body	body		CreateCardRequest	true	"Card to create"
//	@Success		201		{object}	records.Card
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modes/{mode}/cards [post]
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.Records().CreateCard(r.Context(), chi.URLParam(r, "mode"), req.Title, req.SelectOptions)
	if err != nil {
		writeError(w, r, "create card", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCard handles PATCH /api/modes/{mode}/cards/{id}.
//
// Fields replicated into a target mode without authorization are
// read-only there; touching one yields 403 and nothing is written.
//
//	@Summary		Edit a card locally
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			mode	path		string				true	"Mode id"
//	@Param			id		path		string				true	"Card id"
//	@Param			body	body		records.CardPatch	true	"Fields to change"
//	@Success		200		{object}	records.Card
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modes/{mode}/cards/{id} [patch]
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	var patch records.CardPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	c, err := h.svc.Records().UpdateCard(r.Context(), chi.URLParam(r, "mode"), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, "update card", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AddOption handles POST /api/modes/{mode}/cards/{id}/options.
//
//	@Summary		Append an option with the next free option id
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			mode	path		string				true	"Mode id"
//	@Param			id		path		string				true	"Card id"
//	@Param			body	body		records.OptionInput	true	"Option parts"
//	@Success		201		{object}	records.Card
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modes/{mode}/cards/{id}/options [post]
func (h *Handler) AddOption(w http.ResponseWriter, r *http.Request) {
	var in records.OptionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	c, err := h.svc.Records().AddOption(r.Context(), chi.URLParam(r, "mode"), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, "add option", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// DeleteCard handles DELETE /api/modes/{mode}/cards/{id}.
//
//	@Summary		Delete a card
//	@Tags			cards
//	@Param			mode	path	string	true	"Mode id"
//	@Param			id		path	string	true	"Card id"
//	@Success		204		"Card deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modes/{mode}/cards/{id} [delete]
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Records().DeleteCard(r.Context(), chi.URLParam(r, "mode"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
