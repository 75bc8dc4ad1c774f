package api

import (
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/records"
)

// CreateModeRequest is the request body for registering a target mode.
type CreateModeRequest struct {
	ID   string `json:"id" example:"tenant-a" validate:"required"`
	Name string `json:"name" example:"Tenant A"`
}

// CreateCardRequest is the request body for creating a card. The id is
// allocated by the server.
type CreateCardRequest struct {
	Title         string   `json:"title" example:"Top speed"`
	SelectOptions []string `json:"selectOptions" example:"fast,slow"`
}

// CardListResponse wraps the cards of one mode in display order.
type CardListResponse struct {
	Cards []*records.Card `json:"cards" validate:"required"`
	Total int             `json:"total" example:"3" validate:"required"`
}

// NextIDResponse is returned by the id allocation endpoint.
type NextIDResponse struct {
	ID string `json:"id" example:"AA" validate:"required"`
}

// RuleListResponse wraps stored rules.
type RuleListResponse struct {
	Rules []linkage.Rule `json:"rules" validate:"required"`
}

// ReplaceRulesRequest is the request body for swapping the whole rule list.
type ReplaceRulesRequest struct {
	Rules []linkage.Rule `json:"rules" validate:"required"`
}

// ExportResponse names the rule file written by an export.
type ExportResponse struct {
	File string `json:"file" example:"speed.yaml" validate:"required"`
}

// HistoryResponse wraps history entries, newest first.
type HistoryResponse struct {
	Entries []ledger.Entry `json:"entries" validate:"required"`
}

// AuthorizationListResponse wraps ledger flags.
type AuthorizationListResponse struct {
	Authorizations []ledger.Authorization `json:"authorizations" validate:"required"`
}

// BuildKeyRequest is the request body for encoding a storage key.
type BuildKeyRequest struct {
	Prefix     string `json:"prefix" example:"cardsync"`
	Version    string `json:"version" example:"v1" validate:"required"`
	Type       string `json:"type" example:"envFull" validate:"required"`
	Identifier string `json:"identifier" example:"A" validate:"required"`
}

// BuildKeyResponse carries an encoded key.
type BuildKeyResponse struct {
	Key string `json:"key" example:"cardsync:v1:envFull:A" validate:"required"`
}

// TransformListResponse lists the registered transform names.
type TransformListResponse struct {
	Transforms []string `json:"transforms" validate:"required"`
}
