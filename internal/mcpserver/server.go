// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes cardsync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cardsync/internal/cardid"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/syncengine"
	"github.com/starford/cardsync/internal/syncservice"
)

const keyFormatURI = "cardsync://key-format"

// Server wraps the MCP server with cardsync tools.
type Server struct {
	mcp *server.MCPServer
	svc *syncservice.Service
}

// New creates a new MCP server with all cardsync tools registered.
func New(svc *syncservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"cardsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("allocate_card_id",
		mcp.WithDescription("Return the next card id. Pass a mode to allocate against its stored cards, "+
			"or a list of used ids. The result is the successor of the largest id, never a filled gap."),
		mcp.WithString("mode", mcp.Description("Mode whose cards are in use")),
		mcp.WithArray("used", mcp.WithStringItems(), mcp.Description("Card ids in use (ignored when mode is set)")),
	), s.allocateCardID)

	s.mcp.AddTool(mcp.NewTool("build_key",
		mcp.WithDescription("Encode a storage key prefix:version:type:identifier."),
		mcp.WithString("prefix", mcp.Description("Namespace, defaults to cardsync")),
		mcp.WithString("version", mcp.Required(), mcp.Description("Data version, e.g. v1")),
		mcp.WithString("type", mcp.Required(), mcp.Description("envFull or questionBank (aliases accepted)")),
		mcp.WithString("identifier", mcp.Required(), mcp.Description("Card id, full id, or _")),
	), s.buildKey)

	s.mcp.AddTool(mcp.NewTool("parse_key",
		mcp.WithDescription("Decode a storage key. Malformed keys come back with valid=false."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Key to decode")),
	), s.parseKey)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List the cards of a mode in display order."),
		mcp.WithString("mode", mcp.Required(), mcp.Description("Mode id")),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List linkage rules."),
	), s.listRules)

	s.mcp.AddTool(mcp.NewTool("execute_linkage",
		mcp.WithDescription("Run a linkage rule from its source mode into its target."),
		mcp.WithString("rule_id", mcp.Required(), mcp.Description("Rule id")),
	), s.executeLinkage)

	s.mcp.AddTool(mcp.NewTool("reverse_linkage",
		mcp.WithDescription("Run a linkage rule backwards, from its target into its source."),
		mcp.WithString("rule_id", mcp.Required(), mcp.Description("Rule id")),
	), s.reverseLinkage)

	s.mcp.AddTool(mcp.NewTool("push_records",
		mcp.WithDescription("Copy whole cards from the source mode into a target. "+
			"Read the addressing contract (get_key_contract or the cardsync://key-format resource) "+
			"for fixed and configurable fields."),
		mcp.WithString("initiator", mcp.Required(), mcp.Description("Mode starting the push; must be the source")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target mode id")),
		mcp.WithArray("card_ids", mcp.WithStringItems(), mcp.Description("Cards to push; empty pushes all")),
		mcp.WithArray("sync_fields", mcp.WithStringItems(), mcp.Description("Configurable fields to replicate")),
		mcp.WithArray("auth_fields", mcp.WithStringItems(), mcp.Description("Synced fields the target may still edit")),
	), s.pushRecords)

	s.mcp.AddTool(mcp.NewTool("sync_history",
		mcp.WithDescription("List sync history entries, newest first."),
		mcp.WithNumber("limit", mcp.Description("Max entries (0 for all)")),
	), s.syncHistory)

	s.mcp.AddTool(mcp.NewTool("get_key_contract",
		mcp.WithDescription("Returns the cardsync addressing contract: keys, ids, reserved values and sync fields."),
	), s.getKeyContract)

	s.mcp.AddResource(
		mcp.NewResource(keyFormatURI, "Addressing Contract",
			mcp.WithResourceDescription("Storage key, card id and value rules of cardsync."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readKeyFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) allocateCardID(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		id  string
		err error
	)
	if mode := req.GetString("mode", ""); mode != "" {
		id, err = s.svc.NextCardID(ctx, mode)
	} else {
		id, err = cardid.NextCardID(req.GetStringSlice("used", nil))
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(id), nil
}

func (s *Server) buildKey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	version, err := req.RequireString("version")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ident, err := req.RequireString("identifier")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := s.svc.BuildKey(storekey.Spec{
		Prefix:     req.GetString("prefix", ""),
		Version:    version,
		Type:       typ,
		Identifier: ident,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(key), nil
}

func (s *Server) parseKey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.ParseKey(key))
}

func (s *Server) listCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := req.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cards, err := s.svc.Records().ListCards(ctx, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cards)
}

func (s *Server) listRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rules, err := s.svc.ListRules()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rules)
}

func (s *Server) executeLinkage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ruleID, err := req.RequireString("rule_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ExecuteLinkage(ctx, ruleID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) reverseLinkage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ruleID, err := req.RequireString("rule_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ReverseLinkage(ctx, ruleID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) pushRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	initiator, err := req.RequireString("initiator")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Push(ctx, syncengine.PushRequest{
		Initiator:    initiator,
		TargetModeID: target,
		CardIDs:      req.GetStringSlice("card_ids", nil),
		SyncFields:   req.GetStringSlice("sync_fields", nil),
		AuthFields:   req.GetStringSlice("auth_fields", nil),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) syncHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.History(req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries)
}

func (s *Server) getKeyContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(KeyFormatContract), nil
}

func (s *Server) readKeyFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      keyFormatURI,
			MIMEType: "text/markdown",
			Text:     KeyFormatContract,
		},
	}, nil
}
