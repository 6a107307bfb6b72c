package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tool describes one callable tool for tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func toolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "get_active_markets",
			Description: "Get a list of currently active prediction markets",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"limit": {"type": "integer", "description": "Maximum number of markets to return (default 50, max 100)"}
				}
			}`),
		},
		{
			Name:        "get_market_details",
			Description: "Get detailed information about a specific market",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"market_id": {"type": "string", "description": "The market identifier"}
				},
				"required": ["market_id"]
			}`),
		},
		{
			Name:        "search_markets",
			Description: "Search active markets by keyword across question, description, and category",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"keyword": {"type": "string", "description": "Search keyword"},
					"limit": {"type": "integer", "description": "Maximum number of results (default 20, max 100)"}
				},
				"required": ["keyword"]
			}`),
		},
		{
			Name:        "get_market_prices",
			Description: "Get current outcome prices for a specific market",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"market_id": {"type": "string", "description": "The market identifier"}
				},
				"required": ["market_id"]
			}`),
		},
		{
			Name:        "get_trending_markets",
			Description: "Get active markets ranked by trading volume",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"limit": {"type": "integer", "description": "Maximum number of markets to return (default 10, max 100)"}
				}
			}`),
		},
	}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type limitArgs struct {
	Limit int `json:"limit"`
}

type marketIDArgs struct {
	MarketID string `json:"market_id"`
}

type searchArgs struct {
	Keyword string `json:"keyword"`
	Limit   int    `json:"limit"`
}

// handleToolCall validates arguments before touching the market service, so
// malformed calls never consume an upstream request.
func (rt *Router) handleToolCall(ctx context.Context, req *Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "invalid tools/call params")
	}

	var (
		result interface{}
		err    error
	)

	switch params.Name {
	case "get_active_markets":
		var args limitArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return rt.errorResponse(req.ID, err)
		}
		result, err = rt.service.ActiveMarkets(ctx, args.Limit)

	case "get_market_details":
		var args marketIDArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return rt.errorResponse(req.ID, err)
		}
		if strings.TrimSpace(args.MarketID) == "" {
			return NewErrorResponse(req.ID, CodeInvalidParams, "market_id is required")
		}
		result, err = rt.service.MarketByID(ctx, args.MarketID)

	case "search_markets":
		var args searchArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return rt.errorResponse(req.ID, err)
		}
		if strings.TrimSpace(args.Keyword) == "" {
			return NewErrorResponse(req.ID, CodeInvalidParams, "keyword is required")
		}
		result, err = rt.service.Search(ctx, args.Keyword, args.Limit)

	case "get_market_prices":
		var args marketIDArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return rt.errorResponse(req.ID, err)
		}
		if strings.TrimSpace(args.MarketID) == "" {
			return NewErrorResponse(req.ID, CodeInvalidParams, "market_id is required")
		}
		result, err = rt.service.Prices(ctx, args.MarketID)

	case "get_trending_markets":
		var args limitArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return rt.errorResponse(req.ID, err)
		}
		result, err = rt.service.Trending(ctx, args.Limit)

	default:
		return NewErrorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	if err != nil {
		return rt.errorResponse(req.ID, err)
	}
	return toolResponse(req.ID, result)
}

// decodeArgs rejects malformed argument objects as invalid params. Absent
// arguments decode to zero values, which the handlers treat as defaults.
func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid tool arguments: %v", err)}
	}
	return nil
}

// toolResponse wraps a result in the tools/call content envelope.
func toolResponse(id json.RawMessage, result interface{}) *Response {
	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return NewErrorResponse(id, CodeInternalError, "encoding tool result")
	}
	return NewResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	})
}
