package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/predictgate/polymarket-mcp/pkg/polymarket"
)

// Prompt describes one prompt template for prompts/list.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Default result sizes for prompts that render market lists.
const (
	defaultArbitrageLimit = 10
	defaultSummaryLimit   = 5
)

func promptDefinitions() []Prompt {
	return []Prompt{
		{
			Name:        "analyze_market",
			Description: "Analyze a prediction market and provide insights on trends, liquidity, and potential opportunities",
			Arguments: []PromptArgument{
				{Name: "market_id", Description: "The ID of the market to analyze", Required: true},
			},
		},
		{
			Name:        "find_arbitrage",
			Description: "Look for arbitrage opportunities across multiple markets with similar outcomes",
			Arguments: []PromptArgument{
				{Name: "keyword", Description: "Keyword to search for related markets", Required: true},
				{Name: "limit", Description: "Maximum number of markets to analyze (default: 10)", Required: false},
			},
		},
		{
			Name:        "market_summary",
			Description: "Provide a comprehensive summary of the top prediction markets",
			Arguments: []PromptArgument{
				{Name: "category", Description: "Filter by category (optional)", Required: false},
				{Name: "limit", Description: "Number of markets to include (default: 5)", Required: false},
			},
		},
	}
}

// promptArgs holds the raw prompt arguments. Values arrive untyped because
// limits are numbers while the rest are strings.
type promptArgs map[string]interface{}

func (a promptArgs) str(name string) string {
	if v, ok := a[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (a promptArgs) num(name string, fallback int) int {
	if v, ok := a[name].(float64); ok && v > 0 {
		return int(v)
	}
	return fallback
}

// renderPrompt gathers the market data a prompt needs and interpolates it
// into the template.
func (rt *Router) renderPrompt(ctx context.Context, name string, args promptArgs) (string, error) {
	switch name {
	case "analyze_market":
		id := args.str("market_id")
		if id == "" {
			return "", &Error{Code: CodeInvalidParams, Message: "market_id is required"}
		}

		market, err := rt.service.MarketByID(ctx, id)
		if err != nil {
			return "", err
		}
		prices, err := rt.service.Prices(ctx, id)
		if err != nil {
			return "", err
		}
		pricesJSON, err := json.MarshalIndent(prices, "", "  ")
		if err != nil {
			return "", err
		}

		return fmt.Sprintf(
			"Analyze this prediction market:\n\n"+
				"Market: %s\nQuestion: %s\nLiquidity: $%.0f\nVolume: $%.0f\nActive: %t\n\n"+
				"Current Prices:\n%s\n\n"+
				"Provide analysis on:\n"+
				"1. Market sentiment and trends\n"+
				"2. Liquidity assessment\n"+
				"3. Price efficiency\n"+
				"4. Potential trading opportunities\n"+
				"5. Risk factors",
			market.ID, market.Question, float64(market.Liquidity), float64(market.Volume),
			market.Active, pricesJSON), nil

	case "find_arbitrage":
		keyword := args.str("keyword")
		if keyword == "" {
			return "", &Error{Code: CodeInvalidParams, Message: "keyword is required"}
		}

		markets, err := rt.service.Search(ctx, keyword, args.num("limit", defaultArbitrageLimit))
		if err != nil {
			return "", err
		}
		marketsJSON, err := json.MarshalIndent(markets, "", "  ")
		if err != nil {
			return "", err
		}

		return fmt.Sprintf(
			"Find arbitrage opportunities among these related markets:\n\n"+
				"Keyword: %s\nMarkets found: %d\n\n%s\n\n"+
				"Analyze:\n"+
				"1. Similar questions with different prices\n"+
				"2. Cross-market arbitrage opportunities\n"+
				"3. Risk-adjusted returns\n"+
				"4. Execution feasibility\n"+
				"5. Recommended actions",
			keyword, len(markets), marketsJSON), nil

	case "market_summary":
		limit := args.num("limit", defaultSummaryLimit)

		trending, err := rt.service.Trending(ctx, limit)
		if err != nil {
			return "", err
		}
		active, err := rt.service.ActiveMarkets(ctx, limit)
		if err != nil {
			return "", err
		}
		if category := args.str("category"); category != "" {
			trending = filterByCategory(trending, category)
			active = filterByCategory(active, category)
		}

		trendingJSON, err := json.MarshalIndent(trending, "", "  ")
		if err != nil {
			return "", err
		}
		activeJSON, err := json.MarshalIndent(active, "", "  ")
		if err != nil {
			return "", err
		}

		return fmt.Sprintf(
			"Provide a comprehensive market summary:\n\n"+
				"Top Trending Markets (by volume):\n%s\n\n"+
				"Top Active Markets:\n%s\n\n"+
				"Summarize:\n"+
				"1. Overall market sentiment\n"+
				"2. Popular categories and themes\n"+
				"3. Liquidity distribution\n"+
				"4. Notable price movements\n"+
				"5. Trading recommendations",
			trendingJSON, activeJSON), nil

	default:
		return "", &Error{Code: CodeNotFound, Message: "unknown prompt: " + name}
	}
}

func filterByCategory(markets []polymarket.Market, category string) []polymarket.Market {
	cat := strings.ToLower(category)
	filtered := make([]polymarket.Market, 0, len(markets))
	for _, m := range markets {
		if strings.Contains(strings.ToLower(m.Category), cat) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func (rt *Router) handlePromptGet(ctx context.Context, req *Request) *Response {
	var params struct {
		Name      string     `json:"name"`
		Arguments promptArgs `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return NewErrorResponse(req.ID, CodeInvalidParams, "prompt name is required")
	}

	text, err := rt.renderPrompt(ctx, params.Name, params.Arguments)
	if err != nil {
		return rt.errorResponse(req.ID, err)
	}

	return NewResponse(req.ID, map[string]interface{}{
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": map[string]interface{}{
					"type": "text",
					"text": text,
				},
			},
		},
	})
}
