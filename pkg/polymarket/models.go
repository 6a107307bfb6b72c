package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FloatString decodes a JSON number that the Gamma API sometimes encodes
// as a string ("125000.50") and sometimes as a bare number.
type FloatString float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FloatString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", s, err)
		}
		*f = FloatString(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FloatString(v)
	return nil
}

// MarshalJSON implements json.Marshaler, always emitting a number.
func (f FloatString) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(f))
}

// StringList decodes a JSON array of strings that the Gamma API sometimes
// double-encodes as a JSON string ("[\"Yes\", \"No\"]").
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*l = nil
		return nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		if inner == "" {
			*l = nil
			return nil
		}
		var items []string
		if err := json.Unmarshal([]byte(inner), &items); err != nil {
			return fmt.Errorf("invalid embedded string list %q: %w", inner, err)
		}
		*l = items
		return nil
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// MarshalJSON implements json.Marshaler, always emitting a plain array.
func (l StringList) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(l))
}

// Market is a single prediction market as served by the Gamma API.
type Market struct {
	ID            string      `json:"id"`
	Slug          string      `json:"slug,omitempty"`
	Question      string      `json:"question"`
	Description   string      `json:"description,omitempty"`
	Category      string      `json:"category,omitempty"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
	Archived      bool        `json:"archived,omitempty"`
	Liquidity     FloatString `json:"liquidity,omitempty"`
	Volume        FloatString `json:"volume,omitempty"`
	Volume24hr    FloatString `json:"volume24hr,omitempty"`
	StartDate     string      `json:"startDate,omitempty"`
	EndDate       string      `json:"endDate,omitempty"`
	Outcomes      StringList  `json:"outcomes,omitempty"`
	OutcomePrices StringList  `json:"outcomePrices,omitempty"`
	ConditionID   string      `json:"conditionId,omitempty"`
	MarketType    string      `json:"marketType,omitempty"`
	Image         string      `json:"image,omitempty"`
}

// Validate checks structural invariants of a decoded market. A market with
// outcomes must carry exactly one price per outcome, and every price string
// present must parse to a probability in [0, 1].
func (m *Market) Validate() error {
	if m.ID == "" {
		return &ParseError{Msg: "market has no id"}
	}
	if len(m.Outcomes) > 0 && len(m.OutcomePrices) > 0 && len(m.Outcomes) != len(m.OutcomePrices) {
		return &ParseError{Msg: fmt.Sprintf(
			"market %s has %d outcomes but %d prices", m.ID, len(m.Outcomes), len(m.OutcomePrices))}
	}
	for _, raw := range m.OutcomePrices {
		price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return &ParseError{Msg: fmt.Sprintf("market %s has unparseable price %q", m.ID, raw), Err: err}
		}
		if price < 0 || price > 1 {
			return &ParseError{Msg: fmt.Sprintf("market %s has price %v outside [0, 1]", m.ID, price)}
		}
	}
	return nil
}

// MarketPrice is a point-in-time price for one outcome of a market.
type MarketPrice struct {
	MarketID  string  `json:"market_id"`
	Outcome   string  `json:"outcome"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}
