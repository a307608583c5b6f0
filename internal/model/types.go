package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one historical OHLCV bar as delivered by the gateway.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	WAP    float64   `json:"wap"`
	Count  int64     `json:"count"`
}

// Tick holds the latest per-field values for one market data line.
// Fields that have not ticked yet are zero.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	BidSize   int64     `json:"bid_size"`
	AskSize   int64     `json:"ask_size"`
	LastSize  int64     `json:"last_size"`
	Volume    int64     `json:"volume"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Price returns the best available price for the tick, trying last, close,
// the bid/ask midpoint, then either side alone. ok is false when nothing
// has ticked.
func (t *Tick) Price() (float64, bool) {
	if t.Last > 0 {
		return t.Last, true
	}
	if t.Close > 0 {
		return t.Close, true
	}
	if t.Bid > 0 && t.Ask > 0 {
		return (t.Bid + t.Ask) / 2, true
	}
	if t.Bid > 0 {
		return t.Bid, true
	}
	if t.Ask > 0 {
		return t.Ask, true
	}
	return 0, false
}

// Empty reports whether no field of the tick has been populated.
func (t *Tick) Empty() bool {
	_, ok := t.Price()
	return !ok && t.Volume == 0 && t.BidSize == 0 && t.AskSize == 0
}

// Position is a signed holding for one symbol.
type Position struct {
	Account       string          `json:"account"`
	Symbol        string          `json:"symbol"`
	SecType       string          `json:"sec_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	MarketPrice   decimal.Decimal `json:"market_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	// EntryTime is synthesized: the first time a nonzero quantity was
	// observed for the symbol. Cleared when the quantity returns to zero.
	EntryTime time.Time `json:"entry_time"`
}

// Execution is one fill report.
type Execution struct {
	ExecID   string          `json:"exec_id"`
	OrderID  int64           `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Side     OrderSide       `json:"side"`
	Shares   decimal.Decimal `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	CumQty   decimal.Decimal `json:"cum_qty"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	Account  string          `json:"account"`
	Exchange string          `json:"exchange"`
	Time     time.Time       `json:"time"`
}

// AccountValueKey identifies one account summary entry.
type AccountValueKey struct {
	Account string
	Tag     string
}

// AccountValue is one tag/value pair from an account summary cycle.
type AccountValue struct {
	Account  string `json:"account"`
	Tag      string `json:"tag"`
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// ContractMatch is one result row of a contract search.
type ContractMatch struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"sec_type"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
	Name     string `json:"name"`
}

// Contract describes the instrument a request refers to.
type Contract struct {
	Symbol   string
	SecType  string
	Exchange string
	Currency string
}

// indexSymbols are quoted as index contracts rather than stocks.
var indexSymbols = map[string]bool{
	"VIX": true,
	"SPX": true,
	"NDX": true,
	"RUT": true,
	"DJX": true,
}

// ContractFor builds the contract for a symbol, picking the index security
// category for known index symbols and SMART-routed US stock otherwise.
func ContractFor(symbol string) Contract {
	if indexSymbols[symbol] {
		return Contract{Symbol: symbol, SecType: "IND", Exchange: "CBOE", Currency: "USD"}
	}
	return Contract{Symbol: symbol, SecType: "STK", Exchange: "SMART", Currency: "USD"}
}
