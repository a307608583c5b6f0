package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Boostao/tws-tradingbot-sub000/internal/ibgw"
	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

// accountCache holds the portfolio stream, account values, and the
// synthesized first-seen entry time per symbol. Entry times survive across
// portfolio refreshes and are cleared only when a position goes flat.
type accountCache struct {
	mu         sync.Mutex
	portfolio  map[string]*model.Position
	entryTimes map[string]time.Time
	values     map[model.AccountValueKey]model.AccountValue
	lastStamp  string
}

func newAccountCache() *accountCache {
	return &accountCache{
		portfolio:  make(map[string]*model.Position),
		entryTimes: make(map[string]time.Time),
		values:     make(map[model.AccountValueKey]model.AccountValue),
	}
}

func (c *accountCache) applyPortfolio(u ibgw.PortfolioUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u.Position.IsZero() {
		delete(c.portfolio, u.Symbol)
		delete(c.entryTimes, u.Symbol)
		return
	}
	entry, seen := c.entryTimes[u.Symbol]
	if !seen {
		entry = time.Now()
		c.entryTimes[u.Symbol] = entry
	}
	c.portfolio[u.Symbol] = &model.Position{
		Account:       u.Account,
		Symbol:        u.Symbol,
		SecType:       u.SecType,
		Quantity:      u.Position,
		AvgCost:       u.AvgCost,
		MarketPrice:   u.MarketPrice,
		MarketValue:   u.MarketValue,
		UnrealizedPnL: u.UnrealizedPnL,
		EntryTime:     entry,
	}
}

// adoptEntryTime backdates a symbol's entry time from execution history.
// Synthesized times are only ever moved earlier, never later.
func (c *accountCache) adoptEntryTime(symbol string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entryTimes[symbol]; !ok || at.Before(cur) {
		c.entryTimes[symbol] = at
		if p, held := c.portfolio[symbol]; held {
			p.EntryTime = at
		}
	}
}

func (c *accountCache) positions() []model.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Position, 0, len(c.portfolio))
	for _, p := range c.portfolio {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (c *accountCache) setValue(v model.AccountValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[model.AccountValueKey{Account: v.Account, Tag: v.Tag}] = v
}

func (c *accountCache) setStamp(stamp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastStamp = stamp
}

// equityTags is the ordered fallback chain for extracting account equity.
var equityTags = []string{
	"NetLiquidation",
	"EquityWithLoanValue",
	"TotalCashValue",
	"AvailableFunds",
}

// EquityTags returns the account summary tags the equity extraction tries,
// in order, joined for a request.
func EquityTags() string {
	return strings.Join(equityTags, ",")
}

// EquityFrom walks the tag fallback chain over a summary and returns the
// first parseable value together with the tag that supplied it.
func EquityFrom(values map[model.AccountValueKey]model.AccountValue) (decimal.Decimal, string, bool) {
	for _, tag := range equityTags {
		for key, v := range values {
			if key.Tag != tag {
				continue
			}
			raw := strings.ReplaceAll(v.Value, ",", "")
			d, err := decimal.NewFromString(raw)
			if err != nil {
				continue
			}
			return d, tag, true
		}
	}
	return decimal.Zero, "", false
}

// execTimeFormats covers the layouts the gateway has been seen using for
// execution timestamps.
var execTimeFormats = []string{
	"20060102  15:04:05",
	"20060102 15:04:05",
	"20060102-15:04:05",
	time.RFC3339,
}

func parseExecTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range execTimeFormats {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EntryKey identifies one side of a symbol's execution history.
type EntryKey struct {
	Symbol string
	Side   model.OrderSide
}

// EntryTimes returns the latest fill time per (symbol, side). Consumers use
// the buy side as the entry time of a long position and the sell side for a
// short.
func EntryTimes(execs []model.Execution) map[EntryKey]time.Time {
	out := make(map[EntryKey]time.Time)
	for _, e := range execs {
		if e.Side == "" || e.Time.IsZero() {
			continue
		}
		key := EntryKey{Symbol: e.Symbol, Side: e.Side}
		if e.Time.After(out[key]) {
			out[key] = e.Time
		}
	}
	return out
}

// earliestEntryTimes derives per-symbol entry times from execution history:
// for each symbol, the earliest buy fill after the last time the symbol was
// seen sold down. With only fills to go on, the earliest buy is the best
// approximation of when the current holding opened.
func earliestEntryTimes(execs []model.Execution) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, e := range execs {
		if e.Side != model.SideBuy || e.Time.IsZero() {
			continue
		}
		if cur, ok := out[e.Symbol]; !ok || e.Time.Before(cur) {
			out[e.Symbol] = e.Time
		}
	}
	return out
}
