package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/Boostao/tws-tradingbot-sub000/internal/ibgw"
	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

// marketDataCache holds the latest tick per market data line plus the sticky
// set of symbols the account turned out to have no entitlement for. Tick
// callbacks write it from the reader goroutine; callers read snapshots.
type marketDataCache struct {
	mu       sync.RWMutex
	byReq    map[int64]*model.Tick
	symbols  map[int64]string
	denied   map[string]bool
	dataType int64
}

func newMarketDataCache() *marketDataCache {
	return &marketDataCache{
		byReq:    make(map[int64]*model.Tick),
		symbols:  make(map[int64]string),
		denied:   make(map[string]bool),
		dataType: ibgw.MarketDataRealtime,
	}
}

// track opens a tick line for the request id.
func (c *marketDataCache) track(reqID int64, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byReq[reqID] = &model.Tick{Symbol: symbol}
	c.symbols[reqID] = symbol
}

// drop closes the line and returns its final tick.
func (c *marketDataCache) drop(reqID int64) model.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.byReq[reqID]
	delete(c.byReq, reqID)
	delete(c.symbols, reqID)
	if t == nil {
		return model.Tick{}
	}
	return *t
}

func (c *marketDataCache) tick(reqID int64) (model.Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byReq[reqID]
	if !ok {
		return model.Tick{}, false
	}
	return *t, true
}

// activeReqIDs lists every open line, for bulk cancellation on disconnect.
func (c *marketDataCache) activeReqIDs() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int64, 0, len(c.byReq))
	for id := range c.byReq {
		ids = append(ids, id)
	}
	return ids
}

// reset drops every line. Entitlement denials survive reconnects.
func (c *marketDataCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byReq = make(map[int64]*model.Tick)
	c.symbols = make(map[int64]string)
}

func (c *marketDataCache) applyPrice(reqID, tickType int64, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.byReq[reqID]
	if !ok {
		return
	}
	switch tickType {
	case ibgw.TickBid:
		t.Bid = price
	case ibgw.TickAsk:
		t.Ask = price
	case ibgw.TickLast:
		t.Last = price
	case ibgw.TickOpen:
		t.Open = price
	case ibgw.TickHigh:
		t.High = price
	case ibgw.TickLow:
		t.Low = price
	case ibgw.TickClose:
		t.Close = price
	default:
		return
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
}

func (c *marketDataCache) applySize(reqID, tickType, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.byReq[reqID]
	if !ok {
		return
	}
	switch tickType {
	case ibgw.TickBidSize:
		t.BidSize = size
	case ibgw.TickAskSize:
		t.AskSize = size
	case ibgw.TickLastSize:
		t.LastSize = size
	case ibgw.TickVolume:
		t.Volume = size
	}
}

func (c *marketDataCache) applyString(reqID, tickType int64, value string) {
	if tickType != ibgw.TickTimestamp {
		return
	}
	epoch, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.byReq[reqID]; ok {
		t.UpdatedAt = time.Unix(epoch, 0)
	}
}

// markDenied records that the line's symbol has no market data entitlement.
// The set is sticky: it is never cleared for the life of the process.
func (c *marketDataCache) markDenied(reqID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sym, ok := c.symbols[reqID]; ok {
		c.denied[sym] = true
	}
}

func (c *marketDataCache) isDenied(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.denied[symbol]
}

func (c *marketDataCache) setDataType(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataType = t
}

func (c *marketDataCache) currentDataType() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataType
}
