package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Boostao/tws-tradingbot-sub000/internal/ibgw"
	"github.com/Boostao/tws-tradingbot-sub000/internal/metrics"
	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

// barTimeFormats covers the layouts historical bars arrive in when the date
// is not an epoch: intraday bars with an optional double space, and daily
// bars as a bare date.
var barTimeFormats = []string{
	"20060102  15:04:05",
	"20060102 15:04:05",
	"20060102",
}

// ParseBarTime parses a historical bar timestamp. Epoch seconds, intraday
// datetime, and bare-date forms are accepted; an optional trailing timezone
// token is dropped.
func ParseBarTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil && len(raw) >= 9 {
		return time.Unix(epoch, 0), nil
	}
	// "20060102 15:04:05 US/Eastern" → drop the zone token.
	if parts := strings.Fields(raw); len(parts) == 3 {
		raw = parts[0] + " " + parts[1]
	}
	for _, layout := range barTimeFormats {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable bar time %q", raw)
}

// HistoricalBars fetches bars for a symbol and blocks until the series is
// complete. An empty series is a valid result. On timeout the outstanding
// gateway request is cancelled.
func (s *Session) HistoricalBars(symbol, duration, barSize, whatToShow string, end time.Time, useRTH bool) ([]model.Bar, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	id, _ := s.reg.issue(kindHistorical)
	log.Debug().Int64("reqID", id).Str("symbol", symbol).Str("duration", duration).Str("barSize", barSize).Msg("HistoricalBars")
	if err := s.gw.ReqHistoricalData(id, model.ContractFor(symbol), end, duration, barSize, whatToShow, useRTH); err != nil {
		s.reg.remove(id)
		return nil, err
	}
	fragments, err := s.reg.await(id, s.cfg.RequestTimeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			s.gw.CancelHistoricalData(id)
		}
		return nil, err
	}
	bars := make([]model.Bar, 0, len(fragments))
	for _, f := range fragments {
		wb := f.(ibgw.Bar)
		t, perr := ParseBarTime(wb.Date)
		if perr != nil {
			log.Warn().Str("date", wb.Date).Msg("skipping bar with bad timestamp")
			continue
		}
		bars = append(bars, model.Bar{
			Time:   t,
			Open:   wb.Open,
			High:   wb.High,
			Low:    wb.Low,
			Close:  wb.Close,
			Volume: wb.Volume,
			WAP:    wb.WAP,
			Count:  wb.Count,
		})
	}
	return bars, nil
}

// Snapshot requests a one-shot quote and blocks until the gateway signals
// the snapshot end or the timeout elapses. A timed-out snapshot that
// collected any ticks still counts as a result. Symbols already known to
// lack a data entitlement fail fast; retry with SnapshotDelayed instead.
func (s *Session) Snapshot(symbol string) (model.Tick, error) {
	return s.snapshot(symbol, s.cfg.MarketDataType)
}

// SnapshotDelayed is Snapshot on the delayed feed, the fallback when the
// account has no realtime entitlement for the symbol.
func (s *Session) SnapshotDelayed(symbol string) (model.Tick, error) {
	return s.snapshot(symbol, ibgw.MarketDataDelayed)
}

func (s *Session) snapshot(symbol string, mdType int64) (model.Tick, error) {
	if !s.IsConnected() {
		return model.Tick{}, ErrNotConnected
	}
	if mdType != ibgw.MarketDataDelayed && s.mkt.isDenied(symbol) {
		return model.Tick{}, fmt.Errorf("%s: %w", symbol, ErrNoMarketData)
	}
	if s.mkt.currentDataType() != mdType {
		if err := s.gw.ReqMarketDataType(mdType); err != nil {
			return model.Tick{}, err
		}
		s.mkt.setDataType(mdType)
	}
	id, _ := s.reg.issue(kindSnapshot)
	s.mkt.track(id, symbol)
	log.Debug().Int64("reqID", id).Str("symbol", symbol).Int64("mdType", mdType).Msg("Snapshot")
	if err := s.gw.ReqMktData(id, model.ContractFor(symbol), true); err != nil {
		s.reg.remove(id)
		s.mkt.drop(id)
		return model.Tick{}, err
	}
	_, err := s.reg.await(id, s.cfg.RequestTimeout)
	tick := s.mkt.drop(id)
	s.gw.CancelMktData(id)
	if err != nil {
		// A late snapshot often has usable ticks even when the end
		// marker never arrived.
		if errors.Is(err, ErrTimeout) && !tick.Empty() {
			return tick, nil
		}
		return model.Tick{}, err
	}
	return tick, nil
}

// Subscribe opens a streaming market data line for the symbol and returns
// its handle. The latest tick is read with LatestTick.
func (s *Session) Subscribe(symbol string) (int64, error) {
	if !s.IsConnected() {
		return 0, ErrNotConnected
	}
	if s.mkt.isDenied(symbol) {
		return 0, fmt.Errorf("%s: %w", symbol, ErrNoMarketData)
	}
	id := s.reg.allocID()
	s.mkt.track(id, symbol)
	if err := s.gw.ReqMktData(id, model.ContractFor(symbol), false); err != nil {
		s.mkt.drop(id)
		return 0, err
	}
	log.Debug().Int64("reqID", id).Str("symbol", symbol).Msg("Subscribe")
	return id, nil
}

// LatestTick returns the current tick for a subscription handle.
func (s *Session) LatestTick(handle int64) (model.Tick, bool) {
	return s.mkt.tick(handle)
}

// Unsubscribe closes a streaming line.
func (s *Session) Unsubscribe(handle int64) error {
	s.mkt.drop(handle)
	if !s.IsConnected() {
		return nil
	}
	return s.gw.CancelMktData(handle)
}

// Positions fetches the flat position list across all accounts, blocking
// until the gateway's position stream ends.
func (s *Session) Positions() ([]model.Position, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	id, _ := s.reg.issue(kindPositions)
	s.positionsReq.Store(id)
	defer s.positionsReq.Store(0)
	if err := s.gw.ReqPositions(); err != nil {
		s.reg.remove(id)
		return nil, err
	}
	fragments, err := s.reg.await(id, s.cfg.RequestTimeout)
	s.gw.CancelPositions()
	if err != nil {
		return nil, err
	}
	positions := make([]model.Position, 0, len(fragments))
	for _, f := range fragments {
		positions = append(positions, f.(model.Position))
	}
	return positions, nil
}

// PortfolioPositions subscribes to the account update stream, blocks until
// the download completes, unsubscribes, and returns the cached portfolio.
// Entry times are synthesized on first sight and kept across calls.
func (s *Session) PortfolioPositions() ([]model.Position, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	account := s.Account()
	id, _ := s.reg.issue(kindPortfolio)
	s.portfolioReq.Store(id)
	defer s.portfolioReq.Store(0)
	if err := s.gw.ReqAccountUpdates(true, account); err != nil {
		s.reg.remove(id)
		return nil, err
	}
	_, err := s.reg.await(id, s.cfg.RequestTimeout)
	s.gw.ReqAccountUpdates(false, account)
	if err != nil {
		return nil, err
	}
	return s.acct.positions(), nil
}

// AccountValues fetches one summary cycle for the given tags (comma
// separated) across all accounts. The result replaces, never merges with,
// earlier cycles.
func (s *Session) AccountValues(tags string) (map[model.AccountValueKey]model.AccountValue, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	if tags == "" {
		tags = EquityTags()
	}
	id, _ := s.reg.issue(kindAccountSummary)
	log.Debug().Int64("reqID", id).Str("tags", tags).Msg("AccountValues")
	if err := s.gw.ReqAccountSummary(id, "All", tags); err != nil {
		s.reg.remove(id)
		return nil, err
	}
	fragments, err := s.reg.await(id, s.cfg.RequestTimeout)
	s.gw.CancelAccountSummary(id)
	if err != nil {
		return nil, err
	}
	out := make(map[model.AccountValueKey]model.AccountValue, len(fragments))
	for _, f := range fragments {
		v := f.(model.AccountValue)
		out[model.AccountValueKey{Account: v.Account, Tag: v.Tag}] = v
	}
	return out, nil
}

// Equity extracts the account equity from a fresh summary cycle, walking
// the tag fallback chain.
func (s *Session) Equity() (decimal.Decimal, error) {
	values, err := s.AccountValues(EquityTags())
	if err != nil {
		return decimal.Zero, err
	}
	eq, tag, ok := EquityFrom(values)
	if !ok {
		return decimal.Zero, errors.New("no equity tag in account summary")
	}
	f, _ := eq.Float64()
	metrics.Equity.Set(f)
	log.Debug().Str("tag", tag).Str("equity", eq.String()).Msg("Equity")
	return eq, nil
}

// Executions fetches this client's fills since the given time (zero means
// all available) and backdates position entry times from them.
func (s *Session) Executions(since time.Time) ([]model.Execution, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	filter := ibgw.ExecutionFilter{ClientID: s.cfg.ClientID}
	if !since.IsZero() {
		filter.Time = ibgw.FormatExecTime(since)
	}
	id, _ := s.reg.issue(kindExecutions)
	if err := s.gw.ReqExecutions(id, filter); err != nil {
		s.reg.remove(id)
		return nil, err
	}
	fragments, err := s.reg.await(id, s.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	execs := make([]model.Execution, 0, len(fragments))
	for _, f := range fragments {
		execs = append(execs, f.(model.Execution))
	}
	for symbol, at := range earliestEntryTimes(execs) {
		s.acct.adoptEntryTime(symbol, at)
	}
	return execs, nil
}

// OpenOrders refreshes the order tracker from the gateway's open-orders
// snapshot and returns every order still working. Orders placed by other
// clients of the same account are discovered here.
func (s *Session) OpenOrders() ([]model.Order, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	id, _ := s.reg.issue(kindOpenOrders)
	s.openOrdersReq.Store(id)
	defer s.openOrdersReq.Store(0)
	if err := s.gw.ReqOpenOrders(); err != nil {
		s.reg.remove(id)
		return nil, err
	}
	if _, err := s.reg.await(id, s.cfg.RequestTimeout); err != nil {
		return nil, err
	}
	return s.orders.open(), nil
}

// WatchlistSymbols merges a configured watchlist with the symbols currently
// held in the portfolio, deduplicated, watchlist order first.
func (s *Session) WatchlistSymbols(watchlist []string) []string {
	seen := make(map[string]bool, len(watchlist))
	out := make([]string, 0, len(watchlist))
	for _, sym := range watchlist {
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	for _, p := range s.acct.positions() {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	return out
}

// Order returns the tracked state of one order.
func (s *Session) Order(orderID int64) (model.Order, bool) {
	return s.orders.get(orderID)
}

// OrderTicket is the caller's side of a PlaceOrder call.
type OrderTicket struct {
	Symbol     string
	Side       model.OrderSide
	Quantity   decimal.Decimal
	Type       model.OrderType
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	TIF        string
}

// PlaceOrder submits an order and returns its id without waiting for an
// acknowledgement; the tracker follows the fills. The order is recorded
// locally before the request hits the wire so the first status callback
// always finds it.
func (s *Session) PlaceOrder(t OrderTicket) (int64, error) {
	if !s.IsConnected() {
		return 0, ErrNotConnected
	}
	if t.Quantity.Sign() <= 0 {
		return 0, fmt.Errorf("invalid order quantity %s", t.Quantity)
	}
	orderID := s.orders.allocate()
	if orderID == 0 {
		return 0, ErrNotConnected
	}
	if t.TIF == "" {
		t.TIF = "DAY"
	}
	order := model.Order{
		ID:          orderID,
		Ref:         uuid.NewString(),
		Symbol:      t.Symbol,
		Side:        t.Side,
		Quantity:    t.Quantity,
		Type:        t.Type,
		LimitPrice:  t.LimitPrice,
		StopPrice:   t.StopPrice,
		TIF:         t.TIF,
		Status:      model.StatusPending,
		SubmittedAt: time.Now(),
	}
	s.orders.insert(order)
	spec := ibgw.OrderSpec{
		Action:     string(t.Side),
		Quantity:   t.Quantity,
		OrderType:  string(t.Type),
		LimitPrice: t.LimitPrice,
		StopPrice:  t.StopPrice,
		TIF:        t.TIF,
		Ref:        order.Ref,
		Account:    s.Account(),
	}
	if err := s.gw.PlaceOrder(orderID, model.ContractFor(t.Symbol), spec); err != nil {
		s.orders.fail(orderID)
		return 0, err
	}
	metrics.Orders.WithLabelValues(string(t.Side)).Inc()
	log.Info().Int64("orderID", orderID).Str("symbol", t.Symbol).Str("side", string(t.Side)).Str("qty", t.Quantity.String()).Msg("order placed")
	return orderID, nil
}

// CancelOrder asks the gateway to cancel a working order. Unknown and
// already-terminal orders are rejected locally without a wire round trip.
func (s *Session) CancelOrder(orderID int64) error {
	o, ok := s.orders.get(orderID)
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrUnknownRequest)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("order %d already %s", orderID, o.Status)
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}
	return s.gw.CancelOrder(orderID)
}

// SearchContracts resolves a pattern against the gateway's symbol matching
// service and returns the candidate contracts.
func (s *Session) SearchContracts(pattern string) ([]model.ContractMatch, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	id, _ := s.reg.issue(kindSymbolSearch)
	if err := s.gw.ReqMatchingSymbols(id, pattern); err != nil {
		s.reg.remove(id)
		return nil, err
	}
	return s.awaitMatches(id)
}

// ContractDetails fetches the gateway's contract records for one concrete
// contract, e.g. to verify a symbol resolves before trading it.
func (s *Session) ContractDetails(symbol string) ([]model.ContractMatch, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	id, _ := s.reg.issue(kindContractData)
	if err := s.gw.ReqContractData(id, model.ContractFor(symbol)); err != nil {
		s.reg.remove(id)
		return nil, err
	}
	return s.awaitMatches(id)
}

func (s *Session) awaitMatches(id int64) ([]model.ContractMatch, error) {
	fragments, err := s.reg.await(id, s.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	matches := make([]model.ContractMatch, 0, len(fragments))
	for _, f := range fragments {
		matches = append(matches, f.(model.ContractMatch))
	}
	return matches, nil
}
