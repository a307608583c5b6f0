// Package session turns the gateway's callback stream into a synchronous
// facade. One reader goroutine feeds the registry, caches, and trackers;
// callers block on registered request ids with a timeout. A supervisor
// goroutine watches the connection and redials when it drops.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Boostao/tws-tradingbot-sub000/internal/ibgw"
	"github.com/Boostao/tws-tradingbot-sub000/internal/metrics"
	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

var log = zerolog.Nop()

// SetLogger installs the package logger.
func SetLogger(l zerolog.Logger) { log = l }

// ConnState is the lifecycle state of the session.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Gateway is the outbound surface the session drives. *ibgw.Client
// implements it; tests substitute their own.
type Gateway interface {
	Dial(host string, port int, clientID int64, timeout time.Duration) error
	Close() error
	IsConnected() bool

	ReqHistoricalData(reqID int64, contract model.Contract, endDateTime time.Time, duration, barSize, whatToShow string, useRTH bool) error
	CancelHistoricalData(reqID int64) error
	ReqMktData(reqID int64, contract model.Contract, snapshot bool) error
	CancelMktData(reqID int64) error
	ReqMarketDataType(mdType int64) error
	ReqAccountSummary(reqID int64, group, tags string) error
	CancelAccountSummary(reqID int64) error
	ReqPositions() error
	CancelPositions() error
	ReqAccountUpdates(subscribe bool, account string) error
	ReqExecutions(reqID int64, filter ibgw.ExecutionFilter) error
	ReqOpenOrders() error
	PlaceOrder(orderID int64, contract model.Contract, order ibgw.OrderSpec) error
	CancelOrder(orderID int64) error
	ReqMatchingSymbols(reqID int64, pattern string) error
	ReqContractData(reqID int64, contract model.Contract) error
}

// Config carries the connection parameters for a session.
type Config struct {
	Host           string
	Port           int
	ClientID       int64
	Account        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	// MarketDataType selects the default feed: 1 realtime, 3 delayed.
	MarketDataType int64
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Host == "" {
		out.Host = "127.0.0.1"
	}
	if out.Port == 0 {
		out.Port = 7497
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.RequestTimeout == 0 {
		out.RequestTimeout = 15 * time.Second
	}
	if out.MarketDataType == 0 {
		out.MarketDataType = ibgw.MarketDataRealtime
	}
	return out
}

// Session is the synchronous facade over one gateway connection.
type Session struct {
	cfg Config
	gw  Gateway

	// mu serializes connect, disconnect, and reconnect end to end.
	mu sync.Mutex

	stateMu   sync.Mutex
	state     ConnState
	readyCh   chan struct{}
	readyOnce *sync.Once
	accounts  []string

	reg    *registry
	orders *orderTracker
	mkt    *marketDataCache
	acct   *accountCache

	// Stream requests that complete via global end callbacks carry no
	// request id on the wire; the in-flight registry id is parked here.
	positionsReq  atomic.Int64
	portfolioReq  atomic.Int64
	openOrdersReq atomic.Int64
}

// New builds a session around an existing gateway. NewClient wires the
// standard TCP client in.
func New(cfg Config, gw Gateway) *Session {
	return &Session{
		cfg:    cfg.withDefaults(),
		gw:     gw,
		state:  StateDisconnected,
		reg:    newRegistry(),
		orders: newOrderTracker(),
		mkt:    newMarketDataCache(),
		acct:   newAccountCache(),
	}
}

// NewClient builds a session backed by the TCP gateway client. The session
// itself is the client's callback wrapper.
func NewClient(cfg Config) *Session {
	s := New(cfg, nil)
	s.gw = ibgw.NewClient(s)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() ConnState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// IsConnected reports whether the session finished its handshake and the
// socket is still alive.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected && s.gw.IsConnected()
}

// Account returns the configured account, falling back to the first managed
// account the gateway announced.
func (s *Session) Account() string {
	if s.cfg.Account != "" {
		return s.cfg.Account
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if len(s.accounts) > 0 {
		return s.accounts[0]
	}
	return ""
}

func (s *Session) setState(st ConnState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
	if st == StateConnected {
		metrics.ConnectionUp.Set(1)
	} else {
		metrics.ConnectionUp.Set(0)
	}
}

// Connect dials the gateway and blocks until the handshake completes: the
// socket is up and the gateway has announced the next valid order id.
// Calling Connect on a live session is a no-op.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *Session) connectLocked() error {
	if s.State() == StateConnected && s.gw.IsConnected() {
		return nil
	}
	s.setState(StateConnecting)

	ready := make(chan struct{})
	s.stateMu.Lock()
	s.readyCh = ready
	s.readyOnce = &sync.Once{}
	s.stateMu.Unlock()

	log.Info().Str("host", s.cfg.Host).Int("port", s.cfg.Port).Int64("clientID", s.cfg.ClientID).Msg("connecting to gateway")
	if err := s.gw.Dial(s.cfg.Host, s.cfg.Port, s.cfg.ClientID, s.cfg.ConnectTimeout); err != nil {
		s.setState(StateError)
		return fmt.Errorf("dial gateway: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(s.cfg.ConnectTimeout):
		s.gw.Close()
		s.setState(StateError)
		return fmt.Errorf("gateway handshake: %w", ErrTimeout)
	}

	if s.cfg.MarketDataType != ibgw.MarketDataRealtime {
		if err := s.gw.ReqMarketDataType(s.cfg.MarketDataType); err != nil {
			log.Warn().Err(err).Msg("set market data type")
		}
	}
	s.setState(StateConnected)
	log.Info().Msg("gateway session ready")
	return nil
}

// Disconnect cancels open market data lines, closes the socket, and wakes
// every blocked caller with ErrNotConnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectLocked()
}

func (s *Session) disconnectLocked() error {
	for _, id := range s.mkt.activeReqIDs() {
		s.gw.CancelMktData(id)
	}
	err := s.gw.Close()
	s.mkt.reset()
	s.reg.failAll(ErrNotConnected)
	s.setState(StateDisconnected)
	log.Info().Msg("gateway session closed")
	return err
}

// Reconnect restores a live connection. The session lock is held across
// the teardown and the redial, and callers that arrive after a concurrent
// rebuild finished return immediately, so a storm of Reconnect calls
// against a lost connection collapses into exactly one teardown+dial cycle
// and in-flight requests see exactly one ErrNotConnected.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateConnected && s.gw.IsConnected() {
		return nil
	}
	s.disconnectLocked()
	return s.connectLocked()
}

// Run supervises the connection until the context ends: every interval it
// checks the session and redials if the connection dropped. Errors are
// logged and retried on the next tick.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.IsConnected() {
				continue
			}
			metrics.Reconnects.Inc()
			log.Warn().Msg("connection down, reconnecting")
			if err := s.Reconnect(); err != nil {
				log.Error().Err(err).Msg("reconnect failed")
			}
		}
	}
}

// markLost flips the session to ERROR and wakes every waiter. The
// supervisor handles the redial.
func (s *Session) markLost(err error) {
	s.setState(StateError)
	s.reg.failAll(err)
}

// ---- Wrapper callbacks (invoked from the reader goroutine) ----

// NextValidID completes the handshake and seeds the order id counter.
func (s *Session) NextValidID(orderID int64) {
	s.orders.seed(orderID)
	s.stateMu.Lock()
	ready, once := s.readyCh, s.readyOnce
	s.stateMu.Unlock()
	if once != nil {
		once.Do(func() { close(ready) })
	}
}

func (s *Session) ManagedAccounts(accounts []string) {
	s.stateMu.Lock()
	s.accounts = accounts
	s.stateMu.Unlock()
	log.Debug().Strs("accounts", accounts).Msg("managed accounts")
}

// Error classifies a gateway error message and routes it: informational
// codes are logged, fatal codes poison the connection, and everything else
// resolves the request or order it names.
func (s *Session) Error(reqID, code int64, msg string) {
	class := classify(code)
	metrics.GatewayErrors.WithLabelValues(class.String()).Inc()
	switch class {
	case classInfo:
		log.Debug().Int64("code", code).Str("msg", msg).Msg("gateway notice")
	case classFatal:
		log.Error().Int64("code", code).Str("msg", msg).Msg("gateway connection error")
		s.markLost(&RequestError{Code: code, Msg: msg})
	default:
		if permissionCodes[code] {
			s.mkt.markDenied(reqID)
		}
		// Order ids and request ids share the wire's one error channel
		// and can collide, so route to both: applyError ignores unknown
		// orders and fail ignores ids with no waiter.
		matched := s.orders.applyError(reqID, code, msg)
		if !matched {
			log.Warn().Int64("reqID", reqID).Int64("code", code).Str("msg", msg).Msg("request error")
		}
		s.reg.fail(reqID, &RequestError{Code: code, Msg: msg})
	}
}

func (s *Session) ConnectionClosed() {
	log.Warn().Msg("gateway closed the connection")
	s.markLost(ErrNotConnected)
}

func (s *Session) HistoricalData(reqID int64, bar ibgw.Bar) {
	s.reg.add(reqID, bar)
}

func (s *Session) HistoricalDataEnd(reqID int64, start, end string) {
	s.reg.complete(reqID)
}

func (s *Session) TickPrice(reqID, tickType int64, price float64) {
	s.mkt.applyPrice(reqID, tickType, price)
}

func (s *Session) TickSize(reqID, tickType, size int64) {
	s.mkt.applySize(reqID, tickType, size)
}

func (s *Session) TickString(reqID, tickType int64, value string) {
	s.mkt.applyString(reqID, tickType, value)
}

func (s *Session) TickSnapshotEnd(reqID int64) {
	s.reg.complete(reqID)
}

func (s *Session) MarketDataType(reqID, mdType int64) {
	s.mkt.setDataType(mdType)
}

func (s *Session) AccountSummary(reqID int64, account, tag, value, currency string) {
	v := model.AccountValue{Account: account, Tag: tag, Value: value, Currency: currency}
	s.acct.setValue(v)
	s.reg.add(reqID, v)
}

func (s *Session) AccountSummaryEnd(reqID int64) {
	s.reg.complete(reqID)
}

func (s *Session) UpdateAccountValue(tag, value, currency, account string) {
	s.acct.setValue(model.AccountValue{Account: account, Tag: tag, Value: value, Currency: currency})
}

func (s *Session) UpdateAccountTime(stamp string) {
	s.acct.setStamp(stamp)
}

func (s *Session) UpdatePortfolio(update ibgw.PortfolioUpdate) {
	s.acct.applyPortfolio(update)
}

func (s *Session) AccountDownloadEnd(account string) {
	s.reg.complete(s.portfolioReq.Load())
}

func (s *Session) Position(account string, contract model.Contract, position, avgCost decimal.Decimal) {
	s.reg.add(s.positionsReq.Load(), model.Position{
		Account:  account,
		Symbol:   contract.Symbol,
		SecType:  contract.SecType,
		Quantity: position,
		AvgCost:  avgCost,
	})
}

func (s *Session) PositionEnd() {
	s.reg.complete(s.positionsReq.Load())
}

func (s *Session) ExecDetails(reqID int64, exec ibgw.ExecutionReport) {
	e := model.Execution{
		ExecID:   exec.ExecID,
		OrderID:  exec.OrderID,
		Symbol:   exec.Symbol,
		Side:     model.NormalizeSide(exec.Side),
		Shares:   exec.Shares,
		Price:    exec.Price,
		CumQty:   exec.CumQty,
		AvgPrice: exec.AvgPrice,
		Account:  exec.Account,
		Exchange: exec.Exchange,
	}
	if t, ok := parseExecTime(exec.Time); ok {
		e.Time = t
	}
	s.reg.add(reqID, e)
}

func (s *Session) ExecDetailsEnd(reqID int64) {
	s.reg.complete(reqID)
}

func (s *Session) OpenOrder(order ibgw.OpenOrderReport) {
	s.orders.applySnapshot(order)
}

func (s *Session) OpenOrderEnd() {
	s.reg.complete(s.openOrdersReq.Load())
}

func (s *Session) OrderStatus(orderID int64, status string, filled, remaining decimal.Decimal, avgFillPrice, lastFillPrice float64) {
	log.Debug().Int64("orderID", orderID).Str("status", status).Str("filled", filled.String()).Msg("OrderStatus")
	s.orders.applyStatus(orderID, status, filled, remaining, decimal.NewFromFloat(avgFillPrice))
}

func (s *Session) ContractData(reqID int64, match model.ContractMatch) {
	s.reg.add(reqID, match)
}

func (s *Session) ContractDataEnd(reqID int64) {
	s.reg.complete(reqID)
}

func (s *Session) SymbolSamples(reqID int64, matches []model.ContractMatch) {
	for _, m := range matches {
		s.reg.add(reqID, m)
	}
	s.reg.complete(reqID)
}
