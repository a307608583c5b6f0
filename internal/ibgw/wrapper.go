package ibgw

import (
	"github.com/shopspring/decimal"

	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

// Bar is one historical bar as it comes off the wire. Date is left raw
// because the gateway mixes several formats; parsing happens upstream.
type Bar struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	WAP    float64
	Count  int64
}

// PortfolioUpdate is one row of the per-account portfolio stream.
type PortfolioUpdate struct {
	Account       string
	Symbol        string
	SecType       string
	Currency      string
	Position      decimal.Decimal
	MarketPrice   decimal.Decimal
	MarketValue   decimal.Decimal
	AvgCost       decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
}

// ExecutionReport is one fill as it comes off the wire.
type ExecutionReport struct {
	ExecID   string
	OrderID  int64
	Symbol   string
	SecType  string
	Exchange string
	Currency string
	Time     string
	Account  string
	Side     string
	Shares   decimal.Decimal
	Price    decimal.Decimal
	CumQty   decimal.Decimal
	AvgPrice decimal.Decimal
}

// OpenOrderReport is one row of an open-orders snapshot.
type OpenOrderReport struct {
	OrderID    int64
	Contract   model.Contract
	Action     string
	Quantity   decimal.Decimal
	OrderType  string
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	TIF        string
	Status     string
	Ref        string
}

// OrderSpec carries the order fields sent with PlaceOrder.
type OrderSpec struct {
	Action     string
	Quantity   decimal.Decimal
	OrderType  string
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	TIF        string
	Ref        string
	Account    string
}

// ExecutionFilter narrows a ReqExecutions request. Zero values mean "all".
type ExecutionFilter struct {
	ClientID int64
	Account  string
	Time     string // "20060102-15:04:05", executions at or after
	Symbol   string
	SecType  string
	Exchange string
	Side     string
}

// Wrapper receives every decoded inbound message. All callbacks are invoked
// sequentially from the client's single reader goroutine and must not block.
type Wrapper interface {
	NextValidID(orderID int64)
	ManagedAccounts(accounts []string)
	Error(reqID int64, code int64, msg string)
	ConnectionClosed()

	HistoricalData(reqID int64, bar Bar)
	HistoricalDataEnd(reqID int64, start, end string)

	TickPrice(reqID int64, tickType int64, price float64)
	TickSize(reqID int64, tickType int64, size int64)
	TickString(reqID int64, tickType int64, value string)
	TickSnapshotEnd(reqID int64)
	MarketDataType(reqID int64, mdType int64)

	AccountSummary(reqID int64, account, tag, value, currency string)
	AccountSummaryEnd(reqID int64)
	UpdateAccountValue(tag, value, currency, account string)
	UpdateAccountTime(stamp string)
	UpdatePortfolio(update PortfolioUpdate)
	AccountDownloadEnd(account string)

	Position(account string, contract model.Contract, position, avgCost decimal.Decimal)
	PositionEnd()

	ExecDetails(reqID int64, exec ExecutionReport)
	ExecDetailsEnd(reqID int64)

	OpenOrder(order OpenOrderReport)
	OpenOrderEnd()
	OrderStatus(orderID int64, status string, filled, remaining decimal.Decimal, avgFillPrice, lastFillPrice float64)

	ContractData(reqID int64, match model.ContractMatch)
	ContractDataEnd(reqID int64)
	SymbolSamples(reqID int64, matches []model.ContractMatch)
}

// NopWrapper implements Wrapper with no-ops. Embed it to override only the
// callbacks a consumer cares about.
type NopWrapper struct{}

func (NopWrapper) NextValidID(int64)                                                     {}
func (NopWrapper) ManagedAccounts([]string)                                              {}
func (NopWrapper) Error(int64, int64, string)                                            {}
func (NopWrapper) ConnectionClosed()                                                     {}
func (NopWrapper) HistoricalData(int64, Bar)                                             {}
func (NopWrapper) HistoricalDataEnd(int64, string, string)                               {}
func (NopWrapper) TickPrice(int64, int64, float64)                                       {}
func (NopWrapper) TickSize(int64, int64, int64)                                          {}
func (NopWrapper) TickString(int64, int64, string)                                       {}
func (NopWrapper) TickSnapshotEnd(int64)                                                 {}
func (NopWrapper) MarketDataType(int64, int64)                                           {}
func (NopWrapper) AccountSummary(int64, string, string, string, string)                  {}
func (NopWrapper) AccountSummaryEnd(int64)                                               {}
func (NopWrapper) UpdateAccountValue(string, string, string, string)                     {}
func (NopWrapper) UpdateAccountTime(string)                                              {}
func (NopWrapper) UpdatePortfolio(PortfolioUpdate)                                       {}
func (NopWrapper) AccountDownloadEnd(string)                                             {}
func (NopWrapper) Position(string, model.Contract, decimal.Decimal, decimal.Decimal)     {}
func (NopWrapper) PositionEnd()                                                          {}
func (NopWrapper) ExecDetails(int64, ExecutionReport)                                    {}
func (NopWrapper) ExecDetailsEnd(int64)                                                  {}
func (NopWrapper) OpenOrder(OpenOrderReport)                                             {}
func (NopWrapper) OpenOrderEnd()                                                         {}
func (NopWrapper) OrderStatus(int64, string, decimal.Decimal, decimal.Decimal, float64, float64) {}
func (NopWrapper) ContractData(int64, model.ContractMatch)                               {}
func (NopWrapper) ContractDataEnd(int64)                                                 {}
func (NopWrapper) SymbolSamples(int64, []model.ContractMatch)                            {}
