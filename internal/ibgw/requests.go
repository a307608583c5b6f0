package ibgw

import (
	"time"

	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

// Outbound request encoders. These return as soon as the message is written;
// results arrive later through the Wrapper.

// ReqIDs asks the gateway to re-announce the next valid order id.
func (c *Client) ReqIDs() error {
	return c.send(encInt(msgReqIDs), "1", "1")
}

// ReqHistoricalData requests historical bars for reqID.
func (c *Client) ReqHistoricalData(reqID int64, contract model.Contract, endDateTime time.Time, duration, barSize, whatToShow string, useRTH bool) error {
	end := ""
	if !endDateTime.IsZero() {
		end = encTime(endDateTime)
	}
	return c.send(
		encInt(msgReqHistoricalData),
		encInt(reqID),
		contract.Symbol, contract.SecType, contract.Exchange, contract.Currency,
		end, barSize, duration,
		encBool(useRTH),
		whatToShow,
		"1", // formatDate: yyyymmdd HH:MM:SS
	)
}

// CancelHistoricalData cancels an in-flight historical request.
func (c *Client) CancelHistoricalData(reqID int64) error {
	return c.send(encInt(msgCancelHistoricalData), "1", encInt(reqID))
}

// ReqMktData opens a market data line; snapshot lines self-terminate with a
// TickSnapshotEnd callback.
func (c *Client) ReqMktData(reqID int64, contract model.Contract, snapshot bool) error {
	return c.send(
		encInt(msgReqMktData),
		"11",
		encInt(reqID),
		contract.Symbol, contract.SecType, contract.Exchange, contract.Currency,
		"", // generic tick list
		encBool(snapshot),
	)
}

// CancelMktData drops a streaming market data line.
func (c *Client) CancelMktData(reqID int64) error {
	return c.send(encInt(msgCancelMktData), "2", encInt(reqID))
}

// ReqMarketDataType switches between realtime and delayed data for all
// subsequent market data requests.
func (c *Client) ReqMarketDataType(mdType int64) error {
	return c.send(encInt(msgReqMarketDataType), "1", encInt(mdType))
}

// ReqAccountSummary starts an account summary stream for the given tags.
func (c *Client) ReqAccountSummary(reqID int64, group, tags string) error {
	return c.send(encInt(msgReqAccountSummary), "1", encInt(reqID), group, tags)
}

// CancelAccountSummary ends an account summary stream.
func (c *Client) CancelAccountSummary(reqID int64) error {
	return c.send(encInt(msgCancelAccountSummary), "1", encInt(reqID))
}

// ReqPositions starts the position stream for all accounts.
func (c *Client) ReqPositions() error {
	return c.send(encInt(msgReqPositions), "1")
}

// CancelPositions ends the position stream.
func (c *Client) CancelPositions() error {
	return c.send(encInt(msgCancelPositions), "1")
}

// ReqAccountUpdates subscribes to (or drops) the per-account portfolio and
// account value stream.
func (c *Client) ReqAccountUpdates(subscribe bool, account string) error {
	return c.send(encInt(msgReqAccountUpdates), "2", encBool(subscribe), account)
}

// ReqExecutions requests execution reports matching the filter.
func (c *Client) ReqExecutions(reqID int64, filter ExecutionFilter) error {
	return c.send(
		encInt(msgReqExecutions),
		"3",
		encInt(reqID),
		encInt(filter.ClientID),
		filter.Account,
		filter.Time,
		filter.Symbol,
		filter.SecType,
		filter.Exchange,
		filter.Side,
	)
}

// ReqOpenOrders requests the open orders placed from this client.
func (c *Client) ReqOpenOrders() error {
	return c.send(encInt(msgReqOpenOrders), "1")
}

// PlaceOrder transmits an order under the given gateway-assigned id.
func (c *Client) PlaceOrder(orderID int64, contract model.Contract, order OrderSpec) error {
	return c.send(
		encInt(msgPlaceOrder),
		encInt(orderID),
		contract.Symbol, contract.SecType, contract.Exchange, contract.Currency,
		order.Action,
		order.Quantity.String(),
		order.OrderType,
		order.LimitPrice.String(),
		order.StopPrice.String(),
		order.TIF,
		order.Ref,
		order.Account,
		"1", // transmit
	)
}

// CancelOrder requests cancellation of an order by id.
func (c *Client) CancelOrder(orderID int64) error {
	return c.send(encInt(msgCancelOrder), "1", encInt(orderID))
}

// ReqMatchingSymbols runs the fuzzy symbol search behind the TWS lookup
// dialog.
func (c *Client) ReqMatchingSymbols(reqID int64, pattern string) error {
	return c.send(encInt(msgReqMatchingSymbols), encInt(reqID), pattern)
}

// ReqContractData requests contract details for a symbol/security type pair.
func (c *Client) ReqContractData(reqID int64, contract model.Contract) error {
	return c.send(
		encInt(msgReqContractData),
		"8",
		encInt(reqID),
		contract.Symbol, contract.SecType, contract.Exchange, contract.Currency,
	)
}
