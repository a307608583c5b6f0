package ibgw

import (
	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

// Multi-field messages are decoded into locals first so a malformed frame is
// dropped whole instead of reaching the wrapper half-filled.

func (c *Client) decodeHistoricalData(s *fieldScanner) {
	reqID := s.Int()
	start := s.String()
	end := s.String()
	count := s.Int()
	bars := make([]Bar, 0, count)
	for i := int64(0); i < count; i++ {
		bar := Bar{
			Date:   s.String(),
			Open:   s.Float(),
			High:   s.Float(),
			Low:    s.Float(),
			Close:  s.Float(),
			Volume: s.Int(),
			WAP:    s.Float(),
			Count:  s.Int(),
		}
		bars = append(bars, bar)
	}
	if s.Err() != nil {
		return
	}
	for _, bar := range bars {
		c.wrapper.HistoricalData(reqID, bar)
	}
	c.wrapper.HistoricalDataEnd(reqID, start, end)
}

func (c *Client) decodePortfolioValue(s *fieldScanner) {
	s.Int() // version
	update := PortfolioUpdate{
		Symbol:        s.String(),
		SecType:       s.String(),
		Currency:      s.String(),
		Position:      s.Decimal(),
		MarketPrice:   s.Decimal(),
		MarketValue:   s.Decimal(),
		AvgCost:       s.Decimal(),
		UnrealizedPnL: s.Decimal(),
		RealizedPnL:   s.Decimal(),
	}
	update.Account = s.String()
	if s.Err() != nil {
		return
	}
	c.wrapper.UpdatePortfolio(update)
}

func (c *Client) decodePosition(s *fieldScanner) {
	s.Int() // version
	account := s.String()
	contract := model.Contract{
		Symbol:   s.String(),
		SecType:  s.String(),
		Exchange: s.String(),
		Currency: s.String(),
	}
	position := s.Decimal()
	avgCost := s.Decimal()
	if s.Err() != nil {
		return
	}
	c.wrapper.Position(account, contract, position, avgCost)
}

func (c *Client) decodeExecution(s *fieldScanner) {
	s.Int() // version
	reqID := s.Int()
	exec := ExecutionReport{
		OrderID:  s.Int(),
		Symbol:   s.String(),
		SecType:  s.String(),
		Exchange: s.String(),
		Currency: s.String(),
		ExecID:   s.String(),
		Time:     s.String(),
		Account:  s.String(),
		Side:     s.String(),
		Shares:   s.Decimal(),
		Price:    s.Decimal(),
		CumQty:   s.Decimal(),
		AvgPrice: s.Decimal(),
	}
	if s.Err() != nil {
		return
	}
	c.wrapper.ExecDetails(reqID, exec)
}

func (c *Client) decodeOpenOrder(s *fieldScanner) {
	order := OpenOrderReport{
		OrderID: s.Int(),
		Contract: model.Contract{
			Symbol:   s.String(),
			SecType:  s.String(),
			Exchange: s.String(),
			Currency: s.String(),
		},
		Action:     s.String(),
		Quantity:   s.Decimal(),
		OrderType:  s.String(),
		LimitPrice: s.Decimal(),
		StopPrice:  s.Decimal(),
		TIF:        s.String(),
		Status:     s.String(),
		Ref:        s.String(),
	}
	if s.Err() != nil {
		return
	}
	c.wrapper.OpenOrder(order)
}

func (c *Client) decodeOrderStatus(s *fieldScanner) {
	orderID := s.Int()
	status := s.String()
	filled := s.Decimal()
	remaining := s.Decimal()
	avgFillPrice := s.Float()
	s.Int() // permId
	s.Int() // parentId
	lastFillPrice := s.Float()
	if s.Err() != nil {
		return
	}
	c.wrapper.OrderStatus(orderID, status, filled, remaining, avgFillPrice, lastFillPrice)
}

func (c *Client) decodeContractData(s *fieldScanner) {
	s.Int() // version
	reqID := s.Int()
	match := model.ContractMatch{
		Symbol:   s.String(),
		SecType:  s.String(),
		Exchange: s.String(),
		Currency: s.String(),
		Name:     s.String(),
	}
	if s.Err() != nil {
		return
	}
	c.wrapper.ContractData(reqID, match)
}

func (c *Client) decodeSymbolSamples(s *fieldScanner) {
	reqID := s.Int()
	count := s.Int()
	matches := make([]model.ContractMatch, 0, count)
	for i := int64(0); i < count; i++ {
		matches = append(matches, model.ContractMatch{
			Symbol:   s.String(),
			SecType:  s.String(),
			Exchange: s.String(),
			Currency: s.String(),
			Name:     s.String(),
		})
	}
	if s.Err() != nil {
		return
	}
	c.wrapper.SymbolSamples(reqID, matches)
}
