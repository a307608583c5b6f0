package session

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Boostao/tws-tradingbot-sub000/internal/ibgw"
	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

// orderTracker owns the order state machine. Status callbacks and open-order
// snapshots arrive from the reader goroutine; placements come from callers.
//
// Orders in a terminal state never move again: stale or out-of-order status
// callbacks cannot resurrect a filled or cancelled order.
type orderTracker struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*model.Order
}

func newOrderTracker() *orderTracker {
	return &orderTracker{orders: make(map[int64]*model.Order)}
}

// seed raises the id counter to the gateway-announced floor. Ids only ever
// move forward, even across reconnects.
func (t *orderTracker) seed(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id > t.nextID {
		t.nextID = id
	}
}

// allocate hands out the next order id, or 0 if the gateway never announced
// one.
func (t *orderTracker) allocate() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nextID == 0 {
		return 0
	}
	id := t.nextID
	t.nextID++
	return id
}

// insert records a freshly placed order before its first byte hits the wire,
// so an immediate status callback always finds it.
func (t *orderTracker) insert(o model.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copied := o
	t.orders[o.ID] = &copied
}

// applyStatus merges an order-status callback. Unknown ids are ignored; the
// open-orders snapshot is the discovery path for externally placed orders.
func (t *orderTracker) applyStatus(orderID int64, status string, filled, remaining, avgFillPrice decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok {
		log.Debug().Int64("orderID", orderID).Str("status", status).Msg("status for untracked order")
		return
	}
	if o.Status.Terminal() {
		return
	}
	next := model.ParseOrderStatus(status, filled)
	if next == model.StatusUnknown {
		log.Warn().Int64("orderID", orderID).Str("status", status).Msg("unrecognized order status")
		return
	}
	o.Status = next
	o.Filled = filled
	if avgFillPrice.IsPositive() {
		o.AvgFillPrice = avgFillPrice
	}
}

// applySnapshot merges an open-order report. Orders placed outside this
// session are adopted here with whatever the gateway reports.
func (t *orderTracker) applySnapshot(rep ibgw.OpenOrderReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[rep.OrderID]
	if !ok {
		o = &model.Order{
			ID:          rep.OrderID,
			Ref:         rep.Ref,
			Symbol:      rep.Contract.Symbol,
			Side:        model.NormalizeSide(rep.Action),
			Quantity:    rep.Quantity,
			Type:        model.OrderType(rep.OrderType),
			LimitPrice:  rep.LimitPrice,
			StopPrice:   rep.StopPrice,
			TIF:         rep.TIF,
			SubmittedAt: time.Now(),
		}
		t.orders[rep.OrderID] = o
	}
	if o.Status.Terminal() {
		return
	}
	next := model.ParseOrderStatus(rep.Status, o.Filled)
	if next != model.StatusUnknown {
		o.Status = next
	}
}

// applyError handles order-scoped gateway errors. Reports whether the id
// belonged to a tracked order.
func (t *orderTracker) applyError(orderID, code int64, msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok {
		return false
	}
	if o.Status.Terminal() {
		return true
	}
	switch code {
	case 201: // order rejected
		o.Status = model.StatusRejected
		log.Warn().Int64("orderID", orderID).Str("reason", msg).Msg("order rejected")
	case 202: // order cancelled
		o.Status = model.StatusCancelled
	default:
		log.Warn().Int64("orderID", orderID).Int64("code", code).Str("msg", msg).Msg("order error")
	}
	return true
}

// fail marks an order terminally failed, for placements that never made it
// onto the wire.
func (t *orderTracker) fail(orderID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.orders[orderID]; ok && !o.Status.Terminal() {
		o.Status = model.StatusRejected
	}
}

func (t *orderTracker) get(orderID int64) (model.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// open returns the orders still working at the gateway, sorted by id.
func (t *orderTracker) open() []model.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Order, 0, len(t.orders))
	for _, o := range t.orders {
		if o.Open() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
