package session

import (
	"sync"
	"time"

	"github.com/Boostao/tws-tradingbot-sub000/internal/metrics"
)

// requestKind labels an in-flight request for logging and metrics.
type requestKind string

const (
	kindHistorical     requestKind = "historical_data"
	kindSnapshot       requestKind = "snapshot"
	kindAccountSummary requestKind = "account_summary"
	kindPositions      requestKind = "positions"
	kindPortfolio      requestKind = "portfolio"
	kindExecutions     requestKind = "executions"
	kindOpenOrders     requestKind = "open_orders"
	kindContractData   requestKind = "contract_data"
	kindSymbolSearch   requestKind = "symbol_search"
)

// pendingRequest accumulates streamed fragments until the terminating
// callback fires or the waiter gives up.
type pendingRequest struct {
	id   int64
	kind requestKind
	done chan struct{}

	mu        sync.Mutex
	fragments []any
	err       error
	resolved  bool
}

func (p *pendingRequest) add(fragment any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.fragments = append(p.fragments, fragment)
}

func (p *pendingRequest) resolve(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.resolved = true
	p.err = err
	close(p.done)
}

func (p *pendingRequest) result() ([]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fragments, p.err
}

// registry maps request ids to pending completion state. The reader
// goroutine resolves entries; caller goroutines issue and await them.
// Callbacks for ids that were already awaited, timed out, or never issued
// are no-ops.
type registry struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingRequest
}

func newRegistry() *registry {
	return &registry{
		nextID:  1,
		pending: make(map[int64]*pendingRequest),
	}
}

// allocID hands out the next request id without registering a waiter.
// Streaming subscriptions use it so their ids never collide with one-shot
// requests.
func (r *registry) allocID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	return id
}

// issue allocates an id and registers a pending request under it.
func (r *registry) issue(kind requestKind) (int64, *pendingRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	p := &pendingRequest{
		id:   id,
		kind: kind,
		done: make(chan struct{}),
	}
	r.pending[id] = p
	return id, p
}

func (r *registry) lookup(id int64) (*pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	return p, ok
}

func (r *registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// add appends a fragment to the pending request, if any.
func (r *registry) add(id int64, fragment any) {
	if p, ok := r.lookup(id); ok {
		p.add(fragment)
	}
}

// complete marks the request finished and wakes its waiter.
func (r *registry) complete(id int64) {
	if p, ok := r.lookup(id); ok {
		p.resolve(nil)
	}
}

// fail wakes the waiter with an error.
func (r *registry) fail(id int64, err error) {
	if p, ok := r.lookup(id); ok {
		p.resolve(err)
	}
}

// failAll wakes every waiter with the same error. Used on connection loss.
func (r *registry) failAll(err error) {
	r.mu.Lock()
	pending := make([]*pendingRequest, 0, len(r.pending))
	for _, p := range r.pending {
		pending = append(pending, p)
	}
	r.mu.Unlock()
	for _, p := range pending {
		p.resolve(err)
	}
}

// await blocks until the request resolves or the timeout elapses. Either
// way the entry is deregistered before returning, so a late callback for
// this id lands on nothing.
func (r *registry) await(id int64, timeout time.Duration) ([]any, error) {
	p, ok := r.lookup(id)
	if !ok {
		return nil, ErrUnknownRequest
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		r.remove(id)
		fragments, err := p.result()
		if err != nil {
			metrics.Requests.WithLabelValues(string(p.kind), "error").Inc()
			return nil, err
		}
		metrics.Requests.WithLabelValues(string(p.kind), "ok").Inc()
		return fragments, nil
	case <-timer.C:
		r.remove(id)
		p.resolve(ErrTimeout)
		metrics.Requests.WithLabelValues(string(p.kind), "timeout").Inc()
		fragments, _ := p.result()
		return fragments, ErrTimeout
	}
}
