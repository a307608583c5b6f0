package ibgw

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Boostao/tws-tradingbot-sub000/internal/model"
)

// fakeServer is a minimal gateway: it accepts one client, performs the
// version handshake, and records every decoded request while letting tests
// push messages back.
type fakeServer struct {
	t        *testing.T
	ln       net.Listener
	mu       sync.Mutex
	conn     net.Conn
	requests chan []string
	ready    chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &fakeServer{
		t:        t,
		ln:       ln,
		requests: make(chan []string, 64),
		ready:    make(chan struct{}),
	}
	t.Cleanup(srv.close)
	go srv.serve()
	return srv
}

func (srv *fakeServer) port() int {
	return srv.ln.Addr().(*net.TCPAddr).Port
}

func (srv *fakeServer) serve() {
	conn, err := srv.ln.Accept()
	if err != nil {
		return
	}
	srv.mu.Lock()
	srv.conn = conn
	srv.mu.Unlock()

	r := bufio.NewReader(conn)

	// Client prologue: "API\0" then a framed client version.
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil || string(prefix) != apiPrefix {
		srv.t.Errorf("bad api prefix %q (%v)", prefix, err)
		return
	}
	if _, err := readFrame(r); err != nil {
		srv.t.Errorf("read client version: %v", err)
		return
	}
	// Greeting is raw NUL-terminated fields, unframed.
	if _, err := conn.Write([]byte("176\x0020250830 10:00:00 EST\x00")); err != nil {
		return
	}
	close(srv.ready)

	for {
		payload, err := readFrame(r)
		if err != nil {
			return
		}
		fields := strings.Split(strings.TrimSuffix(string(payload), "\x00"), "\x00")
		srv.requests <- fields
	}
}

// push sends one framed message to the connected client.
func (srv *fakeServer) push(fields ...string) {
	srv.mu.Lock()
	conn := srv.conn
	srv.mu.Unlock()
	if conn == nil {
		srv.t.Fatal("push before accept")
	}
	if err := writeFrame(conn, fields...); err != nil {
		srv.t.Errorf("push: %v", err)
	}
}

// expect pulls the next request and checks its leading fields.
func (srv *fakeServer) expect(want ...string) []string {
	srv.t.Helper()
	select {
	case fields := <-srv.requests:
		for i, w := range want {
			if i >= len(fields) || fields[i] != w {
				srv.t.Fatalf("request = %v, want prefix %v", fields, want)
			}
		}
		return fields
	case <-time.After(2 * time.Second):
		srv.t.Fatal("no request arrived")
		return nil
	}
}

func (srv *fakeServer) dropClient() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.conn != nil {
		srv.conn.Close()
	}
}

func (srv *fakeServer) close() {
	srv.ln.Close()
	srv.dropClient()
}

// recorder captures the callbacks a test cares about.
type recorder struct {
	NopWrapper
	mu          sync.Mutex
	nextID      int64
	accounts    []string
	ticks       []float64
	bars        []Bar
	barsDone    chan struct{}
	closedCount int
	closed      chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		barsDone: make(chan struct{}),
		closed:   make(chan struct{}, 2),
	}
}

func (r *recorder) NextValidID(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID = id
}

func (r *recorder) ManagedAccounts(accounts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = accounts
}

func (r *recorder) TickPrice(reqID, tickType int64, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, price)
}

func (r *recorder) HistoricalData(reqID int64, bar Bar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bars = append(r.bars, bar)
}

func (r *recorder) HistoricalDataEnd(reqID int64, start, end string) {
	close(r.barsDone)
}

func (r *recorder) ConnectionClosed() {
	r.mu.Lock()
	r.closedCount++
	r.mu.Unlock()
	r.closed <- struct{}{}
}

func dialTestClient(t *testing.T) (*Client, *fakeServer, *recorder) {
	t.Helper()
	srv := newFakeServer(t)
	rec := newRecorder()
	c := NewClient(rec)
	if err := c.Dial("127.0.0.1", srv.port(), 7, 2*time.Second); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	<-srv.ready
	return c, srv, rec
}

func TestDialHandshake(t *testing.T) {
	c, srv, rec := dialTestClient(t)
	if got := c.ServerVersion(); got != 176 {
		t.Fatalf("ServerVersion = %d, want 176", got)
	}
	// START_API: message id, protocol version, client id, capabilities.
	srv.expect("71", "2", "7")

	srv.push("9", "1", "90") // next valid id
	srv.push("15", "1", "DU12345,DU67890")

	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.nextID == 90 && len(rec.accounts) == 2
	})
	if !c.IsConnected() {
		t.Fatal("client not connected")
	}
}

func TestDispatchTickPrice(t *testing.T) {
	_, srv, rec := dialTestClient(t)
	srv.expect("71")
	srv.push("1", "6", "1", "4", "187.42", "100", "1")
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.ticks) == 1 && rec.ticks[0] == 187.42
	})
}

func TestDispatchHistoricalData(t *testing.T) {
	c, srv, rec := dialTestClient(t)
	srv.expect("71")

	if err := c.ReqHistoricalData(3, model.ContractFor("AAPL"), time.Now(), "1 D", "5 mins", "TRADES", true); err != nil {
		t.Fatalf("ReqHistoricalData: %v", err)
	}
	req := srv.expect("20", "3")
	if len(req) < 3 || req[2] != "AAPL" {
		t.Fatalf("historical request = %v", req)
	}

	srv.push("17", "3", "start", "end", "2",
		"20250314 09:30:00", "100", "101", "99.5", "100.5", "1200", "100.1", "30",
		"20250314 09:35:00", "100.5", "102", "100", "101.5", "900", "101.0", "25",
	)
	select {
	case <-rec.barsDone:
	case <-time.After(2 * time.Second):
		t.Fatal("historical data never completed")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bars) != 2 {
		t.Fatalf("bars = %v", rec.bars)
	}
	if rec.bars[0].Date != "20250314 09:30:00" || rec.bars[0].Close != 100.5 {
		t.Fatalf("bar[0] = %+v", rec.bars[0])
	}
}

func TestPlaceOrderEncoding(t *testing.T) {
	c, srv, _ := dialTestClient(t)
	srv.expect("71")

	spec := OrderSpec{
		Action:     "BUY",
		Quantity:   decimal.NewFromInt(100),
		OrderType:  "LMT",
		LimitPrice: decimal.NewFromFloat(150.25),
		TIF:        "DAY",
		Ref:        "ref-1",
	}
	if err := c.PlaceOrder(42, model.ContractFor("AAPL"), spec); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	req := srv.expect("3", "42")
	joined := strings.Join(req, "|")
	for _, want := range []string{"AAPL", "BUY", "100", "LMT", "150.25", "DAY", "ref-1"} {
		if !strings.Contains(joined, want) {
			t.Errorf("place order request %v missing %q", req, want)
		}
	}
}

func TestServerDropTriggersConnectionClosedOnce(t *testing.T) {
	c, srv, rec := dialTestClient(t)
	srv.expect("71")

	srv.dropClient()
	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectionClosed never fired")
	}
	waitFor(t, func() bool { return !c.IsConnected() })

	// A later Close must not fire the callback again.
	c.Close()
	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.closedCount != 1 {
		t.Fatalf("ConnectionClosed fired %d times", rec.closedCount)
	}
}

func TestPacingQueuesBursts(t *testing.T) {
	c, srv, _ := dialTestClient(t)
	defer c.Close()
	srv.expect("71") // StartAPI

	// A burst past the limiter's bucket must be delayed, never dropped.
	const n = 50
	for i := 0; i < n; i++ {
		if err := c.ReqIDs(); err != nil {
			t.Fatalf("ReqIDs %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		srv.expect("8")
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	c := NewClient(newRecorder())
	if err := c.ReqPositions(); err == nil {
		t.Fatal("send succeeded while disconnected")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
