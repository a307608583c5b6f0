// Package ibgw implements the low-level socket client for the TWS/IB Gateway
// API. It owns the connection handshake, a single reader goroutine that
// decodes inbound frames and fires Wrapper callbacks, and the encoders for
// the outbound request messages this bot actually uses. The full protocol
// surface is deliberately not covered.
package ibgw

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Str("component", "ibgw").Logger()

// SetLogger replaces the package logger.
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "ibgw").Logger()
}

const (
	clientVersion = "176"
	apiPrefix     = "API\x00"

	// The gateway drops clients that exceed ~50 outbound messages per
	// second; pace a little under that.
	maxMsgRate = 45
)

// Client is the wire callback surface: one socket, one reader goroutine.
// All request methods are safe for concurrent use.
type Client struct {
	wrapper Wrapper
	limiter *rate.Limiter

	mu            sync.Mutex
	conn          net.Conn
	connected     bool
	serverVersion int64
	serverTime    string
	cancel        context.CancelFunc
	ctx           context.Context
	done          chan struct{}
	closeOnce     *sync.Once
}

// NewClient returns a disconnected client delivering callbacks to wrapper.
func NewClient(wrapper Wrapper) *Client {
	return &Client{
		wrapper: wrapper,
		limiter: rate.NewLimiter(rate.Limit(maxMsgRate), maxMsgRate),
	}
}

// Dial opens the socket, performs the version handshake, sends StartAPI and
// starts the reader goroutine. The handshake is synchronous; the
// NextValidID callback that completes the login arrives asynchronously.
func (c *Client) Dial(host string, port int, clientID int64, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return err
	}

	reader := bufio.NewReader(conn)
	if err := c.handshake(conn, reader); err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connected = true
	c.ctx = ctx
	c.cancel = cancel
	c.done = make(chan struct{})
	c.closeOnce = new(sync.Once)

	// START_API: protocol version 2, client id, optional capabilities.
	if err := writeFrame(conn, encInt(msgStartAPI), "2", encInt(clientID), ""); err != nil {
		c.teardownLocked()
		return fmt.Errorf("start api: %w", err)
	}

	go c.readLoop(reader)

	log.Info().Str("addr", addr).Int64("clientID", clientID).Int64("serverVersion", c.serverVersion).Msg("connected")
	return nil
}

// handshake sends the API prefix plus our version and reads the server's
// version/time greeting (two NUL-terminated fields, unframed).
func (c *Client) handshake(conn net.Conn, r *bufio.Reader) error {
	if _, err := conn.Write([]byte(apiPrefix)); err != nil {
		return err
	}
	if err := writeFrame(conn, clientVersion); err != nil {
		return err
	}

	version, err := r.ReadString(0)
	if err != nil {
		return fmt.Errorf("read server version: %w", err)
	}
	stamp, err := r.ReadString(0)
	if err != nil {
		return fmt.Errorf("read server time: %w", err)
	}

	s := newFieldScanner([]byte(strings.TrimSuffix(version, "\x00") + "\x00"))
	c.serverVersion = s.Int()
	if s.Err() != nil {
		return fmt.Errorf("bad server version %q", version)
	}
	c.serverTime = strings.TrimSuffix(stamp, "\x00")
	return nil
}

// Close stops the reader and closes the socket. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	done := c.done
	c.teardownLocked()
	c.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("reader did not exit in time")
	}
	return nil
}

// teardownLocked closes the socket and resets connection state. Callers hold mu.
func (c *Client) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.connected = false
}

// IsConnected reports whether the socket is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ServerVersion returns the version reported during the handshake.
func (c *Client) ServerVersion() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// send encodes one rate-limited outbound message.
func (c *Client) send(fields ...string) error {
	c.mu.Lock()
	ctx, conn, connected := c.ctx, c.conn, c.connected
	c.mu.Unlock()
	if !connected {
		return fmt.Errorf("not connected")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send cancelled: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn != conn {
		return fmt.Errorf("not connected")
	}
	return writeFrame(c.conn, fields...)
}

// readLoop is the single delivery thread for every inbound callback.
func (c *Client) readLoop(r *bufio.Reader) {
	defer close(c.done)
	for {
		payload, err := readFrame(r)
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected
			once := c.closeOnce
			c.teardownLocked()
			c.mu.Unlock()
			if wasConnected {
				log.Warn().Err(err).Msg("connection lost")
			}
			once.Do(c.wrapper.ConnectionClosed)
			return
		}
		c.dispatch(payload)
	}
}

func (c *Client) dispatch(payload []byte) {
	s := newFieldScanner(payload)
	msgID := s.Int()
	if s.Err() != nil {
		log.Error().Err(s.Err()).Msg("unreadable frame")
		return
	}

	switch msgID {
	case inNextValidID:
		s.Int() // version
		c.wrapper.NextValidID(s.Int())
	case inManagedAccts:
		s.Int()
		c.wrapper.ManagedAccounts(strings.Split(s.String(), ","))
	case inErrMsg:
		s.Int()
		reqID := s.Int()
		code := s.Int()
		c.wrapper.Error(reqID, code, s.String())
	case inTickPrice:
		s.Int()
		reqID := s.Int()
		tickType := s.Int()
		price := s.Float()
		c.wrapper.TickPrice(reqID, tickType, price)
	case inTickSize:
		s.Int()
		reqID := s.Int()
		tickType := s.Int()
		c.wrapper.TickSize(reqID, tickType, s.Int())
	case inTickString:
		s.Int()
		reqID := s.Int()
		tickType := s.Int()
		c.wrapper.TickString(reqID, tickType, s.String())
	case inTickSnapshotEnd:
		s.Int()
		c.wrapper.TickSnapshotEnd(s.Int())
	case inMarketDataType:
		s.Int()
		reqID := s.Int()
		c.wrapper.MarketDataType(reqID, s.Int())
	case inHistoricalData:
		c.decodeHistoricalData(s)
	case inAccountSummary:
		s.Int()
		reqID := s.Int()
		account := s.String()
		tag := s.String()
		value := s.String()
		c.wrapper.AccountSummary(reqID, account, tag, value, s.String())
	case inAccountSummaryEnd:
		s.Int()
		c.wrapper.AccountSummaryEnd(s.Int())
	case inAcctValue:
		s.Int()
		tag := s.String()
		value := s.String()
		currency := s.String()
		c.wrapper.UpdateAccountValue(tag, value, currency, s.String())
	case inAcctUpdateTime:
		s.Int()
		c.wrapper.UpdateAccountTime(s.String())
	case inPortfolioValue:
		c.decodePortfolioValue(s)
	case inAcctDownloadEnd:
		s.Int()
		c.wrapper.AccountDownloadEnd(s.String())
	case inPositionData:
		c.decodePosition(s)
	case inPositionEnd:
		c.wrapper.PositionEnd()
	case inExecutionData:
		c.decodeExecution(s)
	case inExecutionDataEnd:
		s.Int()
		c.wrapper.ExecDetailsEnd(s.Int())
	case inOpenOrder:
		c.decodeOpenOrder(s)
	case inOpenOrderEnd:
		c.wrapper.OpenOrderEnd()
	case inOrderStatus:
		c.decodeOrderStatus(s)
	case inContractData:
		c.decodeContractData(s)
	case inContractDataEnd:
		s.Int()
		c.wrapper.ContractDataEnd(s.Int())
	case inSymbolSamples:
		c.decodeSymbolSamples(s)
	default:
		log.Debug().Int64("msgID", msgID).Msg("unhandled message")
		return
	}

	if err := s.Err(); err != nil {
		log.Error().Err(err).Int64("msgID", msgID).Msg("malformed message")
	}
}
