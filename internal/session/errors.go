package session

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the facade.
var (
	// ErrNotConnected is returned when a call needs a live session and the
	// connection is down. The supervisor, not the caller, retries.
	ErrNotConnected = errors.New("not connected to gateway")
	// ErrTimeout means no completing callback arrived before the deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrUnknownRequest means the request id was never issued or was
	// already resolved.
	ErrUnknownRequest = errors.New("unknown request id")
	// ErrNoMarketData short-circuits snapshots for symbols the account has
	// no data entitlement for.
	ErrNoMarketData = errors.New("no market data permission")
	// ErrNoSecurityDef matches gateway error 200: the contract could not
	// be resolved. Check with errors.Is.
	ErrNoSecurityDef = errors.New("no security definition found")
)

// RequestError is a gateway error scoped to one request or order.
type RequestError struct {
	Code int64
	Msg  string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Msg)
}

// Is maps well-known codes onto their sentinels.
func (e *RequestError) Is(target error) bool {
	return target == ErrNoSecurityDef && e.Code == 200
}

// errClass is the actionable outcome of a gateway error code.
type errClass int

const (
	// classInfo: logged and otherwise ignored.
	classInfo errClass = iota
	// classRequestDead: the referenced id can never complete; wake its
	// waiter with a failure.
	classRequestDead
	// classFatal: the connection itself is gone; state goes to ERROR and
	// every waiter is woken.
	classFatal
	// classRequestFailed: request-scoped failure; also wakes the waiter.
	classRequestFailed
)

func (c errClass) String() string {
	switch c {
	case classInfo:
		return "info"
	case classRequestDead:
		return "request_dead"
	case classFatal:
		return "fatal"
	}
	return "request_failed"
}

// infoCodes are connection diagnostics and farm notices: market data farm
// connected/broken, HMDS farm status, sec-def server status and the like.
var infoCodes = map[int64]bool{
	1101: true, // connectivity restored, data lost
	1102: true, // connectivity restored, data maintained
	2100: true, // account data subscription cancelled
	2103: true, // market data farm connection broken
	2104: true, // market data farm connection OK
	2105: true, // HMDS data farm connection broken
	2106: true, // HMDS data farm connection OK
	2107: true, // HMDS data farm inactive but should be available
	2108: true, // market data farm inactive but should be available
	2110: true, // connectivity between TWS and server broken, will restore
	2119: true, // market data farm connecting
	2137: true, // cross-side warning
	2158: true, // sec-def data farm connection OK
}

// deadCodes mean the referenced request id will never complete.
var deadCodes = map[int64]bool{
	162:   true, // historical market data service error
	165:   true, // historical market data service query message
	200:   true, // no security definition found
	321:   true, // server error validating request
	354:   true, // requested market data is not subscribed
	366:   true, // no historical data query found for ticker
	10089: true, // market data subscription required
	10090: true, // part of requested data not subscribed
	10167: true, // displaying delayed data instead
	10168: true, // delayed data not enabled
	10197: true, // no market data during competing live session
}

// fatalCodes force the session to ERROR so the supervisor reconnects.
var fatalCodes = map[int64]bool{
	502:  true, // couldn't connect to TWS
	504:  true, // not connected
	1100: true, // connectivity lost
	1300: true, // socket port reset
}

// permissionCodes additionally mark the symbol in the sticky
// no-entitlement set so later snapshots can fail fast or fall back to
// delayed data.
var permissionCodes = map[int64]bool{
	354:   true,
	10089: true,
	10090: true,
	10168: true,
	10197: true,
}

// classify routes a gateway error code. Unknown codes wake the waiter with a
// failure rather than leaving a caller hung.
func classify(code int64) errClass {
	switch {
	case infoCodes[code]:
		return classInfo
	case fatalCodes[code]:
		return classFatal
	case deadCodes[code]:
		return classRequestDead
	}
	return classRequestFailed
}
