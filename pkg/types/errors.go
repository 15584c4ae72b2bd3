package types

import (
	"errors"
	"fmt"
)

// HTTPError is raised on any non-2xx REST reply.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// TransportError wraps network-level failures (dial, DNS, timeout). Retried
// with backoff; never task-fatal until the retry budget is exhausted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError covers rejected JWTs, invalid HMACs and unknown keys.
type AuthError struct {
	Venue  Venue
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth error: %s", e.Venue, e.Reason)
}

// RateLimitError marks a 429 or venue-specific throttle reply. The offending
// key is cooled down and the request reattempted on the next pool key.
type RateLimitError struct {
	Venue Venue
	Key   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (key %s)", e.Venue, shortKey(e.Key))
}

// ValidationError is raised synchronously at task creation or request build.
// Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExchangeError is an order rejection (balance, allowance, tick alignment).
// Task-fatal.
type ExchangeError struct {
	Venue   Venue
	Code    string
	Message string
	OrderID string
}

func (e *ExchangeError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s rejected order %s: %s (%s)", e.Venue, e.OrderID, e.Message, e.Code)
	}
	return fmt.Sprintf("%s rejected order: %s (%s)", e.Venue, e.Message, e.Code)
}

// StateMismatchError records a WS event disagreeing with REST about a
// terminal state. REST wins; the WS event is informational.
type StateMismatchError struct {
	OrderID    string
	WSStatus   OrderStatus
	RESTStatus OrderStatus
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("order %s state mismatch: ws=%s rest=%s (rest wins)",
		e.OrderID, e.WSStatus, e.RESTStatus)
}

// ErrMarketBusy is returned when a task is created for a market that already
// has a running task.
var ErrMarketBusy = errors.New("MARKET_BUSY")

// Known CLOB API rejection codes.
const (
	ErrInvalidMinTickSize = "INVALID_ORDER_MIN_TICK_SIZE"
	ErrNotEnoughBalance   = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrFOKNotFilled       = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrMarketNotReady     = "MARKET_NOT_READY"
	ErrInvalidSignature   = "INVALID_SIGNATURE"
)

// CLOBErrorCodes lists the rejection codes recognized in exchange replies.
var CLOBErrorCodes = []string{
	ErrInvalidMinTickSize,
	ErrNotEnoughBalance,
	ErrFOKNotFilled,
	ErrMarketNotReady,
	ErrInvalidSignature,
}

// IsFatalExchangeCode reports whether a rejection code should fail the task
// rather than be retried.
func IsFatalExchangeCode(code string) bool {
	switch code {
	case ErrNotEnoughBalance, ErrInvalidSignature, ErrInvalidMinTickSize:
		return true
	default:
		return false
	}
}

func shortKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
