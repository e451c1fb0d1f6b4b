package stock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. Match them with errors.Is; the typed errors below carry the
// details and unwrap to one of these.
var (
	ErrTransport         = errors.New("transport error")
	ErrTimeout           = errors.New("transport timeout")
	ErrDecode            = errors.New("decode error")
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrTableNotFound     = errors.New("table not found")
	ErrRowParse          = errors.New("row parse error")
	ErrMarketClosed      = errors.New("market is closed")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnknownSecurity   = errors.New("unknown security")
	ErrRateLimited       = errors.New("rate limited by upstream")
	ErrUpstream          = errors.New("upstream error")
	ErrInvalidRange      = errors.New("invalid date range")
	ErrDuplicateDate     = errors.New("duplicate trading date")
)

// Kind is a switchable classification of pipeline errors.
type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindTimeout
	KindDecode
	KindSchemaMismatch
	KindTableNotFound
	KindRowParse
	KindMarketClosed
	KindInvalidIdentifier
	KindUnknownSecurity
	KindRateLimited
	KindUpstream
	KindInvalidRange
	KindDuplicateDate
	KindCanceled
	KindOther
)

var kindNames = map[Kind]string{
	KindNone:              "none",
	KindTransport:         "transport",
	KindTimeout:           "timeout",
	KindDecode:            "decode",
	KindSchemaMismatch:    "schema_mismatch",
	KindTableNotFound:     "table_not_found",
	KindRowParse:          "row_parse",
	KindMarketClosed:      "market_closed",
	KindInvalidIdentifier: "invalid_identifier",
	KindUnknownSecurity:   "unknown_security",
	KindRateLimited:       "rate_limited",
	KindUpstream:          "upstream",
	KindInvalidRange:      "invalid_range",
	KindDuplicateDate:     "duplicate_date",
	KindCanceled:          "canceled",
	KindOther:             "other",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// order matters: timeout before transport, since a timeout is also reported
// by the transport.
var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindMarketClosed, ErrMarketClosed},
	{KindInvalidIdentifier, ErrInvalidIdentifier},
	{KindInvalidRange, ErrInvalidRange},
	{KindUnknownSecurity, ErrUnknownSecurity},
	{KindTimeout, ErrTimeout},
	{KindCanceled, errCanceled},
	{KindTransport, ErrTransport},
	{KindRateLimited, ErrRateLimited},
	{KindUpstream, ErrUpstream},
	{KindDecode, ErrDecode},
	{KindTableNotFound, ErrTableNotFound},
	{KindDuplicateDate, ErrDuplicateDate},
	{KindRowParse, ErrRowParse},
	{KindSchemaMismatch, ErrSchemaMismatch},
}

// KindOf classifies err. A nil error is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindOther
}

// Retryable reports whether retrying the same call later may succeed.
// Structural parse failures and rejected identifiers never are.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout, KindRateLimited, KindUpstream:
		return true
	}
	return false
}

var errCanceled = errors.New("canceled")

// TransportError wraps a failure reported by the HTTP transport. The original
// error is kept unchanged and is reachable with errors.Unwrap.
type TransportError struct {
	Op       string
	URL      string
	Err      error
	timeout  bool
	canceled bool
}

// NewTransportError classifies err as a timeout, a cancellation or a plain
// transport failure.
func NewTransportError(op, url string, err error, timeout, canceled bool) *TransportError {
	return &TransportError{Op: op, URL: url, Err: err, timeout: timeout, canceled: canceled}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the transport gave up because a deadline passed.
func (e *TransportError) Timeout() bool { return e.timeout }

func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.timeout
	case errCanceled:
		return e.canceled && !e.timeout
	case ErrTransport:
		return !e.timeout && !e.canceled
	}
	return false
}

// DecodeError reports bytes that cannot be turned into valid text.
type DecodeError struct {
	Encoding string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Encoding, e.Reason)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// RowError records a table row that could not be mapped. Row is the zero-based
// index among the table's data rows.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

func (e *RowError) Is(target error) bool { return target == ErrRowParse }

// RowErrors is returned when every row of a table failed.
type RowErrors []*RowError

func (e RowErrors) Error() string {
	if len(e) == 0 {
		return "no rows"
	}
	msgs := make([]string, 0, len(e))
	for _, r := range e {
		msgs = append(msgs, r.Error())
	}
	return fmt.Sprintf("all %d rows failed: %s", len(e), strings.Join(msgs, "; "))
}

func (e RowErrors) Is(target error) bool { return target == ErrRowParse }

func (e RowErrors) Unwrap() []error {
	out := make([]error, 0, len(e))
	for _, r := range e {
		out = append(out, r)
	}
	return out
}

// UpstreamError is an error reported by the exchange itself, either through a
// non-success HTTP status or a status message inside the payload.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream: %s", e.Message)
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return !e.rateLimited()
	case ErrRateLimited:
		return e.rateLimited()
	}
	return false
}

func (e *UpstreamError) rateLimited() bool {
	switch e.Status {
	case 403, 429, 503:
		return true
	}
	return false
}

// DuplicateDateError reports two differing records for the same trading day.
type DuplicateDateError struct {
	Security Security
	Date     time.Time
}

func (e *DuplicateDateError) Error() string {
	return fmt.Sprintf("%s: conflicting records for %s", e.Security, e.Date.Format(time.DateOnly))
}

func (e *DuplicateDateError) Is(target error) bool { return target == ErrDuplicateDate }
