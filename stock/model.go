package stock

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a snapshot of a security's current trading state.
type Quote struct {
	Security Security `json:"security"`
	Name     string   `json:"name"`
	FullName string   `json:"full_name,omitempty"`
	// NameLossy is set when the name contained bytes the decoder had to
	// replace with U+FFFD.
	NameLossy bool `json:"name_lossy,omitempty"`

	Price decimal.Decimal `json:"price"`
	// Volume is the size of the last trade, in lots.
	Volume int64 `json:"volume"`
	// AccumulatedVolume is the day's volume so far, in lots.
	AccumulatedVolume int64 `json:"accumulated_volume"`

	Bid       decimal.NullDecimal `json:"bid"`
	BidVolume int64               `json:"bid_volume"`
	Ask       decimal.NullDecimal `json:"ask"`
	AskVolume int64               `json:"ask_volume"`

	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	PrevClose decimal.Decimal `json:"prev_close"`
	LimitUp   decimal.Decimal `json:"limit_up"`
	LimitDown decimal.Decimal `json:"limit_down"`

	// TradingDate is midnight Taipei time of the session the quote belongs to.
	TradingDate time.Time `json:"trading_date"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the quote invariants: no negative numbers, and an update
// time that falls on the trading date.
func (q Quote) Validate() error {
	prices := []struct {
		name string
		v    decimal.Decimal
	}{
		{"price", q.Price},
		{"open", q.Open},
		{"high", q.High},
		{"low", q.Low},
		{"prev_close", q.PrevClose},
		{"limit_up", q.LimitUp},
		{"limit_down", q.LimitDown},
	}
	for _, p := range prices {
		if p.v.IsNegative() {
			return fmt.Errorf("%w: %s %s is negative", ErrSchemaMismatch, p.name, p.v)
		}
	}
	if q.Bid.Valid && q.Bid.Decimal.IsNegative() {
		return fmt.Errorf("%w: bid %s is negative", ErrSchemaMismatch, q.Bid.Decimal)
	}
	if q.Ask.Valid && q.Ask.Decimal.IsNegative() {
		return fmt.Errorf("%w: ask %s is negative", ErrSchemaMismatch, q.Ask.Decimal)
	}
	if q.Volume < 0 || q.AccumulatedVolume < 0 || q.BidVolume < 0 || q.AskVolume < 0 {
		return fmt.Errorf("%w: negative volume", ErrSchemaMismatch)
	}
	if q.TradingDate.IsZero() {
		return fmt.Errorf("%w: missing trading date", ErrSchemaMismatch)
	}
	if !Day(q.UpdatedAt).Equal(Day(q.TradingDate)) {
		return fmt.Errorf("%w: update time %s outside trading date %s", ErrSchemaMismatch,
			q.UpdatedAt.In(Taipei).Format(time.RFC3339), q.TradingDate.Format(time.DateOnly))
	}
	return nil
}

// DailyPoint is one trading day's summary.
type DailyPoint struct {
	Date time.Time `json:"date"`
	// Volume is the number of shares traded.
	Volume int64 `json:"volume"`
	// Turnover is the traded value in TWD.
	Turnover     decimal.Decimal `json:"turnover"`
	Open         decimal.Decimal `json:"open"`
	High         decimal.Decimal `json:"high"`
	Low          decimal.Decimal `json:"low"`
	Close        decimal.Decimal `json:"close"`
	Change       decimal.Decimal `json:"change"`
	Transactions int64           `json:"transactions"`
	// NoTrade is set for days the exchange printed "--" for the prices.
	NoTrade bool `json:"no_trade,omitempty"`
}

// Validate checks that volumes and prices are non-negative. Change may be negative.
func (p DailyPoint) Validate() error {
	if p.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrSchemaMismatch)
	}
	if p.Volume < 0 || p.Transactions < 0 {
		return fmt.Errorf("%w: negative volume", ErrSchemaMismatch)
	}
	for _, v := range []decimal.Decimal{p.Turnover, p.Open, p.High, p.Low, p.Close} {
		if v.IsNegative() {
			return fmt.Errorf("%w: negative price %s", ErrSchemaMismatch, v)
		}
	}
	return nil
}

// Series is the daily history of one security over a date range, sorted
// strictly ascending by date.
type Series struct {
	Security Security     `json:"security"`
	Range    DateRange    `json:"range"`
	Points   []DailyPoint `json:"points"`
	// RowErrors lists rows the exchange returned that could not be parsed
	// and were left out of Points.
	RowErrors []*RowError `json:"-"`
}

// Empty reports whether the range held no trading days.
func (s Series) Empty() bool { return len(s.Points) == 0 }

// DateRange is an inclusive range of Taipei calendar days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewDateRange truncates both ends to calendar days and validates the range.
func NewDateRange(from, to time.Time) (DateRange, error) {
	r := DateRange{From: Day(from), To: Day(to)}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// MonthRange covers the whole of the month containing t.
func MonthRange(t time.Time) DateRange {
	start := MonthStart(t)
	return DateRange{From: start, To: start.AddDate(0, 1, -1)}
}

func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("%w: both ends are required", ErrInvalidRange)
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidRange, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	}
	return nil
}

// Contains reports whether t's Taipei calendar day lies within the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(r.From)) && !d.After(Day(r.To))
}

// Months returns the first day of every month the range touches, ascending.
func (r DateRange) Months() []time.Time {
	var out []time.Time
	for m := MonthStart(r.From); !m.After(Day(r.To)); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out
}

func (r DateRange) String() string {
	return r.From.Format(time.DateOnly) + ".." + r.To.Format(time.DateOnly)
}

// Listing is an entry of the exchange's list of tradable securities.
type Listing struct {
	Security  Security  `json:"security"`
	Name      string    `json:"name"`
	NameLossy bool      `json:"name_lossy,omitempty"`
	ISIN      string    `json:"isin"`
	ListedOn  time.Time `json:"listed_on"`
	Industry  string    `json:"industry,omitempty"`
	CFICode   string    `json:"cfi_code,omitempty"`
}
