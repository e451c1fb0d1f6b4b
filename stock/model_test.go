package stock_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"twstock/stock"
)

func validQuote() stock.Quote {
	return stock.Quote{
		Security:          stock.Security{Segment: stock.Listed, Code: "2330"},
		Name:              "台積電",
		Price:             decimal.RequireFromString("529"),
		Volume:            1203,
		AccumulatedVolume: 39489,
		Bid:               decimal.NewNullDecimal(decimal.RequireFromString("529")),
		Ask:               decimal.NewNullDecimal(decimal.RequireFromString("530")),
		Open:              decimal.RequireFromString("530"),
		High:              decimal.RequireFromString("530"),
		Low:               decimal.RequireFromString("528"),
		PrevClose:         decimal.RequireFromString("530"),
		LimitUp:           decimal.RequireFromString("583"),
		LimitDown:         decimal.RequireFromString("477"),
		TradingDate:       stock.Date(2021, time.January, 4),
		UpdatedAt:         time.Date(2021, time.January, 4, 14, 0, 0, 0, stock.Taipei),
	}
}

func TestQuote_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*stock.Quote)
		wantErr bool
	}{
		{name: "valid", mutate: func(*stock.Quote) {}},
		{name: "no order book", mutate: func(q *stock.Quote) { q.Bid, q.Ask = decimal.NullDecimal{}, decimal.NullDecimal{} }},
		{name: "negative price", wantErr: true, mutate: func(q *stock.Quote) { q.Price = decimal.RequireFromString("-1") }},
		{name: "negative bid", wantErr: true, mutate: func(q *stock.Quote) { q.Bid = decimal.NewNullDecimal(decimal.RequireFromString("-0.5")) }},
		{name: "negative volume", wantErr: true, mutate: func(q *stock.Quote) { q.AccumulatedVolume = -1 }},
		{name: "missing date", wantErr: true, mutate: func(q *stock.Quote) { q.TradingDate = time.Time{} }},
		{name: "update on another day", wantErr: true, mutate: func(q *stock.Quote) { q.UpdatedAt = q.UpdatedAt.AddDate(0, 0, 1) }},
		// 16:30 UTC on the 4th is 00:30 on the 5th in Taipei.
		{name: "update after Taipei midnight", wantErr: true, mutate: func(q *stock.Quote) {
			q.UpdatedAt = time.Date(2021, time.January, 4, 16, 30, 0, 0, time.UTC)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: a valid quote with one change
			q := validQuote()
			tt.mutate(&q)

			// Act: validate
			err := q.Validate()

			// Assert: schema mismatch or nil
			if tt.wantErr {
				require.ErrorIs(t, err, stock.ErrSchemaMismatch)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDailyPoint_Validate(t *testing.T) {
	t.Parallel()

	p := stock.DailyPoint{
		Date:   stock.Date(2021, time.January, 4),
		Volume: 39489349,
		Close:  decimal.RequireFromString("536"),
		Change: decimal.RequireFromString("-6"),
	}
	require.NoError(t, p.Validate())

	noDate := p
	noDate.Date = time.Time{}
	require.ErrorIs(t, noDate.Validate(), stock.ErrSchemaMismatch)

	negative := p
	negative.Low = decimal.RequireFromString("-1")
	require.ErrorIs(t, negative.Validate(), stock.ErrSchemaMismatch)
}

func TestDateRange(t *testing.T) {
	t.Parallel()

	// Arrange: a range crossing a year boundary, ends given with times of day
	r, err := stock.NewDateRange(
		time.Date(2020, time.November, 20, 9, 30, 0, 0, stock.Taipei),
		time.Date(2021, time.January, 4, 13, 30, 0, 0, stock.Taipei),
	)
	require.NoError(t, err)

	// Act: enumerate month pages
	months := r.Months()

	// Assert: three pages, inclusive ends
	require.Equal(t, []time.Time{
		stock.Date(2020, time.November, 1),
		stock.Date(2020, time.December, 1),
		stock.Date(2021, time.January, 1),
	}, months)
	require.True(t, r.Contains(stock.Date(2020, time.November, 20)))
	require.True(t, r.Contains(stock.Date(2021, time.January, 4)))
	require.False(t, r.Contains(stock.Date(2021, time.January, 5)))
	require.Equal(t, "2020-11-20..2021-01-04", r.String())
}

func TestDateRange_Invalid(t *testing.T) {
	t.Parallel()

	// Act: an inverted range
	_, err := stock.NewDateRange(stock.Date(2021, time.February, 1), stock.Date(2021, time.January, 31))

	// Assert: rejected
	require.ErrorIs(t, err, stock.ErrInvalidRange)
	require.ErrorIs(t, stock.DateRange{}.Validate(), stock.ErrInvalidRange)
}

func TestMonthRange(t *testing.T) {
	t.Parallel()

	r := stock.MonthRange(stock.Date(2020, time.February, 17))

	require.True(t, stock.Date(2020, time.February, 1).Equal(r.From))
	require.True(t, stock.Date(2020, time.February, 29).Equal(r.To))
	require.Len(t, r.Months(), 1)
}
