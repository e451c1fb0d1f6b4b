package parser

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"twstock/stock"
)

// DailyTable is one month page of daily trading data. Points keep the page's
// row order; RowErrors lists the rows that were skipped.
type DailyTable struct {
	Title     string
	Points    []stock.DailyPoint
	RowErrors []*stock.RowError
}

type dailyColumn int

const (
	colDate dailyColumn = iota + 1
	colVolume
	colTurnover
	colOpen
	colHigh
	colLow
	colClose
	colChange
	colTransactions
)

type columnDef struct {
	col   dailyColumn
	scale int64
}

// dailyHeaders maps normalized header labels to columns. TPEx reports volume
// and value in thousands.
var dailyHeaders = map[string]columnDef{
	"日期":   {colDate, 1},
	"成交股數": {colVolume, 1},
	"成交仟股": {colVolume, 1000},
	"成交金額": {colTurnover, 1},
	"成交仟元": {colTurnover, 1000},
	"開盤價":  {colOpen, 1},
	"開盤":   {colOpen, 1},
	"最高價":  {colHigh, 1},
	"最高":   {colHigh, 1},
	"最低價":  {colLow, 1},
	"最低":   {colLow, 1},
	"收盤價":  {colClose, 1},
	"收盤":   {colClose, 1},
	"漲跌價差": {colChange, 1},
	"漲跌":   {colChange, 1},
	"成交筆數": {colTransactions, 1},
	"筆數":   {colTransactions, 1},

	"date":          {colDate, 1},
	"tradevolume":   {colVolume, 1},
	"volume":        {colVolume, 1},
	"tradevalue":    {colTurnover, 1},
	"turnover":      {colTurnover, 1},
	"openingprice":  {colOpen, 1},
	"open":          {colOpen, 1},
	"highestprice":  {colHigh, 1},
	"high":          {colHigh, 1},
	"lowestprice":   {colLow, 1},
	"low":           {colLow, 1},
	"closingprice":  {colClose, 1},
	"close":         {colClose, 1},
	"change":        {colChange, 1},
	"transaction":   {colTransactions, 1},
	"transactions":  {colTransactions, 1},
}

// normalizeHeader drops all whitespace (including U+3000) and folds case.
func normalizeHeader(h string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, h)
}

var dailyColumnNames = [...]string{
	colDate:         "date",
	colVolume:       "volume",
	colTurnover:     "turnover",
	colOpen:         "open",
	colHigh:         "high",
	colLow:          "low",
	colClose:        "close",
	colChange:       "change",
	colTransactions: "transactions",
}

// dailyMapper maps data rows by the position of their header cell.
type dailyMapper struct {
	columns []columnDef
}

// newDailyMapper accepts a header only when it names all nine columns once
// and nothing else.
func newDailyMapper(headers []string) (dailyMapper, error) {
	m := dailyMapper{columns: make([]columnDef, len(headers))}
	seen := map[dailyColumn]bool{}
	for i, h := range headers {
		def, ok := dailyHeaders[normalizeHeader(h)]
		if !ok {
			return dailyMapper{}, fmt.Errorf("%w: unknown column %q", stock.ErrSchemaMismatch, h)
		}
		if seen[def.col] {
			return dailyMapper{}, fmt.Errorf("%w: column %q repeated", stock.ErrSchemaMismatch, h)
		}
		seen[def.col] = true
		m.columns[i] = def
	}
	var missing []string
	for col := colDate; col <= colTransactions; col++ {
		if !seen[col] {
			missing = append(missing, dailyColumnNames[col])
		}
	}
	if len(missing) > 0 {
		return dailyMapper{}, fmt.Errorf("%w: missing columns %s", stock.ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return m, nil
}

// acceptDailyHeader adapts newDailyMapper for locateTable.
func acceptDailyHeader(headers []string) (dailyMapper, bool) {
	m, err := newDailyMapper(headers)
	return m, err == nil
}

func (m dailyMapper) mapRow(cells []string) (stock.DailyPoint, error) {
	if len(cells) != len(m.columns) {
		return stock.DailyPoint{}, fmt.Errorf("%w: got %d cells, want %d", stock.ErrSchemaMismatch, len(cells), len(m.columns))
	}
	var (
		p     stock.DailyPoint
		blank int
		err   error
	)
	for i, def := range m.columns {
		v := cells[i]
		switch def.col {
		case colDate:
			p.Date, err = parseDailyDate(v)
		case colVolume:
			p.Volume, err = parseCount("volume", v, def.scale)
		case colTransactions:
			p.Transactions, err = parseCount("transactions", v, def.scale)
		case colTurnover:
			p.Turnover, err = parseDecimal("turnover", v)
			p.Turnover = p.Turnover.Mul(decimal.NewFromInt(def.scale))
		case colOpen, colHigh, colLow, colClose:
			var d decimal.Decimal
			if isBlankPrice(v) {
				blank++
			} else if d, err = parseDecimal("price", v); err == nil {
				switch def.col {
				case colOpen:
					p.Open = d
				case colHigh:
					p.High = d
				case colLow:
					p.Low = d
				case colClose:
					p.Close = d
				}
			}
		case colChange:
			p.Change, err = parseChange(v)
		}
		if err != nil {
			return stock.DailyPoint{}, err
		}
	}
	if blank > 0 {
		if blank != m.priceColumns() {
			return stock.DailyPoint{}, fmt.Errorf("%w: some prices missing", stock.ErrSchemaMismatch)
		}
		p.NoTrade = true
	}
	if err := p.Validate(); err != nil {
		return stock.DailyPoint{}, err
	}
	return p, nil
}

func (m dailyMapper) priceColumns() int {
	n := 0
	for _, c := range m.columns {
		switch c.col {
		case colOpen, colHigh, colLow, colClose:
			n++
		}
	}
	return n
}

// parseDailyDate accepts "110/01/04", optionally followed by the "＊" marker
// TWSE prints on days with special trading rules.
func parseDailyDate(v string) (time.Time, error) {
	if strings.ContainsRune(v, '\uFFFD') {
		return time.Time{}, fmt.Errorf("parse date %q: %w", v, errReplacedBytes)
	}
	v = strings.TrimRight(strings.TrimSpace(v), "*＊ ")
	d, err := stock.ParseROCDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", stock.ErrSchemaMismatch, err)
	}
	return d, nil
}

// parseChange handles the change column: a leading "+" or "-", the "X"
// prefix for ex-rights days, and "--" or blank when there is no reference.
func parseChange(v string) (decimal.Decimal, error) {
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(s, "X")
	s = strings.TrimPrefix(s, "x")
	s = strings.Join(strings.Fields(s), "")
	if isBlankPrice(s) || s == "0.00" {
		return decimal.Zero, nil
	}
	s = strings.TrimPrefix(s, "+")
	return parseDecimal("change", s)
}
