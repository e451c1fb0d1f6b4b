// Package parser maps decoded exchange payloads onto the domain model.
//
// The exchanges serve structurally unrelated formats (MIS real-time JSON,
// TWSE monthly JSON, HTML tables for the monthly pages and the ISIN list).
// Every variant implements Parser for its result type, so the fetchers pick a
// parser by the descriptor's Format and never look at the payload themselves.
package parser

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"twstock/request"
	"twstock/stock"
	"twstock/textdecode"
)

// Parser parses decoded text of one format into T.
type Parser[T any] interface {
	Format() request.Format
	Parse(text textdecode.Text) (T, error)
}

// noDataMarkers are the notices the exchanges print instead of a table when a
// month has no trading days for the security.
var noDataMarkers = []string{
	"沒有符合條件的資料",
	"查無資料",
	"共0筆",
	"No data",
}

func isNoData(s string) bool {
	compact := strings.Join(strings.Fields(s), "")
	for _, m := range noDataMarkers {
		if strings.Contains(compact, strings.ReplaceAll(m, " ", "")) {
			return true
		}
	}
	return false
}

var errReplacedBytes = &stock.DecodeError{Encoding: "cell", Reason: "invalid byte sequence in numeric field"}

// cleanNumber strips thousands separators and surrounding space.
func cleanNumber(v string) (string, error) {
	if strings.ContainsRune(v, '\uFFFD') {
		return "", errReplacedBytes
	}
	v = strings.TrimSpace(v)
	v = strings.ReplaceAll(v, ",", "")
	v = strings.ReplaceAll(v, " ", "")
	return v, nil
}

// isBlankPrice reports the exchange's "no value" placeholders.
func isBlankPrice(v string) bool {
	switch strings.TrimSpace(v) {
	case "--", "---", "----", "-", "":
		return true
	}
	return false
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	s, err := cleanNumber(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", field, v, err)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", field, v, err)
	}
	return d, nil
}

func parseCount(field, v string, scale int64) (int64, error) {
	d, err := parseDecimal(field, v)
	if err != nil {
		return 0, err
	}
	d = d.Mul(decimal.NewFromInt(scale))
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("parse %s %q: not a whole number", field, v)
	}
	return d.IntPart(), nil
}
