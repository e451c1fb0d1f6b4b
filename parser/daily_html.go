package parser

import (
	"fmt"

	"twstock/request"
	"twstock/stock"
	"twstock/textdecode"
)

// DailyHTML parses the monthly trading pages served as HTML: TWSE STOCK_DAY
// with response=html and the TPEx printable page.
type DailyHTML struct{}

var _ Parser[DailyTable] = DailyHTML{}

func (DailyHTML) Format() request.Format { return request.FormatHTML }

// Parse maps the first table whose header names the nine daily columns. Rows
// that fail are collected in RowErrors; the call fails only when no row
// survives.
func (DailyHTML) Parse(text textdecode.Text) (DailyTable, error) {
	doc, err := parseHTML(text.Content)
	if err != nil {
		return DailyTable{}, fmt.Errorf("%w: html: %v", stock.ErrSchemaMismatch, err)
	}
	t, ok := locateTable(doc, acceptDailyHeader)
	if !ok {
		if err := accountMissingTable(text, doc); err != nil {
			return DailyTable{}, err
		}
		if isNoData(nodeText(doc)) {
			return DailyTable{}, nil
		}
		return DailyTable{}, fmt.Errorf("%w: no daily trading table", stock.ErrTableNotFound)
	}
	if err := accountHTML(text, doc, t.header); err != nil {
		return DailyTable{}, err
	}
	cells := make([][]string, len(t.rows))
	for i, r := range t.rows {
		cells[i] = r.texts()
	}
	out, err := mapDailyRows(t.mapper, cells)
	out.Title = t.title
	return out, err
}

func mapDailyRows(m dailyMapper, rows [][]string) (DailyTable, error) {
	var out DailyTable
	for i, cells := range rows {
		p, err := m.mapRow(cells)
		if err != nil {
			out.RowErrors = append(out.RowErrors, &stock.RowError{Row: i, Err: err})
			continue
		}
		out.Points = append(out.Points, p)
	}
	if len(out.Points) == 0 && len(out.RowErrors) > 0 {
		return DailyTable{}, stock.RowErrors(out.RowErrors)
	}
	return out, nil
}
