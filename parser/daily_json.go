package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"twstock/request"
	"twstock/stock"
	"twstock/textdecode"
)

// stockDayResponse is TWSE STOCK_DAY with response=json.
type stockDayResponse struct {
	Stat   string    `json:"stat"`
	Date   string    `json:"date"`
	Title  string    `json:"title"`
	Fields []string  `json:"fields"`
	Data   [][]field `json:"data"`
	Notes  []string  `json:"notes"`
}

const stockDayOK = "OK"

// DailyJSON parses the TWSE monthly trading page served as JSON. Column
// lookup and row handling are the same as DailyHTML.
type DailyJSON struct{}

var _ Parser[DailyTable] = DailyJSON{}

func (DailyJSON) Format() request.Format { return request.FormatJSON }

func (DailyJSON) Parse(text textdecode.Text) (DailyTable, error) {
	var resp stockDayResponse
	if err := json.Unmarshal([]byte(text.Content), &resp); err != nil {
		return DailyTable{}, fmt.Errorf("%w: daily payload: %v", stock.ErrSchemaMismatch, err)
	}
	if !strings.EqualFold(strings.TrimSpace(resp.Stat), stockDayOK) {
		if isNoData(resp.Stat) {
			return DailyTable{}, nil
		}
		return DailyTable{}, &stock.UpstreamError{Message: resp.Stat}
	}
	// Only the title and notes are free text.
	freeText := textdecode.CountReplacements(resp.Title + strings.Join(resp.Notes, ""))
	if err := text.Accounted(freeText + numericReplacements(resp.Data)); err != nil {
		return DailyTable{}, err
	}
	if len(resp.Data) == 0 {
		return DailyTable{Title: resp.Title}, nil
	}
	m, err := newDailyMapper(resp.Fields)
	if err != nil {
		return DailyTable{}, fmt.Errorf("fields %q: %w", resp.Fields, err)
	}
	rows := make([][]string, len(resp.Data))
	for i, rec := range resp.Data {
		cells := make([]string, len(rec))
		for j, c := range rec {
			cells[j] = c.Value
		}
		rows[i] = cells
	}
	out, err := mapDailyRows(m, rows)
	out.Title = resp.Title
	return out, err
}

// numericReplacements counts replacements inside data cells. Those are not
// silently accepted: the affected rows fail on their own.
func numericReplacements(data [][]field) int {
	n := 0
	for _, rec := range data {
		for _, c := range rec {
			n += textdecode.CountReplacements(c.Value)
		}
	}
	return n
}
