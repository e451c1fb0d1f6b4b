package parser

import (
	"fmt"
	"strings"

	"twstock/request"
	"twstock/stock"
	"twstock/textdecode"
)

// ListingTable is the parsed ISIN list.
type ListingTable struct {
	Listings  []stock.Listing
	RowErrors []*stock.RowError
}

type listingColumn int

const (
	listIgnored listingColumn = iota
	listCodeName
	listISIN
	listDate
	listMarket
	listIndustry
	listCFI
)

var listingHeaders = map[string]listingColumn{
	"有價證券代號及名稱":        listCodeName,
	"國際證券辨識號碼(isincode)": listISIN,
	"isincode":         listISIN,
	"上市日":              listDate,
	"上櫃日":              listDate,
	"市場別":              listMarket,
	"產業別":              listIndustry,
	"cficode":          listCFI,
}

type listingMapper struct {
	columns []listingColumn
}

func newListingMapper(headers []string) (listingMapper, bool) {
	m := listingMapper{columns: make([]listingColumn, len(headers))}
	seen := map[listingColumn]bool{}
	for i, h := range headers {
		col, ok := listingHeaders[normalizeHeader(h)]
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		m.columns[i] = col
	}
	return m, seen[listCodeName]
}

// ListingHTML parses the ISIN C_public.jsp pages. Segment is used for rows
// whose market column is absent or unrecognised.
type ListingHTML struct {
	Segment stock.Segment
}

var _ Parser[ListingTable] = ListingHTML{}

func (ListingHTML) Format() request.Format { return request.FormatHTML }

// Parse skips category rows (one cell spanning the table). Code and name
// share a cell separated by a full-width space.
func (p ListingHTML) Parse(text textdecode.Text) (ListingTable, error) {
	doc, err := parseHTML(text.Content)
	if err != nil {
		return ListingTable{}, fmt.Errorf("%w: html: %v", stock.ErrSchemaMismatch, err)
	}
	t, ok := locateTable(doc, newListingMapper)
	if !ok {
		if err := text.Accounted(0); err != nil {
			return ListingTable{}, err
		}
		return ListingTable{}, fmt.Errorf("%w: no securities table", stock.ErrTableNotFound)
	}
	if err := accountHTML(text, doc, t.header); err != nil {
		return ListingTable{}, err
	}
	var out ListingTable
	for i, r := range t.rows {
		l, err := p.mapRow(t.mapper, r.texts())
		if err != nil {
			out.RowErrors = append(out.RowErrors, &stock.RowError{Row: i, Err: err})
			continue
		}
		out.Listings = append(out.Listings, l)
	}
	if len(out.Listings) == 0 && len(out.RowErrors) > 0 {
		return ListingTable{}, stock.RowErrors(out.RowErrors)
	}
	return out, nil
}

func (p ListingHTML) mapRow(m listingMapper, cells []string) (stock.Listing, error) {
	if len(cells) != len(m.columns) {
		return stock.Listing{}, fmt.Errorf("%w: got %d cells, want %d", stock.ErrSchemaMismatch, len(cells), len(m.columns))
	}
	var (
		l    stock.Listing
		code string
		seg  = p.Segment
	)
	for i, col := range m.columns {
		v := strings.TrimSpace(cells[i])
		switch col {
		case listCodeName:
			parts := strings.Fields(v)
			if len(parts) < 2 {
				return stock.Listing{}, fmt.Errorf("%w: code and name %q", stock.ErrSchemaMismatch, v)
			}
			code = parts[0]
			l.Name = strings.Join(parts[1:], " ")
		case listISIN:
			if strings.ContainsRune(v, '\uFFFD') {
				return stock.Listing{}, fmt.Errorf("isin %q: %w", v, errReplacedBytes)
			}
			l.ISIN = v
		case listDate:
			if v == "" {
				continue
			}
			d, err := parseDailyDate(v)
			if err != nil {
				return stock.Listing{}, err
			}
			l.ListedOn = d
		case listMarket:
			if s, err := stock.ParseSegment(v); err == nil {
				seg = s
			}
		case listIndustry:
			l.Industry = v
		case listCFI:
			l.CFICode = v
		}
	}
	if strings.ContainsRune(code, '\uFFFD') {
		return stock.Listing{}, fmt.Errorf("code %q: %w", code, errReplacedBytes)
	}
	sec, err := stock.NewSecurity(seg, code)
	if err != nil {
		return stock.Listing{}, err
	}
	l.Security = sec
	l.NameLossy = textdecode.CountReplacements(l.Name) > 0
	return l, nil
}
