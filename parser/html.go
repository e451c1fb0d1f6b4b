package parser

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"twstock/textdecode"
)

type htmlCell struct {
	text    string
	header  bool
	colspan int
}

type htmlRow struct {
	cells []htmlCell
	foot  bool
}

func (r htmlRow) texts() []string {
	out := make([]string, len(r.cells))
	for i, c := range r.cells {
		out[i] = c.text
	}
	return out
}

// annotation reports rows that carry no data: a single cell spanning the
// table (category captions, footnotes) or only empty cells.
func (r htmlRow) annotation() bool {
	if len(r.cells) == 1 && r.cells[0].colspan > 1 {
		return true
	}
	for _, c := range r.cells {
		if c.text != "" {
			return false
		}
	}
	return true
}

func parseHTML(content string) (*html.Node, error) {
	return html.Parse(strings.NewReader(content))
}

// tables returns every <table> in document order, nested ones included.
func tables(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// tableRows returns the rows that belong to t itself, not to tables nested
// inside its cells.
func tableRows(t *html.Node) []htmlRow {
	var out []htmlRow
	var walk func(n *html.Node, foot bool)
	walk = func(n *html.Node, foot bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
			case atom.Tfoot:
				walk(c, true)
			case atom.Thead, atom.Tbody:
				walk(c, foot)
			case atom.Tr:
				out = append(out, htmlRow{cells: rowCells(c), foot: foot})
			}
		}
	}
	walk(t, false)
	return out
}

func rowCells(tr *html.Node) []htmlCell {
	var out []htmlCell
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		span := 1
		if v, ok := attr(c, "colspan"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 1 {
				span = n
			}
		}
		out = append(out, htmlCell{text: nodeText(c), header: c.DataAtom == atom.Th, colspan: span})
	}
	return out
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// nodeText is the whitespace-collapsed text content of n. <br> separates words.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte(' ')
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// located is a table found by locateTable. Title is the text of the rows
// preceding the header; rows are the data rows after it, without footer and
// annotation rows.
type located[M any] struct {
	title  string
	header []string
	rows   []htmlRow
	mapper M
}

// locateTable finds the first table with a row that build accepts as its
// header.
func locateTable[M any](doc *html.Node, build func(headers []string) (M, bool)) (located[M], bool) {
	for _, t := range tables(doc) {
		rows := tableRows(t)
		for i, r := range rows {
			if r.foot {
				continue
			}
			m, ok := build(r.texts())
			if !ok {
				continue
			}
			out := located[M]{header: r.texts(), mapper: m}
			var titles []string
			for _, pre := range rows[:i] {
				titles = append(titles, strings.Join(pre.texts(), " "))
			}
			out.title = strings.TrimSpace(strings.Join(titles, " "))
			key := strings.Join(out.header, "\x00")
			for _, d := range rows[i+1:] {
				if d.foot || d.annotation() || strings.Join(d.texts(), "\x00") == key {
					continue
				}
				out.rows = append(out.rows, d)
			}
			return out, true
		}
	}
	return located[M]{}, false
}

// accountHTML fails with a DecodeError when replaced sequences fall in header
// cells or outside the page's text, where they may have changed which columns
// or tables were recognised. Replacements in data cells are left to the row
// mappers.
func accountHTML(text textdecode.Text, doc *html.Node, header []string) error {
	inText := textdecode.CountReplacements(nodeText(doc))
	inHeader := textdecode.CountReplacements(strings.Join(header, ""))
	return text.Accounted(inText - inHeader)
}

// accountMissingTable is accountHTML for a page without a recognised table.
// Only a no-data notice may carry replacements; otherwise a replaced byte may
// be why no header matched.
func accountMissingTable(text textdecode.Text, doc *html.Node) error {
	if isNoData(nodeText(doc)) {
		return accountHTML(text, doc, nil)
	}
	return text.Accounted(0)
}
