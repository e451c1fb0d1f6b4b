package fetch

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"twstock/parser"
	"twstock/stock"
)

// ListFetcher fetches the ISIN list of securities on a segment.
type ListFetcher struct {
	client *Client
	log    logrus.FieldLogger
}

func NewListFetcher(c *Client) *ListFetcher {
	return &ListFetcher{client: c, log: c.logger.WithField("component", "list")}
}

// Fetch returns every security listed on seg in page order. Rows that cannot
// be mapped are logged and skipped.
func (f *ListFetcher) Fetch(ctx context.Context, seg stock.Segment) ([]stock.Listing, error) {
	d, err := f.client.builder.Listing(seg)
	if err != nil {
		return nil, err
	}
	log := f.log.WithField("segment", seg.String())
	raw, err := f.client.send(ctx, log, d)
	if err != nil {
		return nil, fmt.Errorf("%s listing: %w", seg, err)
	}
	text, err := decode(raw, d)
	if err != nil {
		return nil, fmt.Errorf("%s listing: %w", seg, err)
	}
	if text.Lossy() {
		log.WithField("replacements", text.Replacements).Warn("listing contains undecodable bytes")
	}

	var p parser.Parser[parser.ListingTable] = parser.ListingHTML{Segment: seg}
	table, err := p.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%s listing: %w", seg, err)
	}
	for _, re := range table.RowErrors {
		log.WithError(re.Err).WithField("row", re.Row).Warn("skipping row")
	}
	log.WithField("listings", len(table.Listings)).Debug("parsed listing")
	return table.Listings, nil
}
