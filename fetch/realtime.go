package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"twstock/parser"
	"twstock/stock"
)

// DefaultMaxBatch is how many securities go into one MIS request.
const DefaultMaxBatch = 50

// QuoteResult is the outcome for one security of a batch.
type QuoteResult struct {
	Security stock.Security
	Quote    stock.Quote
	Err      error
}

// RealtimeFetcher fetches current quotes from MIS.
type RealtimeFetcher struct {
	client         *Client
	maxBatch       int
	maxConcurrency int
	log            logrus.FieldLogger
}

// NewRealtimeFetcher returns a fetcher that puts at most maxBatch securities
// into one request and runs at most maxConcurrency requests at once.
func NewRealtimeFetcher(c *Client, maxBatch, maxConcurrency int) *RealtimeFetcher {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &RealtimeFetcher{
		client:         c,
		maxBatch:       maxBatch,
		maxConcurrency: maxConcurrency,
		log:            c.logger.WithField("component", "realtime"),
	}
}

// Fetch returns the current quote of sec. Outside trading hours it fails
// with stock.ErrMarketClosed.
func (f *RealtimeFetcher) Fetch(ctx context.Context, sec stock.Security) (stock.Quote, error) {
	if err := sec.Validate(); err != nil {
		return stock.Quote{}, err
	}
	results, err := f.fetchChunk(ctx, []stock.Security{sec})
	if err != nil {
		return stock.Quote{}, err
	}
	return results[0].Quote, results[0].Err
}

// FetchBatch fetches quotes for secs, one result per input in input order.
// Per-security problems (closed market, unknown code, bad record) are
// reported in the results; a failed request fails the whole call.
func (f *RealtimeFetcher) FetchBatch(ctx context.Context, secs ...stock.Security) ([]QuoteResult, error) {
	for _, s := range secs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	if len(secs) == 0 {
		return nil, nil
	}

	chunks := chunkSecurities(secs, f.maxBatch)
	results := make([][]QuoteResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := f.fetchChunk(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]QuoteResult, 0, len(secs))
	for _, res := range results {
		out = append(out, res...)
	}
	return out, nil
}

func (f *RealtimeFetcher) fetchChunk(ctx context.Context, secs []stock.Security) ([]QuoteResult, error) {
	d, err := f.client.builder.Realtime(secs...)
	if err != nil {
		return nil, err
	}
	log := f.log.WithField("securities", len(secs))
	raw, err := f.client.send(ctx, log, d)
	if err != nil {
		return nil, fmt.Errorf("realtime quotes: %w", err)
	}
	text, err := decode(raw, d)
	if err != nil {
		return nil, fmt.Errorf("realtime quotes: %w", err)
	}

	var p parser.Parser[[]parser.RealtimeRecord] = parser.RealtimeJSON{}
	records, err := p.Parse(text)
	switch {
	case errors.Is(err, stock.ErrUnknownSecurity):
		records = nil
	case err != nil:
		return nil, fmt.Errorf("realtime quotes: %w", err)
	}

	bySecurity := make(map[stock.Security]parser.RealtimeRecord, len(records))
	for _, rec := range records {
		if rec.Security == (stock.Security{}) {
			log.WithError(rec.Err).Warn("skipping unidentifiable record")
			continue
		}
		if _, dup := bySecurity[rec.Security]; !dup {
			bySecurity[rec.Security] = rec
		}
	}

	out := make([]QuoteResult, len(secs))
	for i, s := range secs {
		out[i].Security = s
		rec, ok := bySecurity[s]
		if !ok {
			out[i].Err = fmt.Errorf("%w: %s", stock.ErrUnknownSecurity, s)
			continue
		}
		out[i].Quote, out[i].Err = rec.Quote, rec.Err
		if rec.Err != nil && !errors.Is(rec.Err, stock.ErrMarketClosed) {
			log.WithError(rec.Err).WithField("security", s.String()).Warn("record rejected")
		}
	}
	return out, nil
}

// chunkSecurities splits in into consecutive chunks of at most size.
func chunkSecurities(in []stock.Security, size int) [][]stock.Security {
	if size <= 0 || len(in) == 0 {
		return [][]stock.Security{in}
	}
	out := make([][]stock.Security, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		j := min(i+size, len(in))
		out = append(out, in[i:j])
	}
	return out
}
