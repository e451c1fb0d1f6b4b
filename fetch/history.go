package fetch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"twstock/parser"
	"twstock/request"
	"twstock/stock"
)

// DuplicatePolicy decides what happens when a page reports the same trading
// day more than once.
type DuplicatePolicy int

const (
	// RejectConflicting collapses identical records and fails on differing ones.
	RejectConflicting DuplicatePolicy = iota
	// Reject fails on any repeated date.
	Reject
	// KeepLast keeps the record that comes last.
	KeepLast
)

func (p DuplicatePolicy) String() string {
	switch p {
	case RejectConflicting:
		return "reject_conflicting"
	case Reject:
		return "reject"
	case KeepLast:
		return "keep_last"
	default:
		return fmt.Sprintf("duplicate_policy(%d)", int(p))
	}
}

// ParseDuplicatePolicy accepts the names printed by String.
func ParseDuplicatePolicy(v string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(v, "-", "_"))) {
	case "", "reject_conflicting":
		return RejectConflicting, nil
	case "reject":
		return Reject, nil
	case "keep_last":
		return KeepLast, nil
	}
	return 0, fmt.Errorf("unknown duplicate policy %q", v)
}

// HistoryConfig configures a HistoryFetcher.
type HistoryConfig struct {
	// Format selects the TWSE page format. OTC pages are always HTML.
	Format request.Format
	// MaxConcurrency bounds concurrent month requests. Defaults to 1.
	MaxConcurrency int
	Duplicates     DuplicatePolicy
}

// HistoryFetcher fetches daily trading history one month page at a time.
type HistoryFetcher struct {
	client *Client
	cfg    HistoryConfig
	log    logrus.FieldLogger
}

func NewHistoryFetcher(c *Client, cfg HistoryConfig) *HistoryFetcher {
	if cfg.Format == 0 {
		cfg.Format = request.FormatHTML
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &HistoryFetcher{client: c, cfg: cfg, log: c.logger.WithField("component", "history")}
}

// Fetch returns the daily points of sec within r, sorted by date. The first
// failing page cancels the others and nothing partial is returned. A range
// without trading days yields an empty series.
func (f *HistoryFetcher) Fetch(ctx context.Context, sec stock.Security, r stock.DateRange) (stock.Series, error) {
	if err := sec.Validate(); err != nil {
		return stock.Series{}, err
	}
	if err := r.Validate(); err != nil {
		return stock.Series{}, err
	}

	months := r.Months()
	pages := make([]parser.DailyTable, len(months))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrency)
	for i, month := range months {
		g.Go(func() error {
			table, err := f.fetchMonth(gctx, sec, month)
			if err != nil {
				return fmt.Errorf("%s %s: %w", sec, month.Format("2006-01"), err)
			}
			pages[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stock.Series{}, err
	}
	return f.merge(sec, r, months, pages)
}

func (f *HistoryFetcher) fetchMonth(ctx context.Context, sec stock.Security, month time.Time) (parser.DailyTable, error) {
	d, err := f.client.builder.HistoryMonth(sec, month, f.cfg.Format)
	if err != nil {
		return parser.DailyTable{}, err
	}
	log := f.log.WithFields(logrus.Fields{"security": sec.String(), "month": month.Format("2006-01")})
	raw, err := f.client.send(ctx, log, d)
	if err != nil {
		return parser.DailyTable{}, err
	}
	text, err := decode(raw, d)
	if err != nil {
		return parser.DailyTable{}, err
	}

	var p parser.Parser[parser.DailyTable] = parser.DailyHTML{}
	if d.Format == request.FormatJSON {
		p = parser.DailyJSON{}
	}
	table, err := p.Parse(text)
	if err != nil {
		return parser.DailyTable{}, err
	}
	for _, re := range table.RowErrors {
		log.WithError(re.Err).WithField("row", re.Row).Warn("skipping row")
	}
	return table, nil
}

// merge concatenates pages in month order, drops points outside r and
// applies the duplicate policy.
func (f *HistoryFetcher) merge(sec stock.Security, r stock.DateRange, months []time.Time, pages []parser.DailyTable) (stock.Series, error) {
	series := stock.Series{Security: sec, Range: r, Points: []stock.DailyPoint{}}
	index := map[int64]int{}
	offset := 0
	for i, page := range pages {
		for _, p := range page.Points {
			if !stock.SameMonth(p.Date, months[i]) {
				return stock.Series{}, fmt.Errorf("%w: %s page for %s lists %s", stock.ErrSchemaMismatch,
					sec, months[i].Format("2006-01"), p.Date.Format(time.DateOnly))
			}
			if !r.Contains(p.Date) {
				continue
			}
			day := stock.Day(p.Date)
			if at, dup := index[day.Unix()]; dup {
				switch f.cfg.Duplicates {
				case KeepLast:
					series.Points[at] = p
					continue
				case RejectConflicting:
					if samePoint(series.Points[at], p) {
						continue
					}
				}
				return stock.Series{}, &stock.DuplicateDateError{Security: sec, Date: day}
			}
			index[day.Unix()] = len(series.Points)
			series.Points = append(series.Points, p)
		}
		for _, re := range page.RowErrors {
			series.RowErrors = append(series.RowErrors, &stock.RowError{Row: offset + re.Row, Err: re.Err})
		}
		offset += len(page.Points) + len(page.RowErrors)
	}
	slices.SortStableFunc(series.Points, func(a, b stock.DailyPoint) int {
		return a.Date.Compare(b.Date)
	})
	return series, nil
}

func samePoint(a, b stock.DailyPoint) bool {
	return a.Date.Equal(b.Date) &&
		a.Volume == b.Volume &&
		a.Transactions == b.Transactions &&
		a.NoTrade == b.NoTrade &&
		a.Turnover.Equal(b.Turnover) &&
		a.Open.Equal(b.Open) &&
		a.High.Equal(b.High) &&
		a.Low.Equal(b.Low) &&
		a.Close.Equal(b.Close) &&
		a.Change.Equal(b.Change)
}
