package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"twstock"
	"twstock/fetch"
	"twstock/internal/config"
	"twstock/internal/logging"
	"twstock/request"
	"twstock/stock"
)

const usage = `usage: twstock [-config file] <command> [flags]

commands:
  quote    real-time quotes for one or more securities
  history  daily trading history over a date range
  list     listed or OTC securities
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "twstock:", err)
		os.Exit(1)
	}
}

// env carries what every command needs after the global flags are parsed.
type env struct {
	cfg       config.Config
	clientCfg twstock.Config
	logger    *logrus.Logger
	stdout    io.Writer
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("twstock", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	configPath := global.String("config", getenv("TWSTOCK_CONFIG", ""), "path to a JSON or YAML config file")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, logOut, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logOut.Close()
	clientCfg, err := cfg.ClientConfig(logger)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	e := env{cfg: cfg, clientCfg: clientCfg, logger: logger, stdout: stdout}

	start := time.Now()
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "quote":
		err = runQuote(ctx, e, cmdArgs)
	case "history":
		err = runHistory(ctx, e, cmdArgs)
	case "list":
		err = runList(ctx, e, cmdArgs)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	logger.WithFields(logrus.Fields{"command": cmd, "elapsed": time.Since(start).String()}).Debug("command finished")
	return err
}

type quoteOutput struct {
	Security string       `json:"security"`
	Quote    *stock.Quote `json:"quote,omitempty"`
	Error    string       `json:"error,omitempty"`
	Kind     string       `json:"kind,omitempty"`
}

func runQuote(ctx context.Context, e env, args []string) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	securitiesCSV := fs.String("securities", strings.Join(e.cfg.Securities, ","), "comma-separated securities, e.g. tse:2330,otc:6488")
	maxBatch := fs.Int("max-batch", e.clientCfg.MaxBatch, "securities per request")
	if err := fs.Parse(args); err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		names = splitCSV(*securitiesCSV)
	}
	if len(names) == 0 {
		return errors.New("no securities provided")
	}
	secs, err := parseSecurities(names)
	if err != nil {
		return err
	}

	e.clientCfg.MaxBatch = *maxBatch
	client, err := twstock.New(e.clientCfg)
	if err != nil {
		return err
	}
	results, err := client.Realtime().FetchBatch(ctx, secs...)
	if err != nil {
		return err
	}

	out := make([]quoteOutput, 0, len(results))
	failed := 0
	for _, r := range results {
		o := quoteOutput{Security: r.Security.String()}
		if r.Err != nil {
			failed++
			o.Error = r.Err.Error()
			o.Kind = stock.KindOf(r.Err).String()
		} else {
			q := r.Quote
			o.Quote = &q
		}
		out = append(out, o)
	}
	if err := writeJSON(e.stdout, struct {
		Quotes []quoteOutput `json:"quotes"`
	}{Quotes: out}); err != nil {
		return err
	}
	if failed == len(results) {
		return errors.New("no quotes received")
	}
	return nil
}

type historyOutput struct {
	stock.Series
	Skipped []string `json:"skipped_rows,omitempty"`
}

func runHistory(ctx context.Context, e env, args []string) error {
	now := time.Now().In(stock.Taipei)
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	security := fs.String("security", "", "security, e.g. tse:2330")
	from := fs.String("from", stock.MonthStart(now).Format(time.DateOnly), "first day, YYYY-MM-DD")
	to := fs.String("to", now.Format(time.DateOnly), "last day, YYYY-MM-DD")
	format := fs.String("format", e.clientCfg.HistoryFormat.String(), "TWSE page format: html or json")
	concurrency := fs.Int("concurrency", e.clientCfg.MaxConcurrency, "concurrent month requests")
	duplicates := fs.String("duplicates", e.clientCfg.DuplicatePolicy.String(), "reject_conflicting, reject or keep_last")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *security == "" && fs.NArg() > 0 {
		*security = fs.Arg(0)
	}
	if *security == "" {
		return errors.New("no security provided")
	}
	sec, err := stock.ParseSecurity(*security)
	if err != nil {
		return err
	}
	r, err := parseRange(*from, *to)
	if err != nil {
		return err
	}
	if e.clientCfg.HistoryFormat, err = request.ParseFormat(*format); err != nil {
		return err
	}
	if e.clientCfg.DuplicatePolicy, err = fetch.ParseDuplicatePolicy(*duplicates); err != nil {
		return err
	}
	e.clientCfg.MaxConcurrency = *concurrency

	client, err := twstock.New(e.clientCfg)
	if err != nil {
		return err
	}
	series, err := client.History().Fetch(ctx, sec, r)
	if err != nil {
		return err
	}
	out := historyOutput{Series: series}
	for _, re := range series.RowErrors {
		out.Skipped = append(out.Skipped, re.Error())
	}
	return writeJSON(e.stdout, out)
}

func runList(ctx context.Context, e env, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	segment := fs.String("segment", "tse", "tse or otc")
	if err := fs.Parse(args); err != nil {
		return err
	}
	seg, err := stock.ParseSegment(*segment)
	if err != nil {
		return err
	}
	client, err := twstock.New(e.clientCfg)
	if err != nil {
		return err
	}
	listings, err := client.List().Fetch(ctx, seg)
	if err != nil {
		return err
	}
	return writeJSON(e.stdout, struct {
		Listings []stock.Listing `json:"listings"`
	}{Listings: listings})
}

func parseSecurities(names []string) ([]stock.Security, error) {
	secs := make([]stock.Security, 0, len(names))
	for _, n := range names {
		s, err := stock.ParseSecurity(n)
		if err != nil {
			return nil, err
		}
		secs = append(secs, s)
	}
	return secs, nil
}

func parseRange(from, to string) (stock.DateRange, error) {
	f, err := time.ParseInLocation(time.DateOnly, from, stock.Taipei)
	if err != nil {
		return stock.DateRange{}, fmt.Errorf("%w: from: %v", stock.ErrInvalidRange, err)
	}
	t, err := time.ParseInLocation(time.DateOnly, to, stock.Taipei)
	if err != nil {
		return stock.DateRange{}, fmt.Errorf("%w: to: %v", stock.ErrInvalidRange, err)
	}
	return stock.NewDateRange(f, t)
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
