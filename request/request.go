// Package request builds the exchange-specific HTTP requests. Everything here
// is pure: no I/O, no clock, no randomness.
package request

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"twstock/textdecode"
)

// Format is the payload format a request is expected to return.
type Format int

const (
	FormatJSON Format = iota + 1
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatHTML:
		return "html"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat accepts "json" or "html".
func ParseFormat(v string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "json":
		return FormatJSON, nil
	case "html", "":
		return FormatHTML, nil
	}
	return 0, fmt.Errorf("unknown format %q", v)
}

// Descriptor is a fully-formed request together with what the response is
// expected to look like.
type Descriptor struct {
	Method   string
	URL      string
	Query    url.Values
	Encoding textdecode.Encoding
	Format   Format
}

// String returns the full request URL.
func (d Descriptor) String() string {
	if len(d.Query) == 0 {
		return d.URL
	}
	sep := "?"
	if strings.Contains(d.URL, "?") {
		sep = "&"
	}
	return d.URL + sep + d.Query.Encode()
}

// NewRequest creates the *http.Request for d.
func (d Descriptor) NewRequest(ctx context.Context) (*http.Request, error) {
	method := d.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, d.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	switch d.Format {
	case FormatJSON:
		req.Header.Set("Accept", "application/json")
	case FormatHTML:
		req.Header.Set("Accept", "text/html")
	}
	return req, nil
}

// Endpoints are the base URLs of the exchange pages.
type Endpoints struct {
	// Realtime is the MIS quote endpoint.
	Realtime string `json:"realtime" yaml:"realtime"`
	// ListedHistory is the TWSE monthly trading page.
	ListedHistory string `json:"listed_history" yaml:"listed_history"`
	// OTCHistory is the TPEx printable monthly trading page.
	OTCHistory string `json:"otc_history" yaml:"otc_history"`
	// Listing is the ISIN list of tradable securities.
	Listing string `json:"listing" yaml:"listing"`
}

const (
	DefaultRealtimeURL      = "https://mis.twse.com.tw/stock/api/getStockInfo.jsp"
	DefaultListedHistoryURL = "https://www.twse.com.tw/exchangeReport/STOCK_DAY"
	DefaultOTCHistoryURL    = "https://www.tpex.org.tw/web/stock/aftertrading/daily_trading_info/st43_print.php"
	DefaultListingURL       = "https://isin.twse.com.tw/isin/C_public.jsp"
)

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Realtime:      DefaultRealtimeURL,
		ListedHistory: DefaultListedHistoryURL,
		OTCHistory:    DefaultOTCHistoryURL,
		Listing:       DefaultListingURL,
	}
}

// WithDefaults fills empty fields from DefaultEndpoints.
func (e Endpoints) WithDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.Realtime == "" {
		e.Realtime = d.Realtime
	}
	if e.ListedHistory == "" {
		e.ListedHistory = d.ListedHistory
	}
	if e.OTCHistory == "" {
		e.OTCHistory = d.OTCHistory
	}
	if e.Listing == "" {
		e.Listing = d.Listing
	}
	return e
}

// Builder builds descriptors against a set of endpoints.
type Builder struct {
	endpoints Endpoints
}

// NewBuilder returns a Builder; empty endpoints fall back to the defaults.
func NewBuilder(e Endpoints) Builder {
	return Builder{endpoints: e.WithDefaults()}
}

// Endpoints returns the endpoints the builder targets.
func (b Builder) Endpoints() Endpoints { return b.endpoints }
