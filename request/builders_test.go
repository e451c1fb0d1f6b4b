package request_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"twstock/request"
	"twstock/stock"
	"twstock/textdecode"
)

func mustSecurity(t *testing.T, v string) stock.Security {
	t.Helper()
	s, err := stock.ParseSecurity(v)
	require.NoError(t, err)
	return s
}

func TestBuilder_Realtime(t *testing.T) {
	t.Parallel()

	// Arrange: a listed and an OTC security
	b := request.NewBuilder(request.Endpoints{})
	secs := []stock.Security{mustSecurity(t, "tse:2330"), mustSecurity(t, "otc:6488")}

	// Act: build
	d, err := b.Realtime(secs...)
	require.NoError(t, err)

	// Assert: MIS channel list and a round trip
	require.Equal(t, request.DefaultRealtimeURL, d.URL)
	require.Equal(t, "tse_2330.tw|otc_6488.tw", d.Query.Get("ex_ch"))
	require.Equal(t, "1", d.Query.Get("json"))
	require.Equal(t, "0", d.Query.Get("delay"))
	require.Equal(t, request.FormatJSON, d.Format)
	require.Equal(t, textdecode.Auto, d.Encoding)

	back, err := request.ParseRealtime(d)
	require.NoError(t, err)
	require.Equal(t, secs, back)
}

func TestBuilder_Realtime_Invalid(t *testing.T) {
	t.Parallel()

	b := request.NewBuilder(request.Endpoints{})

	_, err := b.Realtime()
	require.ErrorIs(t, err, stock.ErrInvalidIdentifier)

	_, err = b.Realtime(stock.Security{Segment: stock.Listed, Code: "23"})
	require.ErrorIs(t, err, stock.ErrInvalidIdentifier)
}

func TestBuilder_HistoryMonth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		security   string
		format     request.Format
		wantURL    string
		wantQuery  map[string]string
		wantFormat request.Format
	}{
		{
			name:       "listed html",
			security:   "tse:2330",
			format:     request.FormatHTML,
			wantURL:    request.DefaultListedHistoryURL,
			wantQuery:  map[string]string{"response": "html", "date": "20210101", "stockNo": "2330"},
			wantFormat: request.FormatHTML,
		},
		{
			name:       "listed json",
			security:   "tse:0050",
			format:     request.FormatJSON,
			wantURL:    request.DefaultListedHistoryURL,
			wantQuery:  map[string]string{"response": "json", "date": "20210101", "stockNo": "0050"},
			wantFormat: request.FormatJSON,
		},
		{
			name:       "otc ignores json",
			security:   "otc:6488",
			format:     request.FormatJSON,
			wantURL:    request.DefaultOTCHistoryURL,
			wantQuery:  map[string]string{"l": "zh-tw", "d": "110/01", "stkno": "6488"},
			wantFormat: request.FormatHTML,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: a day in the middle of January
			sec := mustSecurity(t, tt.security)
			day := stock.Date(2021, time.January, 18)

			// Act: build
			d, err := request.NewBuilder(request.Endpoints{}).HistoryMonth(sec, day, tt.format)
			require.NoError(t, err)

			// Assert: the month page and a round trip to the first of the month
			require.Equal(t, tt.wantURL, d.URL)
			require.Equal(t, tt.wantFormat, d.Format)
			for k, v := range tt.wantQuery {
				require.Equal(t, v, d.Query.Get(k), k)
			}

			gotSec, gotMonth, err := request.ParseHistoryMonth(d)
			require.NoError(t, err)
			require.Equal(t, sec, gotSec)
			require.True(t, stock.Date(2021, time.January, 1).Equal(gotMonth))
		})
	}
}

func TestBuilder_HistoryMonth_Invalid(t *testing.T) {
	t.Parallel()

	b := request.NewBuilder(request.Endpoints{})

	_, err := b.HistoryMonth(stock.Security{}, stock.Date(2021, time.January, 1), request.FormatHTML)
	require.ErrorIs(t, err, stock.ErrInvalidIdentifier)

	_, err = b.HistoryMonth(mustSecurity(t, "2330"), time.Time{}, request.FormatHTML)
	require.ErrorIs(t, err, stock.ErrInvalidRange)

	_, _, err = request.ParseHistoryMonth(request.Descriptor{})
	require.ErrorIs(t, err, stock.ErrInvalidIdentifier)
}

func TestBuilder_Listing(t *testing.T) {
	t.Parallel()

	// Arrange: a custom listing endpoint
	b := request.NewBuilder(request.Endpoints{Listing: "https://isin.example.test/C_public.jsp"})

	// Act: build
	d, err := b.Listing(stock.OverTheCounter)
	require.NoError(t, err)

	// Assert: Big5 HTML, mode 4, other endpoints defaulted
	require.Equal(t, "https://isin.example.test/C_public.jsp?strMode=4", d.String())
	require.Equal(t, textdecode.Big5, d.Encoding)
	require.Equal(t, request.DefaultRealtimeURL, b.Endpoints().Realtime)

	seg, err := request.ParseListing(d)
	require.NoError(t, err)
	require.Equal(t, stock.OverTheCounter, seg)

	_, err = b.Listing(stock.Segment(7))
	require.ErrorIs(t, err, stock.ErrInvalidIdentifier)
}

func TestDescriptor_NewRequest(t *testing.T) {
	t.Parallel()

	// Arrange: a JSON descriptor on a URL that already has a query
	d := request.Descriptor{
		URL:    "https://mis.example.test/api?lang=zh_tw",
		Query:  map[string][]string{"json": {"1"}},
		Format: request.FormatJSON,
	}

	// Act: create the request
	req, err := d.NewRequest(t.Context())
	require.NoError(t, err)

	// Assert: GET by default, joined query, accept header
	require.Equal(t, http.MethodGet, req.Method)
	require.Equal(t, "https://mis.example.test/api?lang=zh_tw&json=1", req.URL.String())
	require.Equal(t, "application/json", req.Header.Get("Accept"))
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := request.ParseFormat(" JSON ")
	require.NoError(t, err)
	require.Equal(t, request.FormatJSON, f)

	f, err = request.ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, request.FormatHTML, f)

	_, err = request.ParseFormat("csv")
	require.Error(t, err)
}
