package fetch_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"twstock/fetch"
	"twstock/request"
	"twstock/stock"
)

// dayRow is one row of a month page: ROC date, volume and a price used for
// open, high, low and close.
type dayRow [3]string

func monthPage(rows ...dayRow) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><table><thead><tr><th colspan="9">各日成交資訊</th></tr>`)
	sb.WriteString(`<tr><th>日期</th><th>成交股數</th><th>成交金額</th><th>開盤價</th><th>最高價</th><th>最低價</th><th>收盤價</th><th>漲跌價差</th><th>成交筆數</th></tr></thead><tbody>`)
	for _, r := range rows {
		fmt.Fprintf(&sb, "<tr><td>%s</td><td>%s</td><td>0</td><td>%[3]s</td><td>%[3]s</td><td>%[3]s</td><td>%[3]s</td><td>0.00</td><td>1</td></tr>", r[0], r[1], r[2])
	}
	sb.WriteString(`</tbody></table></body></html>`)
	return sb.String()
}

const noDataPage = `<html><body><p>很抱歉，沒有符合條件的資料!</p></body></html>`

func tsmc(t *testing.T) stock.Security {
	t.Helper()
	sec, err := stock.ListedSecurity("2330")
	require.NoError(t, err)
	return sec
}

func dateRange(t *testing.T, from, to time.Time) stock.DateRange {
	t.Helper()
	r, err := stock.NewDateRange(from, to)
	require.NoError(t, err)
	return r
}

func TestHistoryFetcher_Fetch(t *testing.T) {
	t.Parallel()

	// Arrange: two month pages, served by the date parameter
	pages := map[string]string{
		"20210101": monthPage(
			dayRow{"110/01/14", "1,000", "600.00"},
			dayRow{"110/01/15", "2,000", "605.00"},
			dayRow{"110/01/18", "3,000", "610.00"},
		),
		"20210201": monthPage(
			dayRow{"110/02/01", "4,000", "620.00"},
			dayRow{"110/02/02", "5,000", "625.00"},
			dayRow{"110/02/03", "6,000", "630.00"},
		),
	}
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			require.Equal(t, "2330", q.Get("stockNo"))
			require.Equal(t, "html", q.Get("response"))
			page, ok := pages[q.Get("date")]
			require.True(t, ok, "unexpected month %s", q.Get("date"))
			return response(http.StatusOK, page), nil
		}).
		Times(2)
	client, _ := newClient(t, httpClient)
	r := dateRange(t, stock.Date(2021, time.January, 15), stock.Date(2021, time.February, 2))

	// Act: fetch with concurrent month requests
	series, err := fetch.NewHistoryFetcher(client, fetch.HistoryConfig{MaxConcurrency: 2}).Fetch(t.Context(), tsmc(t), r)
	require.NoError(t, err)

	// Assert: sorted, in range, no duplicates
	require.Equal(t, tsmc(t), series.Security)
	require.Len(t, series.Points, 4)
	want := []time.Time{
		stock.Date(2021, time.January, 15),
		stock.Date(2021, time.January, 18),
		stock.Date(2021, time.February, 1),
		stock.Date(2021, time.February, 2),
	}
	for i, p := range series.Points {
		require.True(t, want[i].Equal(p.Date), "point %d is %s", i, p.Date)
		require.True(t, r.Contains(p.Date))
	}
	require.True(t, decimal.RequireFromString("605").Equal(series.Points[0].Close))
	require.Equal(t, int64(5000), series.Points[3].Volume)
}

func TestHistoryFetcher_Fetch_EmptyRange(t *testing.T) {
	t.Parallel()

	// Arrange: a month without trading days
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, noDataPage), nil).
		Times(1)
	client, _ := newClient(t, httpClient)
	r := stock.MonthRange(stock.Date(2021, time.January, 1))

	// Act: fetch
	series, err := fetch.NewHistoryFetcher(client, fetch.HistoryConfig{}).Fetch(t.Context(), tsmc(t), r)

	// Assert: empty, not an error
	require.NoError(t, err)
	require.True(t, series.Empty())
}

func TestHistoryFetcher_Fetch_PageFailure(t *testing.T) {
	t.Parallel()

	// Arrange: the second of three months fails
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("date") == "20210201" {
				return response(http.StatusInternalServerError, "oops"), nil
			}
			return response(http.StatusOK, monthPage(dayRow{"110/01/04", "1", "1"})), nil
		}).
		MinTimes(1).
		MaxTimes(3)
	client, _ := newClient(t, httpClient)
	r := dateRange(t, stock.Date(2021, time.January, 1), stock.Date(2021, time.March, 31))

	// Act: fetch
	series, err := fetch.NewHistoryFetcher(client, fetch.HistoryConfig{}).Fetch(t.Context(), tsmc(t), r)

	// Assert: nothing partial is returned
	require.ErrorIs(t, err, stock.ErrUpstream)
	require.Contains(t, err.Error(), "2021-02")
	require.Empty(t, series.Points)
}

func TestHistoryFetcher_Fetch_WrongMonth(t *testing.T) {
	t.Parallel()

	// Arrange: the January page lists a February day
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, monthPage(dayRow{"110/02/01", "1", "1"})), nil).
		Times(1)
	client, _ := newClient(t, httpClient)

	// Act: fetch
	_, err := fetch.NewHistoryFetcher(client, fetch.HistoryConfig{}).Fetch(t.Context(), tsmc(t), stock.MonthRange(stock.Date(2021, time.January, 1)))

	// Assert: schema mismatch
	require.ErrorIs(t, err, stock.ErrSchemaMismatch)
}

func TestHistoryFetcher_Fetch_Duplicates(t *testing.T) {
	t.Parallel()

	identical := monthPage(
		dayRow{"110/01/04", "1,000", "600.00"},
		dayRow{"110/01/04", "1,000", "600.00"},
	)
	conflicting := monthPage(
		dayRow{"110/01/04", "1,000", "600.00"},
		dayRow{"110/01/04", "1,500", "601.00"},
	)
	tests := []struct {
		name    string
		page    string
		policy  fetch.DuplicatePolicy
		wantErr error
		want    string
	}{
		{name: "identical collapsed", page: identical, policy: fetch.RejectConflicting, want: "600"},
		{name: "conflicting rejected", page: conflicting, policy: fetch.RejectConflicting, wantErr: stock.ErrDuplicateDate},
		{name: "any rejected", page: identical, policy: fetch.Reject, wantErr: stock.ErrDuplicateDate},
		{name: "keep last", page: conflicting, policy: fetch.KeepLast, want: "601"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: a page repeating a day
			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				Return(response(http.StatusOK, tt.page), nil).
				Times(1)
			client, _ := newClient(t, httpClient)

			// Act: fetch
			series, err := fetch.NewHistoryFetcher(client, fetch.HistoryConfig{Duplicates: tt.policy}).
				Fetch(t.Context(), tsmc(t), stock.MonthRange(stock.Date(2021, time.January, 1)))

			// Assert: the policy applies
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, series.Points, 1)
			require.True(t, decimal.RequireFromString(tt.want).Equal(series.Points[0].Close))
		})
	}
}

func TestHistoryFetcher_Fetch_RowErrors(t *testing.T) {
	t.Parallel()

	// Arrange: one bad row among good ones
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, monthPage(
			dayRow{"110/01/04", "1,000", "600.00"},
			dayRow{"110/01/05", "abc", "601.00"},
		)), nil).
		Times(1)
	client, hook := newClient(t, httpClient)

	// Act: fetch
	series, err := fetch.NewHistoryFetcher(client, fetch.HistoryConfig{}).
		Fetch(t.Context(), tsmc(t), stock.MonthRange(stock.Date(2021, time.January, 1)))

	// Assert: the row is skipped, reported and logged
	require.NoError(t, err)
	require.Len(t, series.Points, 1)
	require.Len(t, series.RowErrors, 1)
	require.Equal(t, 1, series.RowErrors[0].Row)
	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "skipping row" && e.Data["component"] == "history" {
			warned = true
		}
	}
	require.True(t, warned)
}

func TestHistoryFetcher_Fetch_Formats(t *testing.T) {
	t.Parallel()

	jsonPage := `{"stat":"OK","fields":["日期","成交股數","成交金額","開盤價","最高價","最低價","收盤價","漲跌價差","成交筆數"],"data":[["110/01/04","1,000","0","600.00","600.00","600.00","600.00","0.00","1"]]}`
	tests := []struct {
		name   string
		sec    stock.Security
		format request.Format
		check  func(t *testing.T, req *http.Request)
		body   string
	}{
		{
			name:   "listed json",
			sec:    stock.Security{Segment: stock.Listed, Code: "2330"},
			format: request.FormatJSON,
			check: func(t *testing.T, req *http.Request) {
				require.Equal(t, "json", req.URL.Query().Get("response"))
			},
			body: jsonPage,
		},
		{
			name:   "otc html",
			sec:    stock.Security{Segment: stock.OverTheCounter, Code: "6488"},
			format: request.FormatJSON,
			check: func(t *testing.T, req *http.Request) {
				require.Equal(t, "www.tpex.org.tw", req.URL.Host)
				require.Equal(t, "110/01", req.URL.Query().Get("d"))
				require.Equal(t, "6488", req.URL.Query().Get("stkno"))
			},
			body: monthPage(dayRow{"110/01/04", "1,000", "600.00"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: check the request shape
			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				DoAndReturn(func(req *http.Request) (*http.Response, error) {
					tt.check(t, req)
					return response(http.StatusOK, tt.body), nil
				}).
				Times(1)
			client, _ := newClient(t, httpClient)

			// Act: fetch
			series, err := fetch.NewHistoryFetcher(client, fetch.HistoryConfig{Format: tt.format}).
				Fetch(t.Context(), tt.sec, stock.MonthRange(stock.Date(2021, time.January, 1)))

			// Assert: the page was parsed with the matching parser
			require.NoError(t, err)
			require.Len(t, series.Points, 1)
		})
	}
}

func TestHistoryFetcher_Fetch_InvalidRange(t *testing.T) {
	t.Parallel()

	// Arrange: no request may be sent
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Times(0)
	client, _ := newClient(t, httpClient)
	inverted := stock.DateRange{From: stock.Date(2021, time.March, 1), To: stock.Date(2021, time.January, 1)}

	// Act: fetch
	_, err := fetch.NewHistoryFetcher(client, fetch.HistoryConfig{}).Fetch(t.Context(), tsmc(t), inverted)

	// Assert: rejected up front
	require.ErrorIs(t, err, stock.ErrInvalidRange)
}
