package request

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"twstock/stock"
	"twstock/textdecode"
)

const (
	realtimeChannelParam = "ex_ch"
	realtimeChannelSep   = "|"
	realtimeChannelTail  = ".tw"
)

// Realtime builds the MIS quote request for one or more securities.
func (b Builder) Realtime(secs ...stock.Security) (Descriptor, error) {
	if len(secs) == 0 {
		return Descriptor{}, fmt.Errorf("%w: no securities", stock.ErrInvalidIdentifier)
	}
	channels := make([]string, 0, len(secs))
	for _, s := range secs {
		if err := s.Validate(); err != nil {
			return Descriptor{}, err
		}
		channels = append(channels, s.Segment.Tag()+"_"+s.Code+realtimeChannelTail)
	}
	q := url.Values{}
	q.Set(realtimeChannelParam, strings.Join(channels, realtimeChannelSep))
	q.Set("json", "1")
	q.Set("delay", "0")
	return Descriptor{
		Method:   http.MethodGet,
		URL:      b.endpoints.Realtime,
		Query:    q,
		Encoding: textdecode.Auto,
		Format:   FormatJSON,
	}, nil
}

// ParseRealtime recovers the securities encoded in a Realtime descriptor.
func ParseRealtime(d Descriptor) ([]stock.Security, error) {
	raw := d.Query.Get(realtimeChannelParam)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing %s", stock.ErrInvalidIdentifier, realtimeChannelParam)
	}
	parts := strings.Split(raw, realtimeChannelSep)
	out := make([]stock.Security, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(p, realtimeChannelTail)
		tag, code, ok := strings.Cut(p, "_")
		if !ok {
			return nil, fmt.Errorf("%w: malformed channel %q", stock.ErrInvalidIdentifier, p)
		}
		seg, err := stock.ParseSegment(tag)
		if err != nil {
			return nil, err
		}
		s, err := stock.NewSecurity(seg, code)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// HistoryMonth builds the request for one month of daily trading data.
// Listed securities are served by TWSE in either format; OTC securities are
// only published as an HTML page, so format is ignored for them.
func (b Builder) HistoryMonth(sec stock.Security, month time.Time, format Format) (Descriptor, error) {
	if err := sec.Validate(); err != nil {
		return Descriptor{}, err
	}
	if month.IsZero() {
		return Descriptor{}, fmt.Errorf("%w: missing month", stock.ErrInvalidRange)
	}
	month = stock.MonthStart(month)

	q := url.Values{}
	switch sec.Segment {
	case stock.Listed:
		if format != FormatJSON {
			format = FormatHTML
		}
		q.Set("response", format.String())
		q.Set("date", month.Format("20060102"))
		q.Set("stockNo", sec.Code)
		return Descriptor{
			Method:   http.MethodGet,
			URL:      b.endpoints.ListedHistory,
			Query:    q,
			Encoding: textdecode.Auto,
			Format:   format,
		}, nil
	case stock.OverTheCounter:
		q.Set("l", "zh-tw")
		q.Set("d", stock.FormatROCMonth(month))
		q.Set("stkno", sec.Code)
		return Descriptor{
			Method:   http.MethodGet,
			URL:      b.endpoints.OTCHistory,
			Query:    q,
			Encoding: textdecode.Auto,
			Format:   FormatHTML,
		}, nil
	}
	return Descriptor{}, fmt.Errorf("%w: unsupported segment %s", stock.ErrInvalidIdentifier, sec.Segment)
}

// ParseHistoryMonth recovers the security and month of a HistoryMonth descriptor.
func ParseHistoryMonth(d Descriptor) (stock.Security, time.Time, error) {
	if code := d.Query.Get("stockNo"); code != "" {
		sec, err := stock.NewSecurity(stock.Listed, code)
		if err != nil {
			return stock.Security{}, time.Time{}, err
		}
		month, err := stock.ParseCompactDate(d.Query.Get("date"))
		if err != nil {
			return stock.Security{}, time.Time{}, fmt.Errorf("%w: %v", stock.ErrInvalidRange, err)
		}
		return sec, stock.MonthStart(month), nil
	}
	if code := d.Query.Get("stkno"); code != "" {
		sec, err := stock.NewSecurity(stock.OverTheCounter, code)
		if err != nil {
			return stock.Security{}, time.Time{}, err
		}
		month, err := stock.ParseROCMonth(d.Query.Get("d"))
		if err != nil {
			return stock.Security{}, time.Time{}, fmt.Errorf("%w: %v", stock.ErrInvalidRange, err)
		}
		return sec, month, nil
	}
	return stock.Security{}, time.Time{}, fmt.Errorf("%w: no security code in query", stock.ErrInvalidIdentifier)
}

// Listing builds the request for the list of securities on a segment.
// The ISIN pages are served in Big5.
func (b Builder) Listing(seg stock.Segment) (Descriptor, error) {
	if !seg.Valid() {
		return Descriptor{}, fmt.Errorf("%w: unsupported segment %s", stock.ErrInvalidIdentifier, seg)
	}
	q := url.Values{}
	q.Set("strMode", strconv.Itoa(int(seg)))
	return Descriptor{
		Method:   http.MethodGet,
		URL:      b.endpoints.Listing,
		Query:    q,
		Encoding: textdecode.Big5,
		Format:   FormatHTML,
	}, nil
}

// ParseListing recovers the segment of a Listing descriptor.
func ParseListing(d Descriptor) (stock.Segment, error) {
	return stock.ParseSegment(d.Query.Get("strMode"))
}
