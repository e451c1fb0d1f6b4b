package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"twstock/request"
	"twstock/stock"
	"twstock/textdecode"
)

// misResponse is the envelope of getStockInfo.jsp.
type misResponse struct {
	MsgArray  *[]misRecord `json:"msgArray"`
	RtCode    string       `json:"rtcode"`
	RtMessage string       `json:"rtmessage"`
	Stat      string       `json:"stat"`
}

// misRecord keeps the exchange's own single-letter keys.
type misRecord struct {
	Code     field `json:"c"`
	Exchange field `json:"ex"`
	Name     field `json:"n"`
	FullName field `json:"nf"`

	Price             field `json:"z"`
	TradeVolume       field `json:"tv"`
	AccumulatedVolume field `json:"v"`
	Asks              field `json:"a"`
	Bids              field `json:"b"`
	AskVolumes        field `json:"f"`
	BidVolumes        field `json:"g"`
	Open              field `json:"o"`
	High              field `json:"h"`
	Low               field `json:"l"`
	PrevClose         field `json:"y"`
	LimitUp           field `json:"u"`
	LimitDown         field `json:"w"`

	Date      field `json:"d"`
	Timestamp field `json:"tlong"`
}

const (
	misOK         = "0000"
	misNoValue    = "-"
	misListSep    = "_"
	misTimeLayout = "20060102"
)

// RealtimeRecord is the outcome for one entry of msgArray. Err is
// ErrMarketClosed when the security has no session data, or a schema error.
type RealtimeRecord struct {
	Security stock.Security
	Quote    stock.Quote
	Err      error
}

// RealtimeJSON parses MIS real-time quote responses.
type RealtimeJSON struct{}

var _ Parser[[]RealtimeRecord] = RealtimeJSON{}

func (RealtimeJSON) Format() request.Format { return request.FormatJSON }

// Parse returns one record per msgArray entry, in response order. An empty
// msgArray is ErrUnknownSecurity: MIS answers unknown codes that way.
func (RealtimeJSON) Parse(text textdecode.Text) ([]RealtimeRecord, error) {
	var resp misResponse
	if err := json.Unmarshal([]byte(text.Content), &resp); err != nil {
		return nil, fmt.Errorf("%w: realtime payload: %v", stock.ErrSchemaMismatch, err)
	}
	if resp.MsgArray == nil {
		if resp.RtCode != "" && resp.RtCode != misOK {
			return nil, &stock.UpstreamError{Message: upstreamMessage(resp)}
		}
		if resp.Stat != "" {
			return nil, &stock.UpstreamError{Message: resp.Stat}
		}
		return nil, fmt.Errorf("%w: realtime payload has no msgArray", stock.ErrSchemaMismatch)
	}
	if len(*resp.MsgArray) == 0 {
		return nil, fmt.Errorf("%w: empty msgArray", stock.ErrUnknownSecurity)
	}

	out := make([]RealtimeRecord, 0, len(*resp.MsgArray))
	freeText := 0
	for _, rec := range *resp.MsgArray {
		freeText += textdecode.CountReplacements(rec.Name.Value) + textdecode.CountReplacements(rec.FullName.Value)
		out = append(out, mapRecord(rec))
	}
	if err := text.Accounted(freeText); err != nil {
		return nil, err
	}
	return out, nil
}

func upstreamMessage(resp misResponse) string {
	msg := resp.RtMessage
	if msg == "" {
		msg = resp.Stat
	}
	return fmt.Sprintf("rtcode %s: %s", resp.RtCode, msg)
}

func mapRecord(rec misRecord) RealtimeRecord {
	var out RealtimeRecord
	sec, err := recordSecurity(rec)
	if err != nil {
		out.Err = err
		return out
	}
	out.Security = sec
	q, err := mapQuote(sec, rec)
	if err != nil {
		out.Err = err
		return out
	}
	if err := q.Validate(); err != nil {
		out.Err = fmt.Errorf("%s: %w", sec, err)
		return out
	}
	out.Quote = q
	return out
}

func recordSecurity(rec misRecord) (stock.Security, error) {
	code, err := rec.Code.required("c")
	if err != nil {
		return stock.Security{}, fmt.Errorf("%w: %v", stock.ErrSchemaMismatch, err)
	}
	ex, err := rec.Exchange.required("ex")
	if err != nil {
		return stock.Security{}, fmt.Errorf("%w: %s: %v", stock.ErrSchemaMismatch, code, err)
	}
	seg, err := stock.ParseSegment(ex)
	if err != nil {
		return stock.Security{}, fmt.Errorf("%w: %s: %v", stock.ErrSchemaMismatch, code, err)
	}
	sec, err := stock.NewSecurity(seg, code)
	if err != nil {
		return stock.Security{}, fmt.Errorf("%w: %v", stock.ErrSchemaMismatch, err)
	}
	return sec, nil
}

// errClosed marks a "-" in a field that only has a value during a session.
var errClosed = errors.New("no session value")

func mapQuote(sec stock.Security, rec misRecord) (stock.Quote, error) {
	q := stock.Quote{Security: sec}
	fail := func(err error) (stock.Quote, error) {
		if errors.Is(err, errClosed) {
			return stock.Quote{}, fmt.Errorf("%s: %w", sec, stock.ErrMarketClosed)
		}
		return stock.Quote{}, fmt.Errorf("%w: %s: %v", stock.ErrSchemaMismatch, sec, err)
	}

	var err error
	if q.Price, err = sessionDecimal(rec.Price, "z"); err != nil {
		return fail(err)
	}
	if q.Volume, err = sessionInt(rec.TradeVolume, "tv"); err != nil {
		return fail(err)
	}
	if rec.AccumulatedVolume.Set {
		if q.AccumulatedVolume, err = sessionInt(rec.AccumulatedVolume, "v"); err != nil {
			return fail(err)
		}
	}

	prices := []struct {
		dst  *decimal.Decimal
		f    field
		name string
	}{
		{&q.Open, rec.Open, "o"},
		{&q.High, rec.High, "h"},
		{&q.Low, rec.Low, "l"},
		{&q.PrevClose, rec.PrevClose, "y"},
		{&q.LimitUp, rec.LimitUp, "u"},
		{&q.LimitDown, rec.LimitDown, "w"},
	}
	for _, p := range prices {
		if *p.dst, err = sessionDecimal(p.f, p.name); err != nil {
			return fail(err)
		}
	}

	if q.Ask, q.AskVolume, err = bestLevel(rec.Asks, rec.AskVolumes, "a", "f"); err != nil {
		return fail(err)
	}
	if q.Bid, q.BidVolume, err = bestLevel(rec.Bids, rec.BidVolumes, "b", "g"); err != nil {
		return fail(err)
	}

	name, err := rec.Name.required("n")
	if err != nil {
		return fail(err)
	}
	q.Name = strings.TrimSpace(name)
	q.FullName = strings.TrimSpace(rec.FullName.Value)
	q.NameLossy = textdecode.CountReplacements(q.Name+q.FullName) > 0

	d, err := rec.Date.required("d")
	if err != nil {
		return fail(err)
	}
	if q.TradingDate, err = time.ParseInLocation(misTimeLayout, d, stock.Taipei); err != nil {
		return fail(fmt.Errorf("field \"d\": %v", err))
	}
	ts, err := rec.Timestamp.required("tlong")
	if err != nil {
		return fail(err)
	}
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fail(fmt.Errorf("field \"tlong\": %v", err))
	}
	q.UpdatedAt = time.UnixMilli(ms).In(stock.Taipei)
	return q, nil
}

func sessionDecimal(f field, name string) (decimal.Decimal, error) {
	v, err := f.required(name)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if strings.TrimSpace(v) == misNoValue {
		return decimal.Decimal{}, errClosed
	}
	return parseDecimal("field "+strconv.Quote(name), v)
}

func sessionInt(f field, name string) (int64, error) {
	v, err := f.required(name)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(v) == misNoValue {
		return 0, errClosed
	}
	return parseCount("field "+strconv.Quote(name), v, 1)
}

// bestLevel takes the first entry of an order-book list such as
// "585.0000_586.0000_" and its matching volume list. An empty or "-" book is
// null, which happens for limit-locked securities.
func bestLevel(prices, volumes field, pName, vName string) (decimal.NullDecimal, int64, error) {
	p := firstLevel(prices.Value)
	if p == "" {
		return decimal.NullDecimal{}, 0, nil
	}
	price, err := parseDecimal("field "+strconv.Quote(pName), p)
	if err != nil {
		return decimal.NullDecimal{}, 0, err
	}
	var vol int64
	if v := firstLevel(volumes.Value); v != "" {
		if vol, err = parseCount("field "+strconv.Quote(vName), v, 1); err != nil {
			return decimal.NullDecimal{}, 0, err
		}
	}
	return decimal.NewNullDecimal(price), vol, nil
}

func firstLevel(v string) string {
	for _, part := range strings.Split(v, misListSep) {
		part = strings.TrimSpace(part)
		if part != "" && part != misNoValue {
			return part
		}
	}
	return ""
}
