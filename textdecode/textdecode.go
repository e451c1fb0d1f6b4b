// Package textdecode turns raw response bytes into valid UTF-8 text.
//
// The exchanges serve most pages as UTF-8, but the ISIN listing (and some
// archived pages) are still Big5. Decoding never panics and never silently
// changes numbers: every byte sequence that cannot be decoded becomes U+FFFD
// and is counted, and parsers must account for each replacement inside a
// free-text field or the whole decode is rejected.
package textdecode

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/traditionalchinese"

	"twstock/stock"
)

// Encoding is the declared source encoding of a payload.
type Encoding int

const (
	// Auto detects the encoding from the Content-Type header, a BOM or an
	// HTML meta tag, and falls back to Big5 for bytes that are not UTF-8.
	Auto Encoding = iota
	UTF8
	Big5
)

func (e Encoding) String() string {
	switch e {
	case Auto:
		return "auto"
	case UTF8:
		return "utf-8"
	case Big5:
		return "big5"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseEncoding maps a charset label ("utf8", "big5", "x-x-big5", "auto") to an Encoding.
func ParseEncoding(label string) (Encoding, error) {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" || l == "auto" {
		return Auto, nil
	}
	if big5Aliases[l] {
		return Big5, nil
	}
	_, name := charset.Lookup(l)
	switch name {
	case "utf-8":
		return UTF8, nil
	case "big5":
		return Big5, nil
	}
	return 0, &stock.DecodeError{Encoding: label, Reason: "unsupported encoding"}
}

// Text is decoded text together with its decode quality.
type Text struct {
	Content string
	// Encoding is the name of the encoding actually used.
	Encoding string
	// Replacements counts byte sequences replaced with U+FFFD.
	Replacements int
}

// FromString wraps text that is already valid UTF-8.
func FromString(s string) Text {
	return Text{Content: s, Encoding: "utf-8"}
}

func (t Text) String() string { return t.Content }

// Lossy reports whether any bytes were replaced.
func (t Text) Lossy() bool { return t.Replacements > 0 }

// Accounted fails with a DecodeError when fewer replacements were found in
// free-text fields than the decoder made, i.e. some landed in numeric content
// or markup.
func (t Text) Accounted(inFreeText int) error {
	if t.Replacements > inFreeText {
		return &stock.DecodeError{
			Encoding: t.Encoding,
			Reason:   fmt.Sprintf("%d of %d replaced sequences fall outside free-text fields", t.Replacements-inFreeText, t.Replacements),
		}
	}
	return nil
}

// CountReplacements counts U+FFFD in s.
func CountReplacements(s string) int {
	return strings.Count(s, string(utf8.RuneError))
}

type options struct {
	contentType string
	strict      bool
}

// Option configures Decode.
type Option func(*options)

// WithContentType supplies the response Content-Type header for Auto detection.
func WithContentType(ct string) Option {
	return func(o *options) { o.contentType = ct }
}

// Strict makes any replacement a DecodeError. Use it for payloads that carry
// no free text.
func Strict() Option {
	return func(o *options) { o.strict = true }
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts raw to UTF-8 text.
func Decode(raw []byte, enc Encoding, opts ...Option) (Text, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var (
		t   Text
		err error
	)
	switch enc {
	case UTF8:
		t = decodeUTF8(raw)
	case Big5:
		t, err = decodeWith(raw, traditionalchinese.Big5, "big5")
	case Auto:
		t, err = decodeAuto(raw, o.contentType)
	default:
		return Text{}, &stock.DecodeError{Encoding: enc.String(), Reason: "unsupported encoding"}
	}
	if err != nil {
		return Text{}, err
	}
	if o.strict && t.Replacements > 0 {
		return Text{}, &stock.DecodeError{
			Encoding: t.Encoding,
			Reason:   fmt.Sprintf("%d invalid byte sequences", t.Replacements),
		}
	}
	return t, nil
}

// big5Aliases are Microsoft's labels for Big5. The exchanges send them, but
// they are not WHATWG labels and charset.Lookup does not know them.
var big5Aliases = map[string]bool{"ms950": true, "cp950": true, "windows-950": true, "x-windows-950": true}

func decodeAuto(raw []byte, contentType string) (Text, error) {
	if _, params, err := mime.ParseMediaType(contentType); err == nil && big5Aliases[strings.ToLower(params["charset"])] {
		return decodeWith(raw, traditionalchinese.Big5, "big5")
	}
	// windows-1252 is what DetermineEncoding guesses when nothing is declared.
	e, name, certain := charset.DetermineEncoding(raw, contentType)
	if certain || name != "windows-1252" {
		switch name {
		case "utf-8":
			return decodeUTF8(raw), nil
		case "big5":
			return decodeWith(raw, traditionalchinese.Big5, name)
		default:
			return decodeWith(raw, e, name)
		}
	}
	if utf8.Valid(bytes.TrimPrefix(raw, utf8BOM)) {
		return decodeUTF8(raw), nil
	}
	return decodeWith(raw, traditionalchinese.Big5, "big5")
}

// decodeUTF8 replaces every invalid byte with U+FFFD. Literal U+FFFD already
// present in valid input is not a replacement.
func decodeUTF8(raw []byte) Text {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return Text{Content: string(raw), Encoding: "utf-8"}
	}
	var (
		sb       strings.Builder
		replaced int
	)
	sb.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size <= 1 {
			replaced++
		}
		sb.WriteRune(r)
		raw = raw[size:]
	}
	return Text{Content: sb.String(), Encoding: "utf-8", Replacements: replaced}
}

func decodeWith(raw []byte, e encoding.Encoding, name string) (Text, error) {
	out, err := e.NewDecoder().Bytes(raw)
	if err != nil {
		return Text{}, &stock.DecodeError{Encoding: name, Reason: err.Error()}
	}
	// Neither Big5 nor the single-byte encodings can encode U+FFFD, so every
	// occurrence was produced by the decoder.
	return Text{Content: string(out), Encoding: name, Replacements: bytes.Count(out, []byte(string(utf8.RuneError)))}, nil
}
