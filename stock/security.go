// Package stock holds the domain model shared by every stage of the pipeline:
// security identifiers, quotes, daily trading records and the error taxonomy.
package stock

import (
	"fmt"
	"strings"
)

// Segment is the market segment a security trades on.
//
// The numeric values match the listing page's strMode parameter.
type Segment uint8

const (
	// Listed securities trade on the Taiwan Stock Exchange (TWSE).
	Listed Segment = 2
	// OverTheCounter securities trade on the Taipei Exchange (TPEx).
	OverTheCounter Segment = 4
)

// Tag returns the short exchange tag used by the real-time endpoint.
func (s Segment) Tag() string {
	switch s {
	case Listed:
		return "tse"
	case OverTheCounter:
		return "otc"
	default:
		return ""
	}
}

func (s Segment) String() string {
	switch s {
	case Listed:
		return "listed"
	case OverTheCounter:
		return "otc"
	default:
		return fmt.Sprintf("segment(%d)", uint8(s))
	}
}

// MarshalText encodes the segment as its exchange tag.
func (s Segment) MarshalText() ([]byte, error) {
	return []byte(s.Tag()), nil
}

func (s *Segment) UnmarshalText(b []byte) error {
	seg, err := ParseSegment(string(b))
	if err != nil {
		return err
	}
	*s = seg
	return nil
}

// Valid reports whether s is one of the known segments.
func (s Segment) Valid() bool {
	_, ok := codeRules[s]
	return ok
}

// ParseSegment accepts the exchange tags, the English names and the Chinese
// market labels printed on the listing page.
func ParseSegment(v string) (Segment, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "tse", "twse", "listed", "上市", "2":
		return Listed, nil
	case "otc", "tpex", "上櫃", "4":
		return OverTheCounter, nil
	}
	return 0, fmt.Errorf("%w: unknown segment %q", ErrInvalidIdentifier, v)
}

type codeRule struct {
	min, max int
}

// codeRules holds the accepted code lengths per segment. The first four
// characters are always digits; the rest may be digits or upper-case letters
// (ETFs such as 00878, preferred shares such as 2881A).
var codeRules = map[Segment]codeRule{
	Listed:         {min: 4, max: 6},
	OverTheCounter: {min: 4, max: 6},
}

// Security identifies a tradable instrument by segment and code.
type Security struct {
	Segment Segment `json:"segment"`
	Code    string  `json:"code"`
}

// NewSecurity validates and returns a Security.
func NewSecurity(segment Segment, code string) (Security, error) {
	s := Security{Segment: segment, Code: strings.ToUpper(strings.TrimSpace(code))}
	if err := s.Validate(); err != nil {
		return Security{}, err
	}
	return s, nil
}

// ListedSecurity is a shorthand for NewSecurity(Listed, code).
func ListedSecurity(code string) (Security, error) { return NewSecurity(Listed, code) }

// OTCSecurity is a shorthand for NewSecurity(OverTheCounter, code).
func OTCSecurity(code string) (Security, error) { return NewSecurity(OverTheCounter, code) }

// ParseSecurity parses "tse:2330" or "otc_6488". A bare code is taken as listed.
func ParseSecurity(v string) (Security, error) {
	v = strings.TrimSpace(v)
	if i := strings.IndexAny(v, ":_"); i >= 0 {
		seg, err := ParseSegment(v[:i])
		if err != nil {
			return Security{}, err
		}
		return NewSecurity(seg, v[i+1:])
	}
	return NewSecurity(Listed, v)
}

// Validate checks the code against the segment's accepted format.
func (s Security) Validate() error {
	rule, ok := codeRules[s.Segment]
	if !ok {
		return fmt.Errorf("%w: unknown segment %d", ErrInvalidIdentifier, uint8(s.Segment))
	}
	n := len(s.Code)
	if n < rule.min || n > rule.max {
		return fmt.Errorf("%w: %s code %q must be %d-%d characters", ErrInvalidIdentifier, s.Segment, s.Code, rule.min, rule.max)
	}
	for i := 0; i < n; i++ {
		c := s.Code[i]
		switch {
		case c >= '0' && c <= '9':
		case i >= 4 && c >= 'A' && c <= 'Z':
		default:
			return fmt.Errorf("%w: %s code %q has invalid character %q at %d", ErrInvalidIdentifier, s.Segment, s.Code, c, i)
		}
	}
	return nil
}

// String formats the security as "tse:2330".
func (s Security) String() string {
	return s.Segment.Tag() + ":" + s.Code
}
