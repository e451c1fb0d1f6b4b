package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// field is a JSON value the exchanges send either as a string or as a bare
// number. Set distinguishes an absent key (or null) from an empty string.
type field struct {
	Set   bool
	Value string
}

func (f *field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = field{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = field{Set: true, Value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("want string or number, got %s", b)
	}
	*f = field{Set: true, Value: n.String()}
	return nil
}

func (f field) required(name string) (string, error) {
	if !f.Set {
		return "", fmt.Errorf("missing field %q", name)
	}
	return f.Value, nil
}
