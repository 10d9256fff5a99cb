package psigroup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

// Elements is an ordered sequence of group elements that marshals as a
// JSON array of bare integer literals. Encoding through float64 would
// destroy values of this size, so each element is written and read as an
// arbitrary-precision decimal.
type Elements []*big.Int

// MarshalJSON implements json.Marshaler.
func (e Elements) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, len(e))
	for i, v := range e {
		if v == nil {
			return nil, fmt.Errorf("element %d is nil", i)
		}
		raw[i] = json.RawMessage(v.Text(10))
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler. Non-integer entries
// (strings, floats, exponents) are rejected.
func (e *Elements) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]*big.Int, len(raw))
	for i, r := range raw {
		v, ok := new(big.Int).SetString(string(bytes.TrimSpace(r)), 10)
		if !ok {
			return fmt.Errorf("element %d is not an integer", i)
		}
		out[i] = v
	}
	*e = out
	return nil
}
