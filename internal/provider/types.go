package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Text accepts a JSON string, number or null. Panels disagree on whether
// ids and amounts are quoted.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string { return string(t) }

// Int64 returns the value and whether it parsed as an integer.
func (t Text) Int64() (int64, bool) {
	if t == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(string(t), 10, 64); err == nil {
		return v, true
	}
	d, err := decimal.NewFromString(string(t))
	if err != nil {
		return 0, false
	}
	return d.IntPart(), true
}

func (t Text) Decimal() (decimal.Decimal, bool) {
	if t == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(t))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

type Service struct {
	Service  Text   `json:"service"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Rate     Text   `json:"rate"`
	Min      Text   `json:"min"`
	Max      Text   `json:"max"`
}

// AddRequest carries the optional fields only when set.
type AddRequest struct {
	Service  int64
	Link     string
	Quantity int64
	Comments string
	Runs     int64
	Interval int64
}

type AddResult struct {
	Order Text `json:"order"`
}

type StatusResult struct {
	Charge     Text   `json:"charge"`
	StartCount Text   `json:"start_count"`
	Status     string `json:"status"`
	Remains    Text   `json:"remains"`
	Currency   string `json:"currency"`
}

type RefillResult struct {
	Refill Text `json:"refill"`
}

type RefillStatusResult struct {
	Status Text `json:"status"`
}
