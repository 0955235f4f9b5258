package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// AmountScale is the number of Amount units in one currency unit.
const AmountScale = 10000

// Amount is a currency value with four implied decimals.
type Amount int64

func AmountFromUnits(units int64) Amount { return Amount(units * AmountScale) }

func AmountFromFloat(f float64) Amount {
	return Amount(math.Round(f * AmountScale))
}

// MulBasisPoints returns a*bp/10000 rounded half away from zero.
func (a Amount) MulBasisPoints(bp int64) Amount {
	p := int64(a) * bp
	q, r := p/10000, p%10000
	if r*2 >= 10000 {
		q++
	} else if r*2 <= -10000 {
		q--
	}
	return Amount(q)
}

// Cents rounds to two decimals, half away from zero.
func (a Amount) Cents() int64 {
	const step = AmountScale / 100
	v := int64(a)
	if v >= 0 {
		return (v + step/2) / step
	}
	return (v - step/2) / step
}

func (a Amount) Float64() float64 { return float64(a) / AmountScale }

func (a Amount) String() string {
	c := a.Cents()
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if ferr := json.Unmarshal(data, &f); ferr != nil {
			return err
		}
		*a = AmountFromFloat(f)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	*a = AmountFromFloat(f)
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return int64(a), nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*a = Amount(v)
	case float64:
		*a = Amount(math.Round(v))
	case nil:
		*a = 0
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
	return nil
}
