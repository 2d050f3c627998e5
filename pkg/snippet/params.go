package snippet

import (
	"math"

	"github.com/blesnip/leaudio-snippet/pkg/protocol"
)

// Params holds the positional parameters of a request.
type Params struct {
	method string
	values []interface{}
}

func NewParams(method string, values ...interface{}) Params {
	return Params{method: method, values: values}
}

func (p Params) Len() int {
	return len(p.values)
}

func (p Params) missing(i int, expected string) error {
	return &protocol.ParamError{Method: p.method, Index: i, Expected: expected, Missing: true}
}

func (p Params) invalid(i int, expected string) error {
	return &protocol.ParamError{Method: p.method, Index: i, Expected: expected}
}

func (p Params) String(i int) (string, error) {
	if i >= len(p.values) {
		return "", p.missing(i, "string")
	}
	if value, ok := p.values[i].(string); ok {
		return value, nil
	}
	return "", p.invalid(i, "string")
}

func (p Params) Number(i int) (float64, error) {
	if i >= len(p.values) {
		return 0, p.missing(i, "number")
	}
	if value, ok := p.values[i].(float64); ok {
		return value, nil
	}
	return 0, p.invalid(i, "number")
}

// Int returns parameter i, which must be a number without a fractional part. Magnitudes of 2^63
// and above are rejected.
func (p Params) Int(i int) (int64, error) {
	value, err := p.Number(i)
	if err != nil {
		return 0, err
	}
	if value != math.Trunc(value) || math.Abs(value) >= math.MaxInt64 {
		return 0, p.invalid(i, "integer")
	}
	return int64(value), nil
}

func (p Params) Bool(i int) (bool, error) {
	if i >= len(p.values) {
		return false, p.missing(i, "bool")
	}
	if value, ok := p.values[i].(bool); ok {
		return value, nil
	}
	return false, p.invalid(i, "bool")
}
