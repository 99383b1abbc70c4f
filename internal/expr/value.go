// Package expr implements the filter/formula expression language: a
// tokenizer, a precedence-climbing parser, and a typed evaluator over a
// note's property bag.
package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind discriminates the Value union.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindDate
)

// String returns the lowercase kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is the tagged union produced by evaluation. The zero Value is Null.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Time time.Time
}

// Null is the null value.
var Null = Value{}

// BoolVal wraps a bool.
func BoolVal(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NumberVal wraps a float64.
func NumberVal(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// StringVal wraps a string.
func StringVal(s string) Value { return Value{Kind: KindString, Str: s} }

// DateVal wraps an instant.
func DateVal(t time.Time) Value { return Value{Kind: KindDate, Time: t} }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Truthy implements the truthiness rule used by logical operators and by
// if(): false, null, 0, "" and the zero date are falsy, everything else
// is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindString:
		return v.Str != ""
	case KindDate:
		return !v.Time.IsZero()
	default:
		return false
	}
}

// Equal reports deep equality between two values of the same kind.
// Callers are responsible for rejecting cross-kind comparison first.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindDate:
		return v.Time.Equal(o.Time)
	default:
		return true // both null
	}
}

// String renders the value for diagnostics and cell display.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindDate:
		return v.Time.Format(time.RFC3339)
	default:
		return "null"
	}
}

// FromAny converts a frontmatter scalar (as decoded by yaml.v3) to a Value.
// Unrecognized shapes (maps, nested lists) render through fmt as strings so
// that display columns never fail on odd frontmatter.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null
	case bool:
		return BoolVal(t)
	case int:
		return NumberVal(float64(t))
	case int64:
		return NumberVal(float64(t))
	case float64:
		return NumberVal(t)
	case string:
		return StringVal(t)
	case time.Time:
		return DateVal(t)
	default:
		return StringVal(fmt.Sprintf("%v", t))
	}
}

// MarshalJSON renders the value as its natural JSON type: null, boolean,
// number, string, or an RFC 3339 string for dates.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindString:
		return json.Marshal(v.Str)
	case KindDate:
		return json.Marshal(v.Time.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}
