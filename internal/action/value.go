// Package action implements the post-login action engine.
//
// A LoginAction maps dotted source paths in the login context onto columns of
// a configured target entity. The engine resolves every path, then hands the
// attribute map to an EntitySink for create-or-update.
//
// Import Path: oauthbridge.io/bridge/internal/action
package action

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tidwall/gjson"
)

// Kind tags the dynamic type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a resolved source value.
type Value struct {
	kind Kind
	b    bool
	// num holds the JSON number literal to keep integer precision.
	num  string
	str  string
	list []Value
	obj  map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric Value from a JSON number literal.
func Number(lit string) Value { return Value{kind: KindNumber, num: lit} }

// Int returns a numeric Value.
func Int(n int64) Value { return Number(strconv.FormatInt(n, 10)) }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// List returns a list Value.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Object returns an object Value.
func Object(fields map[string]Value) Value { return Value{kind: KindObject, obj: fields} }

// Kind returns the dynamic type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean, false for other kinds.
func (v Value) Bool() bool { return v.b }

// Str returns the string, "" for other kinds.
func (v Value) Str() string { return v.str }

// Items returns list items.
func (v Value) Items() []Value { return v.list }

// Fields returns object fields.
func (v Value) Fields() map[string]Value { return v.obj }

// Int64 returns the number as an integer when it has no fractional part.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(v.num, 10, 64)
	return n, err == nil
}

// Float64 returns the number as a float.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.num, 64)
	return f, err == nil
}

// Interface converts v to plain Go values (nil, bool, json.Number, string,
// []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(v.num)
	case KindString:
		return v.str
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes v as JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// SQLArg converts v into a database argument. Scalars map to their Go
// counterparts; lists and objects are stored as JSON text. Numbers that
// neither int64 nor float64 hold exactly become pgtype.Numeric.
func (v Value) SQLArg() (any, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindNumber:
		if n, ok := v.Int64(); ok {
			return n, nil
		}
		if n, ok := exactNumeric(v.num); ok {
			return n, nil
		}
		if f, ok := v.Float64(); ok {
			return f, nil
		}
		return nil, fmt.Errorf("invalid number literal %q", v.num)
	case KindString:
		return v.str, nil
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

// float64 keeps 15 significant decimal digits exactly.
const float64Digits = 15

// exactNumeric converts a plain decimal literal that float64 cannot hold
// exactly into a pgtype.Numeric. Exponent forms are left to float64.
func exactNumeric(lit string) (pgtype.Numeric, bool) {
	digits := strings.TrimPrefix(lit, "-")
	intPart, frac, _ := strings.Cut(digits, ".")
	if intPart == "" || !allDigits(intPart) || !allDigits(frac) {
		return pgtype.Numeric{}, false
	}
	if significant := strings.TrimLeft(intPart+frac, "0"); len(significant) <= float64Digits {
		return pgtype.Numeric{}, false
	}
	sign := ""
	if strings.HasPrefix(lit, "-") {
		sign = "-"
	}
	n, ok := new(big.Int).SetString(sign+intPart+frac, 10)
	if !ok {
		return pgtype.Numeric{}, false
	}
	return pgtype.Numeric{Int: n, Exp: int32(-len(frac)), Valid: true}, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Equal reports deep equality. Numbers compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		a, aok := v.Float64()
		b, bok := o.Float64()
		return aok && bok && a == b
	case KindString:
		return v.str == o.str
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, item := range v.obj {
			other, ok := o.obj[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<" + v.kind.String() + ">"
	}
	return string(b)
}

// fromResult converts a gjson result into a Value.
func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(r.Raw)
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			var items []Value
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, fromResult(item))
				return true
			})
			return List(items...)
		}
		fields := make(map[string]Value)
		r.ForEach(func(key, item gjson.Result) bool {
			fields[key.String()] = fromResult(item)
			return true
		})
		return Object(fields)
	}
	return Null()
}
