// Package metadata defines the scalar value model attached to registered
// identities. The value type is a closed sum over string, int64, float64
// and bool so that filter evaluation stays exhaustive and allocation-free;
// open/dynamic typing is deliberately not supported.
package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which scalar a Value holds.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is an immutable scalar. The zero value is the empty string.
type Value struct {
	kind Kind
	s    string
	n    int64
	f    float64
	b    bool
}

func String(s string) Value { return Value{kind: KindString, s: s} }
func Int(n int64) Value     { return Value{kind: KindInt, n: n} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }

// FromAny converts a dynamically typed scalar into a Value. It accepts the
// types produced by hand-written Go callers (string, bool, int, int64,
// float64) plus json.Number from decoded filter definitions. Anything else
// is rejected so non-scalar metadata never enters the registry.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		return Float(t), nil
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			f, err := t.Float64()
			if err != nil {
				return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
			}
			return Float(f), nil
		}
		n, err := t.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Int(n), nil
	default:
		return Value{}, fmt.Errorf("unsupported metadata type %T", v)
	}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsInt() (int64, bool)     { return v.n, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }

// Equal is type-aware: values of different kinds are never equal. No
// numeric coercion happens between int and float values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.n == o.n
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	default:
		return false
	}
}

// Less orders two values of the same kind. Booleans are unordered and
// kind mismatches are unordered; both report false.
func (v Value) Less(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s < o.s
	case KindInt:
		return v.n < o.n
	case KindFloat:
		return v.f < o.f
	default:
		return false
	}
}

// Greater is the strict inverse companion of Less under the same
// unordered-kind rules.
func (v Value) Greater(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s > o.s
	case KindInt:
		return v.n > o.n
	case KindFloat:
		return v.f > o.f
	default:
		return false
	}
}

// String renders the value for logs and debugging. Not the inverse of any
// parse step.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.n, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON writes the underlying scalar. Ints marshal without a decimal
// point so the kind survives a round trip through storage.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return json.Marshal(v.n)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON restores a scalar, distinguishing int from float by the
// presence of a fraction or exponent in the literal.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Map is identity metadata: unique string keys to scalar values. Maps are
// owned by their callers; nothing in this module mutates a Map after it
// has been handed in.
type Map map[string]Value

// Get looks up a key.
func (m Map) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// Clone returns an independent copy so stored records do not alias
// caller-owned maps.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MapFromAny converts a dynamically typed map (e.g. a decoded JSON object)
// into a Map, rejecting non-scalar values.
func MapFromAny(in map[string]any) (Map, error) {
	if in == nil {
		return nil, nil
	}
	out := make(Map, len(in))
	for k, raw := range in {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
