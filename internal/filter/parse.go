package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"regcast/internal/metadata"
)

// Operator names accepted in filter definitions.
const (
	OpEquals             = "equals"
	OpNotEquals          = "not_equals"
	OpLessThan           = "less_than"
	OpLessThanOrEqual    = "less_than_or_equal"
	OpGreaterThan        = "greater_than"
	OpGreaterThanOrEqual = "greater_than_or_equal"
	OpStartsWith         = "starts_with"
	OpEndsWith           = "ends_with"
	OpContains           = "contains"
	OpExists             = "exists"
	OpAnd                = "and"
	OpOr                 = "or"
	OpNot                = "not"
)

// Definition is the structured, serializable form of a filter expression.
// Parsing a Definition is the fallible step; the resulting Node tree never
// errors at evaluation time.
type Definition struct {
	Op       string        `json:"op"`
	Key      string        `json:"key,omitempty"`
	Value    any           `json:"value,omitempty"`
	Children []*Definition `json:"children,omitempty"`
}

// UnmarshalJSON decodes with json.Number so integer literals keep their
// kind instead of collapsing to float64.
func (d *Definition) UnmarshalJSON(data []byte) error {
	type alias Definition
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var a alias
	if err := dec.Decode(&a); err != nil {
		return err
	}
	*d = Definition(a)
	return nil
}

// MalformedError reports a filter definition rejected at parse time:
// unknown operator, missing key, non-scalar or type-incoherent literal, or
// an expression exceeding the configured limits.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed filter: " + e.Reason
}

// IsMalformed reports whether err is (or wraps) a MalformedError.
func IsMalformed(err error) bool {
	var m *MalformedError
	return errors.As(err, &m)
}

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

// Limits bound the size of accepted filter expressions so a hostile or
// buggy caller cannot submit pathologically deep or wide trees.
type Limits struct {
	MaxDepth   int
	MaxClauses int
}

// DefaultLimits match the configuration defaults.
var DefaultLimits = Limits{MaxDepth: 5, MaxClauses: 20}

// Parse validates def and builds the evaluable expression tree using
// DefaultLimits. A nil definition yields a nil Node, which matches every
// identity.
func Parse(def *Definition) (Node, error) {
	return ParseWithLimits(def, DefaultLimits)
}

// ParseWithLimits is Parse with caller-supplied limits. Zero or negative
// limit fields fall back to the defaults.
func ParseWithLimits(def *Definition, limits Limits) (Node, error) {
	if def == nil {
		return nil, nil
	}
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultLimits.MaxDepth
	}
	if limits.MaxClauses <= 0 {
		limits.MaxClauses = DefaultLimits.MaxClauses
	}
	clauses := 0
	return parseNode(def, 1, limits, &clauses)
}

// ParseJSON decodes a JSON filter definition and parses it. Empty input
// yields a nil Node.
func ParseJSON(data []byte) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	return Parse(&def)
}

func parseNode(def *Definition, depth int, limits Limits, clauses *int) (Node, error) {
	if def == nil {
		return nil, malformed("null node")
	}
	if depth > limits.MaxDepth {
		return nil, malformed("nesting exceeds %d levels", limits.MaxDepth)
	}
	*clauses++
	if *clauses > limits.MaxClauses {
		return nil, malformed("expression exceeds %d clauses", limits.MaxClauses)
	}

	switch def.Op {
	case OpAnd, OpOr:
		if def.Key != "" || def.Value != nil {
			return nil, malformed("%s takes children only", def.Op)
		}
		if len(def.Children) == 0 {
			return nil, malformed("%s requires at least one child", def.Op)
		}
		children := make([]Node, 0, len(def.Children))
		for _, child := range def.Children {
			node, err := parseNode(child, depth+1, limits, clauses)
			if err != nil {
				return nil, err
			}
			children = append(children, node)
		}
		if def.Op == OpAnd {
			return And(children...), nil
		}
		return Or(children...), nil

	case OpNot:
		if def.Key != "" || def.Value != nil {
			return nil, malformed("not takes a single child only")
		}
		if len(def.Children) != 1 {
			return nil, malformed("not requires exactly one child")
		}
		child, err := parseNode(def.Children[0], depth+1, limits, clauses)
		if err != nil {
			return nil, err
		}
		return Not(child), nil

	case OpExists:
		if def.Key == "" {
			return nil, malformed("exists requires a key")
		}
		if def.Value != nil || len(def.Children) != 0 {
			return nil, malformed("exists takes a key only")
		}
		return Exists(def.Key), nil

	case OpEquals, OpNotEquals, OpLessThan, OpLessThanOrEqual,
		OpGreaterThan, OpGreaterThanOrEqual, OpStartsWith, OpEndsWith, OpContains:
		return parseLeaf(def)

	case "":
		return nil, malformed("missing operator")
	default:
		return nil, malformed("unsupported operator %q", def.Op)
	}
}

func parseLeaf(def *Definition) (Node, error) {
	if def.Key == "" {
		return nil, malformed("%s requires a key", def.Op)
	}
	if len(def.Children) != 0 {
		return nil, malformed("%s does not take children", def.Op)
	}
	if def.Value == nil {
		return nil, malformed("%s requires a literal value", def.Op)
	}
	want, err := metadata.FromAny(def.Value)
	if err != nil {
		return nil, malformed("%s: %v", def.Op, err)
	}

	switch def.Op {
	case OpEquals:
		return Equals(def.Key, want), nil
	case OpNotEquals:
		return NotEquals(def.Key, want), nil

	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		// Booleans are unordered; rejecting here keeps the mismatch a
		// parse error instead of a silently-false predicate.
		if want.Kind() == metadata.KindBool {
			return nil, malformed("%s cannot compare booleans", def.Op)
		}
		switch def.Op {
		case OpLessThan:
			return LessThan(def.Key, want), nil
		case OpLessThanOrEqual:
			return LessThanOrEqual(def.Key, want), nil
		case OpGreaterThan:
			return GreaterThan(def.Key, want), nil
		default:
			return GreaterThanOrEqual(def.Key, want), nil
		}

	case OpStartsWith, OpEndsWith, OpContains:
		s, ok := want.AsString()
		if !ok {
			return nil, malformed("%s requires a string literal, got %s", def.Op, want.Kind())
		}
		switch def.Op {
		case OpStartsWith:
			return StartsWith(def.Key, s), nil
		case OpEndsWith:
			return EndsWith(def.Key, s), nil
		default:
			return Contains(def.Key, s), nil
		}
	}
	return nil, malformed("unsupported operator %q", def.Op)
}
