// Package filter implements the expression engine used to narrow registry
// enumerations and multicasts. A parsed expression is an immutable tree of
// predicate nodes evaluated against identity metadata.
//
// Evaluation is a pure function of (filter, metadata): it never allocates,
// never errors, and a predicate whose literal kind does not match the
// runtime kind of the metadata value simply reports false. That keeps
// enumeration total over heterogeneous metadata.
package filter

import (
	"strings"

	"regcast/internal/metadata"
)

// Node is one node of a filter expression tree. Implementations are
// immutable after construction.
type Node interface {
	Evaluate(m metadata.Map) bool
}

// Match evaluates n against m, treating a nil filter as match-everything.
// This is the entry point the coordinator uses.
func Match(n Node, m metadata.Map) bool {
	if n == nil {
		return true
	}
	return n.Evaluate(m)
}

// Equals matches when the key holds exactly want (same kind, same value).
func Equals(key string, want metadata.Value) Node {
	return equalsNode{key: key, want: want}
}

// NotEquals matches when the key is present and holds anything but want.
// An absent key does not match; use Not(Exists(key)) for absence.
func NotEquals(key string, want metadata.Value) Node {
	return notEqualsNode{key: key, want: want}
}

// LessThan matches when the key's value is strictly below want. Unordered
// kinds (bool) and kind mismatches never match.
func LessThan(key string, want metadata.Value) Node {
	return lessNode{key: key, want: want, orEqual: false}
}

// LessThanOrEqual matches when the key's value is below or equal to want.
func LessThanOrEqual(key string, want metadata.Value) Node {
	return lessNode{key: key, want: want, orEqual: true}
}

// GreaterThan matches when the key's value is strictly above want.
func GreaterThan(key string, want metadata.Value) Node {
	return greaterNode{key: key, want: want, orEqual: false}
}

// GreaterThanOrEqual matches when the key's value is above or equal to want.
func GreaterThanOrEqual(key string, want metadata.Value) Node {
	return greaterNode{key: key, want: want, orEqual: true}
}

// StartsWith matches string values with the given prefix.
func StartsWith(key, prefix string) Node {
	return startsWithNode{key: key, prefix: prefix}
}

// EndsWith matches string values with the given suffix.
func EndsWith(key, suffix string) Node {
	return endsWithNode{key: key, suffix: suffix}
}

// Contains matches string values containing the given substring.
func Contains(key, substring string) Node {
	return containsNode{key: key, substring: substring}
}

// Exists matches when the key is present, regardless of its value.
func Exists(key string) Node {
	return existsNode{key: key}
}

// And matches when every child matches. Evaluation stops at the first
// non-matching child. With no children it returns nil (match everything).
func And(children ...Node) Node {
	if len(children) == 0 {
		return nil
	}
	return andNode{children: children}
}

// Or matches when at least one child matches. Evaluation stops at the
// first matching child. With no children it returns nil (match everything).
func Or(children ...Node) Node {
	if len(children) == 0 {
		return nil
	}
	return orNode{children: children}
}

// Not inverts its child.
func Not(child Node) Node {
	return notNode{child: child}
}

type equalsNode struct {
	key  string
	want metadata.Value
}

func (n equalsNode) Evaluate(m metadata.Map) bool {
	got, ok := m.Get(n.key)
	return ok && got.Equal(n.want)
}

type notEqualsNode struct {
	key  string
	want metadata.Value
}

func (n notEqualsNode) Evaluate(m metadata.Map) bool {
	got, ok := m.Get(n.key)
	return ok && !got.Equal(n.want)
}

type lessNode struct {
	key     string
	want    metadata.Value
	orEqual bool
}

func (n lessNode) Evaluate(m metadata.Map) bool {
	got, ok := m.Get(n.key)
	if !ok {
		return false
	}
	if got.Less(n.want) {
		return true
	}
	return n.orEqual && got.Equal(n.want)
}

type greaterNode struct {
	key     string
	want    metadata.Value
	orEqual bool
}

func (n greaterNode) Evaluate(m metadata.Map) bool {
	got, ok := m.Get(n.key)
	if !ok {
		return false
	}
	if got.Greater(n.want) {
		return true
	}
	return n.orEqual && got.Equal(n.want)
}

type startsWithNode struct {
	key    string
	prefix string
}

func (n startsWithNode) Evaluate(m metadata.Map) bool {
	got, ok := m.Get(n.key)
	if !ok {
		return false
	}
	s, ok := got.AsString()
	return ok && strings.HasPrefix(s, n.prefix)
}

type endsWithNode struct {
	key    string
	suffix string
}

func (n endsWithNode) Evaluate(m metadata.Map) bool {
	got, ok := m.Get(n.key)
	if !ok {
		return false
	}
	s, ok := got.AsString()
	return ok && strings.HasSuffix(s, n.suffix)
}

type containsNode struct {
	key       string
	substring string
}

func (n containsNode) Evaluate(m metadata.Map) bool {
	got, ok := m.Get(n.key)
	if !ok {
		return false
	}
	s, ok := got.AsString()
	return ok && strings.Contains(s, n.substring)
}

type existsNode struct {
	key string
}

func (n existsNode) Evaluate(m metadata.Map) bool {
	_, ok := m.Get(n.key)
	return ok
}

type andNode struct {
	children []Node
}

func (n andNode) Evaluate(m metadata.Map) bool {
	for _, child := range n.children {
		if !child.Evaluate(m) {
			return false
		}
	}
	return true
}

type orNode struct {
	children []Node
}

func (n orNode) Evaluate(m metadata.Map) bool {
	for _, child := range n.children {
		if child.Evaluate(m) {
			return true
		}
	}
	return false
}

type notNode struct {
	child Node
}

func (n notNode) Evaluate(m metadata.Map) bool {
	return !n.child.Evaluate(m)
}
