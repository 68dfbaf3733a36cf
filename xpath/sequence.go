package xpath

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/midbel/angle/xml"
)

type Item interface {
	Node() xml.Node
	Value() any
	True() bool
	Atomic() bool
}

type Sequence []Item

func Singleton(value any) Sequence {
	var item Item
	switch value := value.(type) {
	case xml.Node:
		item = createNode(value)
	case Item:
		item = value
	case int:
		item = createLiteral(float64(value))
	default:
		item = createLiteral(value)
	}
	var seq Sequence
	seq.Append(item)
	return seq
}

// NodeSet builds a sequence from nodes.
func NodeSet(nodes ...xml.Node) Sequence {
	seq := make(Sequence, 0, len(nodes))
	for _, n := range nodes {
		seq.Append(createNode(n))
	}
	return seq
}

func (s *Sequence) Len() int {
	return len(*s)
}

func (s *Sequence) Append(item Item) {
	*s = append(*s, item)
}

func (s *Sequence) Concat(other Sequence) {
	*s = slices.Concat(*s, other)
}

func (s *Sequence) True() bool {
	return EffectiveBooleanValue(*s)
}

func (s *Sequence) Empty() bool {
	return len(*s) == 0
}

func (s *Sequence) Singleton() bool {
	return len(*s) == 1
}

// Nodes reports whether every item of s is a node. An empty sequence is
// an empty node-set.
func (s *Sequence) Nodes() bool {
	for _, i := range *s {
		if i.Atomic() {
			return false
		}
	}
	return true
}

// Unique removes the duplicate nodes of s and sorts the remaining items in
// document order.
func (s *Sequence) Unique() Sequence {
	var (
		seq  Sequence
		seen = make(map[xml.Node]struct{})
	)
	for _, i := range *s {
		n := i.Node()
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		seq.Append(i)
	}
	slices.SortStableFunc(seq, func(a, b Item) int {
		if a.Node() == b.Node() {
			return 0
		}
		if xml.Before(a.Node(), b.Node()) {
			return -1
		}
		return 1
	})
	return seq
}

// String returns the string value of s: the string value of its first
// item or the empty string.
func (s *Sequence) String() string {
	if s.Empty() {
		return ""
	}
	return toString((*s)[0])
}

func (s *Sequence) Number() float64 {
	if s.Empty() {
		return math.NaN()
	}
	return toNumber((*s)[0])
}

func (s *Sequence) Strings() []string {
	var list []string
	for _, i := range *s {
		list = append(list, toString(i))
	}
	return list
}

func EffectiveBooleanValue(seq Sequence) bool {
	if seq.Empty() {
		return false
	}
	if !seq.Nodes() {
		return seq[0].True()
	}
	return true
}

type literalItem struct {
	value any
}

func createLiteral(value any) Item {
	if i, ok := value.(literalItem); ok {
		return i
	}
	switch v := value.(type) {
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case float32:
		value = float64(v)
	}
	return literalItem{
		value: value,
	}
}

func (i literalItem) Atomic() bool {
	return true
}

func (i literalItem) True() bool {
	switch v := i.value.(type) {
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	case bool:
		return v
	default:
		return false
	}
}

func (i literalItem) Node() xml.Node {
	return xml.NewText(toString(i))
}

func (i literalItem) Value() any {
	return i.value
}

type nodeItem struct {
	node xml.Node
}

func NewNodeItem(node xml.Node) Item {
	return createNode(node)
}

func createNode(node xml.Node) Item {
	return nodeItem{
		node: node,
	}
}

func (i nodeItem) Atomic() bool {
	return false
}

func (i nodeItem) Node() xml.Node {
	return i.node
}

func (i nodeItem) True() bool {
	return true
}

func (i nodeItem) Value() any {
	return i.node.Value()
}

func toString(item Item) string {
	if !item.Atomic() {
		return item.Node().Value()
	}
	switch v := item.Value().(type) {
	case string:
		return v
	case float64:
		return formatNumber(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func toNumber(item Item) float64 {
	if !item.Atomic() {
		return parseNumber(item.Node().Value())
	}
	switch v := item.Value().(type) {
	case float64:
		return v
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		return parseNumber(v)
	default:
		return math.NaN()
	}
}

func parseNumber(str string) float64 {
	str = strings.TrimSpace(str)
	if str == "" || strings.ContainsAny(str, "eExXpP_") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// compareItems compares two atomic values following the conversion rules of
// the comparison operators.
func compareItems(left, right Item, op rune) bool {
	switch op {
	case opEq, opNe:
		var eq bool
		_, lb := left.Value().(bool)
		_, rb := right.Value().(bool)
		_, lf := left.Value().(float64)
		_, rf := right.Value().(float64)
		switch {
		case (left.Atomic() && lb) || (right.Atomic() && rb):
			eq = left.True() == right.True()
		case (left.Atomic() && lf) || (right.Atomic() && rf):
			eq = toNumber(left) == toNumber(right)
		default:
			eq = toString(left) == toString(right)
		}
		if op == opNe {
			return !eq
		}
		return eq
	default:
		x, y := toNumber(left), toNumber(right)
		switch op {
		case opLt:
			return x < y
		case opLe:
			return x <= y
		case opGt:
			return x > y
		case opGe:
			return x >= y
		}
	}
	return false
}

// compareSequences applies op to every pair of items and succeeds as soon as
// one pair satisfies it. A boolean on one side converts the other side as
// a whole.
func compareSequences(left, right Sequence, op rune) bool {
	if op == opEq || op == opNe {
		if isBoolean(left) || isBoolean(right) {
			x, y := EffectiveBooleanValue(left), EffectiveBooleanValue(right)
			if op == opEq {
				return x == y
			}
			return x != y
		}
	}
	for _, x := range left {
		for _, y := range right {
			if compareItems(x, y, op) {
				return true
			}
		}
	}
	return false
}

func isBoolean(seq Sequence) bool {
	if !seq.Singleton() || !seq[0].Atomic() {
		return false
	}
	_, ok := seq[0].Value().(bool)
	return ok
}
