package xpath

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/midbel/angle/environ"
	"github.com/midbel/angle/xml"
)

type BuiltinFunc func(Context, []Expr) (Sequence, error)

var builtins = map[string]BuiltinFunc{
	"last":             checkArity(0, 0, callLast),
	"position":         checkArity(0, 0, callPosition),
	"count":            checkArity(1, 1, callCount),
	"name":             checkArity(0, 1, callName),
	"local-name":       checkArity(0, 1, callLocalName),
	"namespace-uri":    checkArity(0, 1, callNamespaceUri),
	"string":           checkArity(0, 1, callString),
	"concat":           checkArity(2, -1, callConcat),
	"contains":         checkArity(2, 2, callContains),
	"starts-with":      checkArity(2, 2, callStartsWith),
	"ends-with":        checkArity(2, 2, callEndsWith),
	"substring":        checkArity(2, 3, callSubstring),
	"substring-before": checkArity(2, 2, callSubstringBefore),
	"substring-after":  checkArity(2, 2, callSubstringAfter),
	"string-length":    checkArity(0, 1, callStringLength),
	"normalize-space":  checkArity(0, 1, callNormalizeSpace),
	"translate":        checkArity(3, 3, callTranslate),
	"upper-case":       checkArity(1, 1, callUpperCase),
	"lower-case":       checkArity(1, 1, callLowerCase),
	"string-join":      checkArity(1, 2, callStringJoin),
	"not":              checkArity(1, 1, callNot),
	"true":             checkArity(0, 0, callTrue),
	"false":            checkArity(0, 0, callFalse),
	"boolean":          checkArity(1, 1, callBoolean),
	"number":           checkArity(0, 1, callNumber),
	"sum":              checkArity(1, 1, callSum),
	"floor":            checkArity(1, 1, callFloor),
	"ceiling":          checkArity(1, 1, callCeiling),
	"round":            checkArity(1, 1, callRound),
	"current":          checkArity(0, 0, callCurrent),
	"generate-id":      checkArity(0, 1, callGenerateId),
}

var builtinEnv environ.Environ[BuiltinFunc]

func init() {
	builtinEnv = environ.From(builtins)
}

// DefaultBuiltin returns a copy of the core function library. Functions
// defined in the copy are not visible to other callers.
func DefaultBuiltin() environ.Environ[BuiltinFunc] {
	c, ok := builtinEnv.(interface {
		Clone() environ.Environ[BuiltinFunc]
	})
	if ok {
		return c.Clone()
	}
	return builtinEnv
}

func checkArity(minArgs, maxArgs int, fn BuiltinFunc) BuiltinFunc {
	do := func(ctx Context, args []Expr) (Sequence, error) {
		if len(args) < minArgs || (maxArgs >= 0 && len(args) > maxArgs) {
			return nil, ErrArgument
		}
		return fn(ctx, args)
	}
	return do
}

// Evaluate evaluates every argument in ctx.
func Evaluate(ctx Context, args []Expr) ([]Sequence, error) {
	var list []Sequence
	for _, a := range args {
		seq, err := a.find(ctx)
		if err != nil {
			return nil, err
		}
		list = append(list, seq)
	}
	return list, nil
}

func getArgOrContext(ctx Context, args []Expr) (Sequence, error) {
	if len(args) == 0 {
		return Singleton(ctx.Node), nil
	}
	return args[0].find(ctx)
}

func getString(ctx Context, arg Expr) (string, error) {
	seq, err := arg.find(ctx)
	if err != nil {
		return "", err
	}
	return seq.String(), nil
}

func getStrings(ctx Context, args []Expr) ([]string, error) {
	var list []string
	for _, a := range args {
		str, err := getString(ctx, a)
		if err != nil {
			return nil, err
		}
		list = append(list, str)
	}
	return list, nil
}

func getNumber(ctx Context, arg Expr) (float64, error) {
	seq, err := arg.find(ctx)
	if err != nil {
		return 0, err
	}
	return seq.Number(), nil
}

func getNode(ctx Context, args []Expr) (xml.Node, error) {
	seq, err := getArgOrContext(ctx, args)
	if err != nil {
		return nil, err
	}
	if seq.Empty() {
		return nil, nil
	}
	if !seq.Nodes() {
		return nil, fmt.Errorf("%w: node-set expected", ErrType)
	}
	return seq.Unique()[0].Node(), nil
}

func callLast(ctx Context, _ []Expr) (Sequence, error) {
	return Singleton(ctx.Size), nil
}

func callPosition(ctx Context, _ []Expr) (Sequence, error) {
	return Singleton(ctx.Index), nil
}

func callCount(ctx Context, args []Expr) (Sequence, error) {
	seq, err := args[0].find(ctx)
	if err != nil {
		return nil, err
	}
	if !seq.Nodes() {
		return nil, fmt.Errorf("%w: node-set expected", ErrType)
	}
	return Singleton(seq.Len()), nil
}

func callName(ctx Context, args []Expr) (Sequence, error) {
	n, err := getNode(ctx, args)
	if err != nil || n == nil {
		return Singleton(""), err
	}
	return Singleton(n.QualifiedName()), nil
}

func callLocalName(ctx Context, args []Expr) (Sequence, error) {
	n, err := getNode(ctx, args)
	if err != nil || n == nil {
		return Singleton(""), err
	}
	return Singleton(n.LocalName()), nil
}

func callNamespaceUri(ctx Context, args []Expr) (Sequence, error) {
	n, err := getNode(ctx, args)
	if err != nil || n == nil {
		return Singleton(""), err
	}
	qn, _ := nodeName(n)
	return Singleton(qn.Uri), nil
}

func callString(ctx Context, args []Expr) (Sequence, error) {
	seq, err := getArgOrContext(ctx, args)
	if err != nil {
		return nil, err
	}
	return Singleton(seq.String()), nil
}

func callConcat(ctx Context, args []Expr) (Sequence, error) {
	list, err := getStrings(ctx, args)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.Join(list, "")), nil
}

func callContains(ctx Context, args []Expr) (Sequence, error) {
	list, err := getStrings(ctx, args)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.Contains(list[0], list[1])), nil
}

func callStartsWith(ctx Context, args []Expr) (Sequence, error) {
	list, err := getStrings(ctx, args)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.HasPrefix(list[0], list[1])), nil
}

func callEndsWith(ctx Context, args []Expr) (Sequence, error) {
	list, err := getStrings(ctx, args)
	if err != nil {
		return nil, err
	}
	return Singleton(strings.HasSuffix(list[0], list[1])), nil
}

// callSubstring selects the characters whose position p satisfies
// round(start) <= p < round(start) + round(length).
func callSubstring(ctx Context, args []Expr) (Sequence, error) {
	str, err := getString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	start, err := getNumber(ctx, args[1])
	if err != nil {
		return nil, err
	}
	start = round(start)
	end := math.Inf(1)
	if len(args) == 3 {
		size, err := getNumber(ctx, args[2])
		if err != nil {
			return nil, err
		}
		end = start + round(size)
	}
	var (
		res strings.Builder
		pos float64
	)
	for _, r := range str {
		pos++
		if pos >= start && pos < end {
			res.WriteRune(r)
		}
	}
	return Singleton(res.String()), nil
}

func callSubstringBefore(ctx Context, args []Expr) (Sequence, error) {
	list, err := getStrings(ctx, args)
	if err != nil {
		return nil, err
	}
	before, _, ok := strings.Cut(list[0], list[1])
	if !ok {
		before = ""
	}
	return Singleton(before), nil
}

func callSubstringAfter(ctx Context, args []Expr) (Sequence, error) {
	list, err := getStrings(ctx, args)
	if err != nil {
		return nil, err
	}
	_, after, _ := strings.Cut(list[0], list[1])
	return Singleton(after), nil
}

func callStringLength(ctx Context, args []Expr) (Sequence, error) {
	seq, err := getArgOrContext(ctx, args)
	if err != nil {
		return nil, err
	}
	return Singleton(utf8.RuneCountInString(seq.String())), nil
}

func callNormalizeSpace(ctx Context, args []Expr) (Sequence, error) {
	seq, err := getArgOrContext(ctx, args)
	if err != nil {
		return nil, err
	}
	str := strings.Join(strings.Fields(seq.String()), " ")
	return Singleton(str), nil
}

func callTranslate(ctx Context, args []Expr) (Sequence, error) {
	list, err := getStrings(ctx, args)
	if err != nil {
		return nil, err
	}
	var (
		from = []rune(list[1])
		to   = []rune(list[2])
	)
	str := strings.Map(func(r rune) rune {
		for i := range from {
			if from[i] != r {
				continue
			}
			if i < len(to) {
				return to[i]
			}
			return -1
		}
		return r
	}, list[0])
	return Singleton(str), nil
}

func callUpperCase(ctx Context, args []Expr) (Sequence, error) {
	str, err := getString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return Singleton(strings.ToUpper(str)), nil
}

func callLowerCase(ctx Context, args []Expr) (Sequence, error) {
	str, err := getString(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return Singleton(strings.ToLower(str)), nil
}

func callStringJoin(ctx Context, args []Expr) (Sequence, error) {
	seq, err := args[0].find(ctx)
	if err != nil {
		return nil, err
	}
	var sep string
	if len(args) == 2 {
		if sep, err = getString(ctx, args[1]); err != nil {
			return nil, err
		}
	}
	return Singleton(strings.Join(seq.Strings(), sep)), nil
}

func callNot(ctx Context, args []Expr) (Sequence, error) {
	seq, err := args[0].find(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(!seq.True()), nil
}

func callTrue(_ Context, _ []Expr) (Sequence, error) {
	return Singleton(true), nil
}

func callFalse(_ Context, _ []Expr) (Sequence, error) {
	return Singleton(false), nil
}

func callBoolean(ctx Context, args []Expr) (Sequence, error) {
	seq, err := args[0].find(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(seq.True()), nil
}

func callNumber(ctx Context, args []Expr) (Sequence, error) {
	seq, err := getArgOrContext(ctx, args)
	if err != nil {
		return nil, err
	}
	return Singleton(seq.Number()), nil
}

func callSum(ctx Context, args []Expr) (Sequence, error) {
	seq, err := args[0].find(ctx)
	if err != nil {
		return nil, err
	}
	if !seq.Nodes() {
		return nil, fmt.Errorf("%w: node-set expected", ErrType)
	}
	var total float64
	for _, i := range seq {
		total += toNumber(i)
	}
	return Singleton(total), nil
}

func callFloor(ctx Context, args []Expr) (Sequence, error) {
	f, err := getNumber(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return Singleton(math.Floor(f)), nil
}

func callCeiling(ctx Context, args []Expr) (Sequence, error) {
	f, err := getNumber(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return Singleton(math.Ceil(f)), nil
}

func callRound(ctx Context, args []Expr) (Sequence, error) {
	f, err := getNumber(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return Singleton(round(f)), nil
}

func callCurrent(ctx Context, _ []Expr) (Sequence, error) {
	return Singleton(ctx.CurrentNode()), nil
}

func callGenerateId(ctx Context, args []Expr) (Sequence, error) {
	n, err := getNode(ctx, args)
	if err != nil || n == nil {
		return Singleton(""), err
	}
	h := fnv.New64a()
	h.Write([]byte(n.Identity()))
	return Singleton(fmt.Sprintf("id%x", h.Sum64())), nil
}

func round(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return math.Floor(f + 0.5)
}
