package xslt

import (
	"fmt"
	"iter"
	"strings"
)

// evalAVT evaluates the attribute value template str with the context node
// of ctx.
func evalAVT(ctx *Context, str string) (string, error) {
	if !strings.ContainsAny(str, "{}") {
		return str, nil
	}
	var buf strings.Builder
	for q, ok := range iterAVT(str) {
		if !ok {
			buf.WriteString(q)
			continue
		}
		if q == "" {
			return "", fmt.Errorf("%s: empty expression in attribute value template", str)
		}
		items, err := ctx.Query(q)
		if err != nil {
			return "", err
		}
		buf.WriteString(items.String())
	}
	return buf.String(), nil
}

// iterAVT splits str into its literal parts and its expressions. The boolean
// is true when the part is an expression. Doubled braces are literal braces.
func iterAVT(str string) iter.Seq2[string, bool] {
	fn := func(yield func(string, bool) bool) {
		var lit strings.Builder
		for i := 0; i < len(str); i++ {
			c := str[i]
			switch {
			case c == '{' && i+1 < len(str) && str[i+1] == '{':
				lit.WriteByte('{')
				i++
			case c == '}' && i+1 < len(str) && str[i+1] == '}':
				lit.WriteByte('}')
				i++
			case c == '{':
				end := strings.IndexByte(str[i+1:], '}')
				if end < 0 {
					lit.WriteString(str[i:])
					i = len(str)
					break
				}
				if lit.Len() > 0 {
					if !yield(lit.String(), false) {
						return
					}
					lit.Reset()
				}
				if !yield(strings.TrimSpace(str[i+1:i+1+end]), true) {
					return
				}
				i += end + 1
			default:
				lit.WriteByte(c)
			}
		}
		if lit.Len() > 0 {
			yield(lit.String(), false)
		}
	}
	return fn
}
