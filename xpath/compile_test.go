package xpath

import (
	"errors"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []string{
		"/",
		"/root",
		"/root/item",
		"//item",
		"/root/item[1]",
		"/root/item[@id='first']/text()",
		"child::item/attribute::id",
		"ancestor-or-self::*[last()]",
		"../item | ./group",
		"count(//item) + 1",
		"-$x * 2 div 3 mod 4",
		"not(@ignore) and position() != last()",
		"ns:item/ns:*",
		"processing-instruction('xml-stylesheet')",
		"div/mod/and/or",
		".5 + 1.",
		"(//item)[2]",
	}
	for _, str := range tests {
		t.Run(str, func(t *testing.T) {
			_, err := CompileString(str)
			if err != nil {
				t.Errorf("%s: fail to compile expression: %s", str, err)
			}
		})
	}
}

func TestCompileInvalid(t *testing.T) {
	tests := []string{
		"",
		"/root/item[1",
		"count(//item",
		"foo::item",
		"1 +",
		"'unterminated",
		"item item",
	}
	for _, str := range tests {
		t.Run(str, func(t *testing.T) {
			_, err := CompileString(str)
			if err == nil {
				t.Fatalf("%s: invalid expression compiled", str)
			}
			var serr SyntaxError
			if !errors.As(err, &serr) {
				t.Errorf("%s: syntax error expected, got %T", str, err)
			}
		})
	}
}
