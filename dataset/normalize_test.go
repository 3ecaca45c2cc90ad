package dataset

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"lowercases", "Hello World", "hello world"},
		{"collapses whitespace", "  one\t\ttwo \n\n three  ", "one two three"},
		{"keeps punctuation", `It's "fine", isn't it? Yes! OK.`, `it's "fine", isn't it? yes! ok.`},
		{"drops symbols", "50% off #deal (today) @ 9:30", "50 off deal today 930"},
		{"drops non-ascii letters", "Café—au lait", "cafau lait"},
		{"no double space after removal", "a é b", "a b"},
		{"leading removed rune", "¿Qué pasa?", "qu pasa?"},
		{"unicode spaces", "a\u00a0\u2003b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeNullable(t *testing.T) {
	if got := NormalizeNullable(nil); got != "" {
		t.Errorf("NormalizeNullable(nil) = %q, want empty", got)
	}
	s := " Hi  There "
	if got := NormalizeNullable(&s); got != "hi there" {
		t.Errorf("NormalizeNullable(%q) = %q", s, got)
	}
}

func TestNormalizeIdempotentAndCharset(t *testing.T) {
	inputs := []string{
		"",
		"Plain sentence.",
		"  Mixed\tCASE\nand   SPACES  ",
		"Ünïcödé ‘quotes’ and “doubles” – dashes…",
		"a é b é c",
		"tabs\t\t\tand\r\nnewlines",
		"!!!???...,,,",
		"émoji 🎉 party 🎉",
	}

	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
		if strings.Contains(once, "  ") {
			t.Errorf("Normalize(%q) = %q contains a double space", in, once)
		}
		if strings.TrimSpace(once) != once {
			t.Errorf("Normalize(%q) = %q is not trimmed", in, once)
		}
		for _, r := range once {
			if r != ' ' && !keep(r) {
				t.Errorf("Normalize(%q) = %q contains %q", in, once, r)
			}
			if r >= 'A' && r <= 'Z' {
				t.Errorf("Normalize(%q) = %q contains upper case %q", in, once, r)
			}
		}
	}
}
