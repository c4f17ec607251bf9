package chunking

import (
	"testing"
	"unicode/utf8"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "only whitespace", in: " \n\t\r ", want: ""},
		{name: "collapses runs", in: "a  b\n\nc\t\td", want: "a b c d"},
		{name: "trims ends", in: "\n  revenue grew  \n", want: "revenue grew"},
		{name: "unicode spaces", in: "x  y", want: "x y"},
		{name: "ascii separators", in: "a\x1cb\x1d\x1ec\x1f", want: "a b c"},
		{name: "separator next to space", in: "rows\x1e\nnext", want: "rows next"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotentAndNeverGrows(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"  lead and trail  ",
		"line one\nline two\r\n\r\nline three",
		"tabs\t\tand\vvertical\fform feeds",
		"Ünïcödé separators　too",
		"record\x1eunit\x1fgroup\x1dfile\x1c",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
		if utf8.RuneCountInString(once) > utf8.RuneCountInString(in) {
			t.Fatalf("Normalize grew %q to %q", in, once)
		}
	}
}
