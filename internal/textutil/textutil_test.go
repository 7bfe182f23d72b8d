package textutil

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Prefers dark mode.", "prefers dark mode"},
		{"prefers   DARK mode", "prefers dark mode"},
		{"  Trim me!  ", "trim me"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExcerptTruncatesOnRunes(t *testing.T) {
	if got := Excerpt("héllo wörld", 5); got != "héllo..." {
		t.Errorf("got %q", got)
	}
	if got := Excerpt("short", 20); got != "short" {
		t.Errorf("got %q", got)
	}
}

func TestExcerptFirstLineOnly(t *testing.T) {
	if got := Excerpt("first line\nsecond line", 50); got != "first line" {
		t.Errorf("got %q", got)
	}
}
