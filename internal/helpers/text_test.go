package helpers

import (
	"testing"
	"unicode/utf8"
)

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abcdé fghij", 5, "abcdé"},
		{"abcdé fghij", 4, "abcd"},
		{"ünïcødé", 3, "ünï"},
		{"short", 10, "short"},
		{"keep", 0, "keep"},
		{"", 3, ""},
	}
	for _, tc := range cases {
		got := TruncateRunes(tc.in, tc.n)
		if got != tc.want {
			t.Fatalf("TruncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("TruncateRunes(%q, %d) produced invalid utf-8 %q", tc.in, tc.n, got)
		}
	}
}
