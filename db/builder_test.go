package db

import "testing"

func TestEscapeLike(t *testing.T) {
	cases := []struct{ in, want string }{
		{"tokyo", "tokyo"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`back\sl`, `back\\sl`},
		{"東京都", "東京都"},
	}
	for _, tc := range cases {
		if got := EscapeLike(tc.in); got != tc.want {
			t.Errorf("EscapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
