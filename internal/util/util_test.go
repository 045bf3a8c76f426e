package util

import "testing"

func TestMaskToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"shpat_0123456789abcdef", "shpa...cdef"},
		{"abcdef", "ab...ef"},
		{"abcd", "a...d"},
		{"ab", "ab"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskToken(tc.in); got != tc.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"no sensitive keys", "page=1&page_size=20", "page=1&page_size=20"},
		{"session token", "id_token=abcdef0123&page=1", "id_token=abcd...0123&page=1"},
		{"hmac", "hmac=0011223344556677", "hmac=0011...6677"},
		{"short secret", "secret=ab", "secret=ab"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := MaskSensitiveQuery(tc.in); got != tc.want {
				t.Errorf("MaskSensitiveQuery(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
