package filter_test

import (
	"testing"

	"dupvault/internal/filter"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"100":   100,
		"100B":  100,
		"1K":    1024,
		"1M":    1024 * 1024,
		"2G":    2 * 1024 * 1024 * 1024,
		"1.5M":  int64(1.5 * 1024 * 1024),
	}
	for in, want := range cases {
		got, err := filter.ParseSize(in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseSize(%q) = %d, want %d", in, got, want)
		}
	}

	if _, err := filter.ParseSize(""); err == nil {
		t.Fatalf("expected error for empty string")
	}
}
