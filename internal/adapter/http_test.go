package adapter

import (
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"", 0},
		{"120", 120 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
		{"abc", 0},
	}
	for _, tc := range tests {
		if got := parseRetryAfter(tc.input); got != tc.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
