package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "shorter than max", input: "short", maxLen: 10, want: "short"},
		{name: "exact length", input: "exact", maxLen: 5, want: "exact"},
		{name: "truncated", input: "0123456789abcdef", maxLen: 8, want: "01234567"},
		{name: "zero", input: "anything", maxLen: 0, want: ""},
		{name: "negative", input: "anything", maxLen: -1, want: ""},
		{name: "empty input", input: "", maxLen: 4, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestJoinScope(t *testing.T) {
	tests := []struct {
		scope []string
		want  string
	}{
		{scope: nil, want: ""},
		{scope: []string{"read"}, want: "read"},
		{scope: []string{"read", "write"}, want: "read write"},
	}
	for _, tt := range tests {
		if got := JoinScope(tt.scope); got != tt.want {
			t.Errorf("JoinScope(%v) = %q, want %q", tt.scope, got, tt.want)
		}
	}
}
