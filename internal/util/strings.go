package util

import "strings"

// SafeTruncate truncates s to at most maxLen bytes without panicking.
// It is used to log a recognisable prefix of codes and tokens without
// leaking the full credential. A negative maxLen yields "".
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// JoinScope renders a scope list in its wire form (space delimited).
func JoinScope(scope []string) string {
	return strings.Join(scope, " ")
}
