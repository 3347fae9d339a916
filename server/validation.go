package server

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// Parameter syntax from RFC 6749 Appendix A.
var (
	// VSCHAR = %x20-7E
	vscharPattern = regexp.MustCompile(`^[\x20-\x7E]+$`)

	// scope = scope-token *( SP scope-token ), scope-token = 1*NQCHAR
	scopePattern = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]+( [\x21\x23-\x5B\x5D-\x7E]+)*$`)

	// UNICODECHARNOCRLF
	unicodeNoCRLFPattern = regexp.MustCompile(`^[\x09\x20-\x7E\x{80}-\x{D7FF}\x{E000}-\x{FFFD}\x{10000}-\x{10FFFF}]+$`)
)

// DangerousSchemes lists URI schemes that are never accepted as redirect targets
var DangerousSchemes = []string{"javascript", "data", "file", "vbscript", "about"}

// ValidVSChars reports whether s is non-empty and consists of visible ASCII
// characters and spaces. Used for client_id, code, state and refresh_token.
func ValidVSChars(s string) bool {
	return vscharPattern.MatchString(s)
}

// ValidScopeParam reports whether s is a well-formed scope parameter
func ValidScopeParam(s string) bool {
	return scopePattern.MatchString(s)
}

// ValidCredential reports whether s is a usable username or password:
// not blank and free of CR and LF.
func ValidCredential(s string) bool {
	return strings.TrimSpace(s) != "" && unicodeNoCRLFPattern.MatchString(s)
}

// ValidRedirectURI reports whether s is an absolute URI without a fragment
// whose scheme is not one of DangerousSchemes.
func ValidRedirectURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() || u.Fragment != "" || strings.Contains(s, "#") {
		return false
	}
	return !slices.Contains(DangerousSchemes, strings.ToLower(u.Scheme))
}
