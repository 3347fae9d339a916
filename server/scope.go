package server

import (
	"errors"
	"slices"
	"strings"
)

var (
	// errScopeUnknown means a requested scope is not supported by the server
	errScopeUnknown = errors.New("scope is not supported")
	// errScopeNotAuthorized means a requested scope exceeds the authorized set
	errScopeNotAuthorized = errors.New("scope is not authorized")
)

// ParseScope splits a space-delimited scope parameter into its tokens.
// Duplicates are dropped; an empty parameter yields nil.
func ParseScope(scope string) []string {
	var tokens []string
	for _, t := range strings.Fields(scope) {
		if !slices.Contains(tokens, t) {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// ScopeSubset reports whether every requested scope is in allowed.
// An empty request is a subset of anything.
func ScopeSubset(requested, allowed []string) bool {
	for _, s := range requested {
		if !slices.Contains(allowed, s) {
			return false
		}
	}
	return true
}

// ValidateScope checks requested against the supported universe and the
// scope the resource owner authorized. It returns errScopeUnknown or
// errScopeNotAuthorized; callers turn these into protocol errors with the
// description their flow requires.
func ValidateScope(requested, supported, authorized []string) error {
	if !ScopeSubset(requested, supported) {
		return errScopeUnknown
	}
	if !ScopeSubset(requested, authorized) {
		return errScopeNotAuthorized
	}
	return nil
}
