package server

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/giantswarm/oauth2-core/storage"
)

// RedirectMatchMode selects how a supplied redirect URI is compared with the
// one registered for the client.
type RedirectMatchMode string

const (
	// RedirectMatchPrefix accepts a supplied URI that starts with the
	// registered one, ignoring case.
	RedirectMatchPrefix RedirectMatchMode = "prefix"

	// RedirectMatchExact requires the supplied URI to equal the registered one.
	RedirectMatchExact RedirectMatchMode = "exact"
)

var (
	// ErrRedirectURIMissing is returned when neither a registered nor a
	// supplied redirect URI exists
	ErrRedirectURIMissing = errors.New("redirect URI is missing")

	// ErrRedirectURIMismatch is returned when the supplied redirect URI does
	// not match the registered one
	ErrRedirectURIMismatch = errors.New("redirect URI does not match the registered redirect URI")
)

// MatchRedirectURI reconciles the client's registered redirect URI with the
// one supplied in the request and returns the URI to use: the supplied one
// when present, otherwise the registered one.
func MatchRedirectURI(stored, supplied string, mode RedirectMatchMode) (string, error) {
	switch {
	case stored == "" && supplied == "":
		return "", ErrRedirectURIMissing
	case supplied == "":
		return stored, nil
	case stored == "":
		return supplied, nil
	}

	if mode == RedirectMatchExact {
		if supplied != stored {
			return "", ErrRedirectURIMismatch
		}
		return supplied, nil
	}

	if !hasPrefixFoldASCII(supplied, stored) {
		return "", ErrRedirectURIMismatch
	}
	return supplied, nil
}

// hasPrefixFoldASCII reports whether s starts with prefix, comparing bytes
// and folding only ASCII letters
func hasPrefixFoldASCII(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if lowerASCII(s[i]) != lowerASCII(prefix[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// errRedirectURIInvalid means the supplied redirect URI is not an acceptable URI
var errRedirectURIInvalid = errors.New("redirect URI is invalid")

// resolveRedirectURI checks the format of the supplied URI and reconciles it
// with the one registered for client.
func resolveRedirectURI(client *storage.Client, supplied string, mode RedirectMatchMode) (string, error) {
	if supplied != "" && !ValidRedirectURI(supplied) {
		return "", errRedirectURIInvalid
	}
	var stored string
	if client != nil {
		stored = client.RedirectURI
	}
	return MatchRedirectURI(stored, supplied, mode)
}

// AppendQuery adds params to the query of uri, keeping its existing parameters
func AppendQuery(uri string, params url.Values) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
