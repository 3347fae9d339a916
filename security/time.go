package security

import "time"

// IsExpired reports whether an entity that expires at expiresAt is no longer
// usable at now. The entity stays valid up to and including its expiry
// instant; gracePeriod extends that window to absorb clock skew between
// the nodes that wrote and read the record.
//
// A zero expiresAt never expires.
func IsExpired(expiresAt, now time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return expiresAt.Add(gracePeriod).Before(now)
}
