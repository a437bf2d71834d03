package types

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// Version is a parsed store content version with a total ordering.
// The zero value is not valid; use ParseVersion or MustVersion.
type Version struct {
	v *semver.Version
}

// ParseVersion parses a version string such as "2.3.0". Loose forms
// ("2.3", "v2.3.0") are accepted and normalized.
func ParseVersion(s string) (Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", s, err)
	}
	return Version{v: v}, nil
}

// MustVersion is ParseVersion for compile-time constants. It panics on error.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return v.v == nil
}

// Compare returns -1, 0 or 1. A zero Version sorts before every parsed one.
func (v Version) Compare(o Version) int {
	switch {
	case v.v == nil && o.v == nil:
		return 0
	case v.v == nil:
		return -1
	case o.v == nil:
		return 1
	}
	return v.v.Compare(o.v)
}

// Less reports v < o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// String returns the normalized form (major.minor.patch[-pre]).
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}
