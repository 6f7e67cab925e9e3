package content

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version defaults applied when an artifact omits the field.
const (
	DefaultFromVersion = "5.0.0"
	DefaultToVersion   = "99.99.99"
)

// Version is a semver triple used for fromversion/toversion windows.
// Comparison is numeric per component.
type Version struct {
	v *semver.Version
}

// ParseVersion parses a semver string. Two-component values ("6.5") are
// accepted and padded, matching what content authors actually write.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", s, err)
	}
	return Version{v: v}, nil
}

// VersionOrDefault parses s, falling back to def when s is empty or invalid.
func VersionOrDefault(s, def string) Version {
	if v, err := ParseVersion(s); err == nil {
		return v
	}
	v, err := ParseVersion(def)
	if err != nil {
		panic(fmt.Sprintf("invalid default version %q: %v", def, err))
	}
	return v
}

// String returns the canonical dotted form, or "" for the zero value.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// IsZero reports whether v is the unset zero value.
func (v Version) IsZero() bool { return v.v == nil }

// Compare returns -1, 0 or 1 ordering v against o. The zero value orders
// below every set version and equal to itself.
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
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// VersionRange is a [from, to] validity window.
type VersionRange struct {
	From Version
	To   Version
}

// NewVersionRange builds a window from raw strings, applying the content
// defaults for missing values.
func NewVersionRange(from, to string) VersionRange {
	return VersionRange{
		From: VersionOrDefault(from, DefaultFromVersion),
		To:   VersionOrDefault(to, DefaultToVersion),
	}
}

// Valid reports from <= to.
func (r VersionRange) Valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.From.Compare(r.To) <= 0
}

// Overlaps reports whether the two windows share at least one version. An
// unset bound is treated as unbounded on that side, so a fully unset window
// overlaps everything.
func (r VersionRange) Overlaps(o VersionRange) bool {
	if !r.From.IsZero() && !o.To.IsZero() && r.From.Compare(o.To) > 0 {
		return false
	}
	if !o.From.IsZero() && !r.To.IsZero() && o.From.Compare(r.To) > 0 {
		return false
	}
	return true
}
