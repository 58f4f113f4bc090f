// Package version computes the date-based version string stamped into the
// extension manifest.
package version

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/mod/semver"
)

// DefaultTimezone is used when the pipeline does not configure one.
const DefaultTimezone = "America/Los_Angeles"

// Source describes where a resolved version came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceDate     Source = "date"
)

// Info is a resolved build version.
type Info struct {
	Version string
	Source  Source
}

// ForDate formats t as YYYY.M.DDHH. The month is not padded and the hour is
// padded to two digits, so 2026-10-18 15:04 becomes 2026.10.1815.
func ForDate(t time.Time) string {
	return fmt.Sprintf("%d.%d.%d%02d", t.Year(), int(t.Month()), t.Day(), t.Hour())
}

// Validate reports whether v is usable as an extension version.
func Validate(v string) error {
	if !semver.IsValid("v" + v) {
		return fmt.Errorf("version %q is not a valid semantic version", v)
	}
	return nil
}

// Resolve returns the override from the environment variable envName when it
// is set and non-empty, otherwise the date-based version for now in the
// given timezone.
func Resolve(envName, timezone string, now time.Time) (Info, error) {
	if envName != "" {
		if v := os.Getenv(envName); v != "" {
			if err := Validate(v); err != nil {
				return Info{}, fmt.Errorf("invalid %s: %w", envName, err)
			}
			return Info{Version: v, Source: SourceOverride}, nil
		}
	}

	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Info{}, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	return Info{Version: ForDate(now.In(loc)), Source: SourceDate}, nil
}
