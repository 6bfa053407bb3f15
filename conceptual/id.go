package conceptual

import (
	"regexp"
	"strings"
)

// CatID identifies the cat whose positions are being tracked.
type CatID string

// DefaultCatID is used when no cat is named, e.g. piping positions into the CLI.
const DefaultCatID CatID = "anonymous"

var invalidCatIDChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// NewCatID sanitizes a free-form name into a CatID:
// lowercased, whitespace and anything else funky becomes a dash.
// An empty name yields the DefaultCatID.
func NewCatID(name string) CatID {
	s := strings.ToLower(strings.TrimSpace(name))
	s = invalidCatIDChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return DefaultCatID
	}
	return CatID(s)
}

func (c CatID) String() string {
	return string(c)
}

func (c CatID) Empty() bool {
	return c == ""
}
