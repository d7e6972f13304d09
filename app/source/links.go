package source

import (
	"regexp"
	"strings"

	"github.com/lysyi3m/ae-comb/app/period"
)

var monthYearPattern = regexp.MustCompile(
	`\b(January|February|March|April|May|June|July|August|September|October|November|December) (\d{4})`)

// Link is a candidate release discovered on an index page.
type Link struct {
	Text       string
	URL        string
	Month      period.MonthYear
	FiscalYear period.FiscalYear
}

// IsReleaseLink reports whether anchor text announces a monthly tabular release.
// Both markers are matched case-sensitively.
func IsReleaseLink(text, linkMarker, formatMarker string) bool {
	return strings.Contains(text, linkMarker) && strings.Contains(text, formatMarker)
}

// ParseLinkText extracts the first "Month YYYY" occurrence from anchor text.
func ParseLinkText(text string) (period.MonthYear, bool) {
	match := monthYearPattern.FindStringSubmatch(text)
	if match == nil {
		return period.MonthYear{}, false
	}

	m, err := period.FromNames(match[1], match[2])
	if err != nil {
		return period.MonthYear{}, false
	}
	return m, true
}

// normalizeText collapses runs of whitespace the way the anchor text renders.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
