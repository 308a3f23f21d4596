// Package dateutil fixes up date strings that RSS feeds emit with non-English
// locale tokens before they reach a date parser expecting RFC-822 English.
package dateutil

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// replacements maps locale day/month tokens to the three-letter English
// abbreviations date parsers expect. Multi-character tokens (十一月, 十二月)
// must come before their single-character prefixes.
var replacements = []struct{ from, to string }{
	{"週日", "Sun"},
	{"週一", "Mon"},
	{"週二", "Tue"},
	{"週三", "Wed"},
	{"週四", "Thu"},
	{"週五", "Fri"},
	{"週六", "Sat"},
	{"十一月", "Nov"},
	{"十二月", "Dec"},
	{"一月", "Jan"},
	{"二月", "Feb"},
	{"三月", "Mar"},
	{"四月", "Apr"},
	{"五月", "May"},
	{"六月", "Jun"},
	{"七月", "Jul"},
	{"八月", "Aug"},
	{"九月", "Sep"},
	{"十月", "Oct"},
}

// Normalize replaces every known locale token in raw with its English
// abbreviation. Strings without any known token pass through unchanged.
func Normalize(raw string) string {
	for _, r := range replacements {
		raw = strings.ReplaceAll(raw, r.from, r.to)
	}
	return raw
}

// ParsePubDate normalizes raw and parses it leniently. It is the fallback for
// date strings the feed parser could not interpret on its own.
func ParsePubDate(raw string) (time.Time, error) {
	return dateparse.ParseAny(Normalize(raw))
}
