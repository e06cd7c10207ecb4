// Package extract pulls contact details out of rendered page text and pairs
// emails with the entity names found on the same page.
package extract

import (
	"regexp"
	"sort"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	// Parentheses and separators are optional and may be mixed: (602) 555-1234, 602.555.1234, 6025551234
	phonePattern = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
)

// ExtractEmails returns the set of email-shaped substrings in text, byte-exact.
func ExtractEmails(text string) map[string]struct{} {
	return matchSet(emailPattern, text)
}

// ExtractPhones returns the set of phone-shaped substrings in text, byte-exact.
// No normalization: "(602) 555-1234" and "602-555-1234" are distinct.
func ExtractPhones(text string) map[string]struct{} {
	return matchSet(phonePattern, text)
}

func matchSet(re *regexp.Regexp, text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, m := range re.FindAllString(text, -1) {
		set[m] = struct{}{}
	}
	return set
}

// SortedKeys returns the members of set in ascending order
func SortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
