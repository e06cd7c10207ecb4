package extract

import (
	"strings"
	"unicode/utf8"

	"contact-scraper/pkg/models"
)

const (
	minLabelLength = 4 // Labels of 3 characters or fewer are navigation noise
	maxLabels      = 3
)

// Associate maps every email to the same entity string for the page: the first
// three usable labels joined with ", ", or the placeholder when none are usable.
// Page-level only, it does not attempt to pair an email with its nearest label.
func Associate(labels []string, emails map[string]struct{}) map[string]string {
	out := make(map[string]string, len(emails))
	if len(emails) == 0 {
		return out
	}

	value := models.NoEntityPlaceholder
	if usable := FilterLabels(labels); len(usable) > 0 {
		if len(usable) > maxLabels {
			usable = usable[:maxLabels]
		}
		value = strings.Join(usable, ", ")
	}

	for email := range emails {
		out[email] = value
	}
	return out
}

// FilterLabels trims labels and keeps those longer than three characters, in order.
// Length counts runes, so "Zoë" is three characters.
func FilterLabels(labels []string) []string {
	usable := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if utf8.RuneCountInString(l) >= minLabelLength {
			usable = append(usable, l)
		}
	}
	return usable
}
