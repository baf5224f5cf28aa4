// SPDX-License-Identifier: ice License 1.0

package model

// KindAllowed reports whether an event kind is within the kind set requested
// by any of the filters. Filters without explicit kinds allow everything.
// Relays are untrusted: events outside the requested kinds are rejected
// client-side.
func KindAllowed(filters Filters, kind Kind) bool {
	if len(filters) == 0 {
		return true
	}
	for i := range filters {
		if len(filters[i].Kinds) == 0 {
			return true
		}
		for _, allowed := range filters[i].Kinds {
			if allowed == kind {
				return true
			}
		}
	}

	return false
}

// WithUntil returns a copy of the filter with the upper time bound and limit
// applied, leaving the original untouched.
func WithUntil(filter Filter, until *Timestamp, limit int) Filter {
	filter.Until = until
	filter.Limit = limit

	return filter
}

// ArticleFilter lists long-form articles of a single author, newest first.
func ArticleFilter(pubkey string) Filter {
	return Filter{
		Kinds:   []int{KindArticle},
		Authors: []string{pubkey},
	}
}
