// SPDX-License-Identifier: ice License 1.0

package model

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseEventReference extracts the events referenced by the given tags:
// "e" tags become one plain reference, "a" tags become addressable
// references. Deletion (kind 5) handling relies on this to map tombstones
// back to the events they bury.
func ParseEventReference(tags Tags) ([]EventReference, error) {
	plainEvents := make([]string, 0, len(tags))
	refs := []EventReference{}
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == TagEvent {
			plainEvents = append(plainEvents, tag.Value())
		} else if len(tag) >= 2 && tag[0] == TagAddress {
			val := strings.Split(tag.Value(), ":")
			if len(val) != 3 {
				return nil, errors.Errorf("failed to parse addressable event reference, len != 3: %v", val)
			}
			kind, err := strconv.ParseInt(val[0], 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse addressable event reference %v", val)
			}
			refs = append(refs, &AddressableEventReference{
				Kind:   int(kind),
				PubKey: val[1],
				DTag:   val[2],
			})
		}
	}
	if len(plainEvents) > 0 {
		refs = append(refs, &PlainEventReference{EventIDs: plainEvents})
	}

	return refs, nil
}

func (e *PlainEventReference) Filter() Filter {
	return Filter{
		IDs: e.EventIDs,
	}
}

func (e *AddressableEventReference) Filter() Filter {
	f := Filter{
		Kinds:   []int{e.Kind},
		Authors: []string{e.PubKey},
	}
	if e.DTag != "" {
		f.Tags = TagMap{TagIdentifier: {e.DTag}}
	}

	return f
}
