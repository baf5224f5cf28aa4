// SPDX-License-Identifier: ice License 1.0

package model

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

type (
	Event struct {
		nostr.Event
	}
)

var ErrInvalidSignature = errors.New("invalid event signature")

func (e *Event) GetTag(tagName string) Tag {
	for _, tag := range e.Tags {
		if tag.Key() == tagName {
			return tag
		}
	}

	return nil
}

// AddressableIdentifier returns the "d" tag value of an addressable event,
// or the empty string when the event carries none.
func (e *Event) AddressableIdentifier() string {
	if tag := e.GetTag(TagIdentifier); tag != nil {
		return tag.Value()
	}

	return ""
}

// IsEncrypted reports whether the event content is marked as NIP-44 encrypted
// via an ["enc","nip44"] tag.
func (e *Event) IsEncrypted() bool {
	if tag := e.GetTag(TagEncryption); tag != nil {
		return tag.Value() == EncryptionNIP44
	}

	return false
}

// Address renders the NIP-01 addressable-event coordinate `kind:pubkey:dtag`.
func (e *Event) Address() string {
	return strconv.Itoa(e.Kind) + ":" + e.PubKey + ":" + e.AddressableIdentifier()
}

func (e *Event) Sign(privateKey string) error {
	if e.Tags == nil {
		e.Tags = make(Tags, 0)
	}

	return errors.Wrap(e.Event.Sign(privateKey), "failed to sign event")
}

func (e *Event) Validate() error {
	if e.ID != e.Event.GetID() {
		return errors.Wrapf(ErrWrongEventParams, "id %q does not match the serialized event", e.ID)
	}
	ok, err := e.Event.CheckSignature()
	if err != nil {
		return errors.Wrap(err, "failed to check event signature")
	}
	if !ok {
		return ErrInvalidSignature
	}

	return nil
}

// NewDeletion builds an unsigned NIP-09 tombstone for the given event,
// carrying both the "e" reference and the "k" kind hint.
func NewDeletion(eventID string, kind Kind) *Event {
	return &Event{Event: nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      KindDeletion,
		Tags: Tags{
			{TagEvent, eventID},
			{TagKind, strconv.Itoa(kind)},
		},
	}}
}

// ParseProfileMetadata decodes the stringified-JSON content of a kind-0
// event. Relays are untrusted, so a kind-0 whose content is not a JSON
// object is rejected rather than surfaced as an empty profile.
func ParseProfileMetadata(ev *Event) (*ProfileMetadataContent, error) {
	if ev.Kind != KindProfileMetadata {
		return nil, errors.Wrapf(ErrWrongEventParams, "event %v (kind %v) is not profile metadata", ev.ID, ev.Kind)
	}
	content := gjson.Parse(ev.Content)
	if !content.IsObject() {
		return nil, errors.Wrapf(ErrWrongEventParams, "profile metadata %v content is not an object", ev.ID)
	}

	return &ProfileMetadataContent{
		Name:    content.Get("name").Str,
		About:   content.Get("about").Str,
		Picture: content.Get("picture").Str,
	}, nil
}

// DedupeNewest collapses events by identity, keeping the highest createdAt per
// key. Addressable kinds (3xxxx) are keyed by their address, everything else
// by event id. Relays give no cross-relay ordering, so "latest" must be
// computed by the consumer.
func DedupeNewest(events []*Event) []*Event {
	byKey := make(map[string]*Event, len(events))
	order := make([]string, 0, len(events))
	for _, ev := range events {
		key := ev.ID
		if ev.Kind >= 30_000 && ev.Kind < 40_000 {
			key = ev.Address()
		}
		known, found := byKey[key]
		if !found {
			order = append(order, key)
		}
		if !found || ev.CreatedAt > known.CreatedAt {
			byKey[key] = ev
		}
	}

	result := make([]*Event, 0, len(byKey))
	for _, key := range order {
		result = append(result, byKey[key])
	}

	return result
}
