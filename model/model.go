// SPDX-License-Identifier: ice License 1.0

package model

import (
	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
)

type (
	TagMap    = nostr.TagMap
	Tag       = nostr.Tag
	Tags      = nostr.Tags
	Timestamp = nostr.Timestamp
	Kind      = int
	Filter    = nostr.Filter
	Filters   = nostr.Filters

	EventReference interface {
		Filter() Filter
	}
	AddressableEventReference struct {
		PubKey string
		DTag   string
		Kind   int
	}
	PlainEventReference struct {
		EventIDs []string
	}

	ProfileMetadataContent struct {
		Name    string `json:"name,omitempty"`
		About   string `json:"about,omitempty"`
		Picture string `json:"picture,omitempty"`
	}
)

var (
	ErrWrongEventParams = errors.New("wrong event params")
)

const (
	KindProfileMetadata = 0
	KindTextNote        = 1
	KindFollowList      = 3
	KindDeletion        = 5
	KindComment         = 1111
	KindZapRequest      = 9734
	KindHighlight       = 9802
	KindInterestList    = 10_015
	KindBookmarkSet     = 30_003
	KindArticle         = 30_023
	KindDraft           = 30_024
)

const (
	TagIdentifier = "d"
	TagEvent      = "e"
	TagAddress    = "a"
	TagKind       = "k"
	TagHashtag    = "t"
	TagEncryption = "enc"
)

// EncryptionNIP44 is the "enc" tag value marking NIP-44-v2 encrypted content.
const EncryptionNIP44 = "nip44"
