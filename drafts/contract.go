// SPDX-License-Identifier: ice License 1.0

package drafts

import (
	"sync"
	stdlibtime "time"

	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/sync/singleflight"

	"github.com/ice-blockchain/longform/model"
	"github.com/ice-blockchain/longform/relay"
	"github.com/ice-blockchain/longform/signer"
)

// Public API.

type (
	Config struct {
		StorePath    string              `yaml:"storePath"`
		Relays       []string            `yaml:"relays"`
		SyncInterval stdlibtime.Duration `yaml:"syncInterval"`
	}

	// Draft is owned exclusively by the local store. A synced copy is
	// mirrored into signed kind-30024 events, but the draft itself never
	// leaves the client unencrypted. LastSaved (unix millis) is the logical
	// clock used for conflict resolution.
	Draft struct {
		ID            string `json:"id"`
		Content       string `json:"content"`
		LastSaved     int64  `json:"lastSavedMillis"`
		LinkedBlog    string `json:"linkedBlog,omitempty"`
		RemoteEventID string `json:"remoteEventId,omitempty"`
	}

	Store interface {
		GetDraft(id string) (*Draft, error)
		SaveDraft(draft *Draft) error
		DeleteDraft(id string) error
		ListDrafts() ([]*Draft, error)
	}

	// CheckpointStore keeps the per-(relay, pubkey) watermark below which
	// all relevant events are assumed processed. Advance never regresses:
	// checkpoint(t+1) >= checkpoint(t) always.
	CheckpointStore interface {
		Checkpoint(relayURL, pubKey string) (model.Timestamp, error)
		Advance(relayURL, pubKey string, watermark model.Timestamp) error
		Reset(pubKey string) error
	}

	// Decision is the outcome of the last-write-wins merge.
	Decision uint8

	// Engine reconciles the local draft store against N relays
	// incrementally: checkpointed pulls of encrypted draft/tombstone
	// events, decrypt + last-write-wins merge, checkpointed push on
	// publish.
	Engine struct {
		store       Store
		checkpoints CheckpointStore
		signer      *signer.Service
		client      *relay.Client
		publisher   *relay.Publisher
		relays      []string

		// Overlapping cycles for the same (relay, pubkey) would break the
		// monotonic watermark, so they are single-flighted per key.
		cycles singleflight.Group
	}

	// DB is the goleveldb-backed implementation of both Store and
	// CheckpointStore.
	DB struct {
		ldb *leveldb.DB

		advanceMx sync.Mutex
	}
)

const (
	DecisionKeep Decision = iota
	DecisionReplace
)

const DefaultSyncInterval = 30 * stdlibtime.Second
