// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"strings"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/ice-blockchain/longform/model"
)

func NewRegistry(ctx context.Context, client *Client, window stdlibtime.Duration, maxBatch int) *Registry {
	if window <= 0 {
		window = DefaultBatchWindow
	}
	if maxBatch <= 0 {
		maxBatch = DefaultBatchMaxKeys
	}

	return &Registry{
		ctx:      ctx,
		client:   client,
		window:   window,
		maxBatch: maxBatch,
		batchers: make(map[string]*Batcher),
	}
}

// Profiles returns the batcher coalescing npub lookups against the given
// relay set. Batcher creation is idempotent per (class, relay set) key, so
// concurrent callers share one window and one round trip.
func (r *Registry) Profiles(relays []string) *Batcher {
	return r.batcher(lookupProfile, relays)
}

// Notes returns the batcher coalescing nevent/note lookups against the given
// relay set.
func (r *Registry) Notes(relays []string) *Batcher {
	return r.batcher(lookupNote, relays)
}

func (r *Registry) batcher(class lookupClass, relays []string) *Batcher {
	key := class.String() + "|" + strings.Join(relays, ",")
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, found := r.batchers[key]; found {
		return b
	}
	b := &Batcher{
		ctx:      r.ctx,
		client:   r.client,
		relays:   relays,
		class:    class,
		window:   r.window,
		maxBatch: r.maxBatch,
		pending:  make(map[string][]chan *model.Event),
	}
	r.batchers[key] = b

	return b
}

func (c lookupClass) String() string {
	if c == lookupProfile {
		return "profiles"
	}

	return "notes"
}

// Fetch resolves one bech32 key (npub for profiles, nevent/note for notes).
// Calls landing within the same window ride a single relay round trip; keys
// that cannot be decoded or that no relay knows about resolve to nil.
func (b *Batcher) Fetch(ctx context.Context, key string) (*model.Event, error) {
	waiter := make(chan *model.Event, 1)

	b.mu.Lock()
	b.pending[key] = append(b.pending[key], waiter)
	if b.timer == nil {
		b.timer = stdlibtime.AfterFunc(b.window, b.flush)
	}
	full := len(b.pending) >= b.maxBatch
	if full {
		b.timer.Stop()
	}
	b.mu.Unlock()

	if full {
		go b.flush()
	}

	select {
	case ev := <-waiter:
		return ev, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "batched lookup cancelled")
	}
}

func (b *Batcher) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string][]chan *model.Event)
	b.timer = nil
	b.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	decoded := make(map[string]string, len(pending)) // bech32 key -> hex id
	hexSet := make(map[string]struct{}, len(pending))
	for key := range pending {
		hexID, err := decodeLookupKey(b.class, key)
		if err != nil {
			continue
		}
		decoded[key] = hexID
		hexSet[hexID] = struct{}{}
	}

	byHex := make(map[string]*model.Event, len(hexSet))
	if len(hexSet) > 0 {
		res := b.client.QueryAll(b.ctx, b.relays, b.filter(hexSet))
		for _, ev := range res.Events {
			hexID := ev.ID
			if b.class == lookupProfile {
				if _, pErr := model.ParseProfileMetadata(ev); pErr != nil {
					// Junk kind-0 content from a non-conforming relay.
					continue
				}
				hexID = ev.PubKey
			}
			if known, found := byHex[hexID]; !found || ev.CreatedAt > known.CreatedAt {
				byHex[hexID] = ev
			}
		}
	}

	for key, waiters := range pending {
		var value *model.Event
		if hexID, found := decoded[key]; found {
			value = byHex[hexID]
		}
		for _, waiter := range waiters {
			waiter <- value
		}
	}
}

func (b *Batcher) filter(hexSet map[string]struct{}) model.Filter {
	ids := make([]string, 0, len(hexSet))
	for hexID := range hexSet {
		ids = append(ids, hexID)
	}
	if b.class == lookupProfile {
		return model.Filter{Kinds: []int{model.KindProfileMetadata}, Authors: ids}
	}

	return model.Filter{IDs: ids}
}

func decodeLookupKey(class lookupClass, key string) (string, error) {
	prefix, value, err := nip19.Decode(key)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode lookup key %v", key)
	}
	switch {
	case class == lookupProfile && prefix == "npub":
		return value.(string), nil
	case class == lookupNote && prefix == "note":
		return value.(string), nil
	case class == lookupNote && prefix == "nevent":
		return value.(nostr.EventPointer).ID, nil
	}

	return "", errors.Errorf("unsupported lookup key %v for %v", key, class.String())
}
