// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"log"

	"github.com/nbd-wtf/go-nostr"

	"github.com/ice-blockchain/longform/model"
)

func NewResolver(client *Client, activeRelay string, configured []string) *Resolver {
	return &Resolver{client: client, active: activeRelay, configured: configured}
}

// ResolveAddress resolves a single addressable event (kind, pubkey, d-tag).
// Relay hints embedded in the address are probed first, then the active
// relay, then the remaining configured ones, one at a time, stopping at the
// first relay that has it. Returns nil when the whole list is exhausted.
func (r *Resolver) ResolveAddress(ctx context.Context, pointer nostr.EntityPointer) *model.Event {
	filter := model.Filter{
		Kinds:   []int{pointer.Kind},
		Authors: []string{pointer.PublicKey},
		Tags:    model.TagMap{model.TagIdentifier: {pointer.Identifier}},
		Limit:   1,
	}

	return r.probe(ctx, pointer.Relays, filter)
}

// ResolveProfile resolves the latest kind-0 metadata event of a pubkey with
// the same sequential-with-fallback policy.
func (r *Resolver) ResolveProfile(ctx context.Context, pubkey string, hints []string) *model.Event {
	filter := model.Filter{
		Kinds:   []int{model.KindProfileMetadata},
		Authors: []string{pubkey},
		Limit:   1,
	}

	return r.probe(ctx, hints, filter)
}

func (r *Resolver) probe(ctx context.Context, hints []string, filter model.Filter) *model.Event {
	for _, relayURL := range probeOrder(hints, r.active, r.configured) {
		res := r.client.Query(ctx, relayURL, filter)
		if res.Err != nil {
			log.Printf("WARN: failed to probe relay %v: %v", relayURL, res.Err)

			continue
		}
		if events := model.DedupeNewest(res.Events); len(events) > 0 {
			newest := events[0]
			for _, ev := range events[1:] {
				if ev.CreatedAt > newest.CreatedAt {
					newest = ev
				}
			}

			return newest
		}
	}

	return nil
}

// probeOrder builds the ordered probe list: address hints, then the active
// relay, then everything else configured, first-seen order preserved,
// duplicates removed.
func probeOrder(hints []string, active string, configured []string) []string {
	seen := make(map[string]struct{}, len(hints)+1+len(configured))
	order := make([]string, 0, len(hints)+1+len(configured))
	appendUnique := func(relayURL string) {
		if relayURL == "" {
			return
		}
		if _, found := seen[relayURL]; found {
			return
		}
		seen[relayURL] = struct{}{}
		order = append(order, relayURL)
	}

	for _, relayURL := range hints {
		appendUnique(relayURL)
	}
	appendUnique(active)
	for _, relayURL := range configured {
		appendUnique(relayURL)
	}

	return order
}
