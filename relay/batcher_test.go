// SPDX-License-Identifier: ice License 1.0

package relay_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	stdlibtime "time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/longform/model"
	"github.com/ice-blockchain/longform/relay"
	"github.com/ice-blockchain/longform/relay/fixture"
)

func profileOf(secretKey string, createdAt model.Timestamp) *model.Event {
	pubkey, _ := nostr.GetPublicKey(secretKey)
	return &model.Event{Event: nostr.Event{
		ID:        "profile-" + pubkey[:8],
		PubKey:    pubkey,
		Kind:      model.KindProfileMetadata,
		CreatedAt: createdAt,
		Content:   `{"name":"someone"}`,
	}}
}

func TestBatcherCoalescesWindow(t *testing.T) {
	t.Parallel()

	keys := make([]string, 0, 5)
	events := make([]*model.Event, 0, 5)
	for range 5 {
		sk := nostr.GeneratePrivateKey()
		ev := profileOf(sk, 100)
		events = append(events, ev)
		npub, err := nip19.EncodePublicKey(ev.PubKey)
		require.NoError(t, err)
		keys = append(keys, npub)
	}
	mock := fixture.NewMockRelay(t, fixture.WithEvents(events...))
	registry := relay.NewRegistry(context.Background(), relay.NewClient(relay.DefaultQueryTimeout), 200*stdlibtime.Millisecond, 100)
	batcher := registry.Profiles([]string{mock.URL()})

	var wg sync.WaitGroup
	results := make([]*model.Event, len(keys))
	for i, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev, err := batcher.Fetch(context.Background(), key)
			require.NoError(t, err)
			results[i] = ev
		}()
	}
	wg.Wait()

	for i, ev := range results {
		require.NotNil(t, ev, "lookup %v must resolve", keys[i])
		require.Equal(t, events[i].PubKey, ev.PubKey)
		profile, pErr := model.ParseProfileMetadata(ev)
		require.NoError(t, pErr)
		require.Equal(t, "someone", profile.Name)
	}
	reqs := mock.Reqs()
	require.Len(t, reqs, 1, "5 lookups within one window must produce a single REQ")
	require.Len(t, reqs[0].Filters, 1)
	require.ElementsMatch(t, pubkeysOf(events), reqs[0].Filters[0].Authors)
}

func TestBatcherDuplicateKeysShareOneSlot(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()
	ev := profileOf(sk, 100)
	npub, err := nip19.EncodePublicKey(ev.PubKey)
	require.NoError(t, err)
	mock := fixture.NewMockRelay(t, fixture.WithEvents(ev))
	registry := relay.NewRegistry(context.Background(), relay.NewClient(relay.DefaultQueryTimeout), 200*stdlibtime.Millisecond, 100)
	batcher := registry.Profiles([]string{mock.URL()})

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, fErr := batcher.Fetch(context.Background(), npub)
			require.NoError(t, fErr)
			require.NotNil(t, got)
		}()
	}
	wg.Wait()

	reqs := mock.Reqs()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Filters[0].Authors, 1)
}

func TestBatcherUnresolvableKeys(t *testing.T) {
	t.Parallel()

	mock := fixture.NewMockRelay(t)
	registry := relay.NewRegistry(context.Background(), relay.NewClient(relay.DefaultQueryTimeout), 20*stdlibtime.Millisecond, 100)
	batcher := registry.Profiles([]string{mock.URL()})

	t.Run("Undecodable", func(t *testing.T) {
		t.Parallel()

		ev, err := batcher.Fetch(context.Background(), "npub1garbage")
		require.NoError(t, err)
		require.Nil(t, ev)
	})
	t.Run("MalformedProfileContent", func(t *testing.T) {
		t.Parallel()

		junk := fixture.NewMockRelay(t)
		junkRegistry := relay.NewRegistry(context.Background(), relay.NewClient(relay.DefaultQueryTimeout), 20*stdlibtime.Millisecond, 100)
		sk := nostr.GeneratePrivateKey()
		ev := profileOf(sk, 100)
		ev.Content = "not a json object"
		junk.SetEvents(ev)
		npub, err := nip19.EncodePublicKey(ev.PubKey)
		require.NoError(t, err)

		got, fErr := junkRegistry.Profiles([]string{junk.URL()}).Fetch(context.Background(), npub)
		require.NoError(t, fErr)
		require.Nil(t, got, "a kind-0 with undecodable content never reaches the caller")
	})
	t.Run("UnknownToEveryRelay", func(t *testing.T) {
		t.Parallel()

		npub, err := nip19.EncodePublicKey(strings.Repeat("ab", 32))
		require.NoError(t, err)
		ev, fErr := batcher.Fetch(context.Background(), npub)
		require.NoError(t, fErr)
		require.Nil(t, ev)
	})
}

func TestBatcherSizeCapFlushesEarly(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()
	ev := profileOf(sk, 100)
	npub, err := nip19.EncodePublicKey(ev.PubKey)
	require.NoError(t, err)
	mock := fixture.NewMockRelay(t, fixture.WithEvents(ev))
	// 1-key cap with an hour-long window: only the size cap can flush.
	registry := relay.NewRegistry(context.Background(), relay.NewClient(relay.DefaultQueryTimeout), stdlibtime.Hour, 1)
	batcher := registry.Profiles([]string{mock.URL()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*stdlibtime.Second)
	defer cancel()
	got, fErr := batcher.Fetch(ctx, npub)
	require.NoError(t, fErr)
	require.NotNil(t, got)
}

func TestBatcherNotes(t *testing.T) {
	t.Parallel()

	noteEvent := note(strings.Repeat("cd", 32), 42)
	nevent, err := nip19.EncodeEvent(noteEvent.ID, nil, "")
	require.NoError(t, err)
	mock := fixture.NewMockRelay(t, fixture.WithEvents(noteEvent))
	registry := relay.NewRegistry(context.Background(), relay.NewClient(relay.DefaultQueryTimeout), 20*stdlibtime.Millisecond, 100)
	batcher := registry.Notes([]string{mock.URL()})

	got, fErr := batcher.Fetch(context.Background(), nevent)
	require.NoError(t, fErr)
	require.NotNil(t, got)
	require.Equal(t, noteEvent.ID, got.ID)
	require.Equal(t, []string{noteEvent.ID}, mock.Reqs()[0].Filters[0].IDs)
}

func TestBatcherFetchCancelled(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()
	npub, err := nip19.EncodePublicKey(mustPubKey(sk))
	require.NoError(t, err)
	mock := fixture.NewMockRelay(t)
	registry := relay.NewRegistry(context.Background(), relay.NewClient(relay.DefaultQueryTimeout), stdlibtime.Hour, 100)
	batcher := registry.Profiles([]string{mock.URL()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, fErr := batcher.Fetch(ctx, npub)
	require.ErrorIs(t, fErr, context.Canceled)
}

func pubkeysOf(events []*model.Event) []string {
	keys := make([]string, 0, len(events))
	for _, ev := range events {
		keys = append(keys, ev.PubKey)
	}

	return keys
}

func mustPubKey(secretKey string) string {
	pubkey, _ := nostr.GetPublicKey(secretKey)

	return pubkey
}
