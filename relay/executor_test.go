// SPDX-License-Identifier: ice License 1.0

package relay_test

import (
	"context"
	"testing"
	stdlibtime "time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ice-blockchain/longform/model"
	"github.com/ice-blockchain/longform/relay"
	"github.com/ice-blockchain/longform/relay/fixture"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const shortTimeout = 300 * stdlibtime.Millisecond

func note(id string, createdAt model.Timestamp) *model.Event {
	return &model.Event{Event: nostr.Event{ID: id, Kind: model.KindTextNote, CreatedAt: createdAt}}
}

func TestQueryHappyPath(t *testing.T) {
	t.Parallel()

	mock := fixture.NewMockRelay(t, fixture.WithEvents(note("a", 10), note("b", 20)))
	client := relay.NewClient(relay.DefaultQueryTimeout)

	res := client.Query(context.Background(), mock.URL(), model.Filter{Kinds: []int{model.KindTextNote}})
	require.NoError(t, res.Err)
	require.True(t, res.Complete)
	require.Len(t, res.Events, 2)

	require.Eventually(t, func() bool {
		return len(mock.Closes()) == 1
	}, stdlibtime.Second, 10*stdlibtime.Millisecond, "CLOSE must be sent exactly once before the socket is released")
	reqs := mock.Reqs()
	require.Len(t, reqs, 1)
	require.Equal(t, mock.Closes()[0], reqs[0].SubscriptionID)
}

func TestQueryTimeoutIsWeakSuccess(t *testing.T) {
	t.Parallel()

	mock := fixture.NewMockRelay(t, fixture.WithEvents(note("a", 10)), fixture.WithoutEOSE())
	client := relay.NewClient(300 * stdlibtime.Millisecond)

	res := client.Query(context.Background(), mock.URL(), model.Filter{Kinds: []int{model.KindTextNote}})
	require.NoError(t, res.Err)
	require.False(t, res.Complete)
	require.Len(t, res.Events, 1)

	// The subscription is unsubscribed on the timeout path too, not just on EOSE.
	require.Eventually(t, func() bool {
		return len(mock.Closes()) == 1
	}, stdlibtime.Second, 10*stdlibtime.Millisecond, "CLOSE must be sent exactly once before the socket is released")
}

func TestQuerySlowHandshakeEatsCollectBudget(t *testing.T) {
	t.Parallel()

	mock := fixture.NewMockRelay(t, fixture.WithoutEOSE(), fixture.WithHandshakeDelay(250*stdlibtime.Millisecond))
	client := relay.NewClient(400 * stdlibtime.Millisecond)

	started := stdlibtime.Now()
	res := client.Query(context.Background(), mock.URL(), model.Filter{Kinds: []int{model.KindTextNote}})
	elapsed := stdlibtime.Since(started)

	require.NoError(t, res.Err)
	require.False(t, res.Complete)
	require.Less(t, elapsed, 550*stdlibtime.Millisecond, "dial and collect share one timeout budget")
}

func TestQueryTransportFailure(t *testing.T) {
	t.Parallel()

	mock := fixture.NewMockRelay(t)
	url := mock.URL()
	mock.Close()
	client := relay.NewClient(shortTimeout)

	res := client.Query(context.Background(), url, model.Filter{Kinds: []int{model.KindTextNote}})
	require.Error(t, res.Err)
	require.False(t, res.Complete)
	require.Empty(t, res.Events)
}

func TestQueryContextCancelled(t *testing.T) {
	t.Parallel()

	mock := fixture.NewMockRelay(t, fixture.WithoutEOSE())
	client := relay.NewClient(relay.DefaultQueryTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), 100*stdlibtime.Millisecond)
	defer cancel()

	res := client.Query(ctx, mock.URL(), model.Filter{Kinds: []int{model.KindTextNote}})
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestQueryDropsNonConformingFrames(t *testing.T) {
	t.Parallel()

	mock := fixture.NewMockRelay(t,
		fixture.WithEvents(note("good", 10)),
		fixture.WithRawFrames(
			`this is not json at all`,
			`["EVENT","someone-elses-sub",{"id":"foreign","pubkey":"","created_at":1,"kind":1,"tags":[],"content":"","sig":""}]`,
			`["EVENT","{{sub}}",{"id":"wrongkind","pubkey":"","created_at":1,"kind":7,"tags":[],"content":"","sig":""}]`,
		),
	)
	client := relay.NewClient(relay.DefaultQueryTimeout)

	res := client.Query(context.Background(), mock.URL(), model.Filter{Kinds: []int{model.KindTextNote}})
	require.NoError(t, res.Err)
	require.True(t, res.Complete)
	require.Len(t, res.Events, 1)
	require.Equal(t, "good", res.Events[0].ID)
}

func TestQuerySubscriptionClosedByRelay(t *testing.T) {
	t.Parallel()

	mock := fixture.NewMockRelay(t,
		fixture.WithoutEOSE(),
		fixture.WithRawFrames(`["CLOSED","{{sub}}","error: blocked"]`),
	)
	client := relay.NewClient(relay.DefaultQueryTimeout)

	res := client.Query(context.Background(), mock.URL(), model.Filter{Kinds: []int{model.KindTextNote}})
	require.ErrorIs(t, res.Err, relay.ErrSubscriptionClosed)
	require.False(t, res.Complete)
}

func TestQueryAll(t *testing.T) {
	t.Parallel()

	t.Run("DeduplicatesAcrossRelays", func(t *testing.T) {
		mockA := fixture.NewMockRelay(t, fixture.WithEvents(note("a", 10), note("shared", 5)))
		mockB := fixture.NewMockRelay(t, fixture.WithEvents(note("b", 20), note("shared", 5)))
		client := relay.NewClient(relay.DefaultQueryTimeout)

		res := client.QueryAll(context.Background(), []string{mockA.URL(), mockB.URL()}, model.Filter{Kinds: []int{model.KindTextNote}})
		require.True(t, res.AnyComplete)
		require.False(t, res.AllFailed)
		require.Len(t, res.Events, 3)
	})
	t.Run("PartialFailureIsNotTotalFailure", func(t *testing.T) {
		alive := fixture.NewMockRelay(t, fixture.WithEvents(note("a", 10)))
		dead := fixture.NewMockRelay(t)
		deadURL := dead.URL()
		dead.Close()
		client := relay.NewClient(shortTimeout)

		res := client.QueryAll(context.Background(), []string{alive.URL(), deadURL}, model.Filter{Kinds: []int{model.KindTextNote}})
		require.True(t, res.AnyComplete)
		require.False(t, res.AllFailed)
		require.Len(t, res.Events, 1)
	})
	t.Run("AllRelaysDown", func(t *testing.T) {
		dead := fixture.NewMockRelay(t)
		deadURL := dead.URL()
		dead.Close()
		client := relay.NewClient(shortTimeout)

		res := client.QueryAll(context.Background(), []string{deadURL}, model.Filter{Kinds: []int{model.KindTextNote}})
		require.False(t, res.AnyComplete)
		require.True(t, res.AllFailed)
		require.Empty(t, res.Events)
	})
}

