// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"io"
	"sync"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/nbd-wtf/go-nostr"

	"github.com/ice-blockchain/longform/model"
)

func NewPublisher(timeout stdlibtime.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}

	return &Publisher{
		dialer:  ws.Dialer{Timeout: timeout},
		timeout: timeout,
	}
}

// Publish fans the signed event out to every relay concurrently. Each relay
// tracks its own OK acknowledgment or timeout with no cross-relay
// coordination: a dead relay never blocks or fails the others. Relays
// deduplicate by event id, so re-publishing is safe and needs no idempotency
// token here.
func (p *Publisher) Publish(ctx context.Context, event *model.Event, relays []string) []PublishResult {
	results := make([]PublishResult, len(relays))
	var wg sync.WaitGroup
	for i, relayURL := range relays {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.publishOne(ctx, event, relayURL)
		}()
	}
	wg.Wait()

	return results
}

// AnySucceeded is the usual caller-side threshold: at least one relay took it.
func AnySucceeded(results []PublishResult) bool {
	for i := range results {
		if results[i].Success {
			return true
		}
	}

	return false
}

func (p *Publisher) publishOne(ctx context.Context, event *model.Event, relayURL string) PublishResult {
	result := PublishResult{Relay: relayURL}

	conn, br, _, err := p.dialer.Dial(ctx, relayURL)
	if err != nil {
		result.Message = errors.Wrapf(err, "failed to connect to relay %v", relayURL).Error()

		return result
	}
	defer conn.Close()
	var leftover io.Reader
	if br != nil {
		leftover = br
	}
	rw := newConnIO(conn, leftover)

	envelope := nostr.EventEnvelope{Event: event.Event}
	data, err := envelope.MarshalJSON()
	if err != nil {
		result.Message = errors.Wrap(err, "failed to serialize event").Error()

		return result
	}
	if err = wsutil.WriteClientMessage(rw, ws.OpText, data); err != nil {
		result.Message = errors.Wrapf(err, "failed to send event to relay %v", relayURL).Error()

		return result
	}

	deadline := stdlibtime.Now().Add(p.timeout)
	if ctxDeadline, hasDeadline := ctx.Deadline(); hasDeadline && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err = conn.SetReadDeadline(deadline); err != nil {
		result.Message = errors.Wrap(err, "failed to arm publish deadline").Error()

		return result
	}

	for {
		frame, rErr := wsutil.ReadServerText(rw)
		if rErr != nil {
			result.Message = errors.Wrapf(rErr, "no acknowledgment from relay %v", relayURL).Error()

			return result
		}
		env, pErr := model.ParseMessage(frame)
		if pErr != nil {
			continue
		}
		if okEnvelope, isOK := env.(*nostr.OKEnvelope); isOK && okEnvelope.EventID == event.ID {
			result.Success = okEnvelope.OK
			result.Message = okEnvelope.Reason

			return result
		}
	}
}
