// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"

	"github.com/ice-blockchain/longform/model"
)

func NewClient(timeout stdlibtime.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	return &Client{
		dialer:  ws.Dialer{Timeout: timeout},
		timeout: timeout,
	}
}

// Query opens a dedicated socket, sends REQ with a fresh subscription id and
// collects matching events until EOSE, the deadline or a transport failure.
// The configured timeout is one overall budget: a slow handshake eats into
// the collect window, so the call resolves within the single ceiling.
// It never panics and never leaks the socket: CLOSE is sent before the
// connection is released on every exit path.
func (c *Client) Query(ctx context.Context, relayURL string, filters ...model.Filter) Result {
	started := stdlibtime.Now()
	conn, br, _, err := c.dialer.Dial(ctx, relayURL)
	if err != nil {
		return Result{Err: errors.Wrapf(err, "failed to connect to relay %v", relayURL)}
	}
	var leftover io.Reader
	if br != nil {
		leftover = br
	}
	sub := &subscription{
		conn:    newConnIO(conn, leftover),
		id:      uuid.NewString(),
		filters: filters,
		done:    make(chan struct{}),
	}
	defer sub.close()

	if err = sub.subscribe(); err != nil {
		return Result{Err: err}
	}

	return sub.collect(ctx, c.timeout-stdlibtime.Since(started))
}

// QueryAll fans the same query out to every relay concurrently, deduplicates
// by identity keeping the newest version, and reports whether any relay
// completed its stream and whether every single attempt failed. The latter is
// what lets the UI boundary distinguish "no events" from "all relays down".
func (c *Client) QueryAll(ctx context.Context, relays []string, filters ...model.Filter) MultiResult {
	var (
		mu     sync.Mutex
		events []*model.Event
		result MultiResult
		failed int
		grp    errgroup.Group
	)
	for _, relayURL := range relays {
		grp.Go(func() error {
			res := c.Query(ctx, relayURL, filters...)
			mu.Lock()
			defer mu.Unlock()
			events = append(events, res.Events...)
			if res.Complete {
				result.AnyComplete = true
			}
			if res.Err != nil {
				failed++
			}

			return nil
		})
	}
	_ = grp.Wait()

	result.Events = model.DedupeNewest(events)
	result.AllFailed = len(relays) > 0 && failed == len(relays)

	return result
}

func (s *subscription) subscribe() error {
	req := nostr.ReqEnvelope{SubscriptionID: s.id, Filters: nostr.Filters(s.filters)}
	data, err := req.MarshalJSON()
	if err != nil {
		return errors.Wrapf(err, "failed to serialize REQ for subscription %v", s.id)
	}
	if err = wsutil.WriteClientMessage(s.conn, ws.OpText, data); err != nil {
		return errors.Wrapf(err, "failed to send REQ for subscription %v", s.id)
	}

	return nil
}

func (s *subscription) collect(ctx context.Context, timeout stdlibtime.Duration) Result {
	frames := make(chan nostr.Envelope)
	readFailed := make(chan error, 1)
	go s.readLoop(frames, readFailed)

	timer := stdlibtime.NewTimer(timeout)
	defer timer.Stop()

	var events []*model.Event
	for {
		select {
		case env := <-frames:
			switch e := env.(type) {
			case *model.EventEnvelope:
				if e.SubscriptionID != s.id {
					continue
				}
				if !model.KindAllowed(s.filters, e.Event.Kind) {
					// Non-conforming relay pushed a kind we never asked for.
					continue
				}
				ev := e.Event
				events = append(events, &ev)
			case *nostr.EOSEEnvelope:
				if string(*e) != s.id {
					continue
				}

				return Result{Events: events, Complete: true}
			case *nostr.ClosedEnvelope:
				if e.SubscriptionID != s.id {
					continue
				}

				return Result{Events: events, Err: errors.Wrapf(ErrSubscriptionClosed, "reason: %v", e.Reason)}
			}
		case err := <-readFailed:
			return Result{Events: events, Err: err}
		case <-timer.C:
			// Timeout is a weaker success, not an error.
			return Result{Events: events}
		case <-ctx.Done():
			return Result{Events: events, Err: errors.Wrap(ctx.Err(), ErrQueryCancelled.Error())}
		}
	}
}

func (s *subscription) readLoop(frames chan<- nostr.Envelope, readFailed chan<- error) {
	for {
		data, err := wsutil.ReadServerText(s.conn)
		if err != nil {
			select {
			case readFailed <- errors.Wrapf(err, "failed to read frame for subscription %v", s.id):
			default:
			}

			return
		}
		env, err := model.ParseMessage(data)
		if err != nil {
			// Malformed frames are dropped, the subscription survives.
			continue
		}
		select {
		case frames <- env:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		closeEnvelope := nostr.CloseEnvelope(s.id)
		if data, err := closeEnvelope.MarshalJSON(); err == nil {
			if wErr := wsutil.WriteClientMessage(s.conn, ws.OpText, data); wErr != nil {
				log.Printf("WARN: failed to send CLOSE for subscription %v: %v", s.id, wErr)
			}
		}
		close(s.done)
		if err := s.conn.conn.Close(); err != nil {
			log.Printf("WARN: failed to release socket for subscription %v: %v", s.id, err)
		}
	})
}

// connIO glues the dialer's (possibly buffered) reader to the raw socket so
// wsutil sees one io.ReadWriter.

type connIO struct {
	conn net.Conn
	r    io.Reader
}

func newConnIO(conn net.Conn, br io.Reader) connIO {
	c := connIO{conn: conn, r: conn}
	if br != nil {
		c.r = br
	}

	return c
}

func (c connIO) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c connIO) Write(p []byte) (int, error) { return c.conn.Write(p) }
