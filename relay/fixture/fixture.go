// SPDX-License-Identifier: ice License 1.0

package fixture

import (
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	stdlibtime "time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/nbd-wtf/go-nostr"

	"github.com/ice-blockchain/longform/model"
)

func NewMockRelay(t *testing.T, opts ...Option) *MockRelay {
	t.Helper()

	m := &MockRelay{sendEOSE: true}
	for _, opt := range opts {
		opt(m)
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handleUpgrade))
	m.url = "ws" + strings.TrimPrefix(m.server.URL, "http")
	t.Cleanup(m.server.Close)

	return m
}

// WithEvents seeds the events served in response to any matching REQ.
func WithEvents(events ...*model.Event) Option {
	return func(m *MockRelay) { m.events = events }
}

// WithoutEOSE makes the relay stream events and then hang, forcing clients
// onto their timeout path.
func WithoutEOSE() Option {
	return func(m *MockRelay) { m.sendEOSE = false }
}

// WithRawFrames injects frames before the canned events, so tests can feed
// the client garbage and off-subscription traffic. The literal "{{sub}}" is
// replaced with the subscription id of the REQ being answered.
func WithRawFrames(frames ...string) Option {
	return func(m *MockRelay) { m.rawFrames = frames }
}

// WithSilentPublish drops EVENT frames without acknowledging them.
func WithSilentPublish() Option {
	return func(m *MockRelay) { m.silent = true }
}

// WithPublishRejection acknowledges EVENT frames with OK=false and the given
// reason.
func WithPublishRejection(reason string) Option {
	return func(m *MockRelay) { m.rejectReason = reason }
}

// WithResponseDelay delays the reply to each REQ.
func WithResponseDelay(delay stdlibtime.Duration) Option {
	return func(m *MockRelay) { m.delay = delay }
}

// WithHandshakeDelay stalls the websocket upgrade, simulating a slow dial.
func WithHandshakeDelay(delay stdlibtime.Duration) Option {
	return func(m *MockRelay) { m.upgradeDelay = delay }
}

func (m *MockRelay) URL() string {
	return m.url
}

// Close shuts the relay down early, simulating an unreachable relay.
func (m *MockRelay) Close() {
	m.server.Close()
}

func (m *MockRelay) Reqs() []nostr.ReqEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]nostr.ReqEnvelope(nil), m.reqs...)
}

func (m *MockRelay) Closes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.closes...)
}

func (m *MockRelay) Published() []*model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*model.Event(nil), m.published...)
}

func (m *MockRelay) SetEvents(events ...*model.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = events
}

func (m *MockRelay) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if m.upgradeDelay > 0 {
		stdlibtime.Sleep(m.upgradeDelay)
	}
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	go m.serve(conn)
}

func (m *MockRelay) serve(conn net.Conn) {
	defer conn.Close()
	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op != ws.OpText || len(data) == 0 {
			continue
		}
		envelope := nostr.ParseMessage(data)
		if envelope == nil {
			continue
		}
		switch e := envelope.(type) {
		case *nostr.ReqEnvelope:
			m.handleReq(conn, e)
		case *nostr.CloseEnvelope:
			m.mu.Lock()
			m.closes = append(m.closes, string(*e))
			m.mu.Unlock()
		case *nostr.EventEnvelope:
			m.handleEvent(conn, e)
		}
	}
}

func (m *MockRelay) handleReq(conn net.Conn, req *nostr.ReqEnvelope) {
	m.mu.Lock()
	m.reqs = append(m.reqs, *req)
	events := m.events
	rawFrames := m.rawFrames
	sendEOSE := m.sendEOSE
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		stdlibtime.Sleep(delay)
	}
	for _, frame := range rawFrames {
		frame = strings.ReplaceAll(frame, "{{sub}}", req.SubscriptionID)
		_ = wsutil.WriteServerMessage(conn, ws.OpText, []byte(frame))
	}
	matching := make([]*model.Event, 0, len(events))
	for _, ev := range events {
		if req.Filters.Match(&ev.Event) {
			matching = append(matching, ev)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].CreatedAt > matching[j].CreatedAt })
	if len(req.Filters) > 0 {
		if limit := req.Filters[0].Limit; limit > 0 && len(matching) > limit {
			matching = matching[:limit]
		}
	}
	for _, ev := range matching {
		m.write(conn, &model.EventEnvelope{SubscriptionID: req.SubscriptionID, Event: *ev})
	}
	if sendEOSE {
		eose := nostr.EOSEEnvelope(req.SubscriptionID)
		m.write(conn, &eose)
	}
}

func (m *MockRelay) handleEvent(conn net.Conn, envelope *nostr.EventEnvelope) {
	m.mu.Lock()
	m.published = append(m.published, &model.Event{Event: envelope.Event})
	silent := m.silent
	reason := m.rejectReason
	m.mu.Unlock()

	if silent {
		return
	}
	m.write(conn, &nostr.OKEnvelope{EventID: envelope.Event.ID, OK: reason == "", Reason: reason})
}

func (m *MockRelay) write(conn net.Conn, envelope nostr.Envelope) {
	data, err := envelope.MarshalJSON()
	if err != nil {
		return
	}
	_ = wsutil.WriteServerMessage(conn, ws.OpText, data)
}
