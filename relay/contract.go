// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"sync"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"

	"github.com/ice-blockchain/longform/model"
)

// Public API.

type (
	Config struct {
		QueryTimeout   stdlibtime.Duration `yaml:"queryTimeout"`
		PublishTimeout stdlibtime.Duration `yaml:"publishTimeout"`
		BatchWindow    stdlibtime.Duration `yaml:"batchWindow"`
		BatchMaxKeys   int                 `yaml:"batchMaxKeys"`
	}

	// Client owns one socket per query: it subscribes, collects events until
	// EOSE or the deadline, unsubscribes and releases the socket.
	Client struct {
		dialer  ws.Dialer
		timeout stdlibtime.Duration
	}

	// Result is the terminal state of a single-relay query. A timeout is a
	// weaker success: Events holds whatever was collected, Complete stays
	// false. A transport failure is recorded in Err with an empty buffer, so
	// callers can tell "relay had nothing" from "relay was unreachable".
	Result struct {
		Events   []*model.Event
		Complete bool
		Err      error
	}

	// MultiResult aggregates a concurrent fan-out over several relays.
	MultiResult struct {
		Events      []*model.Event
		AnyComplete bool
		AllFailed   bool
	}

	// Page is one slice of a backward, cursor-driven listing.
	Page struct {
		Items []*model.Event
		// NextCursor is set only when the page came back full: addressable
		// events have no server-side total, a full page is the only hint
		// that older items may exist.
		NextCursor *model.Timestamp
	}

	Pager struct {
		client *Client
	}

	// Resolver probes an ordered relay list sequentially and stops at the
	// first hit, trading worst-case latency for lower aggregate relay load.
	Resolver struct {
		client     *Client
		active     string
		configured []string
	}

	// PublishResult is one relay's verdict on one publish attempt. The slice
	// returned by Publish is never collapsed: any success threshold is the
	// caller's decision.
	PublishResult struct {
		Relay   string
		Success bool
		Message string
	}

	Publisher struct {
		dialer  ws.Dialer
		timeout stdlibtime.Duration
	}

	// Registry hands out one Batcher per (lookup class, relay set). It is
	// owned by the composition root and passed down explicitly.
	Registry struct {
		ctx      context.Context
		client   *Client
		window   stdlibtime.Duration
		maxBatch int

		mu       sync.Mutex
		batchers map[string]*Batcher
	}

	// Batcher coalesces individual bech32 lookups issued within one window
	// into a single relay round trip per relay set.
	Batcher struct {
		ctx      context.Context
		client   *Client
		relays   []string
		class    lookupClass
		window   stdlibtime.Duration
		maxBatch int

		mu      sync.Mutex
		pending map[string][]chan *model.Event
		timer   *stdlibtime.Timer
	}
)

const (
	DefaultQueryTimeout   = 10 * stdlibtime.Second
	DefaultPublishTimeout = 10 * stdlibtime.Second
	DefaultBatchWindow    = 50 * stdlibtime.Millisecond
	DefaultBatchMaxKeys   = 100
)

var (
	ErrSubscriptionClosed = errors.New("subscription closed by relay")
	ErrQueryCancelled     = errors.New("query cancelled")
)

// Private API.

type (
	lookupClass uint8

	subscription struct {
		conn    connIO
		id      string
		filters model.Filters

		closeOnce sync.Once
		done      chan struct{}
	}
)

const (
	lookupProfile lookupClass = iota
	lookupNote
)
