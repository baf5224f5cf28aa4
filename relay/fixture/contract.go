// SPDX-License-Identifier: ice License 1.0

package fixture

import (
	"net/http/httptest"
	"sync"
	stdlibtime "time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/ice-blockchain/longform/model"
)

type (
	// MockRelay is an in-process NIP-01 relay used by the client tests: it
	// serves canned events for any REQ, acknowledges (or rejects, or
	// ignores) EVENT frames, and records every envelope it receives.
	MockRelay struct {
		server *httptest.Server
		url    string

		mu           sync.Mutex
		events       []*model.Event
		rawFrames    []string
		sendEOSE     bool
		silent       bool
		rejectReason string
		delay        stdlibtime.Duration
		upgradeDelay stdlibtime.Duration

		reqs      []nostr.ReqEnvelope
		closes    []string
		published []*model.Event
	}

	Option func(*MockRelay)
)
