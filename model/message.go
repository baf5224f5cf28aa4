// SPDX-License-Identifier: ice License 1.0

package model

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/mailru/easyjson"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrParseMessage   = errors.New("parse message")
)

type (
	EventEnvelope struct {
		SubscriptionID string
		Event          Event
	}
)

func (*EventEnvelope) Label() string { return "EVENT" }

func (v *EventEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return errors.Wrap(ErrParseMessage, "EVENT envelope: missing event payload")
	}
	v.SubscriptionID = arr[1].Str
	if err := easyjson.Unmarshal([]byte(arr[2].Raw), &v.Event.Event); err != nil {
		return errors.Wrap(err, "EVENT envelope: malformed event payload")
	}

	return nil
}

func (v *EventEnvelope) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString(`["EVENT","`)
	buf.WriteString(v.SubscriptionID)
	buf.WriteString(`",`)
	eventData, err := easyjson.Marshal(&v.Event.Event)
	if err != nil {
		return nil, errors.Wrap(err, "EVENT envelope: failed to serialize event")
	}
	buf.Write(eventData)
	buf.WriteString(`]`)

	return buf.Bytes(), nil
}

func (v *EventEnvelope) String() string {
	data, _ := v.MarshalJSON()

	return string(data)
}

// ParseMessage decodes one incoming relay frame. Frames the client cares
// about (EVENT) are decoded through the easyjson path, everything else is
// passed through to the reference envelope parser.
func ParseMessage(message []byte) (nostr.Envelope, error) {
	firstComma := bytes.IndexByte(message, ',')
	if firstComma == -1 {
		return nil, ErrUnknownMessage
	}

	var e nostr.Envelope
	if bytes.Contains(message[:firstComma], []byte("EVENT")) {
		var eventEnvelope EventEnvelope
		if err := eventEnvelope.UnmarshalJSON(message); err != nil {
			return nil, errors.Wrap(err, "unmarshal event envelope")
		}
		e = &eventEnvelope
	} else {
		e = nostr.ParseMessage(message)
	}

	if e == nil {
		return nil, ErrParseMessage
	}

	return e, nil
}
