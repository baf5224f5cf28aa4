// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"sort"

	"github.com/ice-blockchain/longform/model"
)

func NewPager(client *Client) *Pager {
	return &Pager{client: client}
}

// Page fetches one backward page of a time-ordered listing. The cursor
// heuristic: a full page implies there may be older items, so NextCursor is
// set iff the relay returned exactly `limit` events, and points strictly
// before the oldest item already seen (min createdAt - 1), which keeps
// boundary items from reappearing on the next page.
func (p *Pager) Page(ctx context.Context, relayURL string, base model.Filter, limit int, until *model.Timestamp) Page {
	res := p.client.Query(ctx, relayURL, model.WithUntil(base, until, limit))

	items := model.DedupeNewest(res.Events)
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}

		return items[i].ID > items[j].ID
	})

	page := Page{Items: items}
	if limit <= 0 || len(res.Events) != limit {
		return page
	}

	minCreatedAt := res.Events[0].CreatedAt
	for _, ev := range res.Events[1:] {
		if ev.CreatedAt < minCreatedAt {
			minCreatedAt = ev.CreatedAt
		}
	}
	next := minCreatedAt - 1
	page.NextCursor = &next

	return page
}
