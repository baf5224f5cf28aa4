// SPDX-License-Identifier: ice License 1.0

package drafts

import (
	"context"
	"log"
	"strconv"
	"sync"
	stdlibtime "time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"

	"github.com/ice-blockchain/longform/model"
	"github.com/ice-blockchain/longform/relay"
	"github.com/ice-blockchain/longform/signer"
)

func NewEngine(store Store, checkpoints CheckpointStore, signerService *signer.Service, client *relay.Client, publisher *relay.Publisher, relays []string) *Engine {
	return &Engine{
		store:       store,
		checkpoints: checkpoints,
		signer:      signerService,
		client:      client,
		publisher:   publisher,
		relays:      relays,
	}
}

// Run pulls on a schedule until the context is cancelled. Pushes happen on
// publish, not here.
func (e *Engine) Run(ctx context.Context, interval stdlibtime.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	ticker := stdlibtime.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pubKey, err := e.signer.PublicKey(ctx)
			if err != nil {
				log.Printf("WARN: draft sync skipped: %v", err)

				continue
			}
			if err = e.SyncOnce(ctx, pubKey); err != nil {
				log.Printf("WARN: draft sync cycle: %v", err)
			}
		}
	}
}

// SyncOnce runs one pull cycle against every relay concurrently. A failing
// relay never aborts the others; its error is aggregated and its checkpoint
// stays untouched for the next cycle.
func (e *Engine) SyncOnce(ctx context.Context, pubKey string) error {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result *multierror.Error
	)
	for _, relayURL := range e.relays {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err, _ := e.cycles.Do(relayURL+"/"+pubKey, func() (any, error) {
				return nil, e.syncRelay(ctx, relayURL, pubKey)
			})
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return result.ErrorOrNil()
}

func (e *Engine) syncRelay(ctx context.Context, relayURL, pubKey string) error {
	since, err := e.checkpoints.Checkpoint(relayURL, pubKey)
	if err != nil {
		return err
	}
	var sincePtr *model.Timestamp
	if since > 0 {
		sincePtr = &since
	}
	res := e.client.Query(ctx, relayURL,
		model.Filter{Kinds: []int{model.KindDraft}, Authors: []string{pubKey}, Since: sincePtr},
		model.Filter{
			Kinds:   []int{model.KindDeletion},
			Authors: []string{pubKey},
			Tags:    model.TagMap{model.TagKind: {strconv.Itoa(model.KindDraft)}},
			Since:   sincePtr,
		},
	)
	if res.Err != nil {
		return errors.Wrapf(res.Err, "failed to pull draft events from %v", relayURL)
	}

	var watermark model.Timestamp
	for _, ev := range res.Events {
		if ev.CreatedAt > watermark {
			watermark = ev.CreatedAt
		}
		switch ev.Kind {
		case model.KindDraft:
			// A skipped (e.g. undecryptable) event still counts toward the
			// watermark, otherwise the cycle would reprocess it forever.
			if aErr := e.applyDraft(ctx, ev); aErr != nil {
				log.Printf("WARN: skipping draft event %v from %v: %v", ev.ID, relayURL, aErr)
			}
		case model.KindDeletion:
			if aErr := e.applyTombstone(ev); aErr != nil {
				log.Printf("WARN: skipping tombstone %v from %v: %v", ev.ID, relayURL, aErr)
			}
		}
	}
	if watermark > 0 {
		return errors.Wrapf(e.checkpoints.Advance(relayURL, pubKey, watermark+1),
			"failed to advance checkpoint for %v/%v", relayURL, pubKey)
	}

	return nil
}

func (e *Engine) applyDraft(ctx context.Context, ev *model.Event) error {
	id := ev.AddressableIdentifier()
	if id == "" {
		return errors.Wrapf(model.ErrWrongEventParams, "draft event %v has no identifier", ev.ID)
	}
	content := ev.Content
	if ev.IsEncrypted() {
		var err error
		if content, err = e.signer.Decrypt(ctx, ev.Content, ev.PubKey); err != nil {
			return errors.Wrapf(err, "failed to decrypt draft %v", id)
		}
	}
	remote := &Draft{
		ID:            id,
		Content:       content,
		LastSaved:     int64(ev.CreatedAt) * 1000,
		RemoteEventID: ev.ID,
	}
	if blogTag := ev.GetTag(model.TagAddress); blogTag != nil {
		remote.LinkedBlog = blogTag.Value()
	}
	local, err := e.store.GetDraft(id)
	if err != nil {
		return err
	}
	if Merge(local, remote) == DecisionKeep {
		return nil
	}

	return e.store.SaveDraft(remote)
}

// applyTombstone deletes every local draft whose RemoteEventID is buried by
// the kind-5 event, regardless of content state: the tombstone's content is
// never fetched.
func (e *Engine) applyTombstone(ev *model.Event) error {
	kindTag := ev.GetTag(model.TagKind)
	if kindTag == nil || kindTag.Value() != strconv.Itoa(model.KindDraft) {
		// Tag filters are advisory, a non-conforming relay can ignore them.
		return nil
	}
	refs, err := model.ParseEventReference(ev.Tags)
	if err != nil {
		return err
	}
	buried := make(map[string]struct{})
	for _, ref := range refs {
		if plain, isPlain := ref.(*model.PlainEventReference); isPlain {
			for _, eventID := range plain.EventIDs {
				buried[eventID] = struct{}{}
			}
		}
	}
	if len(buried) == 0 {
		return nil
	}
	localDrafts, err := e.store.ListDrafts()
	if err != nil {
		return err
	}
	for _, draft := range localDrafts {
		if draft.RemoteEventID == "" {
			continue
		}
		if _, found := buried[draft.RemoteEventID]; found {
			if dErr := e.store.DeleteDraft(draft.ID); dErr != nil {
				return dErr
			}
		}
	}

	return nil
}

// Push re-encrypts the draft towards the owner's own pubkey, signs it,
// broadcasts it, and advances the checkpoint of each relay that
// acknowledged — and only those. Encryption unavailability is a soft
// per-draft failure, not fatal to the overall sync.
func (e *Engine) Push(ctx context.Context, draftID string) ([]relay.PublishResult, error) {
	draft, err := e.store.GetDraft(draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, errors.Errorf("unknown draft %v", draftID)
	}
	pubKey, err := e.signer.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	ciphertext, err := e.signer.Encrypt(ctx, draft.Content, pubKey)
	if err != nil {
		return nil, errors.Wrapf(err, "draft %v skipped", draftID)
	}

	event := &model.Event{Event: nostr.Event{
		CreatedAt: model.Timestamp(draft.LastSaved / 1000),
		Kind:      model.KindDraft,
		Content:   ciphertext,
		Tags: model.Tags{
			{model.TagIdentifier, draft.ID},
			{model.TagEncryption, model.EncryptionNIP44},
		},
	}}
	if draft.LinkedBlog != "" {
		event.Tags = append(event.Tags, model.Tag{model.TagAddress, draft.LinkedBlog})
	}
	if err = e.signer.Sign(ctx, event, ""); err != nil {
		return nil, err
	}

	results := e.publisher.Publish(ctx, event, e.relays)
	acknowledged := model.Timestamp(draft.LastSaved/1000) + 1
	for i := range results {
		if !results[i].Success {
			continue
		}
		if cErr := e.checkpoints.Advance(results[i].Relay, pubKey, acknowledged); cErr != nil {
			log.Printf("WARN: failed to advance checkpoint after push to %v: %v", results[i].Relay, cErr)
		}
	}
	draft.RemoteEventID = event.ID
	if sErr := e.store.SaveDraft(draft); sErr != nil {
		return results, sErr
	}

	return results, nil
}

// Delete removes the draft locally and, when it was ever mirrored remotely,
// broadcasts a NIP-09 tombstone so the other devices bury it too.
func (e *Engine) Delete(ctx context.Context, draftID string) ([]relay.PublishResult, error) {
	draft, err := e.store.GetDraft(draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, nil
	}
	if err = e.store.DeleteDraft(draftID); err != nil {
		return nil, err
	}
	if draft.RemoteEventID == "" {
		return nil, nil
	}
	tombstone := model.NewDeletion(draft.RemoteEventID, model.KindDraft)
	if err = e.signer.Sign(ctx, tombstone, ""); err != nil {
		return nil, err
	}

	return e.publisher.Publish(ctx, tombstone, e.relays), nil
}
