// SPDX-License-Identifier: ice License 1.0

package drafts

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ice-blockchain/longform/model"
)

const checkpointNamespace = "checkpoint/drafts/"

func (db *DB) Checkpoint(relayURL, pubKey string) (model.Timestamp, error) {
	value, err := db.ldb.Get(checkpointKey(relayURL, pubKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read checkpoint for %v/%v", relayURL, pubKey)
	}
	watermark, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "corrupted checkpoint for %v/%v: %s", relayURL, pubKey, value)
	}

	return model.Timestamp(watermark), nil
}

// Advance moves the watermark forward, never backward. Writes for the same
// key are serialized so a stale cycle cannot regress a newer one.
func (db *DB) Advance(relayURL, pubKey string, watermark model.Timestamp) error {
	db.advanceMx.Lock()
	defer db.advanceMx.Unlock()

	current, err := db.Checkpoint(relayURL, pubKey)
	if err != nil {
		return err
	}
	if watermark <= current {
		return nil
	}
	value := strconv.FormatInt(int64(watermark), 10)

	return errors.Wrapf(db.ldb.Put(checkpointKey(relayURL, pubKey), []byte(value), nil),
		"failed to store checkpoint for %v/%v", relayURL, pubKey)
}

// Reset drops every checkpoint of the given pubkey, on logout.
func (db *DB) Reset(pubKey string) error {
	iter := db.ldb.NewIterator(util.BytesPrefix([]byte(checkpointNamespace)), nil)
	defer iter.Release()

	for iter.Next() {
		if strings.HasSuffix(string(iter.Key()), "/"+pubKey) {
			if err := db.ldb.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
				return errors.Wrapf(err, "failed to reset checkpoint %s", iter.Key())
			}
		}
	}

	return errors.Wrap(iter.Error(), "failed to iterate checkpoints")
}

func checkpointKey(relayURL, pubKey string) []byte {
	return []byte(checkpointNamespace + relayURL + "/" + pubKey)
}
