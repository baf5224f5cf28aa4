// SPDX-License-Identifier: ice License 1.0

package drafts

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const draftKeyPrefix = "draft/"

func OpenDB(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open draft database at %v", path)
	}

	return &DB{ldb: ldb}, nil
}

// OpenEphemeralDB backs the stores with memory only. Used by tests.
func OpenEphemeralDB() (*DB, error) {
	ldb, err := leveldb.Open(ldbstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory draft database")
	}

	return &DB{ldb: ldb}, nil
}

func (db *DB) Close() error {
	return errors.Wrap(db.ldb.Close(), "failed to close draft database")
}

func (db *DB) GetDraft(id string) (*Draft, error) {
	value, err := db.ldb.Get(draftKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read draft %v", id)
	}
	var draft Draft
	if err = json.Unmarshal(value, &draft); err != nil {
		return nil, errors.Wrapf(err, "failed to deserialize draft %v", id)
	}

	return &draft, nil
}

func (db *DB) SaveDraft(draft *Draft) error {
	value, err := json.Marshal(draft)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize draft %v", draft.ID)
	}

	return errors.Wrapf(db.ldb.Put(draftKey(draft.ID), value, nil), "failed to store draft %v", draft.ID)
}

func (db *DB) DeleteDraft(id string) error {
	return errors.Wrapf(db.ldb.Delete(draftKey(id), nil), "failed to delete draft %v", id)
}

func (db *DB) ListDrafts() ([]*Draft, error) {
	iter := db.ldb.NewIterator(util.BytesPrefix([]byte(draftKeyPrefix)), nil)
	defer iter.Release()

	var result []*Draft
	for iter.Next() {
		var draft Draft
		if err := json.Unmarshal(iter.Value(), &draft); err != nil {
			return nil, errors.Wrapf(err, "failed to deserialize draft at key %s", iter.Key())
		}
		result = append(result, &draft)
	}

	return result, errors.Wrap(iter.Error(), "failed to iterate drafts")
}

func draftKey(id string) []byte {
	return []byte(draftKeyPrefix + id)
}
