// Package store implements the partitioned persistence model (§4.4): four
// buntdb-backed repositories, each scoped to a clientId partition.
//
// bunt.go is adapted from aistore's dbdriver/bunt.go: a similar driver shape
// (set/setIfAbsent/compareAndSwap/get/delete/scan, EverySecond sync policy,
// auto-shrink configuration, collection##key path joining) repackaged for
// this domain.
package store

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
	"github.com/tidwall/gjson"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

const (
	autoShrinkSizeBytes = 1 << 20 // 1MiB, matches the teacher's autoShrinkSize
	collectionSep       = "##"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// driver wraps one buntdb.DB, typically one physical file per logical
// collection (configurations / executions / discovered-files /
// processed-files), per SPEC_FULL.md §3.
type driver struct {
	db *buntdb.DB
}

func openDriver(path string) (*driver, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %s", path)
	}
	db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkMinSize:    autoShrinkSizeBytes,
		AutoShrinkPercentage: 50,
	})
	return &driver{db: db}, nil
}

func (d *driver) Close() error { return d.db.Close() }

func makeKey(collection, key string) string {
	if strings.HasSuffix(collection, collectionSep) {
		return collection + key
	}
	return collection + collectionSep + key
}

// setIfAbsent performs the uniqueness-guaranteeing insert: it sets value at
// key only if no value is already present, inside one buntdb transaction.
// It returns (inserted=false, nil) on an existing key rather than an error —
// duplicate-insert is the idempotency mechanism (§4.4, §9), not a failure.
func (d *driver) setIfAbsent(collection, key string, value interface{}) (inserted bool, err error) {
	raw, merr := json.Marshal(value)
	if merr != nil {
		return false, errors.Wrap(merr, "store: marshal")
	}
	name := makeKey(collection, key)
	err = d.db.Update(func(tx *buntdb.Tx) error {
		if _, getErr := tx.Get(name); getErr == nil {
			inserted = false
			return nil
		} else if getErr != buntdb.ErrNotFound {
			return getErr
		}
		_, _, setErr := tx.Set(name, string(raw), nil)
		if setErr != nil {
			return setErr
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "store: setIfAbsent %s", name)
	}
	return inserted, nil
}

func (d *driver) set(collection, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "store: marshal")
	}
	name := makeKey(collection, key)
	return d.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(name, string(raw), nil)
		return err
	})
}

// compareAndSwap sets newValue at key only if the record currently at key
// carries etagField equal to expectedETag (optimistic concurrency, §3, §7).
// A missing key is svcerr.ErrNotFound; an etag mismatch is
// svcerr.ErrPreconditionFailed.
func (d *driver) compareAndSwap(collection, key, expectedETag string, newValue interface{}) error {
	raw, err := json.Marshal(newValue)
	if err != nil {
		return errors.Wrap(err, "store: marshal")
	}
	name := makeKey(collection, key)
	return d.db.Update(func(tx *buntdb.Tx) error {
		current, getErr := tx.Get(name)
		if getErr == buntdb.ErrNotFound {
			return svcerr.ErrNotFound
		} else if getErr != nil {
			return getErr
		}
		if gjson.Get(current, "etag").String() != expectedETag {
			return svcerr.ErrPreconditionFailed
		}
		_, _, setErr := tx.Set(name, string(raw), nil)
		return setErr
	})
}

func (d *driver) get(collection, key string, out interface{}) (bool, error) {
	name := makeKey(collection, key)
	var raw string
	err := d.db.View(func(tx *buntdb.Tx) error {
		v, getErr := tx.Get(name)
		if getErr != nil {
			return getErr
		}
		raw = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "store: get %s", name)
	}
	if unmarshalErr := json.Unmarshal([]byte(raw), out); unmarshalErr != nil {
		return false, errors.Wrap(unmarshalErr, "store: unmarshal")
	}
	return true, nil
}

func (d *driver) delete(collection, key string) error {
	name := makeKey(collection, key)
	err := d.db.Update(func(tx *buntdb.Tx) error {
		_, delErr := tx.Delete(name)
		return delErr
	})
	if err == buntdb.ErrNotFound {
		return nil
	}
	return err
}

// scan iterates every raw JSON value whose key is prefixed by
// collection+collectionSep, invoking fn(key, rawJSON) for each. Iteration
// stops early if fn returns false. Partition scoping is enforced by the
// caller prefixing the collection with clientId, never by convention alone
// (§4.4).
func (d *driver) scan(collectionPrefix string, fn func(key, raw string) bool) error {
	return d.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", collectionPrefix, func(key, value string) bool {
			if !strings.HasPrefix(key, collectionPrefix) {
				return false
			}
			return fn(key, value)
		})
	})
}
