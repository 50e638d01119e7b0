package bus

import (
	"context"
	"fmt"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileQueueBus is a durable Bus backed by a buntdb-persisted queue: every
// Send/Publish writes env to disk before dispatch, so a crash mid-delivery
// is recoverable by redelivering on restart (§6's durability requirement
// for commands/events, mirroring the store package's own durability
// discipline).
type FileQueueBus struct {
	reg *registry
	db  *buntdb.DB
	seq int64
}

func NewFileQueueBus(dir string) (*FileQueueBus, error) {
	db, err := buntdb.Open(filepath.Join(dir, "bus.db"))
	if err != nil {
		return nil, errors.Wrapf(err, "bus: open queue at %s", dir)
	}
	return &FileQueueBus{reg: newRegistry(), db: db}, nil
}

func (b *FileQueueBus) Close() error { return b.db.Close() }

func (b *FileQueueBus) Handle(messageType string, fn HandlerFunc) {
	b.reg.add(messageType, fn)
}

func (b *FileQueueBus) persist(env Envelope) (string, error) {
	b.seq++
	key := fmt.Sprintf("q##%020d##%s", b.seq, env.MessageID)
	raw, err := json.Marshal(env)
	if err != nil {
		return "", errors.Wrap(err, "bus: marshal envelope")
	}
	err = b.db.Update(func(tx *buntdb.Tx) error {
		_, _, setErr := tx.Set(key, string(raw), nil)
		return setErr
	})
	if err != nil {
		return "", errors.Wrap(err, "bus: persist envelope")
	}
	return key, nil
}

func (b *FileQueueBus) remove(key string) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// Send persists env, dispatches to the single registered handler, and
// removes the queue entry only on success; a failed dispatch leaves the
// entry for Recover to redeliver.
func (b *FileQueueBus) Send(ctx context.Context, env Envelope) error {
	handlers := b.reg.get(env.MessageType)
	if len(handlers) == 0 {
		return errNoHandler(env.MessageType)
	}
	key, err := b.persist(env)
	if err != nil {
		return err
	}
	if err := handlers[0](ctx, env); err != nil {
		return svcerr.New(svcerr.HandlerError, err, "bus: send %s", env.MessageType)
	}
	return b.remove(key)
}

func (b *FileQueueBus) Publish(ctx context.Context, env Envelope) error {
	handlers := b.reg.get(env.MessageType)
	key, err := b.persist(env)
	if err != nil {
		return err
	}
	var firstErr error
	for _, h := range handlers {
		if err := h(ctx, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return svcerr.New(svcerr.HandlerError, firstErr, "bus: publish %s", env.MessageType)
	}
	return b.remove(key)
}

// Recover redelivers every envelope still persisted from a prior run,
// incrementing RetryCount before redispatch (§4.7's retry-count-for-
// observability convention) — intended to run once at startup before the
// scheduler begins dispatching new work.
func (b *FileQueueBus) Recover(ctx context.Context) error {
	var pending []struct {
		key string
		env Envelope
	}
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", "q##", func(key, raw string) bool {
			if len(key) < 3 || key[:3] != "q##" {
				return false
			}
			var env Envelope
			if jsonErr := json.Unmarshal([]byte(raw), &env); jsonErr == nil {
				pending = append(pending, struct {
					key string
					env Envelope
				}{key, env})
			}
			return true
		})
	})
	if err != nil {
		return errors.Wrap(err, "bus: scan pending queue")
	}
	for _, p := range pending {
		p.env.RetryCount++
		handlers := b.reg.get(p.env.MessageType)
		failed := false
		for _, h := range handlers {
			if h(ctx, p.env) != nil {
				failed = true
			}
		}
		if !failed {
			_ = b.remove(p.key)
		}
	}
	return nil
}
