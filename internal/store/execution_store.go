package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

const executionCollection = "exec"

// ExecutionStore records one row per file-check attempt (§3, §4.4).
type ExecutionStore struct {
	d *driver
}

func NewExecutionStore(path string) (*ExecutionStore, error) {
	d, err := openDriver(path)
	if err != nil {
		return nil, err
	}
	return &ExecutionStore{d: d}, nil
}

func (s *ExecutionStore) Close() error { return s.d.Close() }

func execPartitionPrefix(clientID, configurationID string) string {
	return makeKey(makeKey(executionCollection, clientID), configurationID) + collectionSep
}

func (s *ExecutionStore) Create(e *model.Execution) error {
	if e.ETag == "" {
		e.ETag = uuid.NewString()
	}
	inserted, err := s.d.setIfAbsent(execPartitionPrefix(e.ClientID, e.ConfigurationID), e.ID, e)
	if err != nil {
		return err
	}
	if !inserted {
		return svcerr.ErrConflict
	}
	return nil
}

// Update persists e's terminal (or retry-count) fields, checking e.ETag.
// Once terminal, an Execution record is immutable except for RetryCount on
// operator-driven retries (§3) — this is a convention enforced by callers,
// not re-derived here.
func (s *ExecutionStore) Update(e *model.Execution) error {
	expected := e.ETag
	next := *e
	next.ETag = uuid.NewString()
	if err := s.d.compareAndSwap(execPartitionPrefix(e.ClientID, e.ConfigurationID), e.ID, expected, &next); err != nil {
		return err
	}
	*e = next
	return nil
}

func (s *ExecutionStore) GetByID(clientID, configurationID, id string) (*model.Execution, bool, error) {
	var e model.Execution
	ok, err := s.d.get(execPartitionPrefix(clientID, configurationID), id, &e)
	if err != nil || !ok {
		return nil, false, err
	}
	return &e, true, nil
}

// ListForRange returns executions whose StartedAt falls in [from, to].
func (s *ExecutionStore) ListForRange(clientID, configurationID string, from, to time.Time) ([]*model.Execution, error) {
	var out []*model.Execution
	err := s.d.scan(execPartitionPrefix(clientID, configurationID), func(key, raw string) bool {
		var e model.Execution
		if err := json.Unmarshal([]byte(raw), &e); err == nil {
			if !e.StartedAt.Before(from) && !e.StartedAt.After(to) {
				out = append(out, &e)
			}
		}
		return true
	})
	return out, err
}

func (s *ExecutionStore) ListPaginated(clientID, configurationID string, pageSize int, continuationToken string) (*ExecutionPage, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	var all []*model.Execution
	err := s.d.scan(execPartitionPrefix(clientID, configurationID), func(key, raw string) bool {
		var e model.Execution
		if err := json.Unmarshal([]byte(raw), &e); err == nil {
			all = append(all, &e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	start := 0
	if continuationToken != "" {
		start = decodeOffsetToken(continuationToken)
	}
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	page := &ExecutionPage{Items: all[start:end]}
	if end < len(all) {
		page.NextToken = encodeOffsetToken(end)
	}
	return page, nil
}

type ExecutionPage struct {
	Items     []*model.Execution
	NextToken string
}
