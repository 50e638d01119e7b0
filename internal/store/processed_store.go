package store

import (
	"github.com/tidwall/gjson"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
)

const processedCollection = "proc"

// ProcessedStore records one row per successfully downloaded file; source
// of truth for "already processed" (§3, §4.4).
type ProcessedStore struct {
	d *driver
}

func NewProcessedStore(path string) (*ProcessedStore, error) {
	d, err := openDriver(path)
	if err != nil {
		return nil, err
	}
	return &ProcessedStore{d: d}, nil
}

func (s *ProcessedStore) Close() error { return s.d.Close() }

func procPartitionPrefix(clientID, configurationID string) string {
	return makeKey(makeKey(processedCollection, clientID), configurationID) + collectionSep
}

// Create inserts p, keyed by DiscoveredFileID. A duplicate insert attempt
// returns (nil, false, nil), the "already exists" sentinel that lets
// ProcessDiscoveredFileHandler skip event re-emission (§4.5, §4.7).
func (s *ProcessedStore) Create(p *model.ProcessedFile) (*model.ProcessedFile, bool, error) {
	inserted, err := s.d.setIfAbsent(procPartitionPrefix(p.ClientID, p.ConfigurationID), p.DiscoveredFileID, p)
	if err != nil || !inserted {
		return nil, false, err
	}
	return p, true, nil
}

func (s *ProcessedStore) GetByDiscoveredFileID(clientID, configurationID, discoveredFileID string) (*model.ProcessedFile, bool, error) {
	var p model.ProcessedFile
	ok, err := s.d.get(procPartitionPrefix(clientID, configurationID), discoveredFileID, &p)
	if err != nil || !ok {
		return nil, false, err
	}
	return &p, true, nil
}

// ListByConfiguration lists up to limit processed records, optionally
// filtered by filename (§4.4).
func (s *ProcessedStore) ListByConfiguration(clientID, configurationID string, limit int, filenameFilter string) ([]*model.ProcessedFile, error) {
	var out []*model.ProcessedFile
	err := s.d.scan(procPartitionPrefix(clientID, configurationID), func(key, raw string) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		if filenameFilter != "" && gjson.Get(raw, "filename").String() != filenameFilter {
			return true
		}
		var p model.ProcessedFile
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			out = append(out, &p)
		}
		return true
	})
	return out, err
}
