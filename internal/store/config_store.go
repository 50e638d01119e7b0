package store

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/model"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub003/internal/svcerr"
)

const configCollection = "cfg"

// ConfigurationStore implements the repository-style contract of §4.4 for
// retrieval configurations. Every query is scoped to a single clientId
// partition except GetAllActive, the one sanctioned cross-partition read
// used only by the scheduler.
type ConfigurationStore struct {
	d *driver
}

func NewConfigurationStore(path string) (*ConfigurationStore, error) {
	d, err := openDriver(path)
	if err != nil {
		return nil, err
	}
	return &ConfigurationStore{d: d}, nil
}

func (s *ConfigurationStore) Close() error { return s.d.Close() }

func partitionPrefix(clientID string) string {
	return makeKey(configCollection, clientID) + collectionSep
}

// Create inserts a new configuration. It fails with svcerr.ErrConflict if
// the (clientId, id) identity already exists.
func (s *ConfigurationStore) Create(cfg *model.Configuration) error {
	if cfg.ETag == "" {
		cfg.ETag = uuid.NewString()
	}
	key := cfg.ID
	inserted, err := s.d.setIfAbsent(partitionPrefix(cfg.ClientID), key, cfg)
	if err != nil {
		return err
	}
	if !inserted {
		return svcerr.ErrConflict
	}
	return nil
}

// GetByID returns (nil, false, nil) on a miss — never an error, so that
// cross-client lookups (§8 scenario S5) surface a uniform "not found"
// rather than distinguishing "doesn't exist" from "not yours".
func (s *ConfigurationStore) GetByID(clientID, id string) (*model.Configuration, bool, error) {
	var cfg model.Configuration
	ok, err := s.d.get(partitionPrefix(clientID), id, &cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return &cfg, true, nil
}

// Page is one page of a paginated listing, with an opaque continuation
// token.
type Page struct {
	Items      []*model.Configuration
	NextToken  string
}

// GetByClientPaginated lists configurations for one client, ordered by
// CreatedAt descending, optionally filtered by protocol and/or isActive.
// pageSize is clamped to [1, 100] per §4.4.
func (s *ConfigurationStore) GetByClientPaginated(clientID string, pageSize int, continuationToken string, protocolFilter *model.Protocol, isActiveFilter *bool) (*Page, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	var all []*model.Configuration
	prefix := partitionPrefix(clientID)
	err := s.d.scan(prefix, func(key, raw string) bool {
		if protocolFilter != nil && gjson.Get(raw, "protocol").String() != string(*protocolFilter) {
			return true
		}
		if isActiveFilter != nil && gjson.Get(raw, "isActive").Bool() != *isActiveFilter {
			return true
		}
		var cfg model.Configuration
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			all = append(all, &cfg)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

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
	page := &Page{Items: all[start:end]}
	if end < len(all) {
		page.NextToken = encodeOffsetToken(end)
	}
	return page, nil
}

// GetAllActive returns every active configuration across all clients. This
// is the only sanctioned cross-partition read (§4.4), used exclusively by
// the scheduler loop.
func (s *ConfigurationStore) GetAllActive() ([]*model.Configuration, error) {
	var active []*model.Configuration
	prefix := configCollection + collectionSep
	err := s.d.scan(prefix, func(key, raw string) bool {
		if !gjson.Get(raw, "isActive").Bool() {
			return true
		}
		var cfg model.Configuration
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			active = append(active, &cfg)
		}
		return true
	})
	return active, err
}

// Update persists cfg, checking cfg.ETag against the stored record's ETag
// first (optimistic concurrency, §3). On success, cfg.ETag is updated in
// place to the fresh value; on svcerr.ErrPreconditionFailed, cfg is left
// unmodified and the on-disk record is unchanged (§8 property 3).
func (s *ConfigurationStore) Update(cfg *model.Configuration) error {
	expected := cfg.ETag
	next := *cfg
	next.ETag = uuid.NewString()
	next.LastModifiedAt = time.Now().UTC()
	if err := s.d.compareAndSwap(partitionPrefix(cfg.ClientID), cfg.ID, expected, &next); err != nil {
		return err
	}
	*cfg = next
	return nil
}

// SoftDelete sets isActive=false via Update, retaining the record for
// history (§3).
func (s *ConfigurationStore) SoftDelete(clientID, id, etag string) error {
	cfg, ok, err := s.GetByID(clientID, id)
	if err != nil {
		return err
	}
	if !ok {
		return svcerr.ErrNotFound
	}
	cfg.IsActive = false
	cfg.ETag = etag
	return s.Update(cfg)
}

func encodeOffsetToken(offset int) string {
	return itoa(offset)
}

func decodeOffsetToken(token string) int {
	return atoiOrZero(token)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func atoiOrZero(s string) int {
	s = strings.TrimSpace(s)
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}
