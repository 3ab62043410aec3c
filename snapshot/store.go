package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/alwitt/livetransit/common"
	"github.com/alwitt/livetransit/decoder"
	"github.com/apex/log"
)

// Record latest known state of one entity
type Record struct {
	// Key the entity's natural key
	Key string
	// ReceivedAt when the record was accepted into the store
	ReceivedAt time.Time
	// Payload the decoded message body
	Payload decoder.Document
}

// Clock source of the current time
type Clock func() time.Time

// Store keyed table of latest known records
type Store interface {
	// Put insert or replace the record for a key, stamping it with the current time.
	// The stored record is returned.
	Put(key string, payload decoder.Document) Record
	// Get fetch the current record for a key
	Get(key string) (Record, bool)
	// ListAll fetch every current record, ordered by key
	ListAll() []Record
	// EvictOlderThan remove every record older than maxAge, returning the number removed
	EvictOlderThan(maxAge time.Duration) int
	// Len the number of records currently held
	Len() int
}

// storeImpl implements Store
type storeImpl struct {
	common.Component
	name    string
	now     Clock
	lock    sync.RWMutex
	records map[string]Record
}

// GetStore define a new empty snapshot store
func GetStore(name string, clock Clock) Store {
	logTags := log.Fields{
		"module": "snapshot", "component": "store", "instance": name,
	}
	if clock == nil {
		clock = time.Now
	}
	return &storeImpl{
		Component: common.Component{LogTags: logTags},
		name:      name,
		now:       clock,
		records:   make(map[string]Record),
	}
}

// Put insert or replace the record for a key
func (s *storeImpl) Put(key string, payload decoder.Document) Record {
	s.lock.Lock()
	defer s.lock.Unlock()
	record := Record{Key: key, ReceivedAt: s.now(), Payload: payload}
	s.records[key] = record
	return record
}

// Get fetch the current record for a key
func (s *storeImpl) Get(key string) (Record, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	record, ok := s.records[key]
	return record, ok
}

// ListAll fetch every current record, ordered by key
func (s *storeImpl) ListAll() []Record {
	s.lock.RLock()
	result := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		result = append(result, record)
	}
	s.lock.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// EvictOlderThan remove every record whose age exceeds maxAge
func (s *storeImpl) EvictOlderThan(maxAge time.Duration) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := s.now()
	removed := 0
	for key, record := range s.records {
		if now.Sub(record.ReceivedAt) > maxAge {
			delete(s.records, key)
			removed++
		}
	}
	if removed > 0 {
		log.WithFields(s.LogTags).Debugf("Evicted %d stale records", removed)
	}
	return removed
}

// Len the number of records currently held
func (s *storeImpl) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.records)
}
