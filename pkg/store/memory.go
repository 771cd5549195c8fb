package store

import (
	"context"
	"sync"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

// keySet is a set of item keys.
type keySet map[string]struct{}

// MemoryStore keeps records in process memory, indexed by agent, incident
// and day partition. It has no reaper; expired records stay until
// PurgeExpired runs.
type MemoryStore struct {
	opts options

	mu         sync.RWMutex
	items      map[string]item
	byAgent    map[string]keySet
	byIncident map[string]keySet
	byDay      map[string]keySet
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:       newOptions(opts),
		items:      make(map[string]item),
		byAgent:    make(map[string]keySet),
		byIncident: make(map[string]keySet),
		byDay:      make(map[string]keySet),
	}
}

// store saves it and updates the indexes. Callers hold s.mu.
func (s *MemoryStore) store(it item) {
	k := it.key()
	if old, ok := s.items[k]; ok {
		s.unindex(k, old)
	}
	s.items[k] = it
	addKey(s.byAgent, it.AgentID, k)
	addKey(s.byDay, it.DatePartition, k)
	if it.IncidentID != "" {
		addKey(s.byIncident, it.IncidentID, k)
	}
}

// remove deletes the item under k and its index entries. Callers hold s.mu.
func (s *MemoryStore) remove(k string) {
	if it, ok := s.items[k]; ok {
		s.unindex(k, it)
		delete(s.items, k)
	}
}

func (s *MemoryStore) unindex(k string, it item) {
	removeKey(s.byAgent, it.AgentID, k)
	removeKey(s.byDay, it.DatePartition, k)
	removeKey(s.byIncident, it.IncidentID, k)
}

func addKey(index map[string]keySet, name, k string) {
	set, ok := index[name]
	if !ok {
		set = make(keySet)
		index[name] = set
	}
	set[k] = struct{}{}
}

func removeKey(index map[string]keySet, name, k string) {
	set, ok := index[name]
	if !ok {
		return
	}
	delete(set, k)
	if len(set) == 0 {
		delete(index, name)
	}
}

// Put implements usage.Writer.
func (s *MemoryStore) Put(ctx context.Context, rec *usage.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	it := newItem(rec, s.opts.expiresAt())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(it)
	return nil
}

// BatchPut implements usage.Writer.
func (s *MemoryStore) BatchPut(ctx context.Context, records []*usage.Record) (*usage.BatchResult, error) {
	result := &usage.BatchResult{}
	valid := splitValid(records, result)
	expires := s.opts.expiresAt()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range valid {
		s.store(newItem(rec, expires))
	}
	result.Succeeded += len(valid)
	return result, nil
}

// ByAgent implements usage.Reader.
func (s *MemoryStore) ByAgent(ctx context.Context, agentID string, dates *usage.DateRange, limit int) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, s.byAgent[agentID], func(_ item, ts time.Time) bool {
		return dates == nil || dates.Contains(ts)
	})
}

// ByIncident implements usage.Reader.
func (s *MemoryStore) ByIncident(ctx context.Context, incidentID string, limit int) ([]*usage.Record, error) {
	if incidentID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(limit, s.byIncident[incidentID], nil)
}

// ByDateRange implements usage.Reader.
func (s *MemoryStore) ByDateRange(ctx context.Context, start, end time.Time, agentID string, limit int) ([]*usage.Record, error) {
	dates := usage.NewDateRange(start, end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(keySet)
	for _, d := range dates.Days() {
		for k := range s.byDay[d] {
			keys[k] = struct{}{}
		}
	}
	return s.collect(limit, keys, func(it item, ts time.Time) bool {
		return dates.Contains(ts) && (agentID == "" || it.AgentID == agentID)
	})
}

// PurgeExpired implements usage.Store.
func (s *MemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.opts.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, it := range s.items {
		if it.ExpiresAt < now {
			s.remove(k)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close implements usage.Store.
func (s *MemoryStore) Close() error {
	return nil
}

// collect returns copies of the indexed items that match. A nil match
// accepts every item. Callers hold s.mu.
func (s *MemoryStore) collect(limit int, keys keySet, match func(item, time.Time) bool) ([]*usage.Record, error) {
	out := make([]*usage.Record, 0, len(keys))
	for k := range keys {
		it := s.items[k]
		rec, err := it.record()
		if err != nil {
			return nil, usage.NewStorageError(BackendMemory, "query", err)
		}
		if match == nil || match(it, rec.Timestamp) {
			out = append(out, rec.Clone())
		}
	}
	return truncate(out, limit), nil
}
