package collector

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jkbrsn/axiosly"
)

// DefaultCapacity is the number of records a Store keeps when none is configured.
const DefaultCapacity = 10_000

// Store keeps the most recently received records, keyed by record ID. Storing a record with an
// ID that is already present replaces it.
type Store struct {
	cache *lru.Cache[string, axiosly.MetricsRecord]
}

// NewStore creates a Store holding up to capacity records. A non-positive capacity means
// DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, axiosly.MetricsRecord](capacity)
	if err != nil {
		panic(err)
	}
	return &Store{cache: cache}
}

// Put stores rec and reports whether it replaced an earlier copy.
func (s *Store) Put(rec axiosly.MetricsRecord) (replaced bool) {
	replaced = s.cache.Contains(rec.ID)
	s.cache.Add(rec.ID, rec)
	return replaced
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (axiosly.MetricsRecord, bool) {
	return s.cache.Peek(id)
}

// List returns all stored records, least recently stored first.
func (s *Store) List() []axiosly.MetricsRecord {
	return s.cache.Values()
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return s.cache.Len()
}
