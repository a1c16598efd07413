package axiosly

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/atomic"
)

// Buffer is an ordered, capacity-bounded store of MetricsRecords keyed by record ID. Records
// keep their insertion order; when the buffer is full, appending evicts the oldest record.
// All methods are safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	records  *simplelru.LRU[string, *MetricsRecord]
	capacity int
	lastID   string

	evicted atomic.Uint64
	onEvict func(MetricsRecord)
}

// NewBuffer creates a Buffer holding at most capacity records. A non-positive capacity means
// DefaultBufferCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		records:  newRecordLRU(capacity),
		capacity: capacity,
	}
}

func newRecordLRU(capacity int) *simplelru.LRU[string, *MetricsRecord] {
	l, err := simplelru.NewLRU[string, *MetricsRecord](capacity, nil)
	if err != nil {
		// Only returned for a non-positive size, which NewBuffer rules out
		panic(err)
	}
	return l
}

// Append adds a copy of rec to the buffer. If the buffer is full, the oldest record is
// evicted and reported to the eviction callback, if any.
func (b *Buffer) Append(rec MetricsRecord) {
	stored := rec.Clone()

	b.mu.Lock()
	var (
		oldest     *MetricsRecord
		haveOldest bool
	)
	if b.records.Len() >= b.capacity {
		_, oldest, haveOldest = b.records.GetOldest()
	}
	var (
		evicted  MetricsRecord
		didEvict bool
	)
	if b.records.Add(stored.ID, &stored) && haveOldest {
		evicted, didEvict = *oldest, true
	}
	b.lastID = stored.ID
	onEvict := b.onEvict
	b.mu.Unlock()

	if didEvict {
		b.evicted.Inc()
		if onEvict != nil {
			onEvict(evicted)
		}
	}
}

// Complete applies fn to the record with the given ID, unless that record already has a
// terminal outcome. It returns a copy of the updated record and whether fn was applied.
func (b *Buffer) Complete(id string, fn func(*MetricsRecord)) (MetricsRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records.Peek(id)
	if !ok || rec.Completed() {
		return MetricsRecord{}, false
	}
	fn(rec)
	return rec.Clone(), true
}

// Get returns a copy of the record with the given ID.
func (b *Buffer) Get(id string) (MetricsRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records.Peek(id)
	if !ok {
		return MetricsRecord{}, false
	}
	return rec.Clone(), true
}

// Last returns a copy of the most recently appended record. With several requests in flight it
// is not necessarily the record of any particular one of them; use Get for that.
func (b *Buffer) Last() (MetricsRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastID == "" {
		return MetricsRecord{}, false
	}
	rec, ok := b.records.Peek(b.lastID)
	if !ok {
		return MetricsRecord{}, false
	}
	return rec.Clone(), true
}

// Snapshot returns copies of all buffered records in insertion order.
func (b *Buffer) Snapshot() []MetricsRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	return cloneAll(b.records.Values())
}

// Drain returns all buffered records in insertion order and leaves the buffer empty.
func (b *Buffer) Drain() []MetricsRecord {
	b.mu.Lock()
	old := b.records
	b.records = newRecordLRU(b.capacity)
	b.lastID = ""
	b.mu.Unlock()

	return cloneAll(old.Values())
}

// DrainCompleted removes and returns, in insertion order, the records that have an outcome.
// Records of requests still in flight stay buffered.
func (b *Buffer) DrainCompleted() []MetricsRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []MetricsRecord
	for _, rec := range b.records.Values() {
		if !rec.Completed() {
			continue
		}
		out = append(out, rec.Clone())
		b.records.Remove(rec.ID)
	}
	if !b.records.Contains(b.lastID) {
		b.lastID = ""
	}
	return out
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records.Len()
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Evicted returns the number of records evicted because the buffer was full.
func (b *Buffer) Evicted() uint64 {
	return b.evicted.Load()
}

// setEvictCallback registers fn to be called, outside the buffer lock, for every evicted record.
func (b *Buffer) setEvictCallback(fn func(MetricsRecord)) {
	b.mu.Lock()
	b.onEvict = fn
	b.mu.Unlock()
}

func cloneAll(recs []*MetricsRecord) []MetricsRecord {
	if len(recs) == 0 {
		return nil
	}
	out := make([]MetricsRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Clone())
	}
	return out
}
