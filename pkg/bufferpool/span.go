package bufferpool

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/paprikadb/paprika/pkg/fixedmap"
	"github.com/paprikadb/paprika/pkg/page"
)

// SpanDictionaryOptions configures a SpanDictionary.
type SpanDictionaryOptions struct {
	// PreserveOldValues skips the explicit fixedmap.Delete of a key's
	// previous entry when a newer write for the same (key, hash) lands.
	// It does not keep previous values: fixedmap.TrySet itself overwrites
	// or tombstones any live entry under the same reduced hash, and
	// TryGet/ForEach only ever return the most recent value either way.
	PreserveOldValues bool

	// ConcurrentReaders allows TryGet to run concurrently with other
	// TryGet calls from threads other than the writer. Mutation (Set,
	// Destroy) is always single-threaded regardless of this flag.
	ConcurrentReaders bool
}

// Entry is one live record yielded by SpanDictionary.ForEach.
type Entry struct {
	Key      []byte
	Hash     uint64
	Value    []byte
	Metadata byte
}

type dictKey struct {
	hash uint64
	key  string
}

// ref locates the most recent write for a key: which span holds it, and
// the exact bytes passed to fixedmap.TrySet, kept so a later overwrite
// can tombstone precisely this slot (fixedmap's Delete matches by value
// to avoid evicting an unrelated entry that happens to share the
// 16-bit reduced hash).
type ref struct {
	span  *dictSpan
	entry []byte
}

type dictSpan struct {
	pg page.Page
	m  fixedmap.Map
}

// SpanDictionary is an append-friendly multimap (key_bytes, hash64,
// metadata_byte) -> value_bytes, backed by a chain of Pool-rented pages.
// Each page holds a pkg/fixedmap span; an entry that would split across
// two pages instead triggers a new page. Not safe for concurrent Set or
// Destroy calls; see ConcurrentReaders for TryGet.
type SpanDictionary struct {
	mu sync.RWMutex

	pool  *Pool
	spans []*dictSpan
	index map[dictKey]ref

	preserveOldValues bool
	concurrentReaders bool
}

// NewSpanDictionary creates an empty dictionary backed by pool.
func NewSpanDictionary(pool *Pool, opts SpanDictionaryOptions) *SpanDictionary {
	return &SpanDictionary{
		pool:              pool,
		index:             make(map[dictKey]ref),
		preserveOldValues: opts.PreserveOldValues,
		concurrentReaders: opts.ConcurrentReaders,
	}
}

// Set records a new entry for (key, hash). A prior entry for the same
// (key, hash) in the current page is overwritten in place when the new
// entry has the same size, and otherwise tombstoned, its bytes becoming
// eligible for reuse via fixedmap.Defragment.
func (d *SpanDictionary) Set(key []byte, hash uint64, value []byte, metadata byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendEntry(key, hash, value, metadata)
}

// Destroy overwrites (key, hash) with an empty value. TryGet continues
// to report found, returning a zero-length value as the tombstone
// sentinel.
func (d *SpanDictionary) Destroy(key []byte, hash uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendEntry(key, hash, nil, 0)
}

func (d *SpanDictionary) appendEntry(key []byte, hash uint64, value []byte, metadata byte) {
	entry := encodeEntry(hash, metadata, key, value)
	reduced := reduceHash(hash)

	span := d.currentSpan()
	if err := span.m.TrySet(reduced, entry); err != nil {
		// The current page is full; reclaim tombstoned space first, and
		// only acquire a fresh page if that still isn't enough.
		if span.m.DeletedCount() > 0 {
			span.m.Defragment()
		}
		if err := span.m.TrySet(reduced, entry); err != nil {
			span = d.acquireSpan()
			if err := span.m.TrySet(reduced, entry); err != nil {
				panic(fmt.Sprintf("bufferpool: entry of %d bytes does not fit in an empty page", len(entry)))
			}
		}
	}

	k := dictKey{hash: hash, key: string(key)}
	if old, ok := d.index[k]; ok && !d.preserveOldValues {
		fixedmap.Delete(old.span.m, reduced, old.entry)
	}
	d.index[k] = ref{span: span, entry: entry}
}

// currentSpan returns the span new entries should be attempted against
// first: the most recently acquired one, or a fresh one if none exists
// yet.
func (d *SpanDictionary) currentSpan() *dictSpan {
	if len(d.spans) == 0 {
		return d.acquireSpan()
	}
	return d.spans[len(d.spans)-1]
}

func (d *SpanDictionary) acquireSpan() *dictSpan {
	pg := d.pool.Rent()
	m := fixedmap.New(pg.Payload())
	m.Init()
	s := &dictSpan{pg: pg, m: m}
	d.spans = append(d.spans, s)
	return s
}

// TryGet returns the most recent live value and metadata for (key,
// hash), or ok=false if it was never written.
func (d *SpanDictionary) TryGet(key []byte, hash uint64) (value []byte, metadata byte, ok bool) {
	if d.concurrentReaders {
		d.mu.RLock()
		defer d.mu.RUnlock()
	} else {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	r, found := d.index[dictKey{hash: hash, key: string(key)}]
	if !found {
		return nil, 0, false
	}
	_, md, _, v := decodeEntry(r.entry)
	return v, md, true
}

// ForEach calls fn for every live entry (one per key), in no particular
// order. fn must not call back into the dictionary.
func (d *SpanDictionary) ForEach(fn func(Entry)) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for k, r := range d.index {
		_, md, _, v := decodeEntry(r.entry)
		fn(Entry{Key: []byte(k.key), Hash: k.hash, Value: v, Metadata: md})
	}
}

// Len returns the number of distinct live keys.
func (d *SpanDictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.index)
}

// Release returns every page held by this dictionary to its Pool. The
// dictionary must not be used afterward.
func (d *SpanDictionary) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.spans {
		d.pool.Return(s.pg)
	}
	d.spans = nil
	d.index = make(map[dictKey]ref)
}

func reduceHash(h uint64) uint16 { return uint16(h) }

// encodeEntry packs a dictionary record into the byte string stored as a
// fixedmap value: 8-byte hash, 1-byte metadata, a length-prefixed key,
// then a length-prefixed value.
func encodeEntry(hash uint64, metadata byte, key, value []byte) []byte {
	buf := make([]byte, 8+1+2+len(key)+4+len(value))
	binary.LittleEndian.PutUint64(buf[0:8], hash)
	buf[8] = metadata
	binary.LittleEndian.PutUint16(buf[9:11], uint16(len(key)))
	off := 11
	copy(buf[off:], key)
	off += len(key)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(value)))
	off += 4
	copy(buf[off:], value)
	return buf
}

func decodeEntry(buf []byte) (hash uint64, metadata byte, key, value []byte) {
	hash = binary.LittleEndian.Uint64(buf[0:8])
	metadata = buf[8]
	keyLen := binary.LittleEndian.Uint16(buf[9:11])
	off := 11
	key = buf[off : off+int(keyLen)]
	off += int(keyLen)
	valueLen := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	value = buf[off : off+int(valueLen)]
	return hash, metadata, key, value
}
