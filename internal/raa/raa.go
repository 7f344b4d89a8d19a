// Package raa implements the sparse, integer-keyed random-access
// array the Mach-O back-end uses to remember which initial symbol
// number an external symbol's front-end segment resolves to — the
// RAA primitive from the assembler's host-callback contract. Keys
// that were never written read back as zero, matching the contract's
// default-value guarantee. The bucket-chaining strategy mirrors the
// teacher's FlapHashMap (hashmap.go), re-typed from a uint64-keyed
// runtime value store to an int32-keyed symbol-table index.
package raa

type bucket struct {
	key      int32
	value    int32
	occupied bool
	next     *bucket
}

// Map is a chained-bucket sparse array from int32 to int32.
type Map struct {
	buckets []bucket
	count   int
}

// New returns a Map with room for approximately initialSize entries
// before its chains start growing.
func New(initialSize int) *Map {
	if initialSize < 16 {
		initialSize = 16
	}
	return &Map{buckets: make([]bucket, initialSize)}
}

func (m *Map) index(key int32) int {
	// FNV-1a over the key's 4 bytes.
	h := uint32(2166136261)
	for i := 0; i < 4; i++ {
		h ^= uint32(byte(key >> (uint(i) * 8)))
		h *= 16777619
	}
	return int(h % uint32(len(m.buckets)))
}

// Read returns the value stored for key, or 0 if key was never
// written.
func (m *Map) Read(key int32) int32 {
	b := &m.buckets[m.index(key)]
	if b.occupied && b.key == key {
		return b.value
	}
	for cur := b.next; cur != nil; cur = cur.next {
		if cur.key == key {
			return cur.value
		}
	}
	return 0
}

// Write stores value for key, overwriting any prior value for that
// key.
func (m *Map) Write(key, value int32) {
	b := &m.buckets[m.index(key)]
	if !b.occupied {
		b.key, b.value, b.occupied = key, value, true
		m.count++
		return
	}
	if b.key == key {
		b.value = value
		return
	}
	for cur := b.next; cur != nil; cur = cur.next {
		if cur.key == key {
			cur.value = value
			return
		}
	}
	b.next = &bucket{key: key, value: value, occupied: true, next: b.next}
	m.count++
}

// Len reports the number of distinct keys written.
func (m *Map) Len() int {
	return m.count
}
