package vm

import "math"

const (
	mapMinCapacity = 8
	mapMaxLoadNum  = 3 // load factor 3/4
	mapMaxLoadDen  = 4
)

// FNV-1a, 32 bit.
const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

type mapEntry struct {
	key   Value
	value Value
}

// Map is an open-addressing hash map with linear probing over a
// power-of-two capacity. An empty slot has a nil key and a nil value; a
// tombstone has a nil key and the value true. Nil is never a valid key.
//
// The zero Map is empty and ready to use.
type Map struct {
	count   int // live entries plus tombstones
	live    int
	entries []mapEntry
}

// HashString hashes s with FNV-1a.
func HashString(s string) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

func hashUint64(x uint64) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < 8; i++ {
		h ^= uint32(x & 0xff)
		h *= fnvPrime32
		x >>= 8
	}
	return h
}

// hashValue hashes a key. Strings reuse their cached hash.
func hashValue(v Value) uint32 {
	switch v.Type {
	case ValBool:
		return hashUint64(v.Data + 1)
	case ValNumber:
		f := v.AsNumber()
		if f == 0 {
			f = 0 // fold -0 into +0
		}
		return hashUint64(math.Float64bits(f))
	case ValObj:
		if s, ok := v.Obj.(*ObjString); ok {
			return s.Hash
		}
		return hashUint64(v.Obj.header().id)
	}
	return 0
}

func isTombstone(e *mapEntry) bool {
	return e.key.Type == ValNil && e.value.Type != ValNil
}

// find returns the slot for key: either the slot holding it, or the slot an
// insertion should use (the first tombstone passed, else the empty slot).
func findEntry(entries []mapEntry, key Value) *mapEntry {
	mask := uint32(len(entries) - 1)
	index := hashValue(key) & mask
	var tombstone *mapEntry
	for {
		e := &entries[index]
		if e.key.Type == ValNil {
			if e.value.Type == ValNil {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key.Equals(key) {
			return e
		}
		index = (index + 1) & mask
	}
}

// Len returns the number of live entries.
func (m *Map) Len() int { return m.live }

// Cap returns the slot capacity.
func (m *Map) Cap() int { return len(m.entries) }

// Get returns the value stored under key.
func (m *Map) Get(key Value) (Value, bool) {
	if m.live == 0 {
		return NilVal(), false
	}
	e := findEntry(m.entries, key)
	if e.key.Type == ValNil {
		return NilVal(), false
	}
	return e.value, true
}

// Set stores value under key and reports whether key was newly inserted.
// The map grows before inserting once the load threshold would be crossed.
func (m *Map) Set(key, value Value) bool {
	if (m.count+1)*mapMaxLoadDen > len(m.entries)*mapMaxLoadNum {
		capacity := len(m.entries) * 2
		if capacity < mapMinCapacity {
			capacity = mapMinCapacity
		}
		m.adjustCapacity(capacity)
	}

	e := findEntry(m.entries, key)
	isNew := e.key.Type == ValNil
	if isNew {
		m.live++
		if e.value.Type == ValNil {
			m.count++ // reused tombstones are already counted
		}
	}
	e.key = key
	e.value = value
	return isNew
}

// Delete removes key, leaving a tombstone. It reports whether key was present.
func (m *Map) Delete(key Value) bool {
	if m.live == 0 {
		return false
	}
	e := findEntry(m.entries, key)
	if e.key.Type == ValNil {
		return false
	}
	e.key = NilVal()
	e.value = BoolVal(true)
	m.live--
	return true
}

func (m *Map) adjustCapacity(capacity int) {
	entries := make([]mapEntry, capacity)
	m.count = 0
	for i := range m.entries {
		e := &m.entries[i]
		if e.key.Type == ValNil {
			continue
		}
		dest := findEntry(entries, e.key)
		dest.key = e.key
		dest.value = e.value
		m.count++
	}
	m.entries = entries
}

// AddAll copies every entry of from into m.
func (m *Map) AddAll(from *Map) {
	for i := range from.entries {
		e := &from.entries[i]
		if e.key.Type != ValNil {
			m.Set(e.key, e.value)
		}
	}
}

// FindString looks up an interned string by content without allocating.
func (m *Map) FindString(chars string, hash uint32) *ObjString {
	if m.live == 0 {
		return nil
	}
	mask := uint32(len(m.entries) - 1)
	index := hash & mask
	for {
		e := &m.entries[index]
		if e.key.Type == ValNil {
			if e.value.Type == ValNil {
				return nil
			}
		} else if s, ok := e.key.Obj.(*ObjString); ok && s.Hash == hash && s.Chars == chars {
			return s
		}
		index = (index + 1) & mask
	}
}

// Next scans forward from cursor for an occupied slot. It returns the cursor
// to continue from. Iteration follows slot order, which changes when the map
// is modified.
func (m *Map) Next(cursor int) (next int, key, value Value, ok bool) {
	for i := cursor; i < len(m.entries); i++ {
		e := &m.entries[i]
		if e.key.Type != ValNil {
			return i + 1, e.key, e.value, true
		}
	}
	return len(m.entries), NilVal(), NilVal(), false
}

// GetString looks up a string key by content.
func (m *Map) GetString(name string) (Value, bool) {
	s := m.FindString(name, HashString(name))
	if s == nil {
		return NilVal(), false
	}
	return m.Get(ObjVal(s))
}

// removeUnmarked deletes every entry whose object key was not marked.
// It is the weak-reference sweep of the intern table.
func (m *Map) removeUnmarked() int {
	removed := 0
	for i := range m.entries {
		e := &m.entries[i]
		if e.key.Type == ValObj && !e.key.Obj.header().marked {
			e.key = NilVal()
			e.value = BoolVal(true)
			m.live--
			removed++
		}
	}
	return removed
}

// bytes is the accounted size of the slot array.
func (m *Map) bytes() int {
	return len(m.entries) * mapEntrySize
}
