package pcm

import (
	"container/list"
)

type (
	// Key identifies a printed note: program in the high byte, note in the
	// low byte.
	Key uint16

	// Limits bound the memory tier. When an insertion leaves the cache above
	// SizeLimit bytes or CountLimit entries, the oldest entries are dropped
	// until it is at or below both targets. A zero limit disables its check.
	Limits struct {
		SizeLimit   int
		CountLimit  int
		SizeTarget  int
		CountTarget int
	}

	// Stats describe the content and the history of a cache.
	Stats struct {
		Count     int
		Size      int
		Hits      int
		Misses    int
		Evictions int
	}

	// Cache maps keys to PCMs, dropping oldest-inserted entries first.
	Cache struct {
		limits  Limits
		entries map[Key]*list.Element
		order   *list.List
		stats   Stats
	}

	entry struct {
		key Key
		pcm *PCM
	}
)

// MakeKey packs a program and a note into a key.
func MakeKey(program, note byte) Key {
	return Key(program)<<8 | Key(note)
}

// Program returns the program of the key.
func (k Key) Program() byte {
	return byte(k >> 8)
}

// Note returns the note of the key.
func (k Key) Note() byte {
	return byte(k)
}

func NewCache(limits Limits) *Cache {
	return &Cache{limits: limits, entries: map[Key]*list.Element{}, order: list.New()}
}

func (c *Cache) Get(key Key) (*PCM, bool) {
	if e, ok := c.entries[key]; ok {
		c.stats.Hits++
		return e.Value.(*entry).pcm, true
	}
	c.stats.Misses++
	return nil, false
}

// Put inserts or replaces the PCM of key, making it the newest entry, then
// evicts if the cache went over its limits.
func (c *Cache) Put(key Key, pcm *PCM) {
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
	c.entries[key] = c.order.PushBack(&entry{key: key, pcm: pcm})
	c.stats.Count++
	c.stats.Size += size(pcm)
	c.evict()
}

func (c *Cache) evict() {
	l := c.limits
	if !(l.SizeLimit > 0 && c.stats.Size > l.SizeLimit || l.CountLimit > 0 && c.stats.Count > l.CountLimit) {
		return
	}
	for c.order.Len() > 0 && (l.SizeLimit > 0 && c.stats.Size > l.SizeTarget || l.CountLimit > 0 && c.stats.Count > l.CountTarget) {
		c.remove(c.order.Front())
		c.stats.Evictions++
	}
}

func (c *Cache) remove(e *list.Element) {
	en := c.order.Remove(e).(*entry)
	delete(c.entries, en.key)
	c.stats.Count--
	c.stats.Size -= size(en.pcm)
}

// DropProgram removes every entry of a program.
func (c *Cache) DropProgram(program byte) {
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*entry).key.Program() == program {
			c.remove(e)
		}
		e = next
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.entries = map[Key]*list.Element{}
	c.order.Init()
	c.stats.Count, c.stats.Size = 0, 0
}

// Keys lists the keys from oldest to newest.
func (c *Cache) Keys() []Key {
	ret := make([]Key, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		ret = append(ret, e.Value.(*entry).key)
	}
	return ret
}

func (c *Cache) Stats() Stats {
	return c.stats
}

func size(p *PCM) int {
	return len(p.Samples) * 2
}
