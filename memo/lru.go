package memo

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog/log"
)

// Cache is an LRU of encoded outcomes. Only the newest generation seen is
// kept; remembering an outcome for a newer generation drops all older entries.
type Cache struct {
	mu        sync.Mutex
	entries   map[Hash]*list.Element
	evictList *list.List
	maxSize   int
	latest    uint64
	hits      uint64
	misses    uint64
}

type cacheEntry struct {
	hash  Hash
	key   Key
	value []byte
}

// New creates a cache holding at most maxSize outcomes (0 or negative means 256).
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Cache{
		entries:   make(map[Hash]*list.Element),
		evictList: list.New(),
		maxSize:   maxSize,
	}
}

// Lookup returns the outcome remembered for expr at generation gen.
func (c *Cache) Lookup(gen uint64, expr string) (Outcome, bool) {
	key := Key{Generation: gen, Expr: expr}
	h, err := key.Hash()
	if err != nil {
		return Outcome{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[h]
	if !ok || elem.Value.(*cacheEntry).key != key {
		c.misses++
		return Outcome{}, false
	}
	c.evictList.MoveToFront(elem)
	o, err := decode(elem.Value.(*cacheEntry).value)
	if err != nil {
		c.removeElement(elem)
		c.misses++
		return Outcome{}, false
	}
	c.hits++
	return o, true
}

// Remember stores the outcome of expr at generation gen. Outcomes for a
// generation older than the newest one seen are ignored.
func (c *Cache) Remember(gen uint64, expr string, o Outcome) {
	key := Key{Generation: gen, Expr: expr}
	h, err := key.Hash()
	if err != nil {
		return
	}
	data, err := encode(o)
	if err != nil {
		log.Debug().Err(err).Msg("Couldn't encode preview outcome")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen < c.latest {
		return
	}
	if gen > c.latest {
		c.purge()
		c.latest = gen
	}

	if elem, ok := c.entries[h]; ok {
		c.evictList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.key = key
		entry.value = data
		return
	}
	elem := c.evictList.PushFront(&cacheEntry{hash: h, key: key, value: data})
	c.entries[h] = elem
	if c.evictList.Len() > c.maxSize {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	if elem := c.evictList.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *Cache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry).hash)
}

func (c *Cache) purge() {
	c.entries = make(map[Hash]*list.Element)
	c.evictList.Init()
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
