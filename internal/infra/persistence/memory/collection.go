package memory

// record is implemented by every catalog record kind.
type record[T any] interface {
	Key() string
	Clone() T
}

// collection keeps records in insertion order with a key index. The order is
// observable: list responses and fallback doctor selection depend on it.
type collection[T record[T]] struct {
	items []T
	index map[string]int
}

func newCollection[T record[T]](items []T) collection[T] {
	c := collection[T]{
		items: make([]T, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for _, item := range items {
		c.insert(item)
	}
	return c
}

func (c collection[T]) clone() collection[T] {
	out := collection[T]{
		items: make([]T, len(c.items)),
		index: make(map[string]int, len(c.index)),
	}
	for i, item := range c.items {
		out.items[i] = item.Clone()
	}
	for k, v := range c.index {
		out.index[k] = v
	}
	return out
}

func (c collection[T]) find(id string) (T, bool) {
	pos, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[pos].Clone(), true
}

// insert appends item unless its key is already present.
func (c *collection[T]) insert(item T) bool {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if _, exists := c.index[item.Key()]; exists {
		return false
	}
	c.index[item.Key()] = len(c.items)
	c.items = append(c.items, item.Clone())
	return true
}

// replace overwrites the record stored under id, keeping its position.
func (c *collection[T]) replace(id string, item T) bool {
	pos, ok := c.index[id]
	if !ok {
		return false
	}
	c.items[pos] = item.Clone()
	return true
}

func (c *collection[T]) remove(id string) (T, bool) {
	pos, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	removed := c.items[pos]
	c.items = append(c.items[:pos], c.items[pos+1:]...)
	c.reindex()
	return removed, true
}

func (c *collection[T]) reindex() {
	c.index = make(map[string]int, len(c.items))
	for i, item := range c.items {
		c.index[item.Key()] = i
	}
}

func (c collection[T]) list() []T {
	out := make([]T, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item.Clone())
	}
	return out
}
